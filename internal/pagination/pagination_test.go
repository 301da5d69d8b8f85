package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedAPI simulates a page-number endpoint holding total records.
type pagedAPI struct {
	total      int
	pageSize   int
	reportMeta bool
	requests   int
}

func (a *pagedAPI) fetch(_ context.Context, token Token) (interface{}, error) {
	a.requests++
	start := (token.Page - 1) * a.pageSize
	content := []interface{}{}
	for i := start; i < start+a.pageSize && i < a.total; i++ {
		content = append(content, map[string]interface{}{"id": json.Number(fmt.Sprint(i))})
	}
	body := map[string]interface{}{"content": content}
	if a.reportMeta {
		body["totalElements"] = json.Number(fmt.Sprint(a.total))
		body["totalPages"] = json.Number(fmt.Sprint((a.total + a.pageSize - 1) / a.pageSize))
	}
	return body, nil
}

func collectIDs(t *testing.T, strategy Strategy, fetch FetchFunc, start Token) []string {
	t.Helper()
	var ids []string
	err := strategy.Paginate(context.Background(), fetch, start, func(p *Page) error {
		for _, r := range p.Records {
			ids = append(ids, r.(map[string]interface{})["id"].(json.Number).String())
		}
		return nil
	})
	require.NoError(t, err)
	return ids
}

func TestPageNumber_RequestCount(t *testing.T) {
	tests := []struct {
		name         string
		total        int
		pageSize     int
		reportMeta   bool
		wantRequests int
	}{
		{name: "exact multiple with totals", total: 10, pageSize: 5, reportMeta: true, wantRequests: 2},
		{name: "remainder with totals", total: 11, pageSize: 5, reportMeta: true, wantRequests: 3},
		{name: "remainder without totals", total: 7, pageSize: 5, wantRequests: 2},
		{name: "exact multiple without totals needs an empty page", total: 10, pageSize: 5, wantRequests: 3},
		{name: "empty dataset", total: 0, pageSize: 5, reportMeta: true, wantRequests: 1},
		{name: "single page", total: 3, pageSize: 500, reportMeta: true, wantRequests: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &pagedAPI{total: tt.total, pageSize: tt.pageSize, reportMeta: tt.reportMeta}
			strategy, err := New(PageNumber, Options{PageSize: tt.pageSize, ItemsKeys: []string{"content"}})
			require.NoError(t, err)

			ids := collectIDs(t, strategy, api.fetch, Token{})
			assert.Equal(t, tt.wantRequests, api.requests)
			require.Len(t, ids, tt.total)

			for i, id := range ids {
				assert.Equal(t, fmt.Sprint(i), id, "records are emitted once, in arrival order")
			}
		})
	}
}

func TestPageNumber_StopsOnTotalWhenPageSizeUnknown(t *testing.T) {
	api := &pagedAPI{total: 9, pageSize: 3, reportMeta: true}
	strategy, err := New(PageNumber, Options{ItemsKeys: []string{"content"}})
	require.NoError(t, err)

	ids := collectIDs(t, strategy, api.fetch, Token{})
	assert.Len(t, ids, 9)
	assert.Equal(t, 3, api.requests)
}

func TestPageNumber_LastFlagAndStartPage(t *testing.T) {
	var pages []int
	fetch := func(_ context.Context, token Token) (interface{}, error) {
		pages = append(pages, token.Page)
		return map[string]interface{}{
			"content": []interface{}{map[string]interface{}{"id": json.Number("1")}},
			"last":    token.Page == 4,
		}, nil
	}

	strategy, err := New(PageNumber, Options{ItemsKeys: []string{"content"}})
	require.NoError(t, err)
	require.NoError(t, strategy.Paginate(context.Background(), fetch, Token{Page: 3}, func(*Page) error { return nil }))
	assert.Equal(t, []int{3, 4}, pages)
}

func TestPageNumber_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("fetch", func(t *testing.T) {
		strategy, _ := New(PageNumber, Options{PageSize: 1, ItemsKeys: []string{"content"}})
		err := strategy.Paginate(context.Background(), func(context.Context, Token) (interface{}, error) {
			return nil, boom
		}, Token{}, func(*Page) error { return nil })
		assert.ErrorIs(t, err, boom)
	})

	t.Run("visit", func(t *testing.T) {
		api := &pagedAPI{total: 10, pageSize: 2}
		strategy, _ := New(PageNumber, Options{PageSize: 2, ItemsKeys: []string{"content"}})
		err := strategy.Paginate(context.Background(), api.fetch, Token{}, func(*Page) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, api.requests)
	})
}

func TestCursor_FollowsNextToken(t *testing.T) {
	responses := map[string]interface{}{
		"": map[string]interface{}{
			"alerts": []interface{}{map[string]interface{}{"id": json.Number("1")}},
			"next":   "c2",
		},
		"c2": map[string]interface{}{
			"alerts": []interface{}{map[string]interface{}{"id": json.Number("2")}},
			"links":  map[string]interface{}{"next": "c3"},
		},
		"c3": map[string]interface{}{
			"alerts": []interface{}{map[string]interface{}{"id": json.Number("3")}},
			"next":   "",
		},
	}

	var cursors []string
	fetch := func(_ context.Context, token Token) (interface{}, error) {
		cursors = append(cursors, token.Cursor)
		return responses[token.Cursor], nil
	}

	strategy, err := New(Cursor, Options{ItemsKeys: []string{"alerts", "items"}, Delay: time.Millisecond})
	require.NoError(t, err)

	ids := collectIDs(t, strategy, fetch, Token{})
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, []string{"", "c2", "c3"}, cursors)
}

func TestCursor_RepeatedTokenIsAnError(t *testing.T) {
	fetch := func(context.Context, Token) (interface{}, error) {
		return map[string]interface{}{"items": []interface{}{}, "next": "same"}, nil
	}
	strategy, err := New(Cursor, Options{ItemsKeys: []string{"items"}})
	require.NoError(t, err)

	err = strategy.Paginate(context.Background(), fetch, Token{}, func(*Page) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twice")
}

func TestCursor_DelayHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(context.Context, Token) (interface{}, error) {
		cancel()
		return map[string]interface{}{"items": []interface{}{}, "next": "n1"}, nil
	}
	strategy, err := New(Cursor, Options{ItemsKeys: []string{"items"}, Delay: time.Hour})
	require.NoError(t, err)

	err = strategy.Paginate(ctx, fetch, Token{}, func(*Page) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSingleList_Shapes(t *testing.T) {
	zone := map[string]interface{}{"id": json.Number("7"), "name": "cell-1"}
	tests := []struct {
		name    string
		payload interface{}
		want    int
	}{
		{name: "bare list", payload: []interface{}{zone, zone}, want: 2},
		{name: "content wrapper", payload: map[string]interface{}{"content": []interface{}{zone}}, want: 1},
		{name: "second wrapper key", payload: map[string]interface{}{"zones": []interface{}{zone, zone, zone}}, want: 3},
		{name: "unknown object is one record", payload: zone, want: 1},
		{name: "empty object", payload: map[string]interface{}{}, want: 0},
		{name: "null", payload: nil, want: 0},
		{name: "null wrapper", payload: map[string]interface{}{"content": nil}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requests := 0
			fetch := func(context.Context, Token) (interface{}, error) {
				requests++
				return tt.payload, nil
			}
			strategy, err := New(SingleList, Options{ItemsKeys: []string{"content", "zones"}})
			require.NoError(t, err)

			got := 0
			err = strategy.Paginate(context.Background(), fetch, Token{}, func(p *Page) error {
				got += len(p.Records)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, 1, requests)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractItems(t *testing.T) {
	items, found := ExtractItems(map[string]interface{}{"items": []interface{}{1}, "content": []interface{}{1, 2}}, []string{"content", "items"})
	assert.True(t, found)
	assert.Len(t, items, 2, "key order decides")

	_, found = ExtractItems(map[string]interface{}{"data": []interface{}{}}, []string{"content"})
	assert.False(t, found)
}

func TestDecodeMeta(t *testing.T) {
	m := decodeMeta(map[string]interface{}{
		"total_pages": "4",
		"count":       json.Number("31"),
		"content":     []interface{}{},
	}, hclog.NewNullLogger())
	assert.Equal(t, 4, m.totalPages())
	assert.Equal(t, 31, m.totalItems())
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New(Kind("offset"), Options{})
	assert.Error(t, err)
}
