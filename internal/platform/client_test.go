package platform

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
)

func newTestClient(t *testing.T, baseURL string, src config.Source) *Client {
	t.Helper()
	src.Name = "test"
	src.BaseURL = baseURL
	if src.APIToken == "" {
		src.APIToken = "secret"
	}
	cfg := &config.Config{HTTPClient: config.HTTPClient{
		RetryCount:       2,
		RetryWaitTime:    time.Millisecond,
		RetryMaxWaitTime: 5 * time.Millisecond,
	}}
	client, err := New(cfg, &src, hclog.NewNullLogger(), "ot-collector/test")
	require.NoError(t, err)
	return client
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"count": 12345678901234567890}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, config.Source{})
	out, err := client.Do(context.Background(), Request{Path: "/api/v1/alerts"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, json.Number("12345678901234567890"), out.(map[string]interface{})["count"])
}

func TestDo_RetryExhaustion(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, config.Source{})
	_, err := client.Do(context.Background(), Request{Path: "/api/v1/alerts"})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "retry_count 2 means three attempts")

	var transient *errors.TransientAPIError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusTooManyRequests, transient.StatusCode)
	assert.Equal(t, 3, transient.Attempts)
}

func TestDo_FatalStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, config.Source{})
	_, err := client.Do(context.Background(), Request{Path: "/missing"})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx is never retried")

	var fatal *errors.FatalAPIError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, http.StatusNotFound, fatal.StatusCode)
	assert.Less(t, len(fatal.Body), 600)
}

func TestDo_BodyShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    interface{}
		isFatal bool
	}{
		{name: "empty body", body: "", want: map[string]interface{}{}},
		{name: "whitespace body", body: "  \n", want: map[string]interface{}{}},
		{name: "null body", body: "null", want: map[string]interface{}{}},
		{name: "list body", body: `[{"id":"a"}]`, want: []interface{}{map[string]interface{}{"id": "a"}}},
		{name: "malformed", body: `{"content": [`, isFatal: true},
		{name: "trailing garbage", body: `{} {}`, isFatal: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := newTestClient(t, srv.URL, config.Source{})
			out, err := client.Do(context.Background(), Request{Path: "/x"})
			if tt.isFatal {
				require.Error(t, err)
				assert.True(t, errors.IsFatal(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestDo_PostRetryRequiresIdempotent(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		if atomic.AddInt32(&calls, 1)%2 == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, config.Source{})
	body := map[string]interface{}{"pagination": map[string]int{"pageNumber": 1, "pageSize": 10}}

	_, err := client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/assets", Body: body})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, 0)
	mu.Lock()
	bodies = nil
	mu.Unlock()
	_, err = client.Do(context.Background(), Request{Method: http.MethodPost, Path: "/assets", Body: body, Idempotent: true})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.JSONEq(t, `{"pagination":{"pageNumber":1,"pageSize":10}}`, bodies[1], "body is resent on retry")
}

func TestDo_HeadersAndQuery(t *testing.T) {
	var mu sync.Mutex
	var last *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		last = r.Clone(context.Background())
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	lastRequest := func() *http.Request {
		mu.Lock()
		defer mu.Unlock()
		return last
	}

	t.Run("default bearer", func(t *testing.T) {
		client := newTestClient(t, srv.URL+"/", config.Source{APIToken: "abc"})
		_, err := client.Do(context.Background(), Request{
			Path:  "/notifications/api/v2/notification",
			Query: url.Values{"pageNumber": {"1"}, "filter": {"createdAt=gt='x'"}},
		})
		require.NoError(t, err)
		got := lastRequest()
		assert.Equal(t, "Bearer abc", got.Header.Get("Authorization"))
		assert.Equal(t, "application/json", got.Header.Get("Accept"))
		assert.Equal(t, "ot-collector/test", got.Header.Get("User-Agent"))
		assert.Equal(t, "/notifications/api/v2/notification", got.URL.Path)
		assert.Equal(t, "1", got.URL.Query().Get("pageNumber"))
		assert.Equal(t, "createdAt=gt='x'", got.URL.Query().Get("filter"))
	})

	t.Run("custom header without prefix", func(t *testing.T) {
		empty := ""
		client := newTestClient(t, srv.URL, config.Source{
			APIToken: "key:secret",
			Auth:     config.Auth{Header: "X-API-Key", Prefix: &empty},
		})
		_, err := client.Do(context.Background(), Request{Path: "/x"})
		require.NoError(t, err)
		got := lastRequest()
		assert.Equal(t, "key:secret", got.Header.Get("X-API-Key"))
		assert.Empty(t, got.Header.Get("Authorization"))
	})

	t.Run("absolute path", func(t *testing.T) {
		client := newTestClient(t, "http://unused.invalid", config.Source{})
		_, err := client.Do(context.Background(), Request{Path: srv.URL + "/next?cursor=abc"})
		require.NoError(t, err)
		got := lastRequest()
		assert.Equal(t, "/next", got.URL.Path)
		assert.Equal(t, "abc", got.URL.Query().Get("cursor"))
	})
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != VersionPath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"version":"2.3.1"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, config.Source{})
	out, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.3.1", out.(map[string]interface{})["version"])
}

func TestDo_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, config.Source{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Do(ctx, Request{Path: "/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
