// Package pagination walks the page shapes returned by the platform APIs.
package pagination

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
)

// Kind selects a pagination strategy.
type Kind string

const (
	PageNumber Kind = "page"
	Cursor     Kind = "cursor"
	SingleList Kind = "single"
)

// DefaultNextKeys are probed, in order, for the next cursor of a cursor-paginated response.
var DefaultNextKeys = []string{"next", "next_cursor", "nextCursor", "links.next", "paging.next"}

// Token identifies the page to request.
type Token struct {
	Page   int
	Cursor string
}

// FetchFunc requests the page identified by token and returns the decoded body.
type FetchFunc func(ctx context.Context, token Token) (interface{}, error)

// VisitFunc consumes one page. Returning an error stops pagination.
type VisitFunc func(page *Page) error

// Page is one API response split into records and metadata.
type Page struct {
	Number  int
	Records []interface{}
	// TotalPages and TotalItems are zero when the server does not report them.
	TotalPages int
	TotalItems int
	NextCursor string
}

// Strategy drives requests until the result set is exhausted.
type Strategy interface {
	Paginate(ctx context.Context, fetch FetchFunc, start Token, visit VisitFunc) error
}

// Options configures a strategy.
type Options struct {
	PageSize  int
	ItemsKeys []string
	NextKeys  []string
	// Delay is the pause between two cursor requests.
	Delay  time.Duration
	Logger hclog.Logger
}

// New returns the strategy for kind.
func New(kind Kind, opts Options) (Strategy, error) {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	switch kind {
	case PageNumber:
		return &pageNumberStrategy{opts: opts}, nil
	case Cursor:
		if len(opts.NextKeys) == 0 {
			opts.NextKeys = DefaultNextKeys
		}
		return &cursorStrategy{opts: opts}, nil
	case SingleList:
		return &singleListStrategy{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown pagination kind %q", kind)
	}
}

// ExtractItems returns the records of payload. A bare list is the record set;
// for an object the first present key of keys holds it. found is false when
// payload is an object carrying none of keys.
func ExtractItems(payload interface{}, keys []string) (items []interface{}, found bool) {
	switch v := payload.(type) {
	case nil:
		return nil, true
	case []interface{}:
		return v, true
	case map[string]interface{}:
		for _, key := range keys {
			value, ok := v[key]
			if !ok {
				continue
			}
			switch inner := value.(type) {
			case nil:
				return nil, true
			case []interface{}:
				return inner, true
			default:
				return []interface{}{inner}, true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

// meta holds the pagination signals that may accompany a page.
type meta struct {
	TotalPages      *int  `mapstructure:"totalPages"`
	TotalPagesSnake *int  `mapstructure:"total_pages"`
	TotalElements   *int  `mapstructure:"totalElements"`
	Total           *int  `mapstructure:"total"`
	TotalItems      *int  `mapstructure:"total_items"`
	Count           *int  `mapstructure:"count"`
	Last            *bool `mapstructure:"last"`
}

func (m meta) totalPages() int {
	return firstSet(m.TotalPages, m.TotalPagesSnake)
}

func (m meta) totalItems() int {
	return firstSet(m.TotalElements, m.Total, m.TotalItems, m.Count)
}

func firstSet(values ...*int) int {
	for _, v := range values {
		if v != nil && *v > 0 {
			return *v
		}
	}
	return 0
}

// decodeMeta reads pagination metadata from an object payload. Metadata of an
// unexpected type is ignored rather than failing the page.
func decodeMeta(payload interface{}, logger hclog.Logger) meta {
	var m meta
	raw, ok := payload.(map[string]interface{})
	if !ok {
		return m
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &m,
	})
	if err != nil {
		return meta{}
	}
	if err := decoder.Decode(raw); err != nil {
		logger.Debug("ignoring unreadable pagination metadata", "error", err)
		return meta{}
	}
	return m
}

// lookupString resolves a dot-separated path in payload to a non-empty string.
func lookupString(payload interface{}, path string) string {
	current := payload
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = obj[part]
	}
	switch v := current.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
