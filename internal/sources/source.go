package sources

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/ot-collector/internal/normalize"
	"github.com/scan-io-git/ot-collector/internal/pagination"
	"github.com/scan-io-git/ot-collector/internal/platform"
	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
	"github.com/scan-io-git/ot-collector/pkg/shared/timeparse"
)

// defaultExcludeTypes are the notification types skipped unless exclude_types is set.
var defaultExcludeTypes = []string{"Baseline", "System"}

// defaultCustomItemsKeys are probed for a custom endpoint without items_keys.
var defaultCustomItemsKeys = []string{"content", "items", "results"}

// Source is a configured source merged with its descriptor. It is built once
// and not modified afterwards.
type Source struct {
	Descriptor

	Name             string
	Index            string
	PageSize         int
	Lookback         int
	InitialTimestamp time.Time
	FullResyncDays   int
	Schedule         string
	DedupeKey        string
	ExcludeTypes     []string

	Config *config.Source
}

// Resolve merges src with the catalog descriptor of its kind. src is expected
// to have passed config.ValidateSource.
func Resolve(cfg *config.Config, src *config.Source) (*Source, error) {
	var d Descriptor
	if src.Kind == KindCustom {
		d = Descriptor{Kind: KindCustom}
	} else {
		var ok bool
		d, ok = Lookup(src.Kind)
		if !ok {
			return nil, errors.NewConfigError(src.Name, "kind", fmt.Sprintf("unknown kind %q, expected one of %s", src.Kind, strings.Join(Kinds(), ", ")))
		}
	}
	applyEndpoint(&d, &src.Endpoint)
	if err := completeDescriptor(&d, src.Name); err != nil {
		return nil, errors.NewConfigError(src.Name, "endpoint", err.Error())
	}
	d.Sourcetype = config.SetThen(src.Sourcetype, d.Sourcetype)

	initial, err := config.ParseInitialTimestamp(src.InitialTimestamp)
	if err != nil {
		return nil, errors.NewConfigError(src.Name, "initial_timestamp", err.Error())
	}
	resyncDays, err := config.ParseFullResyncDays(src.FullResyncDays, cfg.Collector.MaxFullResyncDays)
	if err != nil {
		return nil, errors.NewConfigError(src.Name, "full_resync_days", err.Error())
	}

	s := &Source{
		Descriptor:       d,
		Name:             src.Name,
		Index:            src.Index,
		PageSize:         config.SetThen(src.PageSize, config.DefaultPageSize),
		Lookback:         config.LookbackSeconds(cfg, src, d.Lookback),
		InitialTimestamp: initial,
		FullResyncDays:   resyncDays,
		Schedule:         config.SetThen(src.Schedule, config.DefaultSchedule),
		DedupeKey:        src.DedupeKey,
		Config:           src,
	}
	if d.Window == WindowFilter {
		s.ExcludeTypes = defaultExcludeTypes
		if src.ExcludeTypes != nil {
			s.ExcludeTypes = src.ExcludeTypes
		}
	}
	return s, nil
}

// ResolveAll resolves every configured source in order.
func ResolveAll(cfg *config.Config) ([]*Source, error) {
	out := make([]*Source, 0, len(cfg.Sources))
	for i := range cfg.Sources {
		s, err := Resolve(cfg, &cfg.Sources[i])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func applyEndpoint(d *Descriptor, ep *config.Endpoint) {
	d.Path = config.SetThen(ep.Path, d.Path)
	d.Method = config.SetThen(strings.ToUpper(ep.Method), d.Method)
	if ep.Pagination != "" {
		d.Pagination = pagination.Kind(ep.Pagination)
	}
	if len(ep.ItemsKeys) > 0 {
		d.ItemsKeys = append([]string(nil), ep.ItemsKeys...)
	}
	if ep.TimeField != "" {
		d.TimeFields = splitList(ep.TimeField)
	}
	if ep.Window != "" {
		d.Window = Window(ep.Window)
	}
	if ep.CheckpointPolicy != "" {
		d.Policy = Policy(ep.CheckpointPolicy)
	}
}

// completeDescriptor fills the defaults a custom or overridden endpoint leaves open.
func completeDescriptor(d *Descriptor, name string) error {
	if d.Path == "" {
		return fmt.Errorf("path is required for kind %q", d.Kind)
	}
	d.Method = config.SetThen(d.Method, http.MethodGet)
	d.Pagination = config.SetThen(d.Pagination, pagination.PageNumber)
	d.Window = config.SetThen(d.Window, WindowNone)
	if len(d.ItemsKeys) == 0 {
		d.ItemsKeys = append([]string(nil), defaultCustomItemsKeys...)
	}
	if d.Sourcetype == "" {
		d.Sourcetype = "dragos:" + name
	}

	if d.Window != WindowNone && len(d.TimeFields) == 0 {
		return fmt.Errorf("window %q needs a time_field", d.Window)
	}
	if d.Window == WindowFilter {
		d.WindowField = config.SetThen(d.WindowField, d.TimeFields[0])
	}
	if d.Policy == "" {
		d.Policy = PolicyNow
		if len(d.TimeFields) > 0 && d.Window != WindowNone {
			d.Policy = PolicyLastRecord
		}
	}
	if d.Policy == PolicyLastRecord && len(d.TimeFields) == 0 {
		return fmt.Errorf("checkpoint policy %q needs a time_field", d.Policy)
	}

	switch d.Pagination {
	case pagination.PageNumber:
		if d.Method == http.MethodGet && d.PageParam == "" {
			d.PageParam, d.SizeParam = "page", "page_size"
		}
	case pagination.Cursor:
		d.CursorParam = config.SetThen(d.CursorParam, "cursor")
		d.SizeParam = config.SetThen(d.SizeParam, "limit")
	}
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Windowed reports whether the endpoint takes a time window.
func (s *Source) Windowed() bool {
	return s.Window != WindowNone
}

// Request builds the call fetching the page identified by token inside the
// window [earliest, latest).
func (s *Source) Request(earliest, latest time.Time, token pagination.Token) platform.Request {
	req := platform.Request{
		Method:     s.Method,
		Path:       s.Path,
		Idempotent: s.Method == http.MethodPost,
	}

	// a cursor given as a full link already carries every parameter
	if isAbsoluteURL(token.Cursor) {
		req.Method = http.MethodGet
		req.Path = token.Cursor
		return req
	}

	query := url.Values{}
	for k, v := range s.Query {
		query.Set(k, v)
	}

	switch s.Pagination {
	case pagination.PageNumber:
		if s.PageParam != "" {
			query.Set(s.PageParam, strconv.Itoa(token.Page))
			query.Set(s.SizeParam, strconv.Itoa(s.PageSize))
		} else if s.Method == http.MethodPost {
			req.Body = map[string]interface{}{
				"pagination": map[string]interface{}{
					"pageNumber": token.Page,
					"pageSize":   s.PageSize,
				},
			}
		}
	case pagination.Cursor:
		query.Set(s.SizeParam, strconv.Itoa(s.PageSize))
		if token.Cursor != "" {
			query.Set(s.CursorParam, token.Cursor)
		}
	}
	if req.Body == nil && s.Method == http.MethodPost {
		req.Body = map[string]interface{}{}
	}

	switch s.Window {
	case WindowFilter:
		query.Set("filter", s.Filter(earliest, latest))
	case WindowUpdatedAfter:
		query.Set("updated_after", timeparse.Format(earliest))
	case WindowSinceUntil:
		query.Set("since", timeparse.Format(earliest))
		query.Set("until", timeparse.Format(latest))
	}

	if len(query) > 0 {
		req.Query = query
	}
	return req
}

// Filter renders the RSQL filter of a filter-windowed endpoint. Both bounds
// are exclusive.
func (s *Source) Filter(earliest, latest time.Time) string {
	clauses := make([]string, 0, len(s.ExcludeTypes)+1)
	clauses = append(clauses, fmt.Sprintf("(%s=gt='%s';%s=lt='%s')",
		s.WindowField, timeparse.Format(earliest), s.WindowField, timeparse.Format(latest)))
	for _, t := range s.ExcludeTypes {
		clauses = append(clauses, fmt.Sprintf("type!='%s'", t))
	}
	return strings.Join(clauses, ";")
}

// PaginationOptions returns the strategy options of the source.
func (s *Source) PaginationOptions(delay time.Duration, logger hclog.Logger) pagination.Options {
	return pagination.Options{
		PageSize:  s.PageSize,
		ItemsKeys: s.ItemsKeys,
		Delay:     delay,
		Logger:    logger,
	}
}

// NewNormalizer builds the normalizer of the source.
func (s *Source) NewNormalizer(c *config.Collector, now func() time.Time, logger hclog.Logger) (*normalize.Normalizer, error) {
	timeFields := s.TimeFields
	if len(timeFields) == 0 {
		// inventory records carry no event time; stamp them with the fetch time
		timeFields = []string{"timestamp"}
	}
	reserved := c.ReservedFields
	if reserved == nil {
		reserved = config.DefaultReservedFields
	}
	return normalize.New(normalize.Options{
		TimeFields:     timeFields,
		ReservedFields: reserved,
		RenamePrefix:   config.SetThen(c.RenamePrefix, config.DefaultRenamePrefix),
		Hooks:          s.Hooks,
		Now:            now,
		Logger:         logger,
	})
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
