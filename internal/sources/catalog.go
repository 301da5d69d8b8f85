// Package sources describes the collectable endpoints of the platform and
// turns configured sources into request builders for the collector.
package sources

import (
	"net/http"
	"sort"

	"github.com/scan-io-git/ot-collector/internal/normalize"
	"github.com/scan-io-git/ot-collector/internal/pagination"
)

// Window selects how the query window is rendered into a request.
type Window string

const (
	// WindowNone fetches the full list on every run.
	WindowNone Window = "none"
	// WindowFilter renders an RSQL filter, both bounds exclusive.
	WindowFilter Window = "filter"
	// WindowUpdatedAfter sends only the lower bound, exclusive.
	WindowUpdatedAfter Window = "updated_after"
	// WindowSinceUntil sends an inclusive lower and an exclusive upper bound.
	WindowSinceUntil Window = "since_until"
)

// Policy selects how the cursor advances after a run.
type Policy string

const (
	// PolicyLastRecord moves the cursor to one second before the last timestamped record.
	PolicyLastRecord Policy = "last_record"
	// PolicyNow moves the cursor to the wall clock at the end of the run.
	PolicyNow Policy = "now"
)

// KindCustom is described entirely by the endpoint block of the source.
const KindCustom = "custom"

// Descriptor is the static shape of one endpoint.
type Descriptor struct {
	Kind       string
	Method     string
	Path       string
	Pagination pagination.Kind
	// PageParam and SizeParam carry the page number and size in the query.
	// When both are empty on a POST endpoint they travel in a pagination body.
	PageParam   string
	SizeParam   string
	CursorParam string
	// Query holds fixed query parameters such as the sort order.
	Query       map[string]string
	ItemsKeys   []string
	TimeFields  []string
	Window      Window
	WindowField string
	Policy      Policy
	Hooks       []normalize.Hook
	Sourcetype  string
	// Lookback overrides the collector default for this kind when set.
	Lookback *int
	// Unordered endpoints return records in no guaranteed time order. A
	// last_record cursor then follows the newest record and is saved only at
	// the end of a successful run.
	Unordered bool
}

func intPtr(v int) *int { return &v }

var catalog = map[string]Descriptor{
	"notifications": {
		Method:      http.MethodGet,
		Path:        "/notifications/api/v2/notification",
		Pagination:  pagination.PageNumber,
		PageParam:   "pageNumber",
		SizeParam:   "pageSize",
		Query:       map[string]string{"sorts": "createdAt:a"},
		ItemsKeys:   []string{"content"},
		TimeFields:  []string{"createdAt"},
		Window:      WindowFilter,
		WindowField: "createdAt",
		Policy:      PolicyLastRecord,
		Hooks:       []normalize.Hook{normalize.HookDirectional},
		Sourcetype:  "dragos:alerts",
	},
	"indicators": {
		Method:     http.MethodGet,
		Path:       "/api/v1/indicators",
		Pagination: pagination.PageNumber,
		PageParam:  "page",
		SizeParam:  "page_size",
		ItemsKeys:  []string{"indicators", "items", "results"},
		TimeFields: []string{"updated_at"},
		Window:     WindowUpdatedAfter,
		Policy:     PolicyNow,
		Sourcetype: "dragos:indicators",
		Lookback:   intPtr(0),
	},
	"vulnerabilities": {
		Method:     http.MethodGet,
		Path:       "/api/v1/vulnerabilities",
		Pagination: pagination.PageNumber,
		PageParam:  "page",
		SizeParam:  "page_size",
		ItemsKeys:  []string{"items", "results"},
		TimeFields: []string{"updated_at"},
		Window:     WindowUpdatedAfter,
		Policy:     PolicyNow,
		Sourcetype: "dragos:vulnerabilities",
		Lookback:   intPtr(0),
	},
	"threat_intel": {
		Method:     http.MethodGet,
		Path:       "/api/v1/threat-intel",
		Pagination: pagination.PageNumber,
		PageParam:  "page",
		SizeParam:  "page_size",
		ItemsKeys:  []string{"results", "items"},
		TimeFields: []string{"updated_at"},
		Window:     WindowUpdatedAfter,
		Policy:     PolicyNow,
		Sourcetype: "dragos:threat_intel",
		Lookback:   intPtr(0),
	},
	"alerts": {
		Method:      http.MethodGet,
		Path:        "/api/v1/alerts",
		Pagination:  pagination.Cursor,
		SizeParam:   "limit",
		CursorParam: "cursor",
		ItemsKeys:   []string{"alerts", "items"},
		TimeFields:  []string{"timestamp", "created_at"},
		Window:      WindowSinceUntil,
		Policy:      PolicyLastRecord,
		Sourcetype:  "dragos:alert",
		Lookback:    intPtr(300),
		Unordered:   true,
	},
	"assets": {
		Method:     http.MethodPost,
		Path:       "/assets/api/v4/getAssets",
		Pagination: pagination.PageNumber,
		ItemsKeys:  []string{"content"},
		Window:     WindowNone,
		Policy:     PolicyNow,
		Hooks:      []normalize.Hook{normalize.HookAsset},
		Sourcetype: "dragos:assets",
	},
	"addresses": {
		Method:     http.MethodPost,
		Path:       "/assets/api/v4/getAddresses",
		Pagination: pagination.PageNumber,
		ItemsKeys:  []string{"content"},
		Window:     WindowNone,
		Policy:     PolicyNow,
		Sourcetype: "dragos:addresses",
	},
	"zones": {
		Method:     http.MethodPost,
		Path:       "/assets/api/v4/getZones",
		Pagination: pagination.SingleList,
		ItemsKeys:  []string{"content", "items", "zones"},
		Window:     WindowNone,
		Policy:     PolicyNow,
		Sourcetype: "dragos:zones",
	},
	"vulnerability_detections": {
		Method:     http.MethodPost,
		Path:       "/vulnerabilities/api/v1/vulnerability/detection",
		Pagination: pagination.PageNumber,
		ItemsKeys:  []string{"content"},
		Window:     WindowNone,
		Policy:     PolicyNow,
		Hooks:      []normalize.Hook{normalize.HookVulnerability},
		Sourcetype: "dragos:vulnerability_detections",
	},
}

// Lookup returns a copy of the descriptor registered for kind.
func Lookup(kind string) (Descriptor, bool) {
	d, ok := catalog[kind]
	if !ok {
		return Descriptor{}, false
	}
	d.Kind = kind
	return d.clone(), true
}

// Kinds lists the catalog kinds in sorted order, followed by KindCustom.
func Kinds() []string {
	kinds := make([]string, 0, len(catalog)+1)
	for k := range catalog {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return append(kinds, KindCustom)
}

func (d Descriptor) clone() Descriptor {
	d.ItemsKeys = append([]string(nil), d.ItemsKeys...)
	d.TimeFields = append([]string(nil), d.TimeFields...)
	d.Hooks = append([]normalize.Hook(nil), d.Hooks...)
	if d.Query != nil {
		q := make(map[string]string, len(d.Query))
		for k, v := range d.Query {
			q[k] = v
		}
		d.Query = q
	}
	if d.Lookback != nil {
		d.Lookback = intPtr(*d.Lookback)
	}
	return d
}
