// Package normalize turns raw API records into ordered, enriched events.
// Normalization never drops a record: enrichment failures fall back to the
// timestamp-fixed original.
package normalize

import (
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
	"github.com/scan-io-git/ot-collector/pkg/shared/timeparse"
)

// Hook names an enrichment step.
type Hook string

const (
	HookDirectional   Hook = "directional"
	HookAsset         Hook = "asset"
	HookVulnerability Hook = "vulnerability"
)

// leadingFields follow the time field at the start of every object record.
var leadingFields = []string{"type", "severity", "summary", "name"}

// Options configures a Normalizer.
type Options struct {
	// TimeFields are probed in order; the first one is written when none parses.
	TimeFields     []string
	ReservedFields []string
	RenamePrefix   string
	Hooks          []Hook
	Now            func() time.Time
	Logger         hclog.Logger
}

// Normalizer normalizes the records of one source.
type Normalizer struct {
	opts  Options
	hooks []hookFunc
}

type hookFunc func(obj map[string]interface{}) error

// New creates a Normalizer. Unknown hooks are rejected.
func New(opts Options) (*Normalizer, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	n := &Normalizer{opts: opts}
	for _, h := range opts.Hooks {
		switch h {
		case HookDirectional:
			n.hooks = append(n.hooks, extractDirectional)
		case HookAsset:
			n.hooks = append(n.hooks, enrichAsset)
		case HookVulnerability:
			n.hooks = append(n.hooks, enrichDestination)
		default:
			return nil, fmt.Errorf("unknown normalizer hook %q", h)
		}
	}
	return n, nil
}

// Normalize returns the normalized form of raw. It never fails.
func (n *Normalizer) Normalize(raw interface{}) Record {
	now := n.opts.Now().UTC()

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return Record{Raw: raw, Time: now}
	}

	base := make(map[string]interface{}, len(obj)+1)
	for k, v := range obj {
		base[k] = v
	}

	record := Record{Time: now}
	timeKey := n.fixTimestamp(base, now, &record)
	n.renameReserved(base)

	enriched := base
	if len(n.hooks) > 0 {
		enriched = make(map[string]interface{}, len(base))
		for k, v := range base {
			enriched[k] = v
		}
		if err := n.applyHooks(enriched); err != nil {
			n.opts.Logger.Warn("record enrichment failed, emitting the original record", "error", err)
			record.Err = err
			enriched = base
		}
	}

	record.Fields = orderFields(enriched, timeKey)
	return record
}

// fixTimestamp makes sure the first configured time field holds a parseable
// timestamp and returns the name of the time field in use.
func (n *Normalizer) fixTimestamp(obj map[string]interface{}, now time.Time, record *Record) string {
	if len(n.opts.TimeFields) == 0 {
		return ""
	}

	for _, field := range n.opts.TimeFields {
		value, ok := obj[field]
		if !ok {
			continue
		}
		ts, err := timeparse.Parse(value)
		if err != nil {
			n.opts.Logger.Debug("unparsable record timestamp", "field", field, "value", value, "error", err)
			continue
		}
		record.Time = ts
		record.TimeFromServer = true
		return field
	}

	field := n.opts.TimeFields[0]
	obj[field] = now.Format(time.RFC3339)
	return field
}

// renameReserved moves top-level fields that clash with sink metadata under the rename prefix.
func (n *Normalizer) renameReserved(obj map[string]interface{}) {
	if n.opts.RenamePrefix == "" {
		return
	}
	for _, field := range n.opts.ReservedFields {
		value, ok := obj[field]
		if !ok {
			continue
		}
		target := n.opts.RenamePrefix + field
		for {
			if _, taken := obj[target]; !taken {
				break
			}
			target = n.opts.RenamePrefix + target
		}
		delete(obj, field)
		obj[target] = value
	}
}

func (n *Normalizer) applyHooks(obj map[string]interface{}) (err error) {
	stage := "enrichment"
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewNormalizationError(stage, fmt.Errorf("panic: %v", r))
		}
	}()

	for i, hook := range n.hooks {
		stage = string(n.opts.Hooks[i])
		if hookErr := hook(obj); hookErr != nil {
			return errors.NewNormalizationError(stage, hookErr)
		}
	}
	return nil
}

// orderFields builds the emission order: time field, leading fields, then the
// remaining keys sorted.
func orderFields(obj map[string]interface{}, timeKey string) []Field {
	fields := make([]Field, 0, len(obj))
	placed := make(map[string]struct{}, len(leadingFields)+1)

	head := make([]string, 0, len(leadingFields)+1)
	if timeKey != "" {
		head = append(head, timeKey)
	}
	head = append(head, leadingFields...)
	for _, key := range head {
		if _, done := placed[key]; done {
			continue
		}
		if value, ok := obj[key]; ok {
			fields = append(fields, Field{Key: key, Value: value})
			placed[key] = struct{}{}
		}
	}

	rest := make([]string, 0, len(obj))
	for key := range obj {
		if _, done := placed[key]; !done {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		fields = append(fields, Field{Key: key, Value: obj[key]})
	}
	return fields
}
