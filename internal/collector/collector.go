// Package collector runs the incremental, checkpointed collection of a source:
// plan the window, page through the API, normalize and emit every record, then
// advance the checkpoint.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scan-io-git/ot-collector/internal/checkpoint"
	"github.com/scan-io-git/ot-collector/internal/metrics"
	"github.com/scan-io-git/ot-collector/internal/normalize"
	"github.com/scan-io-git/ot-collector/internal/pagination"
	"github.com/scan-io-git/ot-collector/internal/platform"
	"github.com/scan-io-git/ot-collector/internal/sink"
	"github.com/scan-io-git/ot-collector/internal/sources"
	"github.com/scan-io-git/ot-collector/pkg/shared/config"
)

// ClientFactory builds the API transport of a source.
type ClientFactory func(src *sources.Source) (platform.Doer, error)

// Options configures a Collector. Store and Sink are required.
type Options struct {
	Config    *config.Config
	Store     checkpoint.Store
	Sink      sink.Sink
	Metrics   *metrics.Metrics
	Logger    hclog.Logger
	UserAgent string
	// Now and NewClient replace the wall clock and the HTTP transport in tests.
	Now       func() time.Time
	NewClient ClientFactory
}

// RunResult summarizes one run of a source.
type RunResult struct {
	RunID                 string    `json:"run_id"`
	Source                string    `json:"source"`
	Started               time.Time `json:"started"`
	Finished              time.Time `json:"finished"`
	Earliest              time.Time `json:"window_earliest"`
	Latest                time.Time `json:"window_latest"`
	Resync                bool      `json:"full_resync"`
	Pages                 int       `json:"pages"`
	Records               int       `json:"records"`
	Duplicates            int       `json:"duplicates_skipped"`
	NormalizationFailures int       `json:"normalization_failures"`
	Cursor                int64     `json:"cursor"`
	Error                 string    `json:"error,omitempty"`
}

// Collector runs sources against one checkpoint store and one sink.
type Collector struct {
	opts Options

	mu   sync.RWMutex
	last map[string]RunResult
}

// New creates a Collector.
func New(opts Options) (*Collector, error) {
	if opts.Store == nil || opts.Sink == nil {
		return nil, fmt.Errorf("collector needs a checkpoint store and a sink")
	}
	if opts.Config == nil {
		opts.Config = &config.Config{}
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewClient == nil {
		cfg, logger, ua := opts.Config, opts.Logger, opts.UserAgent
		opts.NewClient = func(src *sources.Source) (platform.Doer, error) {
			return platform.New(cfg, src.Config, logger.Named(src.Name), ua)
		}
	}
	return &Collector{opts: opts, last: map[string]RunResult{}}, nil
}

// CollectAll runs every source in order. A failed source does not stop the
// others; the failures are returned joined.
func (c *Collector) CollectAll(ctx context.Context, srcs []*sources.Source) ([]RunResult, error) {
	results := make([]RunResult, 0, len(srcs))
	var errs []error
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := c.Run(ctx, src)
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// Run collects one source. On failure the checkpoint keeps the value of the
// last fully flushed page, so the next run fetches the rest again.
func (c *Collector) Run(ctx context.Context, src *sources.Source) (RunResult, error) {
	started := c.opts.Now()
	res := RunResult{RunID: uuid.NewString(), Source: src.Name, Started: started.UTC()}
	logger := c.opts.Logger.With("source", src.Name, "run_id", res.RunID)

	err := c.run(ctx, src, started, &res, logger)

	res.Finished = c.opts.Now().UTC()
	c.opts.Metrics.ObserveRun(src.Name, res.Finished.Sub(res.Started), err)
	if err != nil {
		res.Error = err.Error()
		logger.Error("collection failed", "records", res.Records, "pages", res.Pages, "error", err)
		err = fmt.Errorf("source %q: %w", src.Name, err)
	} else {
		logger.Info("collection finished", "records", res.Records, "pages", res.Pages, "cursor", res.Cursor, "full_resync", res.Resync)
	}

	c.mu.Lock()
	c.last[src.Name] = res
	c.mu.Unlock()
	return res, err
}

func (c *Collector) run(ctx context.Context, src *sources.Source, now time.Time, res *RunResult, logger hclog.Logger) error {
	state, err := c.opts.Store.Load(ctx, src.Name)
	if err != nil {
		return err
	}

	w := PlanWindow(WindowParams{
		State:      state,
		Initial:    src.InitialTimestamp,
		Lookback:   src.Lookback,
		ResyncDays: src.FullResyncDays,
		Now:        now,
	})
	res.Earliest, res.Latest, res.Resync = w.Earliest, w.Latest, w.Resync
	if w.Resync {
		logger.Info("full resync interval elapsed, collecting from the epoch", "interval_days", src.FullResyncDays)
	}
	logger.Debug("planned window", "earliest", w.Earliest, "latest", w.Latest, "floor", w.Floor)

	client, err := c.opts.NewClient(src)
	if err != nil {
		return err
	}
	normalizer, err := src.NewNormalizer(&c.opts.Config.Collector, c.opts.Now, logger)
	if err != nil {
		return err
	}
	delay := config.SetThen(c.opts.Config.Collector.CursorDelay, config.DefaultCursorDelay)
	strategy, err := pagination.New(src.Pagination, src.PaginationOptions(delay, logger))
	if err != nil {
		return err
	}

	var seen *lru.Cache[string, struct{}]
	if src.DedupeKey != "" {
		size := config.SetThen(c.opts.Config.Collector.DedupeCacheSize, config.DefaultDedupeCacheSize)
		if seen, err = lru.New[string, struct{}](size); err != nil {
			return fmt.Errorf("failed to create dedupe cache: %w", err)
		}
	}

	run := &pageRun{
		c:          c,
		src:        src,
		state:      state,
		normalizer: normalizer,
		seen:       seen,
		cursor:     w.Floor,
		res:        res,
		logger:     logger,
	}

	fetch := func(ctx context.Context, token pagination.Token) (interface{}, error) {
		return client.Do(ctx, src.Request(w.Earliest, w.Latest, token))
	}
	if err := strategy.Paginate(ctx, fetch, pagination.Token{Page: 1}, func(page *pagination.Page) error {
		return run.visit(ctx, page)
	}); err != nil {
		return err
	}

	if err := c.opts.Sink.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush sink: %w", err)
	}

	final := run.cursor
	if src.Policy == sources.PolicyNow || !run.sawTimestamp {
		final = max(w.Floor, now.Unix())
	}
	next := state.Clone()
	next[checkpoint.LastTimestamp] = final
	if w.ResyncMark > 0 {
		next[checkpoint.LastFullResync] = w.ResyncMark
	}
	if err := c.save(ctx, src.Name, next); err != nil {
		return err
	}
	res.Cursor = final
	return nil
}

// pageRun carries the per-run state updated by every page.
type pageRun struct {
	c          *Collector
	src        *sources.Source
	state      checkpoint.State
	normalizer *normalize.Normalizer
	seen       *lru.Cache[string, struct{}]
	res        *RunResult
	logger     hclog.Logger

	cursor       int64
	sawTimestamp bool
}

func (r *pageRun) visit(ctx context.Context, page *pagination.Page) error {
	m := r.c.opts.Metrics
	r.res.Pages++
	m.PagesFetched.WithLabelValues(r.src.Name).Inc()

	var last, newest int64
	timestamped := false
	for _, raw := range page.Records {
		if r.duplicate(raw) {
			r.res.Duplicates++
			m.DuplicatesSkipped.WithLabelValues(r.src.Name).Inc()
			continue
		}

		rec := r.normalizer.Normalize(raw)
		if rec.Err != nil {
			r.res.NormalizationFailures++
			m.NormalizationFailures.WithLabelValues(r.src.Name).Inc()
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to serialize record: %w", err)
		}
		eventTime := rec.Time
		if err := r.c.opts.Sink.Emit(ctx, sink.Event{
			Data:       data,
			Sourcetype: r.src.Sourcetype,
			Source:     r.src.Name,
			Index:      r.src.Index,
			Time:       &eventTime,
		}); err != nil {
			return fmt.Errorf("failed to emit record: %w", err)
		}
		r.res.Records++
		m.RecordsEmitted.WithLabelValues(r.src.Name).Inc()

		if rec.TimeFromServer {
			last = rec.Time.Unix()
			if !timestamped || last > newest {
				newest = last
			}
			timestamped = true
		}
	}
	r.logger.Debug("page processed", "page", page.Number, "records", len(page.Records))

	if !timestamped || r.src.Policy != sources.PolicyLastRecord {
		return nil
	}
	r.sawTimestamp = true
	if r.src.Unordered {
		// saved once the whole run is delivered
		r.cursor = max(r.cursor, newest-1)
		return nil
	}
	r.cursor = max(r.cursor, last-1)

	// the cursor may only move past records the sink has durably accepted
	if err := r.c.opts.Sink.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush sink: %w", err)
	}
	next := r.state.Clone()
	next[checkpoint.LastTimestamp] = r.cursor
	return r.c.save(ctx, r.src.Name, next)
}

// duplicate reports whether the dedupe key of raw was already seen in this run.
func (r *pageRun) duplicate(raw interface{}) bool {
	if r.seen == nil {
		return false
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return false
	}
	value, ok := obj[r.src.DedupeKey]
	if !ok || value == nil {
		return false
	}
	key := fmt.Sprint(value)
	found, _ := r.seen.ContainsOrAdd(key, struct{}{})
	return found
}

func (c *Collector) save(ctx context.Context, key string, state checkpoint.State) error {
	if err := c.opts.Store.Save(ctx, key, state); err != nil {
		return err
	}
	for _, name := range state.Names() {
		c.opts.Metrics.SetCursor(key, name, state[name])
	}
	return nil
}

// LastResults returns the most recent result of every source that ran, sorted
// by source name.
func (c *Collector) LastResults() []RunResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]RunResult, 0, len(c.last))
	for _, r := range c.last {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}
