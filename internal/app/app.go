// Package app wires the configured store, sink, metrics and sources into a collector.
package app

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/scan-io-git/ot-collector/internal/checkpoint"
	"github.com/scan-io-git/ot-collector/internal/collector"
	"github.com/scan-io-git/ot-collector/internal/metrics"
	"github.com/scan-io-git/ot-collector/internal/sink"
	"github.com/scan-io-git/ot-collector/internal/sources"
	"github.com/scan-io-git/ot-collector/pkg/shared/config"
)

// App holds the long-lived components of a process.
type App struct {
	Config    *config.Config
	Sources   []*sources.Source
	Store     checkpoint.Store
	Sink      sink.Sink
	Metrics   *metrics.Metrics
	Collector *collector.Collector
}

// New builds the components described by cfg, which must have passed
// config.ValidateConfig.
func New(cfg *config.Config, logger hclog.Logger, userAgent string) (*App, error) {
	srcs, err := sources.ResolveAll(cfg)
	if err != nil {
		return nil, err
	}

	store, err := checkpoint.New(&cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize checkpoint store: %w", err)
	}

	out, err := sink.New(cfg, logger.Named("sink"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sink: %w", err)
	}

	m := metrics.New()
	c, err := collector.New(collector.Options{
		Config:    cfg,
		Store:     store,
		Sink:      out,
		Metrics:   m,
		Logger:    logger.Named("collector"),
		UserAgent: userAgent,
	})
	if err != nil {
		_ = out.Close()
		return nil, err
	}

	return &App{
		Config:    cfg,
		Sources:   srcs,
		Store:     store,
		Sink:      out,
		Metrics:   m,
		Collector: c,
	}, nil
}

// Select returns the sources with the given names, in the given order. No
// names selects every source.
func (a *App) Select(names []string) ([]*sources.Source, error) {
	return Select(a.Sources, names)
}

// Select picks sources by name from srcs.
func Select(srcs []*sources.Source, names []string) ([]*sources.Source, error) {
	if len(names) == 0 {
		return srcs, nil
	}
	byName := make(map[string]*sources.Source, len(srcs))
	for _, s := range srcs {
		byName[s.Name] = s
	}
	out := make([]*sources.Source, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}

// Close flushes and closes the sink.
func (a *App) Close() error {
	return a.Sink.Close()
}
