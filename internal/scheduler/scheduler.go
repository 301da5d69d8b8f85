// Package scheduler runs every source on its own cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"

	"github.com/scan-io-git/ot-collector/internal/collector"
	"github.com/scan-io-git/ot-collector/internal/sources"
)

// Runner collects one source. *collector.Collector implements it.
type Runner interface {
	Run(ctx context.Context, src *sources.Source) (collector.RunResult, error)
}

// Scheduler registers one cron job per source. A job never overlaps itself;
// different sources may run concurrently.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger hclog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// New creates a stopped scheduler.
func New(runner Runner, logger hclog.Logger) *Scheduler {
	cronLogger := &cronLogger{logger: logger.Named("cron")}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(
				cron.Recover(cronLogger),
				cron.SkipIfStillRunning(cronLogger),
			),
		),
		runner:  runner,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: map[string]cron.EntryID{},
	}
}

// Add schedules src on its cron expression.
func (s *Scheduler) Add(src *sources.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[src.Name]; exists {
		return fmt.Errorf("source %q is already scheduled", src.Name)
	}

	id, err := s.cron.AddFunc(src.Schedule, func() {
		if _, err := s.runner.Run(s.ctx, src); err != nil {
			// already logged by the collector with run details
			s.logger.Debug("scheduled run failed", "source", src.Name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for source %q: %w", src.Schedule, src.Name, err)
	}
	s.entries[src.Name] = id
	s.logger.Info("scheduled source", "source", src.Name, "schedule", src.Schedule)
	return nil
}

// Start runs the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them, or for ctx, to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Sources returns the names of the scheduled sources.
func (s *Scheduler) Sources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	return names
}

// cronLogger adapts hclog to cron.Logger.
type cronLogger struct {
	logger hclog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
