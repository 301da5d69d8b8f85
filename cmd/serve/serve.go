package serve

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/ot-collector/cmd/version"
	"github.com/scan-io-git/ot-collector/internal/app"
	"github.com/scan-io-git/ot-collector/internal/scheduler"
	"github.com/scan-io-git/ot-collector/internal/server"
	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
)

// RunOptionsServe holds the arguments of the serve command.
type RunOptionsServe struct {
	Listen     string
	RunOnStart bool
}

var (
	AppConfig    *config.Config
	logger       hclog.Logger
	serveOptions RunOptionsServe

	exampleServeUsage = `  # Run every source on its schedule and serve /healthz, /metrics and /status
  otcollector serve --config config.yml

  # Collect everything once before the first scheduled run
  otcollector serve --run-on-start --listen 127.0.0.1:9464`
)

// ServeCmd runs the collector as a long-lived scheduler.
var ServeCmd = &cobra.Command{
	Use:                   "serve [--listen ADDR] [--run-on-start]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleServeUsage,
	Short:                 "Run every source on its schedule until interrupted",
	RunE:                  runServeCommand,
}

// Init initializes the global configuration variable and logger.
func Init(cfg *config.Config, l hclog.Logger) {
	AppConfig = cfg
	logger = l
}

func init() {
	ServeCmd.Flags().StringVar(&serveOptions.Listen, "listen", "", "address of the status server (default metrics.listen or "+config.DefaultMetricsListen+")")
	ServeCmd.Flags().BoolVar(&serveOptions.RunOnStart, "run-on-start", false, "collect every source once before scheduling")
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	a, err := app.New(AppConfig, logger, version.UserAgent())
	if err != nil {
		logger.Error("failed to initialize the collector", "error", err)
		return errors.NewCommandError(err, 1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close sink", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveOptions.RunOnStart {
		if _, err := a.Collector.CollectAll(ctx, a.Sources); err != nil {
			logger.Warn("initial collection finished with errors", "error", err)
		}
	}

	sched := scheduler.New(a.Collector, logger.Named("scheduler"))
	for _, src := range a.Sources {
		if err := sched.Add(src); err != nil {
			return errors.NewCommandError(err, 1)
		}
	}
	sched.Start()

	addr := config.SetThen(serveOptions.Listen, config.SetThen(AppConfig.Metrics.Listen, config.DefaultMetricsListen))
	srv := server.New(a.Collector, a.Metrics.Handler(), version.CoreVersion, logger.Named("http"))
	serveErr := srv.ListenAndServe(ctx, addr)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Warn("scheduled runs did not finish in time", "error", err)
	}

	if serveErr != nil {
		logger.Error("status server failed", "error", serveErr)
		return errors.NewCommandError(serveErr, 2)
	}
	logger.Info("serve stopped")
	return nil
}
