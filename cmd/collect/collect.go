package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/ot-collector/cmd/version"
	"github.com/scan-io-git/ot-collector/internal/app"
	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
)

// RunOptionsCollect holds the arguments of the collect command.
type RunOptionsCollect struct {
	Sources []string `json:"sources,omitempty"`
	Summary bool     `json:"summary,omitempty"`
}

var (
	AppConfig      *config.Config
	logger         hclog.Logger
	collectOptions RunOptionsCollect

	exampleCollectUsage = `  # Collect every configured source once
  otcollector collect --config config.yml

  # Collect two sources only
  otcollector collect --source notifications --source assets

  # Print a JSON summary of the runs to stderr
  otcollector collect --summary`
)

// CollectCmd runs one collection pass over the configured sources.
var CollectCmd = &cobra.Command{
	Use:                   "collect [--source NAME]... [--summary]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleCollectUsage,
	Short:                 "Collect new records from the configured sources once",
	RunE:                  runCollectCommand,
}

// Init initializes the global configuration variable and logger.
func Init(cfg *config.Config, l hclog.Logger) {
	AppConfig = cfg
	logger = l
}

func init() {
	CollectCmd.Flags().StringSliceVar(&collectOptions.Sources, "source", nil, "name of a source to collect (repeatable, default all)")
	CollectCmd.Flags().BoolVar(&collectOptions.Summary, "summary", false, "print a JSON summary of the runs to stderr")
}

func runCollectCommand(cmd *cobra.Command, args []string) error {
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

	srcs, err := a.Select(collectOptions.Sources)
	if err != nil {
		return errors.NewCommandError(err, 1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, runErr := a.Collector.CollectAll(ctx, srcs)

	if collectOptions.Summary {
		data, err := json.MarshalIndent(results, "", "    ")
		if err != nil {
			return fmt.Errorf("error marshaling the run summary: %w", err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), string(data))
	}

	if runErr != nil {
		logger.Error("collect command failed", "error", runErr)
		return errors.NewCommandError(fmt.Errorf("collect command failed: %w", runErr), 2)
	}
	logger.Info("collect command completed successfully", "sources", len(results))
	return nil
}
