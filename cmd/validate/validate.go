package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/ot-collector/cmd/version"
	"github.com/scan-io-git/ot-collector/internal/app"
	"github.com/scan-io-git/ot-collector/internal/platform"
	"github.com/scan-io-git/ot-collector/internal/sources"
	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
)

// RunOptionsValidate holds the arguments of the validate command.
type RunOptionsValidate struct {
	CheckConnectivity bool
	Sources           []string
	Timeout           time.Duration
}

var (
	AppConfig       *config.Config
	logger          hclog.Logger
	validateOptions RunOptionsValidate

	exampleValidateUsage = `  # Validate the configuration file
  otcollector validate --config config.yml

  # Also call the version endpoint of every source
  otcollector validate --check-connectivity`
)

// ValidateCmd checks the configuration, and optionally the platform credentials.
var ValidateCmd = &cobra.Command{
	Use:                   "validate [--check-connectivity] [--source NAME]...",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleValidateUsage,
	Short:                 "Validate the configuration and optionally the API connectivity",
	RunE:                  runValidateCommand,
}

// Init initializes the global configuration variable and logger.
func Init(cfg *config.Config, l hclog.Logger) {
	AppConfig = cfg
	logger = l
}

func init() {
	ValidateCmd.Flags().BoolVar(&validateOptions.CheckConnectivity, "check-connectivity", false, "call the version endpoint of each source")
	ValidateCmd.Flags().StringSliceVar(&validateOptions.Sources, "source", nil, "name of a source to check (repeatable, default all)")
	ValidateCmd.Flags().DurationVar(&validateOptions.Timeout, "timeout", 30*time.Second, "timeout of each connectivity check")
}

func runValidateCommand(cmd *cobra.Command, args []string) error {
	// the configuration was validated while loading it
	srcs, err := sources.ResolveAll(AppConfig)
	if err != nil {
		return errors.NewCommandError(err, 1)
	}
	srcs, err = app.Select(srcs, validateOptions.Sources)
	if err != nil {
		return errors.NewCommandError(err, 1)
	}
	logger.Info("configuration is valid", "sources", len(srcs))

	if !validateOptions.CheckConnectivity {
		return nil
	}

	failed := 0
	for _, src := range srcs {
		if err := checkSource(cmd.Context(), src); err != nil {
			failed++
			logger.Error("connectivity check failed", "source", src.Name, "error", err)
			continue
		}
		logger.Info("connectivity check passed", "source", src.Name)
	}
	if failed > 0 {
		return errors.NewCommandError(fmt.Errorf("%d of %d sources failed the connectivity check", failed, len(srcs)), 2)
	}
	return nil
}

func checkSource(parent context.Context, src *sources.Source) error {
	if parent == nil {
		parent = context.Background()
	}
	client, err := platform.New(AppConfig, src.Config, logger.Named(src.Name), version.UserAgent())
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, validateOptions.Timeout)
	defer cancel()

	resp, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if obj, ok := resp.(map[string]interface{}); ok {
		logger.Debug("platform version", "source", src.Name, "version", obj["version"])
	}
	return nil
}
