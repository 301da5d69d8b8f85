package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/ot-collector/cmd/checkpoint"
	"github.com/scan-io-git/ot-collector/cmd/collect"
	"github.com/scan-io-git/ot-collector/cmd/serve"
	"github.com/scan-io-git/ot-collector/cmd/validate"
	"github.com/scan-io-git/ot-collector/cmd/version"
	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
	"github.com/scan-io-git/ot-collector/pkg/shared/logger"
)

const defaultConfigFile = "config.yml"

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "otcollector [command]",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Short:                 "otcollector pulls OT security telemetry into an event sink.",
		Long: `otcollector incrementally collects alerts, indicators, assets, vulnerabilities
	and threat intelligence from the Dragos platform APIs and emits one normalized
	event per record to stdout, a file, Splunk HEC or NATS.
	`,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $%s or %s)", config.EnvConfigPath, defaultConfigFile))

	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(collect.CollectCmd)
	rootCmd.AddCommand(validate.ValidateCmd)
	rootCmd.AddCommand(serve.ServeCmd)
	rootCmd.AddCommand(checkpoint.CheckpointCmd)
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		return errors.ExitCode(err)
	}
	return 0
}

// initConfig loads and validates the configuration before any subcommand runs.
func initConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" {
		return nil
	}

	if cfgFile == "" {
		cfgFile = config.SetThen(os.Getenv(config.EnvConfigPath), defaultConfigFile)
	}

	var err error
	AppConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		return errors.NewCommandError(fmt.Errorf("initializing config file failed: %w", err), 1)
	}
	if err := config.ValidateConfig(AppConfig); err != nil {
		return errors.NewCommandError(err, 1)
	}

	log := logger.NewLogger(AppConfig, "otcollector")
	initSubcommands(AppConfig, log)
	return nil
}

func initSubcommands(cfg *config.Config, log hclog.Logger) {
	collect.Init(cfg, log.Named("collect"))
	validate.Init(cfg, log.Named("validate"))
	serve.Init(cfg, log.Named("serve"))
	checkpoint.Init(cfg, log.Named("checkpoint"))
}
