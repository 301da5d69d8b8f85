package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/scan-io-git/ot-collector/internal/checkpoint"
	"github.com/scan-io-git/ot-collector/pkg/shared/config"
	"github.com/scan-io-git/ot-collector/pkg/shared/errors"
	"github.com/scan-io-git/ot-collector/pkg/shared/timeparse"
)

var (
	AppConfig  *config.Config
	logger     hclog.Logger
	sourceName string

	exampleCheckpointUsage = `  # Show the stored cursors of a source
  otcollector checkpoint show --source notifications

  # Forget the cursors of a source so the next run starts from its initial timestamp
  otcollector checkpoint reset --source notifications`
)

// CheckpointCmd groups the checkpoint inspection commands.
var CheckpointCmd = &cobra.Command{
	Use:                   "checkpoint [command]",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Example:               exampleCheckpointUsage,
	Short:                 "Inspect or reset the stored cursors of a source",
}

var showCmd = &cobra.Command{
	Use:                   "show --source NAME",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Print the stored cursors of a source as JSON",
	RunE:                  runShowCommand,
}

var resetCmd = &cobra.Command{
	Use:                   "reset --source NAME",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Delete the stored cursors of a source",
	RunE:                  runResetCommand,
}

// Init initializes the global configuration variable and logger.
func Init(cfg *config.Config, l hclog.Logger) {
	AppConfig = cfg
	logger = l
}

func init() {
	CheckpointCmd.PersistentFlags().StringVar(&sourceName, "source", "", "name of the source")
	CheckpointCmd.AddCommand(showCmd, resetCmd)
}

type cursorView struct {
	Value int64  `json:"value"`
	Time  string `json:"time"`
}

func openStore() (checkpoint.Store, error) {
	if sourceName == "" {
		return nil, errors.NewCommandError(fmt.Errorf("--source is required"), 1)
	}
	if _, ok := AppConfig.SourceByName(sourceName); !ok {
		return nil, errors.NewCommandError(fmt.Errorf("unknown source %q", sourceName), 1)
	}
	store, err := checkpoint.New(&AppConfig.Checkpoint)
	if err != nil {
		return nil, errors.NewCommandError(err, 1)
	}
	return store, nil
}

func runShowCommand(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	state, err := store.Load(cmd.Context(), sourceName)
	if err != nil {
		return errors.NewCommandError(err, 2)
	}

	view := make(map[string]cursorView, len(state))
	for _, name := range state.Names() {
		view[name] = cursorView{Value: state[name], Time: timeparse.Format(time.Unix(state[name], 0))}
	}
	data, err := json.MarshalIndent(view, "", "    ")
	if err != nil {
		return fmt.Errorf("error marshaling the checkpoint: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runResetCommand(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	if err := store.Delete(cmd.Context(), sourceName); err != nil {
		return errors.NewCommandError(err, 2)
	}
	logger.Info("checkpoint reset", "source", sourceName)
	return nil
}
