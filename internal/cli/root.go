package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mwa-utils/mwapipe/internal/config"
	"github.com/mwa-utils/mwapipe/internal/logging"
)

// annotationConfigOptional marks commands that must run even when the
// configuration on disk does not load or validate.
const annotationConfigOptional = "config-optional"

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// writerIsTerminal reports whether w is a terminal file.
func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// NewRootCmd creates the root Cobra command for the mwapipe CLI. It loads
// configuration, sets up logging and wires the subcommands.
func NewRootCmd(ver string) *cobra.Command {
	var logResult *logging.LogPathResult

	cmd := &cobra.Command{
		Use:           "mwapipe",
		Short:         "Memory-bounded batch pipeline for MWA visibility data",
		Long:          "mwapipe plans and runs processing stages over MWA correlator output in batches that fit a memory budget.",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			result := setupLogging(cmd, cfg)
			logResult = &result
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return cleanupLogging(logResult)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().String("config", "", "configuration file overlaid on the global config")
	cmd.AddCommand(
		newRunCmd(ver),
		newPlanCmd(),
		newDescribeCmd(),
		newReportCmd(),
		newConfigCmd(),
	)

	return cmd
}

const rootCmdExample = `  # Run the default stages within a 4 GiB budget
  mwapipe run /data/1065880128 --budget 4GiB --report run.json

  # Resume a failed run from its report
  mwapipe run /data/1065880128 --resume run.json --report run2.json

  # Preview the batch plan without reading any data
  mwapipe plan /data/1065880128 --budget 512MiB

  # Inspect a previous run
  mwapipe report show run.json
  mwapipe report view run.json.zst`

// loadConfig loads configuration for cmd and stores it in the command
// context.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		if !configOptional(cmd) {
			return nil, err
		}
		cmd.PrintErrf("Warning: using default configuration: %v\n", err)
		cfg = config.New()
	}
	cmd.SetContext(config.ContextWithConfig(cmd.Context(), cfg))
	return cfg, nil
}

// configOptional reports whether cmd or one of its parents carries the
// config-optional annotation.
func configOptional(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationConfigOptional] == "true" {
			return true
		}
	}
	return false
}

// configFromCmd returns the configuration loaded by the root command, or
// defaults when the command runs outside it.
func configFromCmd(cmd *cobra.Command) *config.Config {
	if cfg := config.FromContext(cmd.Context()); cfg != nil {
		return cfg
	}
	return config.New()
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Configuration management commands",
		Annotations: map[string]string{annotationConfigOptional: "true"},
	}
	cmd.AddCommand(NewConfigInitCmd(), NewConfigValidateCmd(), NewConfigShowCmd())
	return cmd
}
