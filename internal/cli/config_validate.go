package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwa-utils/mwapipe/internal/config"
	"github.com/mwa-utils/mwapipe/internal/pipeline"
)

// NewConfigValidateCmd creates the config validate command.
func NewConfigValidateCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Loads the global configuration, the --config overlay and MWAPIPE_* environment
overrides, and checks every option. The configured stages are also built to
catch invalid stage options.`,
		Example: `  mwapipe config validate
  mwapipe config validate --config ./mwapipe.yaml --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return runConfigValidate(cmd, path, verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")
	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, path string, verbose bool) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	stages, err := pipeline.BuildStages(cfg.Pipeline.Stages)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cmd.Printf("Configuration is valid\n")
	if verbose {
		printVerboseDetails(cmd, cfg, stages)
	}
	return nil
}

// printVerboseDetails prints detailed configuration information.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config, stages []pipeline.Stage) {
	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Memory budget: %s\n", cfg.Pipeline.MemoryBudget)
	cmd.Printf("  Sample interval: %s\n", cfg.Pipeline.SampleInterval)
	cmd.Printf("  Tolerance: %.2f\n", cfg.Pipeline.Tolerance)
	cmd.Printf("  Budget overrun fatal: %t\n", cfg.Pipeline.BudgetExceededFatal)
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	cmd.Printf("  Report: %s\n", cfg.Report.Path)
	if cfg.Cache.Enabled {
		cmd.Printf("  Descriptor cache: %s (ttl %ds)\n", cfg.Cache.Directory, cfg.Cache.TTLSeconds)
	} else {
		cmd.Println("  Descriptor cache: disabled")
	}
	cmd.Printf("  Stages: %d (peak multiplier %.1f)\n", len(stages), pipeline.MaxMultiplier(stages))
	for _, s := range stages {
		cmd.Printf("    - %s (x%.1f)\n", s.Name(), s.Multiplier())
	}
}
