package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mwa-utils/mwapipe/internal/config"
)

// NewConfigInitCmd creates the config init command, which writes the
// default configuration to $MWAPIPE_HOME/config.yaml or --path.
func NewConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Example: `  # Create the global configuration
  mwapipe config init

  # Write a project overlay to pass with --config
  mwapipe config init --path ./mwapipe.yaml

  # Overwrite an existing file
  mwapipe config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.New()
			if path != "" {
				cfg.SetConfigPath(path)
			}

			if !force {
				_, err := os.Stat(cfg.ConfigPath())
				if err == nil {
					return errors.New("configuration file already exists, use --force to overwrite")
				}
				if !os.IsNotExist(err) {
					return fmt.Errorf("cannot access config path %s: %w", cfg.ConfigPath(), err)
				}
			}

			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			cmd.Printf("Configuration initialized successfully\n")
			cmd.Printf("Configuration file: %s\n", cfg.ConfigPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")
	cmd.Flags().StringVar(&path, "path", "", "write to this file instead of the global config")
	return cmd
}
