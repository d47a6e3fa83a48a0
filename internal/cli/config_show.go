package cli

import (
	"github.com/spf13/cobra"
)

// NewConfigShowCmd creates the config show command, which prints the
// effective configuration after files and environment are applied.
func NewConfigShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Example: `  mwapipe config show
  mwapipe config show --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeStructured(cmd.OutOrStdout(), output, configFromCmd(cmd))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputYAML, "output format: yaml or json")
	return cmd
}
