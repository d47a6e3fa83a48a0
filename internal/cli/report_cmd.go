package cli

import (
	"github.com/spf13/cobra"

	"github.com/mwa-utils/mwapipe/internal/report"
	"github.com/mwa-utils/mwapipe/internal/tui"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Inspect run reports"}
	cmd.AddCommand(newReportShowCmd(), newReportViewCmd())
	return cmd
}

func newReportShowCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "show <report>",
		Short: "Print a run report summary",
		Example: `  mwapipe report show run.json
  mwapipe report show run.ndjson.zst --output yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := report.Read(args[0])
			if err != nil {
				return err
			}
			if output == outputText {
				return report.Render(cmd.OutOrStdout(), r)
			}
			return writeStructured(cmd.OutOrStdout(), output, r)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	return cmd
}

func newReportViewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "view <report>",
		Short: "Browse the batches of a run report interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := report.Read(args[0])
			if err != nil {
				return err
			}
			if !writerIsTerminal(cmd.OutOrStdout()) {
				return report.Render(cmd.OutOrStdout(), r)
			}
			return tui.RunReportViewer(r)
		},
	}
}
