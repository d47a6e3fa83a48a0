package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mwa-utils/mwapipe/internal/engine/batch"
	"github.com/mwa-utils/mwapipe/internal/pipeline"
	"github.com/mwa-utils/mwapipe/internal/report"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// planOutput is the structured form of the plan command.
type planOutput struct {
	Descriptor *uvdata.Descriptor  `json:"descriptor" yaml:"descriptor"`
	Stages     []string            `json:"stages" yaml:"stages"`
	Suffix     string              `json:"suffix,omitempty" yaml:"suffix,omitempty"`
	Plan       *report.PlanSummary `json:"plan" yaml:"plan"`
	Ranges     []batch.Range       `json:"ranges,omitempty" yaml:"ranges,omitempty"`
}

func newPlanCmd() *cobra.Command {
	var (
		flags      planFlags
		output     string
		showRanges bool
	)

	cmd := &cobra.Command{
		Use:   "plan <paths...>",
		Short: "Show the batch plan for a dataset without reading any visibilities",
		Example: `  mwapipe plan /data/1065880128 --budget 512MiB
  mwapipe plan /data/1065880128 --budget auto --ranges --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *configFromCmd(cmd)
			if err := flags.apply(cmd, &cfg); err != nil {
				return err
			}
			if err := cfg.Pipeline.Validate(); err != nil {
				return err
			}

			ds, err := loadDataset(cmd.Context(), &cfg, args)
			if err != nil {
				return err
			}
			stages, plan, err := planRun(cmd.Context(), &cfg, ds.Descriptor)
			if err != nil {
				return err
			}

			out := planOutput{
				Descriptor: ds.Descriptor,
				Stages:     pipeline.StageNames(stages),
				Suffix:     cfg.Pipeline.OutputSuffix(),
				Plan:       report.SummarizePlan(plan),
			}
			if showRanges {
				out.Ranges = plan.Ranges
			}
			if output == outputText {
				return renderPlanText(cmd.OutOrStdout(), out)
			}
			return writeStructured(cmd.OutOrStdout(), output, out)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&showRanges, "ranges", false, "list every batch range")
	return cmd
}

func renderPlanText(w io.Writer, out planOutput) error {
	p := message.NewPrinter(language.English)
	d, pl := out.Descriptor, out.Plan

	lines := []string{
		p.Sprintf("Dataset      %s, %d records of %s", d.Format, d.RecordCount, humanize.IBytes(uint64(d.RecordBytes))),
		p.Sprintf("Stages       %v (multiplier %.1f)", out.Stages, pl.Multiplier),
		p.Sprintf("Budget       %s", humanize.IBytes(uint64(pl.Budget))),
		p.Sprintf("Plan         %d batches of up to %d records, peak %s",
			pl.Batches, pl.BatchSize, humanize.IBytes(uint64(pl.PeakBytes))),
		"Fingerprint  " + pl.Fingerprint,
	}
	if out.Suffix != "" {
		lines = append(lines, "Suffix       "+out.Suffix)
	}
	for _, r := range out.Ranges {
		lines = append(lines, "  "+r.String())
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}
