package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mwa-utils/mwapipe/internal/config"
	"github.com/mwa-utils/mwapipe/internal/engine/batch"
	"github.com/mwa-utils/mwapipe/internal/logging"
	"github.com/mwa-utils/mwapipe/internal/monitor"
	"github.com/mwa-utils/mwapipe/internal/pipeline"
	"github.com/mwa-utils/mwapipe/internal/report"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// runFlags holds the flags of the run command.
type runFlags struct {
	planFlags

	reportPath   string
	format       string
	interval     time.Duration
	tolerance    float64
	failOnBudget bool
	resume       string
	metricsFile  string
}

func newRunCmd(ver string) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <paths...>",
		Short: "Run the pipeline stages over a dataset in memory-bounded batches",
		Long: `Loads the dataset descriptor, plans batches that fit the memory budget and
runs every configured stage over each batch in turn. Process memory is sampled
throughout and a report is written when the run ends, including on failure.`,
		Example: `  mwapipe run /data/1065880128 --budget 4GiB --report run.json
  mwapipe run obs/*.fits obs/*.metafits --stages diff,coarse-band,summary
  mwapipe run /data/1065880128 --budget auto --fail-on-budget --metrics-file run.prom`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, args, &flags, ver)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&flags.reportPath, "report", "", "report path (default from report.path)")
	cmd.Flags().StringVar(&flags.format, "format", "", "report format: json, yaml or ndjson (default from extension)")
	cmd.Flags().DurationVar(&flags.interval, "interval", 0, "resource sampling interval")
	cmd.Flags().Float64Var(&flags.tolerance, "tolerance", 0, "budget overrun tolerance factor (>= 1)")
	cmd.Flags().BoolVar(&flags.failOnBudget, "fail-on-budget", false, "stop the run when memory exceeds the budget")
	cmd.Flags().StringVar(&flags.resume, "resume", "", "resume from the first unfinished batch of a prior report")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus textfile metrics here")

	return cmd
}

// apply overrides cfg with the run flags that were set.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if err := f.planFlags.apply(cmd, cfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("report") {
		cfg.Report.Path = f.reportPath
	}
	if cmd.Flags().Changed("format") {
		cfg.Report.Format = f.format
	}
	if cmd.Flags().Changed("interval") {
		cfg.Pipeline.SampleInterval = f.interval
	}
	if cmd.Flags().Changed("tolerance") {
		cfg.Pipeline.Tolerance = f.tolerance
	}
	if cmd.Flags().Changed("fail-on-budget") {
		cfg.Pipeline.BudgetExceededFatal = f.failOnBudget
	}
	if cmd.Flags().Changed("metrics-file") {
		cfg.Report.MetricsFile = f.metricsFile
	}
	return cfg.Validate()
}

func executeRun(cmd *cobra.Command, paths []string, flags *runFlags, ver string) error {
	ctx := cmd.Context()
	cfg := *configFromCmd(cmd)
	if err := flags.apply(cmd, &cfg); err != nil {
		return err
	}
	log := logging.ComponentLogger(*logging.FromContext(ctx), "run")
	started := time.Now()

	ds, err := loadDataset(ctx, &cfg, paths)
	if err != nil {
		return err
	}
	log.Info().
		Str("format", ds.Descriptor.Format).
		Int("records", ds.Descriptor.RecordCount).
		Int64("record_bytes", ds.Descriptor.RecordBytes).
		Bool("cached", ds.Cached).
		Msg("dataset described")

	stages, plan, err := planRun(ctx, &cfg, ds.Descriptor)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		ReleaseMemory:        cfg.Pipeline.ReleaseMemory,
		FailOnBudgetExceeded: cfg.Pipeline.BudgetExceededFatal,
		Selection:            cfg.Pipeline.Selection.Selection(),
		Metrics:              pipeline.NewMetrics(),
		OnProgress: func(s batch.ProgressSnapshot) {
			log.Info().
				Int("batch", s.ProcessedBatches).
				Int("batches", s.TotalBatches).
				Float64("percent", s.PercentComplete).
				Float64("records_per_second", s.RecordsPerSecond).
				Dur("eta", s.EstimatedTimeRemaining).
				Msg("progress")
		},
	}
	if flags.resume != "" {
		if opts.StartAt, opts.ResumeFingerprint, err = resumePoint(flags.resume); err != nil {
			return err
		}
		log.Info().Int("start_at", opts.StartAt).Str("from", flags.resume).Msg("resuming run")
	}

	opts.Monitor, err = monitor.New(monitor.Config{
		Interval:  cfg.Pipeline.SampleInterval,
		Budget:    plan.Budget,
		Tolerance: cfg.Pipeline.Tolerance,
	})
	if err != nil {
		return err
	}

	exec, err := pipeline.NewExecutor(stages, opts)
	if err != nil {
		return err
	}
	reader, err := ds.Open()
	if err != nil {
		return err
	}

	res, runErr := exec.Run(ctx, plan, reader)
	if closeErr := reader.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Msg("closing dataset reader")
	}

	rep := report.Build(report.Run{
		RunID:       logging.RunIDFromContext(ctx),
		ToolVersion: ver,
		Inputs:      ds.Files.Paths(),
		Config:      summarizeConfig(&cfg, plan.Budget, stages, opts.StartAt),
		Descriptor:  ds.Descriptor,
		Plan:        plan,
		Result:      res,
		Err:         runErr,
		StartedAt:   started,
	})

	var errs []error
	if runErr != nil {
		errs = append(errs, runErr)
	}
	if err = report.Write(cfg.Report.Path, cfg.Report.Format, rep); err != nil {
		errs = append(errs, fmt.Errorf("writing report: %w", err))
	} else {
		log.Info().Str("path", cfg.Report.Path).Msg("report written")
	}
	if cfg.Report.MetricsFile != "" {
		if err = opts.Metrics.WriteTextfile(cfg.Report.MetricsFile); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics: %w", err))
		}
	}

	if err = report.Render(cmd.OutOrStdout(), rep); err != nil {
		log.Warn().Err(err).Msg("rendering report summary")
	}
	return errors.Join(errs...)
}

// resumePoint reads a prior report and returns where to resume.
func resumePoint(path string) (int, string, error) {
	prior, err := report.Read(path)
	if err != nil {
		return 0, "", fmt.Errorf("--resume: %w", err)
	}
	startAt, fingerprint, err := prior.ResumePoint()
	if err != nil {
		return 0, "", fmt.Errorf("--resume: %w", err)
	}
	return startAt, fingerprint, nil
}

func summarizeConfig(cfg *config.Config, budget int64, stages []pipeline.Stage, startAt int) report.ConfigSummary {
	var sel *uvdata.Selection
	if s := cfg.Pipeline.Selection.Selection(); !s.IsZero() {
		sel = &s
	}
	return report.ConfigSummary{
		MemoryBudget:        budget,
		AutoBudget:          cfg.Pipeline.MemoryBudget.Auto,
		SampleInterval:      cfg.Pipeline.SampleInterval,
		Tolerance:           cfg.Pipeline.Tolerance,
		BudgetExceededFatal: cfg.Pipeline.BudgetExceededFatal,
		MaxBatchRecords:     cfg.Pipeline.MaxBatchRecords,
		Stages:              pipeline.StageNames(stages),
		StartAt:             startAt,
		SpectrumType:        cfg.Pipeline.SpectrumType(),
		Selection:           sel,
		Suffix:              cfg.Pipeline.OutputSuffix(),
	}
}
