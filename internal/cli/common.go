package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mwa-utils/mwapipe/internal/config"
	"github.com/mwa-utils/mwapipe/internal/engine/batch"
	"github.com/mwa-utils/mwapipe/internal/engine/cache"
	"github.com/mwa-utils/mwapipe/internal/logging"
	"github.com/mwa-utils/mwapipe/internal/monitor"
	"github.com/mwa-utils/mwapipe/internal/pipeline"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// Output formats for the inspection commands.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// planFlags are shared by run and plan.
type planFlags struct {
	budget          string
	stages          []string
	maxBatchRecords int
	noCache         bool
	selAnts         []int
	skipAnts        []int
	selPols         []string
	spectrumType    string
}

func (f *planFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.budget, "budget", "",
		`memory budget, e.g. 4GiB or "auto" (default from pipeline.memory_budget)`)
	cmd.Flags().StringSliceVar(&f.stages, "stages", nil,
		"comma-separated stage names replacing pipeline.stages")
	cmd.Flags().IntVar(&f.maxBatchRecords, "max-batch-records", 0,
		"upper bound on records per batch (0 = budget only)")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "do not read or write the descriptor cache")
	cmd.Flags().IntSliceVar(&f.selAnts, "sel-ants", nil, "keep only baselines between these antenna indices")
	cmd.Flags().IntSliceVar(&f.skipAnts, "skip-ants", nil, "drop baselines involving these antenna indices")
	cmd.Flags().StringSliceVar(&f.selPols, "sel-pols", nil, "keep only these polarisations (XX, XY, YX, YY)")
	cmd.Flags().StringVar(&f.spectrumType, "spectrum-type", "",
		"baselines ins-flag averages: all, auto or cross (default cross)")
}

// apply overrides cfg with the flags that were set on cmd.
func (f *planFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("budget") {
		b, err := config.ParseByteSize(f.budget)
		if err != nil {
			return fmt.Errorf("--budget: %w", err)
		}
		cfg.Pipeline.MemoryBudget = b
	}
	if cmd.Flags().Changed("stages") {
		stages := make([]config.StageConfig, 0, len(f.stages))
		for _, name := range f.stages {
			name = strings.TrimSpace(name)
			opts := config.StageOptions{}
			// Keep options configured for a stage of the same name.
			for _, existing := range cfg.Pipeline.Stages {
				if existing.Name == name {
					opts = existing.Options
				}
			}
			stages = append(stages, config.StageConfig{Name: name, Options: opts})
		}
		cfg.Pipeline.Stages = stages
	}
	if cmd.Flags().Changed("max-batch-records") {
		cfg.Pipeline.MaxBatchRecords = f.maxBatchRecords
	}
	if f.noCache {
		cfg.Cache.Enabled = false
	}
	if cmd.Flags().Changed("sel-ants") {
		cfg.Pipeline.Selection.SelAnts = f.selAnts
	}
	if cmd.Flags().Changed("skip-ants") {
		cfg.Pipeline.Selection.SkipAnts = f.skipAnts
	}
	if cmd.Flags().Changed("sel-pols") {
		cfg.Pipeline.Selection.SelPols = f.selPols
	}
	if cmd.Flags().Changed("spectrum-type") {
		for i := range cfg.Pipeline.Stages {
			if cfg.Pipeline.Stages[i].Name == config.StageINSFlag {
				cfg.Pipeline.Stages[i].Options.SpectrumType = f.spectrumType
			}
		}
	}
	return nil
}

// loadDataset builds the descriptor for paths, consulting the descriptor
// cache when it is enabled.
func loadDataset(ctx context.Context, cfg *config.Config, paths []string) (*uvdata.Dataset, error) {
	log := logging.ComponentLogger(*logging.FromContext(ctx), "loader")

	var opts []uvdata.LoaderOption
	if cfg.Cache.Enabled {
		store, err := cache.NewFileStore(cfg.Cache.Directory, cfg.Cache.TTLSeconds)
		if err != nil {
			log.Warn().Err(err).Str("directory", cfg.Cache.Directory).Msg("descriptor cache disabled")
		} else {
			opts = append(opts, uvdata.WithCache(cache.NewDescriptorStore(store, log)))
		}
	}

	return uvdata.NewLoader(opts...).Load(ctx, paths)
}

// resolveBudget returns the configured budget in bytes, detecting it from
// the memory limit when the budget is "auto".
func resolveBudget(ctx context.Context, cfg *config.Config) (int64, error) {
	b := cfg.Pipeline.MemoryBudget
	if !b.Auto {
		return b.Bytes, nil
	}
	budget, err := monitor.AutoBudget(cfg.Pipeline.AutoBudgetRatio, nil)
	if err != nil {
		return 0, fmt.Errorf("detecting memory budget: %w", err)
	}
	logging.FromContext(ctx).Info().
		Int64("budget", budget).
		Float64("ratio", cfg.Pipeline.AutoBudgetRatio).
		Msg("memory budget detected")
	return budget, nil
}

// planRun builds the stages and the batch plan for desc.
func planRun(ctx context.Context, cfg *config.Config, desc *uvdata.Descriptor) ([]pipeline.Stage, *batch.Plan, error) {
	stages, err := pipeline.BuildStages(cfg.Pipeline.Stages)
	if err != nil {
		return nil, nil, err
	}
	if err = cfg.Pipeline.Selection.Selection().Validate(desc.Antennas); err != nil {
		return nil, nil, &uvdata.DescriptorError{Reason: "antenna selection does not fit the observation", Err: err}
	}
	budget, err := resolveBudget(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	planner, err := batch.NewPlanner(cfg.Pipeline.MaxBatchRecords)
	if err != nil {
		return nil, nil, err
	}
	plan, err := planner.Plan(desc, budget, pipeline.MaxMultiplier(stages))
	if err != nil {
		return nil, nil, err
	}
	return stages, plan, nil
}

// writeStructured encodes v as JSON or YAML.
func writeStructured(w io.Writer, format string, v any) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q (want %s, %s or %s)", format, outputText, outputJSON, outputYAML)
	}
}
