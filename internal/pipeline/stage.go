package pipeline

import (
	"context"
	"fmt"

	"github.com/mwa-utils/mwapipe/internal/config"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// Stage is a named transformation applied to every batch. Multiplier is
// the stage's peak memory relative to the input batch size.
type Stage interface {
	Name() string
	Multiplier() float64
	Process(ctx context.Context, b *uvdata.Batch) error
}

// Summarizer is implemented by stages that accumulate a dataset summary.
type Summarizer interface {
	Summary() DatasetSummary
}

// BuildStages constructs the configured stages in order.
func BuildStages(cfgs []config.StageConfig) ([]Stage, error) {
	if len(cfgs) == 0 {
		return nil, ErrNoStages
	}

	stages := make([]Stage, 0, len(cfgs))
	for i, c := range cfgs {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("stages[%d]: %w", i, err)
		}

		var s Stage
		switch c.Name {
		case config.StageDiff:
			s = NewDiffStage()
		case config.StageCoarseBand:
			s = NewCoarseBandStage(c.Options.EdgeChannels, c.Options.CoarseChannels)
		case config.StageINSFlag:
			s = NewINSFlagStage(c.Options.Threshold, c.Options.SpectrumType)
		case config.StageSummary:
			s = NewSummaryStage()
		default:
			return nil, fmt.Errorf("stages[%d]: %w: %q", i, config.ErrUnknownStage, c.Name)
		}
		stages = append(stages, s)
	}
	return stages, nil
}

// MaxMultiplier returns the largest declared multiplier, never less than 1.
func MaxMultiplier(stages []Stage) float64 {
	m := 1.0
	for _, s := range stages {
		m = max(m, s.Multiplier())
	}
	return m
}

// StageNames returns the names of stages in order.
func StageNames(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return names
}
