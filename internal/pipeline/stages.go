package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"slices"
	"sync"

	"github.com/mwa-utils/mwapipe/internal/config"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// Declared stage multipliers.
const (
	diffMultiplier       = 2.0
	coarseBandMultiplier = 1.0
	insFlagMultiplier    = 1.5
	summaryMultiplier    = 1.0
)

// DiffStage replaces each record with its difference from the next one.
// The last record of a batch has no successor and is flagged.
type DiffStage struct{}

// NewDiffStage returns the time-difference stage.
func NewDiffStage() *DiffStage {
	return &DiffStage{}
}

// Name implements Stage.
func (*DiffStage) Name() string { return config.StageDiff }

// Multiplier implements Stage.
func (*DiffStage) Multiplier() float64 { return diffMultiplier }

// Process implements Stage.
func (*DiffStage) Process(_ context.Context, b *uvdata.Batch) error {
	n := b.Len()
	if n == 0 {
		return nil
	}

	out := make([][]complex64, n)
	for t := range n - 1 {
		cur, next := b.Vis[t], b.Vis[t+1]
		diff := make([]complex64, len(cur))
		for k := range cur {
			diff[k] = next[k] - cur[k]
			b.Flags[t][k] = b.Flags[t][k] || b.Flags[t+1][k]
		}
		out[t] = diff
	}
	out[n-1] = make([]complex64, len(b.Vis[n-1]))
	for k := range b.Flags[n-1] {
		b.Flags[n-1][k] = true
	}

	b.Vis = out
	return nil
}

// CoarseBandStage flags channels at both edges of every coarse band.
type CoarseBandStage struct {
	edge   int
	coarse int
}

// NewCoarseBandStage flags edge channels per band edge. coarse overrides
// the batch's coarse channel count when positive. edge of zero uses
// config.DefaultEdgeChannels.
func NewCoarseBandStage(edge, coarse int) *CoarseBandStage {
	if edge == 0 {
		edge = config.DefaultEdgeChannels
	}
	return &CoarseBandStage{edge: edge, coarse: coarse}
}

// Name implements Stage.
func (*CoarseBandStage) Name() string { return config.StageCoarseBand }

// Multiplier implements Stage.
func (*CoarseBandStage) Multiplier() float64 { return coarseBandMultiplier }

// Process implements Stage.
func (s *CoarseBandStage) Process(_ context.Context, b *uvdata.Batch) error {
	coarse := b.CoarseChannels
	if s.coarse > 0 {
		coarse = s.coarse
	}
	if coarse <= 0 || b.Channels%coarse != 0 {
		return fmt.Errorf("%d channels do not divide into %d coarse bands", b.Channels, coarse)
	}
	width := b.Channels / coarse
	if 2*s.edge >= width {
		return fmt.Errorf("%d edge channels per side leave nothing of a %d-channel band", s.edge, width)
	}

	for t := range b.Len() {
		flags := b.Flags[t]
		for row := range b.Rows {
			for band := range coarse {
				lo := band * width
				for e := range s.edge {
					flags[b.Index(row, lo+e)] = true
					flags[b.Index(row, lo+width-1-e)] = true
				}
			}
		}
	}
	return nil
}

// INSFlagStage builds an incoherent noise spectrum (mean amplitude over
// the selected baselines of the spectrum type, per record and channel) and
// flags every row of a (record, channel) cell that is an outlier of its
// channel. Outliers are judged by a robust z-score against the batch's
// median and MAD, so a single bad record stands out even in short batches.
type INSFlagStage struct {
	threshold float64
	spectrum  string
}

// NewINSFlagStage returns the noise-spectrum flagger. A zero threshold
// uses config.DefaultThreshold and an empty spectrum type
// config.DefaultSpectrumType.
func NewINSFlagStage(threshold float64, spectrum string) *INSFlagStage {
	if threshold == 0 {
		threshold = config.DefaultThreshold
	}
	if spectrum == "" {
		spectrum = config.DefaultSpectrumType
	}
	return &INSFlagStage{threshold: threshold, spectrum: spectrum}
}

// Name implements Stage.
func (*INSFlagStage) Name() string { return config.StageINSFlag }

// Multiplier implements Stage.
func (*INSFlagStage) Multiplier() float64 { return insFlagMultiplier }

// Process implements Stage.
func (s *INSFlagStage) Process(_ context.Context, b *uvdata.Batch) error {
	n := b.Len()
	if n < 2 {
		return nil
	}

	rows := make([]int, 0, b.Rows)
	for row := range b.Rows {
		if b.RowInSpectrum(row, s.spectrum) {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	// ins[t*Channels+c] is NaN where every row is already flagged.
	ins := make([]float64, n*b.Channels)
	for t := range n {
		for c := range b.Channels {
			var sum float64
			var count int
			for _, row := range rows {
				k := b.Index(row, c)
				if b.Flags[t][k] {
					continue
				}
				sum += cmplx.Abs(complex128(b.Vis[t][k]))
				count++
			}
			ins[t*b.Channels+c] = math.NaN()
			if count > 0 {
				ins[t*b.Channels+c] = sum / float64(count)
			}
		}
	}

	scratch := make([]float64, 0, n)
	for c := range b.Channels {
		median, scale, ok := channelStats(ins, n, b.Channels, c, scratch)
		if !ok {
			continue
		}
		for t := range n {
			v := ins[t*b.Channels+c]
			if math.IsNaN(v) || !isOutlier(v, median, scale, s.threshold) {
				continue
			}
			for _, row := range rows {
				b.Flags[t][b.Index(row, c)] = true
			}
		}
	}
	return nil
}

// madScale makes the MAD a consistent estimator of a Gaussian sigma.
const madScale = 1.4826

// channelStats returns the median of channel c over the non-NaN records of
// ins and the scaled median absolute deviation around it.
func channelStats(ins []float64, n, channels, c int, scratch []float64) (float64, float64, bool) {
	vals := scratch[:0]
	for t := range n {
		if v := ins[t*channels+c]; !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) < 2 {
		return 0, 0, false
	}
	median := medianOf(vals)
	for i, v := range vals {
		vals[i] = math.Abs(v - median)
	}
	return median, madScale * medianOf(vals), true
}

// isOutlier applies the robust z-score test. With a zero MAD most records
// agree exactly, and any record that differs is an outlier.
func isOutlier(v, median, scale, threshold float64) bool {
	dev := math.Abs(v - median)
	if scale == 0 {
		return dev > 0
	}
	return dev/scale > threshold
}

// medianOf sorts vals in place and returns their median.
func medianOf(vals []float64) float64 {
	slices.Sort(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 1 {
		return vals[mid]
	}
	return (vals[mid-1] + vals[mid]) / 2
}

// DatasetSummary aggregates statistics over every processed record.
type DatasetSummary struct {
	Records         int64   `json:"records" yaml:"records"`
	Visibilities    int64   `json:"visibilities" yaml:"visibilities"`
	Flagged         int64   `json:"flagged" yaml:"flagged"`
	FlaggedFraction float64 `json:"flagged_fraction" yaml:"flagged_fraction"`
	MeanAmplitude   float64 `json:"mean_amplitude" yaml:"mean_amplitude"`
}

// SummaryStage accumulates a DatasetSummary across batches.
type SummaryStage struct {
	mu           sync.Mutex
	summary      DatasetSummary
	amplitudeSum float64
}

// NewSummaryStage returns an empty summary accumulator.
func NewSummaryStage() *SummaryStage {
	return &SummaryStage{}
}

// Name implements Stage.
func (*SummaryStage) Name() string { return config.StageSummary }

// Multiplier implements Stage.
func (*SummaryStage) Multiplier() float64 { return summaryMultiplier }

// Process implements Stage. Only selected rows are counted.
func (s *SummaryStage) Process(_ context.Context, b *uvdata.Batch) error {
	var visibilities, flagged int64
	var ampSum float64
	for t := range b.Len() {
		for row := range b.Rows {
			if !b.RowSelected(row) {
				continue
			}
			for c := range b.Channels {
				k := b.Index(row, c)
				visibilities++
				if b.Flags[t][k] {
					flagged++
					continue
				}
				ampSum += cmplx.Abs(complex128(b.Vis[t][k]))
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary.Records += int64(b.Len())
	s.summary.Visibilities += visibilities
	s.summary.Flagged += flagged
	s.amplitudeSum += ampSum
	return nil
}

// Summary implements Summarizer.
func (s *SummaryStage) Summary() DatasetSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.summary
	if out.Visibilities > 0 {
		out.FlaggedFraction = float64(out.Flagged) / float64(out.Visibilities)
	}
	if unflagged := out.Visibilities - out.Flagged; unflagged > 0 {
		out.MeanAmplitude = s.amplitudeSum / float64(unflagged)
	}
	return out
}
