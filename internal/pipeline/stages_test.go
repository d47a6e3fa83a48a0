package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-utils/mwapipe/internal/config"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

func TestBuildStages(t *testing.T) {
	stages, err := BuildStages(config.New().Pipeline.Stages)
	require.NoError(t, err)
	assert.Equal(t, []string{"diff", "ins-flag", "summary"}, StageNames(stages))
	assert.InDelta(t, 2.0, MaxMultiplier(stages), 0)

	ins := stages[1].(*INSFlagStage)
	assert.Equal(t, config.DefaultSpectrumType, ins.spectrum)

	stages, err = BuildStages([]config.StageConfig{
		{Name: config.StageCoarseBand, Options: config.StageOptions{EdgeChannels: 3}},
	})
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, 3, stages[0].(*CoarseBandStage).edge)
	assert.InDelta(t, 1.0, MaxMultiplier(stages), 0)

	_, err = BuildStages([]config.StageConfig{{Name: "rfi-magic"}})
	require.ErrorIs(t, err, config.ErrUnknownStage)

	_, err = BuildStages(nil)
	require.ErrorIs(t, err, ErrNoStages)
}

func TestMaxMultiplier_FloorsAtOne(t *testing.T) {
	assert.InDelta(t, 1.0, MaxMultiplier(nil), 0)
	assert.InDelta(t, 1.5, MaxMultiplier([]Stage{NewSummaryStage(), NewINSFlagStage(0, "")}), 0)
}

func TestDiffStage(t *testing.T) {
	b := uvdata.NewBatch(0, 3, 1, 1, 1)
	b.Vis[0][0] = 1
	b.Vis[1][0] = 3 + 1i
	b.Vis[2][0] = 6
	b.Flags[1][0] = true

	require.NoError(t, NewDiffStage().Process(context.Background(), b))

	assert.Equal(t, complex64(2+1i), b.Vis[0][0])
	assert.Equal(t, complex64(3-1i), b.Vis[1][0])
	assert.Equal(t, complex64(0), b.Vis[2][0])
	assert.Equal(t, []bool{true}, b.Flags[0], "flag propagates from the successor")
	assert.Equal(t, []bool{true}, b.Flags[1])
	assert.Equal(t, []bool{true}, b.Flags[2], "last record has no successor")
}

func TestDiffStage_Empty(t *testing.T) {
	b := uvdata.NewBatch(0, 0, 1, 1, 1)
	require.NoError(t, NewDiffStage().Process(context.Background(), b))
}

func TestCoarseBandStage(t *testing.T) {
	b := uvdata.NewBatch(0, 2, 2, 8, 2)
	require.NoError(t, NewCoarseBandStage(1, 0).Process(context.Background(), b))

	want := map[int]bool{0: true, 3: true, 4: true, 7: true}
	for rec := range b.Len() {
		for row := range b.Rows {
			for ch := range b.Channels {
				assert.Equal(t, want[ch], b.Flags[rec][b.Index(row, ch)], "rec %d row %d chan %d", rec, row, ch)
			}
		}
	}
}

func TestCoarseBandStage_Errors(t *testing.T) {
	b := uvdata.NewBatch(0, 1, 1, 8, 2)
	err := NewCoarseBandStage(1, 3).Process(context.Background(), b)
	require.ErrorContains(t, err, "do not divide")

	err = NewCoarseBandStage(2, 0).Process(context.Background(), b)
	require.ErrorContains(t, err, "leave nothing")

	assert.Equal(t, config.DefaultEdgeChannels, NewCoarseBandStage(0, 0).edge)
}

func TestINSFlagStage(t *testing.T) {
	b := uvdata.NewBatch(0, 10, 2, 2, 1)
	for rec := range b.Len() {
		for k := range b.Vis[rec] {
			b.Vis[rec][k] = 1
		}
	}
	b.Vis[4][b.Index(0, 1)] = 100i
	b.Vis[4][b.Index(1, 1)] = 100

	require.NoError(t, NewINSFlagStage(2, "").Process(context.Background(), b))

	for rec := range b.Len() {
		for row := range b.Rows {
			for ch := range b.Channels {
				want := rec == 4 && ch == 1
				assert.Equal(t, want, b.Flags[rec][b.Index(row, ch)], "rec %d row %d chan %d", rec, row, ch)
			}
		}
	}
}

func TestINSFlagStage_IgnoresFlaggedAndShortBatches(t *testing.T) {
	b := uvdata.NewBatch(0, 10, 1, 1, 1)
	for rec := range b.Len() {
		b.Vis[rec][0] = 1
	}
	b.Vis[4][0] = 100
	b.Flags[4][0] = true

	require.NoError(t, NewINSFlagStage(2, "").Process(context.Background(), b))
	for rec := range b.Len() {
		assert.Equal(t, rec == 4, b.Flags[rec][0])
	}

	single := uvdata.NewBatch(0, 1, 1, 1, 1)
	single.Vis[0][0] = 1e9
	require.NoError(t, NewINSFlagStage(0, "").Process(context.Background(), single))
	assert.False(t, single.Flags[0][0])
	assert.InDelta(t, config.DefaultThreshold, NewINSFlagStage(0, "").threshold, 0)
	assert.Equal(t, config.DefaultSpectrumType, NewINSFlagStage(0, "").spectrum)
}

func TestINSFlagStage_SingleOutlierInShortBatch(t *testing.T) {
	for _, records := range []int{4, 5, 8} {
		t.Run(fmt.Sprintf("%d records", records), func(t *testing.T) {
			b := uvdata.NewBatch(0, records, 2, 1, 1)
			for rec := range b.Len() {
				for k := range b.Vis[rec] {
					b.Vis[rec][k] = 1
				}
			}
			b.Vis[2][b.Index(0, 0)] = 1e6
			b.Vis[2][b.Index(1, 0)] = 1e6

			require.NoError(t, NewINSFlagStage(0, "").Process(context.Background(), b))
			for rec := range b.Len() {
				assert.Equal(t, rec == 2, b.Flags[rec][0], "rec %d", rec)
			}
		})
	}
}

func TestINSFlagStage_NoisyChannel(t *testing.T) {
	amps := []float32{1.0, 1.1, 0.9, 1.05, 0.95, 50}
	b := uvdata.NewBatch(0, len(amps), 1, 1, 1)
	for rec, a := range amps {
		b.Vis[rec][0] = complex(a, 0)
	}

	require.NoError(t, NewINSFlagStage(5, "").Process(context.Background(), b))
	for rec := range b.Len() {
		assert.Equal(t, rec == 5, b.Flags[rec][0], "rec %d", rec)
	}
}

func TestINSFlagStage_SpectrumType(t *testing.T) {
	// Two antennas: rows 0-3 are (0,0), 4-7 are (0,1), 8-11 are (1,1).
	newBatch := func() *uvdata.Batch {
		b := uvdata.NewBatch(0, 6, 12, 1, 1)
		b.Antennas = 2
		for rec := range b.Len() {
			for k := range b.Vis[rec] {
				b.Vis[rec][k] = 1
			}
		}
		for row := 0; row < 4; row++ {
			b.Vis[3][b.Index(row, 0)] = 1000
		}
		return b
	}

	cross := newBatch()
	require.NoError(t, NewINSFlagStage(0, uvdata.SpectrumCross).Process(context.Background(), cross))
	for rec := range cross.Len() {
		for row := range cross.Rows {
			assert.False(t, cross.Flags[rec][row], "autocorrelations stay out of the cross spectrum")
		}
	}

	auto := newBatch()
	require.NoError(t, NewINSFlagStage(0, uvdata.SpectrumAuto).Process(context.Background(), auto))
	for row := range auto.Rows {
		a1, a2, _ := uvdata.RowBaseline(row, 2)
		assert.Equal(t, a1 == a2, auto.Flags[3][row], "row %d", row)
		assert.False(t, auto.Flags[2][row])
	}
}

func TestSummaryStage_CountsSelectedRows(t *testing.T) {
	b := uvdata.NewBatch(0, 2, 2, 2, 1)
	b.Selected = []bool{false, true}
	for rec := range b.Len() {
		for k := range b.Vis[rec] {
			b.Vis[rec][k] = 2
		}
	}
	b.Vis[0][b.Index(0, 0)] = 1000
	b.Flags[1][b.Index(1, 1)] = true

	s := NewSummaryStage()
	require.NoError(t, s.Process(context.Background(), b))

	sum := s.Summary()
	assert.Equal(t, int64(4), sum.Visibilities)
	assert.Equal(t, int64(1), sum.Flagged)
	assert.InDelta(t, 2.0, sum.MeanAmplitude, 1e-9)
}

func TestSummaryStage(t *testing.T) {
	s := NewSummaryStage()
	assert.Equal(t, DatasetSummary{}, s.Summary())

	b := uvdata.NewBatch(0, 2, 1, 2, 1)
	b.Vis[0][0] = 3 + 4i
	b.Vis[0][1] = 3 - 4i
	b.Vis[1][0] = -5
	b.Vis[1][1] = 1000
	b.Flags[1][1] = true

	require.NoError(t, s.Process(context.Background(), b))
	require.NoError(t, s.Process(context.Background(), uvdata.NewBatch(2, 3, 1, 2, 1)))

	sum := s.Summary()
	assert.Equal(t, int64(3), sum.Records)
	assert.Equal(t, int64(6), sum.Visibilities)
	assert.Equal(t, int64(1), sum.Flagged)
	assert.InDelta(t, 1.0/6, sum.FlaggedFraction, 1e-12)
	assert.InDelta(t, 15.0/5, sum.MeanAmplitude, 1e-9)
}
