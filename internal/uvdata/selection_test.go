package uvdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowBaseline(t *testing.T) {
	tests := []struct {
		row         int
		a1, a2, pol int
	}{
		{0, 0, 0, 0},
		{3, 0, 0, 3},
		{4, 0, 1, 0},
		{9, 0, 2, 1},
		{12, 1, 1, 0},
		{17, 1, 2, 1},
		{23, 2, 2, 3},
	}
	for _, tt := range tests {
		a1, a2, pol := RowBaseline(tt.row, 3)
		assert.Equal(t, []int{tt.a1, tt.a2, tt.pol}, []int{a1, a2, pol}, "row %d", tt.row)
	}
}

func TestSelection_RowMask(t *testing.T) {
	mask, err := Selection{}.RowMask(3)
	require.NoError(t, err)
	assert.Nil(t, mask)

	kept := func(s Selection) []int {
		t.Helper()
		mask, err := s.RowMask(3)
		require.NoError(t, err)
		require.Len(t, mask, 24)
		var rows []int
		for row, ok := range mask {
			if ok {
				rows = append(rows, row)
			}
		}
		return rows
	}

	assert.Equal(t, []int{12, 13, 14, 15}, kept(Selection{SelAnts: []int{1}}))
	assert.Equal(t, []int{12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23}, kept(Selection{SkipAnts: []int{0}}))
	assert.Equal(t, []int{0, 4, 8, 12, 16, 20}, kept(Selection{SelPols: []string{"xx"}}))
	assert.Equal(t, []int{3, 11, 23}, kept(Selection{SkipAnts: []int{1}, SelPols: []string{"YY"}}))

	_, err = Selection{SelAnts: []int{0}}.RowMask(0)
	require.Error(t, err)
}

func TestSelection_Validate(t *testing.T) {
	require.NoError(t, Selection{SelAnts: []int{0, 2}, SelPols: []string{"xy"}}.Validate(3))

	err := Selection{SelAnts: []int{5}, SkipAnts: []int{-1}, SelPols: []string{"RR"}}.Validate(3)
	require.ErrorIs(t, err, ErrSelectionConflict)
	require.ErrorIs(t, err, ErrAntennaRange)
	require.ErrorIs(t, err, ErrUnknownPol)

	require.NoError(t, Selection{SelAnts: []int{500}}.Validate(0), "unknown layout skips the range check")
}

func TestBatch_RowInSpectrum(t *testing.T) {
	b := NewBatch(0, 1, 12, 1, 1)
	b.Antennas = 2
	assert.True(t, b.RowInSpectrum(0, SpectrumAuto))
	assert.False(t, b.RowInSpectrum(0, SpectrumCross))
	assert.True(t, b.RowInSpectrum(5, SpectrumCross))
	assert.True(t, b.RowInSpectrum(11, SpectrumAll))

	b.Selected = make([]bool, 12)
	b.Selected[5] = true
	assert.False(t, b.RowInSpectrum(0, SpectrumAll))
	assert.True(t, b.RowInSpectrum(5, SpectrumCross))

	unknown := NewBatch(0, 1, 2, 1, 1)
	assert.True(t, unknown.RowInSpectrum(1, SpectrumCross))
	assert.False(t, unknown.RowInSpectrum(1, SpectrumAuto))
}
