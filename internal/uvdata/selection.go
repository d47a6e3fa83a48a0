package uvdata

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Polarisation products in row order within a baseline.
//
//nolint:gochecknoglobals // Fixed lookup table.
var Polarisations = []string{"XX", "XY", "YX", "YY"}

// Spectrum types select which baselines feed a noise spectrum.
const (
	SpectrumAll   = "all"
	SpectrumAuto  = "auto"
	SpectrumCross = "cross"
)

// Selection errors.
var (
	ErrSelectionConflict = errors.New("cannot specify both sel_ants and skip_ants")
	ErrUnknownPol        = errors.New("unknown polarisation")
	ErrAntennaRange      = errors.New("antenna index out of range")
)

// Selection restricts the rows that stages look at. Antennas are 0-based
// indices in metafits input order; an empty Selection keeps every row.
type Selection struct {
	SelAnts  []int    `json:"sel_ants,omitempty"  yaml:"sel_ants,omitempty"`
	SkipAnts []int    `json:"skip_ants,omitempty" yaml:"skip_ants,omitempty"`
	SelPols  []string `json:"sel_pols,omitempty"  yaml:"sel_pols,omitempty"`
}

// IsZero reports whether the selection keeps every row.
func (s Selection) IsZero() bool {
	return len(s.SelAnts) == 0 && len(s.SkipAnts) == 0 && len(s.SelPols) == 0
}

// Validate reports every problem with the selection at once. A positive
// antennas also bounds the antenna indices.
func (s Selection) Validate(antennas int) error {
	var errs []error
	if len(s.SelAnts) > 0 && len(s.SkipAnts) > 0 {
		errs = append(errs, ErrSelectionConflict)
	}
	for _, a := range slices.Concat(s.SelAnts, s.SkipAnts) {
		if a < 0 || (antennas > 0 && a >= antennas) {
			errs = append(errs, fmt.Errorf("%w: %d", ErrAntennaRange, a))
		}
	}
	for _, p := range s.SelPols {
		if PolIndex(p) < 0 {
			errs = append(errs, fmt.Errorf("%w: %q (known: %s)", ErrUnknownPol, p, strings.Join(Polarisations, ", ")))
		}
	}
	return errors.Join(errs...)
}

// RowMask returns which rows of a triangular baseline layout over antennas
// the selection keeps, or nil when it keeps them all.
func (s Selection) RowMask(antennas int) ([]bool, error) {
	if s.IsZero() {
		return nil, nil
	}
	if antennas <= 0 {
		return nil, errors.New("antenna selection needs a known antenna layout")
	}
	if err := s.Validate(antennas); err != nil {
		return nil, err
	}

	mask := make([]bool, antennas*(antennas+1)/2*len(Polarisations))
	for row := range mask {
		a1, a2, pol := RowBaseline(row, antennas)
		mask[row] = s.keepAntenna(a1) && s.keepAntenna(a2) && s.keepPol(pol)
	}
	return mask, nil
}

func (s Selection) keepAntenna(a int) bool {
	if len(s.SelAnts) > 0 {
		return slices.Contains(s.SelAnts, a)
	}
	return !slices.Contains(s.SkipAnts, a)
}

func (s Selection) keepPol(pol int) bool {
	if len(s.SelPols) == 0 {
		return true
	}
	for _, p := range s.SelPols {
		if PolIndex(p) == pol {
			return true
		}
	}
	return false
}

// PolIndex returns the row offset of a polarisation name, or -1.
func PolIndex(name string) int {
	for i, p := range Polarisations {
		if strings.EqualFold(p, name) {
			return i
		}
	}
	return -1
}

// RowBaseline maps a row to its antenna pair (a1 <= a2) and polarisation
// index. Baselines run (0,0), (0,1) .. (0,n-1), (1,1) .. with the four
// polarisations of each baseline in consecutive rows.
func RowBaseline(row, antennas int) (int, int, int) {
	bl, pol := row/len(Polarisations), row%len(Polarisations)
	a1 := 0
	for n := antennas; a1 < antennas && bl >= n; n-- {
		bl -= n
		a1++
	}
	return a1, a1 + bl, pol
}

// MatchesSpectrum reports whether a baseline feeds a spectrum type.
func MatchesSpectrum(spectrum string, a1, a2 int) bool {
	switch spectrum {
	case SpectrumAuto:
		return a1 == a2
	case SpectrumCross:
		return a1 != a2
	default:
		return true
	}
}
