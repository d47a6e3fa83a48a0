package uvdata

import "context"

// Reader reads raw record ranges from an opened dataset.
type Reader interface {
	// ReadBatch loads records [start, end) into memory.
	ReadBatch(ctx context.Context, start, end int) (*Batch, error)
	Close() error
}

// Batch is the raw data of a contiguous record range. Vis and Flags are
// indexed [record][row*Channels+channel].
type Batch struct {
	Start          int
	End            int
	Rows           int
	Channels       int
	CoarseChannels int
	// Antennas is zero when the rows do not follow the baseline layout of
	// RowBaseline; every row then counts as selected and cross.
	Antennas int
	// Selected marks the rows stages consider; nil keeps every row.
	Selected []bool
	Times    []float64
	Vis      [][]complex64
	Flags    [][]bool
}

// NewBatch allocates an unflagged, zeroed batch for [start, end).
func NewBatch(start, end, rows, channels, coarse int) *Batch {
	n := end - start
	b := &Batch{
		Start:          start,
		End:            end,
		Rows:           rows,
		Channels:       channels,
		CoarseChannels: coarse,
		Times:          make([]float64, n),
		Vis:            make([][]complex64, n),
		Flags:          make([][]bool, n),
	}
	cells := rows * channels
	for i := range n {
		b.Vis[i] = make([]complex64, cells)
		b.Flags[i] = make([]bool, cells)
	}
	return b
}

// Len returns the number of records held.
func (b *Batch) Len() int {
	return len(b.Vis)
}

// Cells returns the number of visibilities per record.
func (b *Batch) Cells() int {
	return b.Rows * b.Channels
}

// SizeBytes returns the in-memory payload size of the batch.
func (b *Batch) SizeBytes() int64 {
	return int64(b.Len()) * int64(b.Cells()) * cellBytes
}

// Index returns the flat offset of (row, channel) within a record.
func (b *Batch) Index(row, channel int) int {
	return row*b.Channels + channel
}

// RowSelected reports whether stages should consider row.
func (b *Batch) RowSelected(row int) bool {
	return b.Selected == nil || b.Selected[row]
}

// RowInSpectrum reports whether row is selected and belongs to a baseline
// of the given spectrum type.
func (b *Batch) RowInSpectrum(row int, spectrum string) bool {
	if !b.RowSelected(row) {
		return false
	}
	if b.Antennas <= 0 {
		return spectrum != SpectrumAuto
	}
	a1, a2, _ := RowBaseline(row, b.Antennas)
	return MatchesSpectrum(spectrum, a1, a2)
}

// Release drops every reference to the batch payload.
func (b *Batch) Release() {
	b.Vis = nil
	b.Flags = nil
	b.Times = nil
	b.Selected = nil
}
