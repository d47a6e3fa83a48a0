package batch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// Common planning errors.
var (
	ErrPlanning            = errors.New("batch planning failed")
	ErrInvalidMaxBatchSize = errors.New("max batch records cannot be negative")
	ErrNilDescriptor       = errors.New("descriptor cannot be nil")
)

// Range is a half-open record range [Start, End).
type Range struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Len returns the number of records in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

// String renders the range as [start, end).
func (r Range) String() string {
	return "[" + strconv.Itoa(r.Start) + ", " + strconv.Itoa(r.End) + ")"
}

// Plan is an ordered partition of a dataset into batches.
type Plan struct {
	Ranges       []Range
	BatchSize    int
	TotalRecords int
	RecordBytes  int64
	Multiplier   float64
	Budget       int64
	OrderingKey  string
}

// Len returns the number of batches.
func (p *Plan) Len() int {
	return len(p.Ranges)
}

// PeakBytes returns the estimated peak memory of the largest batch.
func (p *Plan) PeakBytes() int64 {
	return int64(math.Ceil(float64(p.BatchSize) * float64(p.RecordBytes) * p.Multiplier))
}

// Fingerprint identifies the plan's partition. Two plans with equal
// fingerprints split the same dataset into the same ranges.
func (p *Plan) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%d\n%d\n%d", p.OrderingKey, p.TotalRecords, p.RecordBytes, p.BatchSize)
	return hex.EncodeToString(h.Sum(nil))
}

// PlanningError reports a budget that cannot hold a single record.
type PlanningError struct {
	RecordBytes int64
	Multiplier  float64
	Budget      int64
	// MinimumBudget is the smallest budget that admits a batch of one.
	MinimumBudget int64
}

// Error implements the error interface.
func (e *PlanningError) Error() string {
	return fmt.Sprintf("memory budget %s cannot hold one record of %s at multiplier %.2f: need at least %s",
		humanize.IBytes(uint64(max(e.Budget, 0))),
		humanize.IBytes(uint64(e.RecordBytes)),
		e.Multiplier,
		humanize.IBytes(uint64(e.MinimumBudget)))
}

// Is matches ErrPlanning.
func (e *PlanningError) Is(target error) bool {
	return target == ErrPlanning
}

// Planner computes batch plans.
type Planner struct {
	// maxBatchRecords caps the batch size; zero means no cap.
	maxBatchRecords int
}

// NewPlanner creates a planner. maxBatchRecords of zero disables the cap.
func NewPlanner(maxBatchRecords int) (*Planner, error) {
	if maxBatchRecords < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxBatchSize, maxBatchRecords)
	}
	return &Planner{maxBatchRecords: maxBatchRecords}, nil
}

// Plan partitions desc so that batchSize × recordBytes × multiplier fits
// in budget. A multiplier below 1 is treated as 1.
func (p *Planner) Plan(desc *uvdata.Descriptor, budget int64, multiplier float64) (*Plan, error) {
	if desc == nil {
		return nil, ErrNilDescriptor
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	multiplier = max(multiplier, 1)

	perRecord := float64(desc.RecordBytes) * multiplier
	if perRecord > float64(budget) {
		return nil, &PlanningError{
			RecordBytes:   desc.RecordBytes,
			Multiplier:    multiplier,
			Budget:        budget,
			MinimumBudget: int64(math.Ceil(perRecord)),
		}
	}

	size := int(math.Floor(float64(budget) / perRecord))
	size = min(max(size, 1), desc.RecordCount)
	if p.maxBatchRecords > 0 {
		size = min(size, p.maxBatchRecords)
	}

	return &Plan{
		Ranges:       Split(desc.RecordCount, size),
		BatchSize:    size,
		TotalRecords: desc.RecordCount,
		RecordBytes:  desc.RecordBytes,
		Multiplier:   multiplier,
		Budget:       budget,
		OrderingKey:  desc.OrderingKey,
	}, nil
}

// Split returns consecutive ranges of size covering [0, total). The last
// range may be shorter.
func Split(total, size int) []Range {
	if total <= 0 || size <= 0 {
		return nil
	}
	ranges := make([]Range, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		ranges = append(ranges, Range{Start: start, End: min(start+size, total)})
	}
	return ranges
}
