package batch

import (
	"sync"
	"time"
)

// percentMultiplier is used to convert a ratio to percentage (0-100).
const percentMultiplier = 100

// Progress tracks execution of a plan. Records skipped on resume count as
// done but are excluded from throughput.
type Progress struct {
	// TotalRecords is the number of records in the plan.
	TotalRecords int

	// ProcessedRecords counts records that went through every stage.
	ProcessedRecords int

	// SkippedRecords counts records skipped when resuming.
	SkippedRecords int

	// TotalBatches is the number of batches in the plan.
	TotalBatches int

	// ProcessedBatches counts completed and skipped batches.
	ProcessedBatches int

	// StartTime is when execution started.
	StartTime time.Time

	// LastUpdateTime is when progress was last updated.
	LastUpdateTime time.Time

	// mu protects concurrent access to progress fields.
	mu sync.RWMutex

	// now is replaceable in tests.
	now func() time.Time
}

// NewProgress creates a progress tracker for plan.
func NewProgress(plan *Plan) *Progress {
	return newProgress(plan.TotalRecords, plan.Len(), time.Now)
}

func newProgress(totalRecords, totalBatches int, now func() time.Time) *Progress {
	start := now()
	return &Progress{
		TotalRecords:   totalRecords,
		TotalBatches:   totalBatches,
		StartTime:      start,
		LastUpdateTime: start,
		now:            now,
	}
}

// AddProcessed records a completed batch of n records.
// This method is thread-safe.
func (p *Progress) AddProcessed(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ProcessedRecords += n
	p.ProcessedBatches++
	p.LastUpdateTime = p.now()
}

// AddSkipped records a batch of n records skipped on resume.
func (p *Progress) AddSkipped(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SkippedRecords += n
	p.ProcessedBatches++
	p.LastUpdateTime = p.now()
}

// PercentComplete returns the completion percentage (0-100).
func (p *Progress) PercentComplete() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.percentCompleteUnsafe()
}

// IsComplete returns true if every record has been processed or skipped.
func (p *Progress) IsComplete() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.ProcessedRecords+p.SkippedRecords >= p.TotalRecords
}

// ElapsedTime returns the time elapsed since execution started.
func (p *Progress) ElapsedTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.now().Sub(p.StartTime)
}

// EstimatedTimeRemaining extrapolates the remaining time from the rate so
// far. Returns 0 if nothing has been processed yet.
func (p *Progress) EstimatedTimeRemaining() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.etaUnsafe()
}

// RecordsPerSecond returns the processing rate.
func (p *Progress) RecordsPerSecond() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.recordsPerSecondUnsafe()
}

// Snapshot returns a thread-safe copy of the current progress state.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		TotalRecords:           p.TotalRecords,
		ProcessedRecords:       p.ProcessedRecords,
		SkippedRecords:         p.SkippedRecords,
		TotalBatches:           p.TotalBatches,
		ProcessedBatches:       p.ProcessedBatches,
		StartTime:              p.StartTime,
		LastUpdateTime:         p.LastUpdateTime,
		PercentComplete:        p.percentCompleteUnsafe(),
		ElapsedTime:            p.now().Sub(p.StartTime),
		RecordsPerSecond:       p.recordsPerSecondUnsafe(),
		EstimatedTimeRemaining: p.etaUnsafe(),
	}
}

// ProgressSnapshot is an immutable snapshot of progress state.
type ProgressSnapshot struct {
	TotalRecords           int
	ProcessedRecords       int
	SkippedRecords         int
	TotalBatches           int
	ProcessedBatches       int
	StartTime              time.Time
	LastUpdateTime         time.Time
	PercentComplete        float64
	ElapsedTime            time.Duration
	RecordsPerSecond       float64
	EstimatedTimeRemaining time.Duration
}

// percentCompleteUnsafe calculates percent complete without locking.
// Should only be called when already holding the lock.
func (p *Progress) percentCompleteUnsafe() float64 {
	if p.TotalRecords == 0 {
		return 0
	}
	done := p.ProcessedRecords + p.SkippedRecords
	return (float64(done) / float64(p.TotalRecords)) * percentMultiplier
}

// recordsPerSecondUnsafe calculates throughput without locking.
// Should only be called when already holding the lock.
func (p *Progress) recordsPerSecondUnsafe() float64 {
	elapsed := p.now().Sub(p.StartTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(p.ProcessedRecords) / elapsed
}

// etaUnsafe extrapolates the remaining time without locking.
func (p *Progress) etaUnsafe() time.Duration {
	if p.ProcessedRecords == 0 {
		return 0
	}

	elapsed := p.now().Sub(p.StartTime)
	perRecord := elapsed / time.Duration(p.ProcessedRecords)
	remaining := p.TotalRecords - p.ProcessedRecords - p.SkippedRecords

	return perRecord * time.Duration(max(remaining, 0))
}
