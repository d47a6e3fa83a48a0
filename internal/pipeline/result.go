package pipeline

import (
	"time"

	"github.com/mwa-utils/mwapipe/internal/engine/batch"
	"github.com/mwa-utils/mwapipe/internal/monitor"
)

// Batch statuses.
const (
	BatchCompleted    = "completed"
	BatchFailed       = "failed"
	BatchNotAttempted = "not_attempted"
	BatchSkipped      = "skipped"
)

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// StageTiming is the wall-clock time one stage spent on one batch.
type StageTiming struct {
	Stage    string        `json:"stage" yaml:"stage"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// BatchResult records the outcome of one planned batch.
type BatchResult struct {
	Index        int           `json:"index" yaml:"index"`
	Range        batch.Range   `json:"range" yaml:"range"`
	Status       string        `json:"status" yaml:"status"`
	ReadDuration time.Duration `json:"read_duration,omitempty" yaml:"read_duration,omitempty"`
	Stages       []StageTiming `json:"stages,omitempty" yaml:"stages,omitempty"`
	Duration     time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`
	FailedStage  string        `json:"failed_stage,omitempty" yaml:"failed_stage,omitempty"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is the outcome of Executor.Run. It is returned on every path,
// including failures.
type Result struct {
	Status           string
	StartedAt        time.Time
	EndedAt          time.Time
	Batches          []BatchResult
	RecordsProcessed int
	Samples          []monitor.Sample
	Events           []monitor.BudgetExceeded
	PeakRSSBytes     uint64
	Summary          *DatasetSummary
	Err              error
}

// Duration returns the wall-clock length of the run.
func (r *Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Throughput returns processed records per second of run time.
func (r *Result) Throughput() float64 {
	secs := r.Duration().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.RecordsProcessed) / secs
}

// CountByStatus returns how many batches have status.
func (r *Result) CountByStatus(status string) int {
	n := 0
	for _, b := range r.Batches {
		if b.Status == status {
			n++
		}
	}
	return n
}

// StageTotals returns the summed duration of each stage across batches,
// in first-seen order.
func (r *Result) StageTotals() []StageTiming {
	var totals []StageTiming
	index := make(map[string]int)
	for _, b := range r.Batches {
		for _, st := range b.Stages {
			i, ok := index[st.Stage]
			if !ok {
				i = len(totals)
				index[st.Stage] = i
				totals = append(totals, StageTiming{Stage: st.Stage})
			}
			totals[i].Duration += st.Duration
		}
	}
	return totals
}
