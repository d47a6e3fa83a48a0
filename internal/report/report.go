package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/mwa-utils/mwapipe/internal/engine/batch"
	"github.com/mwa-utils/mwapipe/internal/monitor"
	"github.com/mwa-utils/mwapipe/internal/pipeline"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// SchemaVersion is the version written into every report.
const SchemaVersion = "1.0.0"

// schemaConstraint is the range of schema versions Read accepts.
const schemaConstraint = "^1"

// ErrNothingToResume is returned by ResumePoint for a run with no
// unfinished batches.
var ErrNothingToResume = errors.New("report has no unfinished batches")

// Report is the persisted record of one run.
type Report struct {
	SchemaVersion string    `json:"schema_version" yaml:"schema_version"`
	RunID         string    `json:"run_id" yaml:"run_id"`
	ToolVersion   string    `json:"tool_version" yaml:"tool_version"`
	Status        string    `json:"status" yaml:"status"`
	StartedAt     time.Time `json:"started_at" yaml:"started_at"`
	EndedAt       time.Time `json:"ended_at" yaml:"ended_at"`
	Inputs        []string  `json:"inputs" yaml:"inputs"`

	Config     ConfigSummary      `json:"config" yaml:"config"`
	Descriptor *uvdata.Descriptor `json:"descriptor,omitempty" yaml:"descriptor,omitempty"`
	Plan       *PlanSummary       `json:"plan,omitempty" yaml:"plan,omitempty"`

	Batches          []pipeline.BatchResult `json:"batches,omitempty" yaml:"batches,omitempty"`
	RecordsProcessed int                    `json:"records_processed" yaml:"records_processed"`
	Throughput       float64                `json:"records_per_second" yaml:"records_per_second"`
	StageTotals      []pipeline.StageTiming `json:"stage_totals,omitempty" yaml:"stage_totals,omitempty"`

	PeakRSSBytes uint64                   `json:"peak_rss_bytes" yaml:"peak_rss_bytes"`
	SampleCount  int                      `json:"sample_count" yaml:"sample_count"`
	BudgetEvents []monitor.BudgetExceeded `json:"budget_exceeded,omitempty" yaml:"budget_exceeded,omitempty"`

	Summary *pipeline.DatasetSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error   string                   `json:"error,omitempty" yaml:"error,omitempty"`
}

// ConfigSummary is the subset of configuration that shaped the run.
type ConfigSummary struct {
	MemoryBudget        int64         `json:"memory_budget" yaml:"memory_budget"`
	AutoBudget          bool          `json:"auto_budget,omitempty" yaml:"auto_budget,omitempty"`
	SampleInterval      time.Duration `json:"sample_interval" yaml:"sample_interval"`
	Tolerance           float64       `json:"tolerance" yaml:"tolerance"`
	BudgetExceededFatal bool          `json:"budget_exceeded_fatal" yaml:"budget_exceeded_fatal"`
	MaxBatchRecords     int           `json:"max_batch_records,omitempty" yaml:"max_batch_records,omitempty"`
	Stages              []string      `json:"stages" yaml:"stages"`
	StartAt             int           `json:"start_at,omitempty" yaml:"start_at,omitempty"`
	SpectrumType        string        `json:"spectrum_type,omitempty" yaml:"spectrum_type,omitempty"`
	// Selection is nil when every row was kept.
	Selection *uvdata.Selection `json:"selection,omitempty" yaml:"selection,omitempty"`
	// Suffix names the run's products, e.g. ".diff.cross.12.xx".
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
}

// PlanSummary describes the batch plan without listing every range.
type PlanSummary struct {
	BatchSize    int     `json:"batch_size" yaml:"batch_size"`
	Batches      int     `json:"batches" yaml:"batches"`
	TotalRecords int     `json:"total_records" yaml:"total_records"`
	RecordBytes  int64   `json:"record_bytes" yaml:"record_bytes"`
	Multiplier   float64 `json:"multiplier" yaml:"multiplier"`
	Budget       int64   `json:"budget" yaml:"budget"`
	PeakBytes    int64   `json:"peak_bytes" yaml:"peak_bytes"`
	Fingerprint  string  `json:"fingerprint" yaml:"fingerprint"`
}

// SummarizePlan converts a plan for the report.
func SummarizePlan(p *batch.Plan) *PlanSummary {
	if p == nil {
		return nil
	}
	return &PlanSummary{
		BatchSize:    p.BatchSize,
		Batches:      p.Len(),
		TotalRecords: p.TotalRecords,
		RecordBytes:  p.RecordBytes,
		Multiplier:   p.Multiplier,
		Budget:       p.Budget,
		PeakBytes:    p.PeakBytes(),
		Fingerprint:  p.Fingerprint(),
	}
}

// Run is everything Build needs. Plan and Result are nil when the run
// failed before planning or execution.
type Run struct {
	RunID       string
	ToolVersion string
	Inputs      []string
	Config      ConfigSummary
	Descriptor  *uvdata.Descriptor
	Plan        *batch.Plan
	Result      *pipeline.Result
	Err         error
	// StartedAt is used when Result is nil.
	StartedAt time.Time
}

// Build assembles a report from a finished or failed run.
func Build(run Run) *Report {
	r := &Report{
		SchemaVersion: SchemaVersion,
		RunID:         run.RunID,
		ToolVersion:   run.ToolVersion,
		Status:        pipeline.RunFailed,
		StartedAt:     run.StartedAt,
		EndedAt:       time.Now(),
		Inputs:        run.Inputs,
		Config:        run.Config,
		Descriptor:    run.Descriptor,
		Plan:          SummarizePlan(run.Plan),
	}

	if res := run.Result; res != nil {
		r.Status = res.Status
		r.StartedAt = res.StartedAt
		r.EndedAt = res.EndedAt
		r.Batches = res.Batches
		r.RecordsProcessed = res.RecordsProcessed
		r.Throughput = res.Throughput()
		r.StageTotals = res.StageTotals()
		r.PeakRSSBytes = res.PeakRSSBytes
		r.SampleCount = len(res.Samples)
		r.BudgetEvents = res.Events
		r.Summary = res.Summary
	}

	if run.Err != nil {
		r.Error = run.Err.Error()
		if r.Status == pipeline.RunSucceeded {
			r.Status = pipeline.RunFailed
		}
	}
	return r
}

// Duration returns the wall-clock length of the run.
func (r *Report) Duration() time.Duration {
	if r.EndedAt.IsZero() || r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// CountByStatus returns how many batches have status.
func (r *Report) CountByStatus(status string) int {
	n := 0
	for _, b := range r.Batches {
		if b.Status == status {
			n++
		}
	}
	return n
}

// ResumePoint returns the index of the first batch that did not complete
// and the fingerprint of the plan it belongs to.
func (r *Report) ResumePoint() (int, string, error) {
	if r.Plan == nil {
		return 0, "", fmt.Errorf("%w: run %s has no plan", ErrNothingToResume, r.RunID)
	}
	for _, b := range r.Batches {
		if b.Status == pipeline.BatchFailed || b.Status == pipeline.BatchNotAttempted {
			return b.Index, r.Plan.Fingerprint, nil
		}
	}
	return 0, "", fmt.Errorf("%w: run %s", ErrNothingToResume, r.RunID)
}
