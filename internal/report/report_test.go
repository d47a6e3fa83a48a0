package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwa-utils/mwapipe/internal/engine/batch"
	"github.com/mwa-utils/mwapipe/internal/monitor"
	"github.com/mwa-utils/mwapipe/internal/pipeline"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

func samplePlan() *batch.Plan {
	return &batch.Plan{
		Ranges:       batch.Split(200, 10),
		BatchSize:    10,
		TotalRecords: 200,
		RecordBytes:  1 << 20,
		Multiplier:   2,
		Budget:       100 << 20,
		OrderingKey:  "1065880128/gps=1065880128/files=24",
	}
}

func failedResult() *pipeline.Result {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batches := make([]pipeline.BatchResult, 20)
	for i := range batches {
		batches[i] = pipeline.BatchResult{
			Index:  i,
			Range:  batch.Range{Start: i * 10, End: (i + 1) * 10},
			Status: pipeline.BatchNotAttempted,
		}
	}
	for i := range 6 {
		batches[i].Status = pipeline.BatchCompleted
		batches[i].Stages = []pipeline.StageTiming{
			{Stage: "diff", Duration: 100 * time.Millisecond},
			{Stage: "summary", Duration: 20 * time.Millisecond},
		}
		batches[i].Duration = 150 * time.Millisecond
	}
	batches[6].Status = pipeline.BatchFailed
	batches[6].FailedStage = "diff"
	batches[6].Error = "boom"

	return &pipeline.Result{
		Status:           pipeline.RunFailed,
		StartedAt:        start,
		EndedAt:          start.Add(2 * time.Second),
		Batches:          batches,
		RecordsProcessed: 60,
		Samples:          make([]monitor.Sample, 3),
		Events: []monitor.BudgetExceeded{{
			Sample: monitor.Sample{Time: start, RSSBytes: 200 << 20},
			Budget: 100 << 20, Tolerance: 1.1,
		}},
		PeakRSSBytes: 200 << 20,
		Summary:      &pipeline.DatasetSummary{Records: 60, Visibilities: 6000, Flagged: 600, FlaggedFraction: 0.1},
	}
}

func sampleReport() *Report {
	return Build(Run{
		RunID:       "01JNM7W6ZK8S3X1R2P4Q5T6V7W",
		ToolVersion: "v0.3.0",
		Inputs:      []string{"/data/1065880128.metafits"},
		Config: ConfigSummary{
			MemoryBudget:   100 << 20,
			SampleInterval: time.Second,
			Tolerance:      1.1,
			Stages:         []string{"diff", "summary"},
		},
		Descriptor: &uvdata.Descriptor{
			Format: uvdata.FormatGPUBoxFloat,
			Observations: []uvdata.Observation{{
				ObsID:    "1065880128",
				Metafits: "/data/1065880128.metafits",
				Files:    []string{"/data/1065880128_20131015134830_gpubox01_00.fits"},
				Records:  200,
				StartGPS: 1065880128,
			}},
			RecordCount:     200,
			RecordBytes:     1 << 20,
			Rows:            8256,
			Channels:        768,
			ChannelsPerFile: 32,
			IntegrationTime: 2,
			BitPix:          -32,
		},
		Plan:   samplePlan(),
		Result: failedResult(),
		Err:    errors.New(`stage "diff" failed on batch 6 [60, 70): boom`),
	})
}

func TestBuild(t *testing.T) {
	r := sampleReport()

	assert.Equal(t, SchemaVersion, r.SchemaVersion)
	assert.Equal(t, pipeline.RunFailed, r.Status)
	assert.Equal(t, 2*time.Second, r.Duration())
	assert.InDelta(t, 30.0, r.Throughput, 1e-9)
	assert.Equal(t, 3, r.SampleCount)
	assert.Len(t, r.BudgetEvents, 1)
	assert.Equal(t, 6, r.CountByStatus(pipeline.BatchCompleted))
	assert.Equal(t, 13, r.CountByStatus(pipeline.BatchNotAttempted))
	assert.Contains(t, r.Error, "boom")

	require.NotNil(t, r.Plan)
	assert.Equal(t, 20, r.Plan.Batches)
	assert.Equal(t, int64(20<<20), r.Plan.PeakBytes)
	assert.Equal(t, samplePlan().Fingerprint(), r.Plan.Fingerprint)

	require.Len(t, r.StageTotals, 2)
	assert.Equal(t, 600*time.Millisecond, r.StageTotals[0].Duration)
}

func TestBuild_WithoutResult(t *testing.T) {
	start := time.Now().Add(-time.Second)
	r := Build(Run{RunID: "x", StartedAt: start, Err: errors.New("budget too small")})

	assert.Equal(t, pipeline.RunFailed, r.Status)
	assert.Nil(t, r.Plan)
	assert.Empty(t, r.Batches)
	assert.Equal(t, "budget too small", r.Error)
	assert.Positive(t, r.Duration())
}

func TestBuild_ErrorOverridesSuccess(t *testing.T) {
	res := &pipeline.Result{Status: pipeline.RunSucceeded}
	r := Build(Run{Result: res, Err: errors.New("writing metrics")})
	assert.Equal(t, pipeline.RunFailed, r.Status)
}

func TestResumePoint(t *testing.T) {
	r := sampleReport()
	idx, fp, err := r.ResumePoint()
	require.NoError(t, err)
	assert.Equal(t, 6, idx)
	assert.Equal(t, r.Plan.Fingerprint, fp)

	for i := range r.Batches {
		r.Batches[i].Status = pipeline.BatchCompleted
	}
	_, _, err = r.ResumePoint()
	require.ErrorIs(t, err, ErrNothingToResume)

	r.Plan = nil
	_, _, err = r.ResumePoint()
	require.ErrorIs(t, err, ErrNothingToResume)
}
