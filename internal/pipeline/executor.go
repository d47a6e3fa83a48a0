package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/mwa-utils/mwapipe/internal/engine/batch"
	"github.com/mwa-utils/mwapipe/internal/logging"
	"github.com/mwa-utils/mwapipe/internal/monitor"
	"github.com/mwa-utils/mwapipe/internal/uvdata"
)

// ProgressCallback is invoked after every completed or skipped batch.
type ProgressCallback func(snapshot batch.ProgressSnapshot)

// Options configures an Executor.
type Options struct {
	// Monitor is started at the beginning of Run and stopped on every exit
	// path. Nil disables resource monitoring.
	Monitor *monitor.Monitor

	// ReleaseMemory returns freed memory to the OS after every batch.
	ReleaseMemory bool

	// StartAt skips batches before this index, recording them as skipped.
	StartAt int

	// ResumeFingerprint, when set, must equal the plan's fingerprint.
	ResumeFingerprint string

	// FailOnBudgetExceeded stops the run at the next batch boundary after
	// the monitor reports a BudgetExceeded event. An overrun during the
	// last batch fails the run once it completes.
	FailOnBudgetExceeded bool

	// Selection restricts the rows stages consider in every batch.
	Selection uvdata.Selection

	// OnProgress receives progress after each batch.
	OnProgress ProgressCallback

	// Metrics receives per-batch and per-run observations when non-nil.
	Metrics *Metrics
}

// Executor applies stages to every batch of a plan, one batch at a time.
type Executor struct {
	stages []Stage
	opts   Options
}

// NewExecutor validates stages and options.
func NewExecutor(stages []Stage, opts Options) (*Executor, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("stages[%d]: %w", i, ErrNilStage)
		}
	}
	if opts.StartAt < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidStartAt, opts.StartAt)
	}
	return &Executor{stages: stages, opts: opts}, nil
}

// Stages returns the executor's stages in order.
func (e *Executor) Stages() []Stage {
	return e.stages
}

// Run executes plan against reader. The returned Result is never nil; on
// failure it holds every batch outcome up to the failure and the error is
// also returned. Possible errors are *StageError, a context error when
// cancelled between batches, and monitor.BudgetExceeded when budget
// overruns are fatal.
func (e *Executor) Run(ctx context.Context, plan *batch.Plan, reader uvdata.Reader) (*Result, error) {
	log := logging.ComponentLogger(*logging.FromContext(ctx), "executor")

	res := &Result{
		Status:    RunSucceeded,
		StartedAt: time.Now(),
		Batches:   make([]BatchResult, plan.Len()),
	}
	for i, r := range plan.Ranges {
		res.Batches[i] = BatchResult{Index: i, Range: r, Status: BatchNotAttempted}
	}

	if err := e.checkResume(plan); err != nil {
		res.Status = RunFailed
		res.Err = err
		res.EndedAt = time.Now()
		return res, err
	}

	if mon := e.opts.Monitor; mon != nil {
		// Sampling covers the in-flight batch after cancellation; the
		// deferred Stop ends it.
		mon.Start(context.WithoutCancel(ctx))
		defer func() {
			res.Samples = mon.Stop()
			res.Events = mon.Events()
			if peak, ok := mon.Peak(); ok {
				res.PeakRSSBytes = peak.RSSBytes
			}
			e.finish(res, log)
		}()
	} else {
		defer e.finish(res, log)
	}

	log.Info().
		Int("batches", plan.Len()).
		Int("batch_size", plan.BatchSize).
		Int("records", plan.TotalRecords).
		Int("start_at", e.opts.StartAt).
		Strs("stages", StageNames(e.stages)).
		Msg("pipeline run started")

	progress := batch.NewProgress(plan)
	// The in-flight batch always runs to completion or failure.
	batchCtx := context.WithoutCancel(ctx)

	for i, r := range plan.Ranges {
		if i < e.opts.StartAt {
			res.Batches[i].Status = BatchSkipped
			progress.AddSkipped(r.Len())
			e.notify(progress)
			continue
		}

		if err := ctx.Err(); err != nil {
			log.Warn().Int("batch", i).Msg("run cancelled at batch boundary")
			res.Status = RunCancelled
			res.Err = err
			break
		}

		if err := e.budgetError(); err != nil {
			log.Error().Err(err).Int("batch", i).Msg("stopping on memory budget overrun")
			res.Status = RunFailed
			res.Err = fmt.Errorf("stopped before batch %d: %w", i, err)
			break
		}

		br, err := e.runBatch(batchCtx, i, r, reader, log)
		res.Batches[i] = br
		e.opts.Metrics.observeBatch(br)
		if err != nil {
			log.Error().Err(err).Int("batch", i).Str("stage", br.FailedStage).Msg("batch failed")
			res.Status = RunFailed
			res.Err = err
			break
		}

		res.RecordsProcessed += r.Len()
		progress.AddProcessed(r.Len())
		e.notify(progress)
	}

	if res.Status == RunSucceeded {
		if err := e.budgetError(); err != nil {
			log.Error().Err(err).Msg("memory budget overrun during the run")
			res.Status = RunFailed
			res.Err = fmt.Errorf("budget exceeded during the run: %w", err)
		}
	}

	res.Summary = e.summary()
	return res, res.Err
}

func (e *Executor) checkResume(plan *batch.Plan) error {
	if e.opts.StartAt > plan.Len() {
		return fmt.Errorf("%w: %d of %d batches", ErrInvalidStartAt, e.opts.StartAt, plan.Len())
	}
	if e.opts.ResumeFingerprint != "" && e.opts.ResumeFingerprint != plan.Fingerprint() {
		return fmt.Errorf("%w: fingerprint %.12s, plan %.12s",
			ErrIncompatiblePlan, e.opts.ResumeFingerprint, plan.Fingerprint())
	}
	return nil
}

// runBatch loads one range, applies every stage and releases the batch.
func (e *Executor) runBatch(
	ctx context.Context,
	index int,
	r batch.Range,
	reader uvdata.Reader,
	log zerolog.Logger,
) (BatchResult, error) {
	br := BatchResult{Index: index, Range: r, Status: BatchFailed}
	start := time.Now()

	b, err := reader.ReadBatch(ctx, r.Start, r.End)
	if err == nil {
		b.Selected, err = e.opts.Selection.RowMask(b.Antennas)
		if err != nil {
			b.Release()
			err = fmt.Errorf("selecting rows: %w", err)
		}
	}
	br.ReadDuration = time.Since(start)
	if err != nil {
		br.FailedStage = ReadStage
		br.Error = err.Error()
		br.Duration = time.Since(start)
		return br, &StageError{BatchIndex: index, Range: r, Stage: ReadStage, Err: err}
	}
	defer e.release(b)

	for _, s := range e.stages {
		stageStart := time.Now()
		err = s.Process(ctx, b)
		br.Stages = append(br.Stages, StageTiming{Stage: s.Name(), Duration: time.Since(stageStart)})
		if err != nil {
			br.FailedStage = s.Name()
			br.Error = err.Error()
			br.Duration = time.Since(start)
			return br, &StageError{BatchIndex: index, Range: r, Stage: s.Name(), Err: err}
		}
	}

	br.Status = BatchCompleted
	br.Duration = time.Since(start)
	log.Debug().
		Int("batch", index).
		Stringer("range", r).
		Dur("duration", br.Duration).
		Msg("batch completed")
	return br, nil
}

func (e *Executor) release(b *uvdata.Batch) {
	b.Release()
	if e.opts.ReleaseMemory {
		debug.FreeOSMemory()
	}
}

// budgetError returns the first BudgetExceeded event when overruns are
// fatal.
func (e *Executor) budgetError() error {
	if !e.opts.FailOnBudgetExceeded || e.opts.Monitor == nil {
		return nil
	}
	events := e.opts.Monitor.Events()
	if len(events) == 0 {
		return nil
	}
	return events[0]
}

func (e *Executor) notify(p *batch.Progress) {
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(p.Snapshot())
	}
}

func (e *Executor) summary() *DatasetSummary {
	for _, s := range e.stages {
		if sum, ok := s.(Summarizer); ok {
			out := sum.Summary()
			return &out
		}
	}
	return nil
}

func (e *Executor) finish(res *Result, log zerolog.Logger) {
	res.EndedAt = time.Now()
	e.opts.Metrics.observeResult(res)

	ev := log.Info()
	if res.Err != nil && !errors.Is(res.Err, context.Canceled) {
		ev = log.Error().Err(res.Err)
	}
	ev.Str("status", res.Status).
		Int("records", res.RecordsProcessed).
		Int("completed", res.CountByStatus(BatchCompleted)).
		Int("not_attempted", res.CountByStatus(BatchNotAttempted)).
		Uint64("peak_rss_bytes", res.PeakRSSBytes).
		Float64("records_per_second", res.Throughput()).
		Msg("pipeline run finished")
}
