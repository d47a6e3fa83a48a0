// Package pipeline runs ordered processing stages over a batch plan.
//
// The Executor walks the plan strictly in order. For each range it reads
// the raw batch, applies every stage, records per-stage wall-clock time and
// releases the batch before reading the next, so at most one batch is
// resident at a time. A failing stage stops the run with a StageError that
// names the batch range and the stage; results for earlier batches are kept
// and later batches are reported as not attempted. Cancellation is honoured
// only between batches.
//
// Built-in stages are selected by name from configuration: diff,
// coarse-band, ins-flag and summary.
package pipeline
