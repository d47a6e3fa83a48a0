// Package report builds, persists and renders the run report.
//
// A report records everything needed to audit or resume a run: the input
// files, the dataset descriptor, the batch plan and its fingerprint, the
// outcome and stage timings of every batch, resource samples and budget
// warnings. Reports are written as JSON, YAML or NDJSON and may be
// compressed with gzip, zstd or lz4, chosen from the file extension.
package report
