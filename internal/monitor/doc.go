// Package monitor samples process memory and CPU in the background while a
// pipeline runs.
//
// A Monitor is constructed explicitly for each run and handed to the
// executor, which starts it when the run begins and stops it on every exit
// path. Samples are timestamped in non-decreasing order. When resident
// memory passes budget × tolerance the monitor records a BudgetExceeded
// event, logs it at warn level and calls the optional handler; whether that
// ends the run is the caller's decision.
package monitor
