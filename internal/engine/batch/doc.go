// Package batch partitions a dataset into memory-bounded record ranges.
//
// A Planner turns a dataset descriptor, a memory budget and the largest
// stage memory multiplier into a Plan: consecutive half-open ranges that
// cover every record exactly once. The batch size is
//
//	floor(budget / (recordBytes * multiplier))
//
// clamped to [1, records] and optionally capped. When a single record does
// not fit the budget, planning fails with a PlanningError that carries the
// minimum budget that would succeed. Planning does no I/O.
//
// Progress tracks execution of a plan for progress callbacks.
package batch
