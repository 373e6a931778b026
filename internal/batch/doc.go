// Package batch runs many items through the stage runner with per-item fault
// isolation.
//
// The Orchestrator owns a batch run: it takes the output root lock, allocates
// a unique folder per item, drives a fixed pool of workers (each with its own
// capability.Set) and aggregates ItemResults into batch_summary.json. One
// item's failure never aborts the run. Cancellation stops new items from
// starting; items already running are finished first.
package batch
