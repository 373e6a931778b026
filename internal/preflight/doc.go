// Package preflight provides readiness checks for the accelerator, external
// binaries, remote services, and filesystem paths meshforge depends on.
//
// These checks run in two contexts:
//   - The generate command calls RequireAccelerator before any item is
//     processed; a missing GPU is an environment error and stops the run.
//   - The doctor command renders RunAll and CheckSystemDeps as a table.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
