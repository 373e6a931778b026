// Package services defines shared utilities consumed by the pipeline stages
// and the external capabilities they drive.
//
// Key responsibilities:
//   - Context helpers that stamp item names, stage names, run identifiers, and
//     worker slots for logging.
//   - Structured error markers plus the Wrap helper that place failures in the
//     configuration / stage / environment taxonomy.
//   - A CommandRunner abstraction so external tool execution stays testable.
//
// Use these helpers when wiring new stage logic so error classification and
// observability stay uniform across the pipeline.
package services
