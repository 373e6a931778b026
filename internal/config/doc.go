// Package config loads, normalizes, and validates meshforge configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GEMINI_API_KEY. A Config is resolved once per run, optionally overridden by
// CLI flags through Finalize, and then shared read-only by every stage.
package config
