// Package deps checks external binaries on PATH and bounds the time spent
// probing them.
package deps
