// Package convert turns the intermediate OBJ mesh into the requested output
// format. Backends are probed once at startup into an immutable Registry; the
// Converter tries the available ones in priority order, stops at the first
// success, and degrades to keeping the OBJ when none succeeds.
package convert
