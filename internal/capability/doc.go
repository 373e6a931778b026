// Package capability defines the pluggable capabilities a stage pipeline
// needs (shape generation, background removal, caption-to-image, texturing,
// mesh cleanup) and the implementations selectable from configuration:
// built-in relief/border/projection generators, external commands, a remote
// shape service, and the Gemini image API.
package capability
