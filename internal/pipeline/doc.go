// Package pipeline runs a single item through the fixed stage sequence:
// load, text-to-image, background removal, shape generation, raw export,
// post-processing, mesh export, texturing and previews.
//
// Every stage is timed into the item's ItemContext. A failure in any stage
// before previews aborts the item; preview failures are logged and ignored.
// stats.json is written last, so its presence marks a completed item.
package pipeline
