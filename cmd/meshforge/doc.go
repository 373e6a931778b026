// Command meshforge turns images (or captions) into 3D meshes in batches.
//
// `meshforge generate` runs the stage pipeline over a single image or a
// directory, writing one folder per item and batch_summary.json into the
// output root. Supporting commands cover standalone background removal
// (rembg), environment diagnostics (doctor), the run ledger (history) and
// configuration management (config).
package main
