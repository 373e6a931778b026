// Package outdir allocates the per-item output folders of a batch run. Every
// folder is named {base}_{8 hex digits} and created eagerly.
package outdir
