// Package imageio decodes input images, normalizes them to the generator's
// input size, keys out uniform backgrounds, and renders mesh previews.
//
// JPEG, PNG, BMP, WebP, and TIFF decoders are registered on import.
package imageio
