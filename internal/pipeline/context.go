package pipeline

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"meshforge/internal/mesh"
)

// Item is one unit of batch work: an input image, or a caption when Path is
// empty. Items are immutable once enqueued.
type Item struct {
	Index   int
	Path    string
	Caption string
}

// Name returns the identifier used in logs, preview file names and summaries.
func (i Item) Name() string {
	if i.Path != "" {
		return filepath.Base(i.Path)
	}
	return "caption"
}

// Stem returns Name without its extension.
func (i Item) Stem() string {
	name := i.Name()
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ItemContext is the mutable working state of one item. It is created by
// Runner.Run and discarded when Run returns; nothing in it survives into the
// next item.
type ItemContext struct {
	Item  Item
	Dir   string
	Image image.Image
	Mesh  *mesh.Mesh

	timings     map[string]float64
	outputs     Outputs
	removedBG   bool
	tempFiles   []string
	diagnostics []string
}

func newItemContext(item Item, dir string) *ItemContext {
	return &ItemContext{Item: item, Dir: dir, timings: make(map[string]float64)}
}

// AddTiming accumulates d under key. Repeated keys add up; they never overwrite.
func (c *ItemContext) AddTiming(key string, d time.Duration) {
	c.timings[key] += d.Seconds()
}

// Timing returns the accumulated seconds recorded under key.
func (c *ItemContext) Timing(key string) float64 {
	return c.timings[key]
}

// Timings returns a copy of every recorded timing.
func (c *ItemContext) Timings() map[string]float64 {
	out := make(map[string]float64, len(c.timings))
	for k, v := range c.timings {
		out[k] = v
	}
	return out
}

// TrackTemp registers a file removed by Cleanup.
func (c *ItemContext) TrackTemp(path string) {
	c.tempFiles = append(c.tempFiles, path)
}

// Cleanup removes every tracked temp file that still exists.
func (c *ItemContext) Cleanup() {
	for _, path := range c.tempFiles {
		_ = os.Remove(path)
	}
	c.tempFiles = nil
}

func (c *ItemContext) path(name string) string {
	return filepath.Join(c.Dir, name)
}
