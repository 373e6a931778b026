package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"meshforge/internal/imageio"
	"meshforge/internal/pipeline"
	"meshforge/internal/services"
)

// Discover expands path into batch items. A file must carry a supported image
// extension; a directory contributes its supported images (not recursing),
// sorted by name. Missing paths and unsupported files are configuration
// errors.
func Discover(path string) ([]pipeline.Item, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrConfiguration, "discover", path, "input path does not exist", nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "discover", path, "stat input", err)
	}
	if !info.IsDir() {
		if !imageio.IsSupported(path) {
			return nil, services.Wrap(services.ErrConfiguration, "discover", path,
				fmt.Sprintf("unsupported input type (want one of %s)", strings.Join(imageio.Extensions, ", ")), nil)
		}
		return []pipeline.Item{{Index: 0, Path: path}}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "discover", path, "read input directory", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !imageio.IsSupported(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	items := make([]pipeline.Item, len(names))
	for i, name := range names {
		items[i] = pipeline.Item{Index: i, Path: filepath.Join(path, name)}
	}
	return items, nil
}
