package outdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	suffixLength = 8
	maxAttempts  = 16
)

// Allocator creates uniquely named item folders under Root.
type Allocator struct {
	Root string
	// Suffix returns the random token appended to every folder name.
	// Defaults to the first eight hex digits of a random UUID.
	Suffix func() string
}

// New returns an Allocator rooted at root.
func New(root string) *Allocator {
	return &Allocator{Root: root}
}

// BaseName derives the folder base identifier from an input path: the file
// name without extension, made filesystem safe.
func BaseName(input string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	stem = sanitize(stem)
	if stem == "" || stem == "." || stem == ".." {
		return "item"
	}
	return stem
}

// Allocate creates and returns {Root}/{base}_{suffix}. Creation is exclusive,
// so a colliding name is retried with a fresh suffix rather than reused.
func (a *Allocator) Allocate(base string) (string, error) {
	if err := os.MkdirAll(a.Root, 0o755); err != nil {
		return "", fmt.Errorf("create output root: %w", err)
	}
	suffix := a.Suffix
	if suffix == nil {
		suffix = randomSuffix
	}
	base = BaseName(base)
	for range maxAttempts {
		dir := filepath.Join(a.Root, base+"_"+suffix())
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create item folder: %w", err)
		}
	}
	return "", fmt.Errorf("allocate folder for %q: %d attempts collided", base, maxAttempts)
}

func randomSuffix() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")[:suffixLength]
}
