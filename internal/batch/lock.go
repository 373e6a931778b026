package batch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"meshforge/internal/services"
)

// LockFileName is held in the output root for the duration of a run.
const LockFileName = ".meshforge.lock"

// acquireLock takes the output root lock without blocking. A second run
// against the same root fails with an environment error.
func acquireLock(root string) (*flock.Flock, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, services.Wrap(services.ErrEnvironment, "batch", "lock", "create output root", err)
	}
	lock := flock.New(filepath.Join(root, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrEnvironment, "batch", "lock", "acquire run lock", err)
	}
	if !ok {
		return nil, services.Wrap(services.ErrEnvironment, "batch", "lock",
			fmt.Sprintf("another meshforge run is using %s", root), nil)
	}
	return lock, nil
}
