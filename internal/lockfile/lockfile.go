// Package lockfile provides a single-flight guard so two devenv
// invocations never race over the same root directory or restore
// destination, backed by gofrs/flock's advisory file locking.
package lockfile

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// PollInterval is how often TryLock polls while waiting to acquire a
// contended lock.
const PollInterval = 200 * time.Millisecond

// Lock wraps a flock.Flock rooted at a path derived from the directory
// being guarded.
type Lock struct {
	fl   *flock.Flock
	path string
}

// pathFor derives a lock file path from the directory being guarded,
// under the OS temp dir so it never becomes part of the guarded tree
// itself (a root directory is not always writable by the invoking user,
// e.g. when restoring to a fresh clone target).
func pathFor(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(abs))
	name := filepath.Base(abs) + "-" + fmt.Sprintf("%x", h.Sum64()) + ".lock"
	return filepath.Join(os.TempDir(), "devenv", name), nil
}

// Acquire blocks (bounded by ctx) until the lock guarding dir is held,
// or returns an error if ctx is done first.
func Acquire(ctx context.Context, dir string) (*Lock, error) {
	path, err := pathFor(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("preparing lock directory: %w", err)
	}

	fl := flock.New(path)
	locked, err := fl.TryLockContext(ctx, PollInterval)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock on %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("could not acquire lock on %s", dir)
	}
	return &Lock{fl: fl, path: path}, nil
}

// Release unlocks and removes the underlying lock file's handle.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
