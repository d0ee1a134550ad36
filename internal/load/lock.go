package load

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	ragerr "github.com/seongho-dev/ragload/internal/errors"
)

// DirLock guards the data directory against concurrent loaders. The
// stores assume a single writer process; a second loader corrupting
// the HNSW sidecar or the bleve segment files is worse than waiting.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock for the data directory. The lock file is
// <dir>/.load.lock.
func NewDirLock(dir string) *DirLock {
	lockPath := filepath.Join(dir, ".load.lock")
	return &DirLock{
		path:  lockPath,
		flock: flock.New(lockPath),
	}
}

// TryLock attempts to acquire the lock without blocking. A held lock
// surfaces as a store-locked error so the caller can report which
// process to wait for.
func (l *DirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return ragerr.StoreError("create lock directory", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return ragerr.StoreError("acquire data directory lock", err)
	}
	if !acquired {
		return ragerr.New(ragerr.ErrCodeStoreLocked,
			fmt.Sprintf("data directory is locked by another loader (%s)", l.path), nil)
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		l.locked = false
		return ragerr.StoreError("release data directory lock", err)
	}
	l.locked = false
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string {
	return l.path
}
