// Package runlock serializes overlapping pipeline runs with an advisory file lock.
package runlock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"datasender/cli/internal/errors"
)

// Lock is a held run lock.
type Lock struct {
	fl *flock.Flock
}

// TryAcquire takes the lock at path without blocking. It returns a nil Lock
// and no error when another process holds it. The lock file is kept after
// Release; only the OS-level lock matters.
func TryAcquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(errors.Lock, err, "cannot create lock directory for %q", path)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(errors.Lock, err, "cannot acquire run lock %q", path)
	}
	if !locked {
		return nil, nil
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.fl.Path() }

// Release unlocks. It is safe to call on a nil Lock.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("cannot release run lock %q: %w", l.fl.Path(), err)
	}
	return nil
}
