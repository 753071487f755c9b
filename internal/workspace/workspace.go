// Package workspace manages the private temporary directories that hold
// redirected output files. Each workspace carries an advisory lock held for
// its lifetime so Sweep can tell abandoned directories from live ones.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Prefix names every workspace directory created by Create.
const Prefix = "procctl-"

const lockName = ".lock"

// Workspace is a uniquely named directory owned by one controller.
type Workspace struct {
	id   string
	dir  string
	lock *flock.Flock
}

// Create makes a new workspace under parent, or os.TempDir() when parent is
// empty, and takes its lock.
func Create(parent string) (*Workspace, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	id := uuid.New().String()
	dir := filepath.Join(parent, Prefix+id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	lock := flock.New(filepath.Join(dir, lockName))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		os.RemoveAll(dir)
		if err == nil {
			err = errors.New("lock already held")
		}
		return nil, fmt.Errorf("lock workspace %s: %w", dir, err)
	}
	return &Workspace{id: id, dir: dir, lock: lock}, nil
}

func (w *Workspace) ID() string  { return w.id }
func (w *Workspace) Dir() string { return w.dir }

// Path returns the path of a file named name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Remove releases the lock and deletes the directory. It is safe to call
// more than once.
func (w *Workspace) Remove() error {
	if w.lock == nil {
		return nil
	}
	unlockErr := w.lock.Unlock()
	w.lock = nil
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.dir, err)
	}
	return unlockErr
}

// Sweep removes workspaces under parent that are older than olderThan and
// whose lock is not held by a live owner. With dryRun set nothing is
// removed. It returns the directories that were, or would be, removed.
func Sweep(parent string, olderThan time.Duration, dryRun bool) ([]string, error) {
	if parent == "" {
		parent = os.TempDir()
	}
	entries, err := os.ReadDir(parent)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", parent, err)
	}
	cutoff := time.Now().Add(-olderThan)
	var removed []string
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), Prefix) {
			continue
		}
		if _, err := uuid.Parse(strings.TrimPrefix(e.Name(), Prefix)); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(parent, e.Name())
		lock := flock.New(filepath.Join(dir, lockName))
		locked, err := lock.TryLock()
		if err != nil || !locked {
			continue
		}
		if dryRun {
			_ = lock.Unlock()
			removed = append(removed, dir)
			continue
		}
		err = os.RemoveAll(dir)
		_ = lock.Unlock()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, dir)
	}
	return removed, errors.Join(errs...)
}
