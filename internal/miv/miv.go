// Package miv issues monotonically increasing values used to order events
// across nodes. State lives as marker files in a shared directory, one file
// per issued value, so the counter survives restarts and is visible to every
// node through the replicator.
//
// This is a best-effort logical clock, not a consensus primitive: two nodes
// allocating while the replicator lags can issue the same value. The merge
// layer breaks such ties deterministically.
package miv

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

const markerExt = ".miv"

// Allocator hands out increasing integers backed by marker files in dir.
type Allocator struct {
	fs  afero.Fs
	dir string

	mu   sync.Mutex
	last uint64 // highest value issued by this allocator
}

// New creates an allocator over the shared counter directory.
func New(fsys afero.Fs, dir string) (*Allocator, error) {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create miv dir: %w", err)
	}
	return &Allocator{fs: fsys, dir: dir}, nil
}

// Next returns a value strictly greater than every value this allocator has
// returned, and greater than every marker currently visible in the shared
// directory. The marker is durably created before the value is handed out.
func (a *Allocator) Next() (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seen, err := a.scan()
	if err != nil {
		return 0, err
	}

	candidate := max(seen, a.last) + 1
	for {
		if err := a.claim(candidate); err == nil {
			break
		} else if !os.IsExist(err) {
			return 0, fmt.Errorf("claim miv %d: %w", candidate, err)
		}
		// another node claimed it between scan and create
		candidate++
	}

	a.last = candidate
	return candidate, nil
}

// scan returns the highest value recorded in the shared directory.
func (a *Allocator) scan() (uint64, error) {
	entries, err := afero.ReadDir(a.fs, a.dir)
	if err != nil {
		return 0, fmt.Errorf("scan miv dir: %w", err)
	}

	var highest uint64
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, markerExt) {
			continue
		}
		value, err := strconv.ParseUint(strings.TrimSuffix(name, markerExt), 10, 64)
		if err != nil {
			// foreign junk in the shared folder, ignore
			continue
		}
		if value > highest {
			highest = value
		}
	}
	return highest, nil
}

func (a *Allocator) claim(value uint64) error {
	f, err := a.fs.OpenFile(a.markerPath(value), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (a *Allocator) markerPath(value uint64) string {
	return filepath.Join(a.dir, fmt.Sprintf("%020d%s", value, markerExt))
}
