package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TempFiles assigns scratch filenames, and deletes old ones.
// Every artifact is expected to be removed by its owner (see With). The periodic sweep
// only catches files that were orphaned by a crash.
type TempFiles struct {
	Root string

	lock            sync.Mutex // guards access to all internal state
	lastCleanup     time.Time
	cleanupInterval time.Duration
	maxAge          time.Duration
	counter         int64
}

// Wipes/recreates the root directory
func NewTempFiles(root string) (*TempFiles, error) {
	if err := os.MkdirAll(root, 0777); err != nil {
		return nil, fmt.Errorf("Failed to create temporary file directory '%v': %w", root, err)
	}

	all, _ := filepath.Glob(filepath.Join(root, "*"))
	for _, fn := range all {
		os.Remove(fn)
	}
	return &TempFiles{
		Root:            root,
		lastCleanup:     time.Now(),
		cleanupInterval: 1 * time.Minute,
		maxAge:          10 * time.Minute,
	}, nil
}

// Get a new temporary filename, ending with suffix (eg ".jpg").
// Names are unique within this process.
func (t *TempFiles) Get(suffix string) string {
	t.lock.Lock()
	defer t.lock.Unlock()
	now := time.Now()
	if now.Sub(t.lastCleanup) > t.cleanupInterval {
		t.lastCleanup = now
		go t.cleanOld(now.Add(-t.maxAge))
	}
	t.counter++
	return filepath.Join(t.Root, fmt.Sprintf("%d-%d%v", now.UnixNano(), t.counter, suffix))
}

// With copies r into a new temporary file, calls f with its path, and deletes the file
// afterwards, regardless of whether f succeeds.
func (t *TempFiles) With(suffix string, r io.Reader, f func(path string) error) error {
	fn := t.Get(suffix)
	defer os.Remove(fn)
	file, err := os.Create(fn)
	if err != nil {
		return fmt.Errorf("Failed to create temporary file: %w", err)
	}
	_, err = io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("Failed to write temporary file: %w", err)
	}
	return f(fn)
}

// Count returns the number of files currently in the temp directory
func (t *TempFiles) Count() int {
	all, _ := filepath.Glob(filepath.Join(t.Root, "*"))
	return len(all)
}

// this must not touch any shared mutable state, or take the lock
func (t *TempFiles) cleanOld(threshold time.Time) {
	all, _ := filepath.Glob(filepath.Join(t.Root, "*"))
	for _, fn := range all {
		name := filepath.Base(fn)
		stamp, _, _ := strings.Cut(name, "-")
		createdAt, err := strconv.ParseInt(stamp, 10, 64)
		if err != nil || createdAt < threshold.UnixNano() {
			os.Remove(fn)
		}
	}
}
