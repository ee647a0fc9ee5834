// Package artifacts materializes binary payloads as short-lived local
// files. Every handle is released unconditionally after a fixed delay,
// bounding the space retained by results the user never collected.
package artifacts

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a handle stays valid after creation.
const DefaultTTL = 60 * time.Second

// Handle is a process-local reference to one stored artifact. It stays
// addressable until released, either explicitly or by the scheduled
// expiry.
type Handle struct {
	ID       string
	Path     string
	Filename string

	mu       sync.Mutex
	released bool
	timer    *time.Timer
}

// URL returns the handle as a locally addressable reference.
func (h *Handle) URL() string { return "file://" + h.Path }

// Release invalidates the handle and deletes the backing file.
// Idempotent; the scheduled expiry and an explicit call may race.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true
	if h.timer != nil {
		h.timer.Stop()
	}
	return os.RemoveAll(filepath.Dir(h.Path))
}

// Released reports whether the handle has been invalidated.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Store writes artifacts under a root directory, one subdirectory per
// handle.
type Store struct {
	rootDir string
	ttl     time.Duration
}

// NewStore creates the root directory if needed. An empty rootDir
// places artifacts under the system temp dir; ttl <= 0 means DefaultTTL.
func NewStore(rootDir string, ttl time.Duration) (*Store, error) {
	if rootDir == "" {
		rootDir = filepath.Join(os.TempDir(), "ebookctl-artifacts")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{rootDir: rootDir, ttl: ttl}, nil
}

// Put stores data under filename and schedules the handle's release
// after the store's TTL, regardless of whether the caller ever reads it.
func (s *Store) Put(filename string, data []byte) (*Handle, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.rootDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	dst := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(dst)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		return nil, err
	}

	h := &Handle{ID: id, Path: dst, Filename: filepath.Base(filename)}
	h.timer = time.AfterFunc(s.ttl, func() { _ = h.Release() })
	return h, nil
}
