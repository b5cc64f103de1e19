package downloader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mediagrab/pkg/config"
	"mediagrab/pkg/storage"
)

// ErrExists is returned by Reserve when the skip policy finds a complete
// file at the destination
var ErrExists = errors.New("destination already exists")

// Reservation is an exclusive claim on one destination path. Release must
// be called exactly once.
type Reservation struct {
	Path string
	// placeholder is set when Reserve created an empty file to hold a
	// renamed slot
	placeholder bool
	release     func()
}

// Release gives the path back. A placeholder that was never filled is
// removed.
func (r *Reservation) Release() {
	if r.placeholder && !storage.NonEmpty(r.Path) {
		os.Remove(r.Path)
	}
	r.release()
}

// Reserver serialises existence checks and writes per destination path
type Reserver struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

// NewReserver creates an empty reserver
func NewReserver() *Reserver {
	return &Reserver{locks: make(map[string]*pathLock)}
}

func (r *Reserver) lock(path string) func() {
	r.mu.Lock()
	l, ok := r.locks[path]
	if !ok {
		l = &pathLock{}
		r.locks[path] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, path)
		}
		r.mu.Unlock()
	}
}

// Reserve claims dest under policy:
//   - skip: lock dest; ErrExists when it already holds data
//   - overwrite: lock dest
//   - rename: atomically create the first free name among dest,
//     dest_1, dest_2, ... and lock it
func (r *Reserver) Reserve(dest, policy string) (*Reservation, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	switch policy {
	case config.OverwriteReplace:
		return &Reservation{Path: dest, release: r.lock(dest)}, nil
	case config.OverwriteRename:
		return r.reserveFree(dest)
	default:
		unlock := r.lock(dest)
		if storage.NonEmpty(dest) {
			unlock()
			return nil, ErrExists
		}
		return &Reservation{Path: dest, release: unlock}, nil
	}
}

func (r *Reserver) reserveFree(dest string) (*Reservation, error) {
	ext := filepath.Ext(dest)
	stem := strings.TrimSuffix(dest, ext)
	for i := 0; i < 10000; i++ {
		candidate := dest
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		unlock := r.lock(candidate)
		f, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return &Reservation{Path: candidate, placeholder: true, release: unlock}, nil
		}
		unlock()
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to reserve %s: %w", candidate, err)
		}
	}
	return nil, fmt.Errorf("no free name for %s", dest)
}
