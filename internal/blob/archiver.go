// Package blob optionally persists raw ingested frames to durable storage,
// independent of the in-memory frame cache used by the refill loop.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Archiver persists a raw frame payload under a name, returning a locator
// string identifying where it was stored.
type Archiver interface {
	Store(ctx context.Context, name string, data []byte) (locator string, err error)
}

// LocalArchiver writes frames to a local directory. It is the only
// Archiver implementation shipped today; a future cloud-backed archiver
// would implement the same interface.
type LocalArchiver struct {
	dir string
}

// NewLocalArchiver returns a LocalArchiver rooted at dir, creating the
// directory if it does not already exist.
func NewLocalArchiver(dir string) (*LocalArchiver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", dir, err)
	}
	return &LocalArchiver{dir: dir}, nil
}

// Dir returns the directory this archiver writes to.
func (a *LocalArchiver) Dir() string {
	return a.dir
}

// Store writes data to dir/<timestamp>_<name>, overwriting any existing
// file of the same name.
func (a *LocalArchiver) Store(ctx context.Context, name string, data []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	filename := fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102_150405.000000"), filepath.Base(name))
	path := filepath.Join(a.dir, filename)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("archive %s: %w", name, err)
	}
	return path, nil
}
