package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sakif/time-estimator/internal/model"
)

// ErrCorrupt is returned by Cache.Load when the cached value exists but
// cannot be decoded.
var ErrCorrupt = errors.New("session: cached user is corrupt")

// Cache is the durable single-slot store for the signed-in user.
type Cache interface {
	// Load returns nil, nil when nothing is cached.
	Load() (*model.User, error)
	Save(u *model.User) error
	// Clear removes the cached value. Clearing an empty cache is not an error.
	Clear() error
}

// FileCache keeps the user as one JSON file.
//
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so a crash mid-write leaves either the old file or the
// new one, never a truncated mix. The file is created 0600: it holds a
// session token.
type FileCache struct {
	path string
}

func NewFileCache(path string) *FileCache {
	return &FileCache{path: path}
}

func (c *FileCache) Path() string { return c.path }

func (c *FileCache) Load() (*model.User, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: reading cache %s: %w", c.path, err)
	}

	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("%w: user has no id", ErrCorrupt)
	}
	return &u, nil
}

func (c *FileCache) Save(u *model.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("session: encoding user: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("session: creating cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: writing cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: syncing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: closing cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("session: replacing cache: %w", err)
	}
	return nil
}

func (c *FileCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: removing cache: %w", err)
	}
	return nil
}
