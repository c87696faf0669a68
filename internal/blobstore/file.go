package blobstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps objects as files under a root directory. Meant for local
// development; the key's slash segments become subdirectories.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	if s == nil {
		return fmt.Errorf("file store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("file store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, filepath.FromSlash(key)))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, nil
}
