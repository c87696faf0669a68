// Package blobstore is the persistence boundary: whole JSON objects under
// opaque slash-separated keys, last write wins.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("blobstore: object not found")

// Store is the minimal put/get surface every backend implements.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

func validateKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") || strings.Contains(key, "..") {
		return "", fmt.Errorf("key %q is invalid", key)
	}
	return key, nil
}
