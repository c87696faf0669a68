package blobstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is the in-process backend used by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	if s == nil {
		return fmt.Errorf("memory store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := validateKey(key)
	if err != nil {
		return err
	}
	cp := append([]byte(nil), value...)
	s.mu.Lock()
	s.items[key] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("memory store is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := validateKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	value, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

// Len reports the number of stored objects; test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
