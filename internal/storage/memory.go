package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an ObjectStore backed by a map. Used for tests and local runs.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUpload, err)
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[bucket+"/"+key] = buf
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	s.mu.RLock()
	data, ok := s.objects[bucket+"/"+key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (s *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	delete(s.objects, bucket+"/"+key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
