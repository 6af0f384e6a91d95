package blob

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps objects in memory. It backs local development runs and
// tests where no bucket is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// PutObject stores the content and returns a memory:// URI.
func (s *MemoryStore) PutObject(_ context.Context, path string, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object body: %w", err)
	}
	s.mu.Lock()
	s.data[path] = append([]byte(nil), b...)
	s.mu.Unlock()
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns a stored object, reporting whether it exists.
func (s *MemoryStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[path]
	return b, ok
}

// Len reports how many objects the store holds.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
