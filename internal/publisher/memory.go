package publisher

import (
	"context"
	"fmt"
	"sync"
)

// Memory records published payloads for inspection in tests.
type Memory struct {
	mu       sync.RWMutex
	payloads []any
}

// NewMemory returns an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the payload and returns a pseudo ID.
func (m *Memory) Publish(_ context.Context, payload any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	return fmt.Sprintf("memory-%d", len(m.payloads)), nil
}

// Payloads returns a copy of everything published so far.
func (m *Memory) Payloads() []any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]any, len(m.payloads))
	copy(out, m.payloads)
	return out
}
