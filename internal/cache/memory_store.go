package cache

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps entries in process. A positive maxBytes caps the summed
// value size; writes beyond it fail with ErrStoreFull.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string][]byte
	size     int64
	maxBytes int64
}

// NewMemoryStore creates an in-process store
func NewMemoryStore(maxBytes int64) *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string][]byte),
		maxBytes: maxBytes,
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	newSize := m.size - int64(len(m.entries[key])) + int64(len(value))
	if m.maxBytes > 0 && newSize > m.maxBytes {
		return ErrStoreFull
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.entries[key] = stored
	m.size = newSize
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if value, ok := m.entries[key]; ok {
		m.size -= int64(len(value))
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (m *MemoryStore) RemoveByPrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, value := range m.entries {
		if strings.HasPrefix(key, prefix) {
			m.size -= int64(len(value))
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}
