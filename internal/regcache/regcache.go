package regcache

import (
	"fmt"
	"sync"
)

// Entry is the registration summary the idempotence diff needs. The column
// store stays authoritative; the cache only saves a read on the hot path.
type Entry struct {
	Status   string  `json:"status"`
	Quantity int64   `json:"quantity"`
	Total    float64 `json:"total"`
	Version  int64   `json:"version"`
}

// Store abstracts the cache backend.
type Store interface {
	Get(orderID string) (Entry, bool)
	Put(orderID string, e Entry) error
	Range(fn func(orderID string, e Entry) error) error
	Close() error
}

// MemoryStore is a thread-safe map cache for tests and cache-less deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]Entry)}
}

func (s *MemoryStore) Get(orderID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[orderID]
	return e, ok
}

func (s *MemoryStore) Put(orderID string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[orderID] = e
	return nil
}

func (s *MemoryStore) Range(fn func(orderID string, e Entry) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.data {
		if err := fn(k, v); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
