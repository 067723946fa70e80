package pricecache

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var (
	// ErrNotFound is returned by Store.Get for a missing key.
	ErrNotFound = errors.New("pricecache: key not found")
	// ErrQuotaExceeded is returned by Store.Set when the backend is full.
	ErrQuotaExceeded = errors.New("pricecache: quota exceeded")
)

// Store is the raw key/value backend of the cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key owned by the cache.
	Clear(ctx context.Context) error
}

// MemoryStore keeps values in process memory under a byte quota, the way
// browser storage does. A quota of 0 disables the limit.
type MemoryStore struct {
	quota int

	mu    sync.RWMutex
	items map[string][]byte
	size  int
}

func NewMemoryStore(quotaBytes int) *MemoryStore {
	return &MemoryStore{quota: quotaBytes, items: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	size := s.size + len(key) + len(value)
	if old, ok := s.items[key]; ok {
		size -= len(key) + len(old)
	}
	if s.quota > 0 && size > s.quota {
		return ErrQuotaExceeded
	}
	s.items[key] = append([]byte(nil), value...)
	s.size = size
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.items[key]; ok {
		s.size -= len(key) + len(old)
		delete(s.items, key)
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string][]byte)
	s.size = 0
	return nil
}

// Keys lists stored keys in order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
