package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/luongdev/fsmeasure/pkg/measure"
)

type memoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewMemoryStore creates a store that keeps encoded snapshots in memory
func NewMemoryStore() SnapshotStore {
	return &memoryStore{snapshots: make(map[string][]byte)}
}

func (s *memoryStore) Save(ctx context.Context, key string, cm *measure.CallMetrics) error {
	data, err := cm.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	s.mu.Lock()
	s.snapshots[key] = data
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Load(ctx context.Context, key string) (*measure.CallMetrics, error) {
	s.mu.RLock()
	data, ok := s.snapshots[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return measure.UnmarshalBinary(data, measure.WithTitle(key))
}

func (s *memoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.snapshots))
	for k := range s.snapshots {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	return filterSorted(keys, prefix), nil
}

func (s *memoryStore) Close() error {
	return nil
}
