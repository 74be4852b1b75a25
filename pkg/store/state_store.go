package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/luongdev/fsmeasure/pkg/measure"
)

// ErrNotFound is returned when no snapshot exists under a key
var ErrNotFound = errors.New("snapshot not found")

// SnapshotStore persists call metrics buffers with file, Redis and in-memory backends.
// A snapshot is written as a whole: readers never observe a partial one.
type SnapshotStore interface {
	// Save stores the buffer's current view under key
	Save(ctx context.Context, key string, cm *measure.CallMetrics) error

	// Load retrieves a fully populated buffer
	Load(ctx context.Context, key string) (*measure.CallMetrics, error)

	// List returns the keys starting with prefix, sorted
	List(ctx context.Context, prefix string) ([]string, error)

	// Close closes the store connection
	Close() error
}

// LoadAll loads every snapshot whose key starts with prefix, in key order
func LoadAll(ctx context.Context, s SnapshotStore, prefix string) ([]*measure.CallMetrics, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	out := make([]*measure.CallMetrics, 0, len(keys))
	for _, key := range keys {
		cm, err := s.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %s: %w", key, err)
		}
		out = append(out, cm)
	}
	return out, nil
}

func filterSorted(keys []string, prefix string) []string {
	out := keys[:0]
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
