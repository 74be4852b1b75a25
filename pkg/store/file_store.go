package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/luongdev/fsmeasure/pkg/measure"
)

// SnapshotExt is the file extension of snapshot files
const SnapshotExt = ".fsmb"

type fileStore struct {
	dir string
}

// NewFileStore creates a store that writes one snapshot file per key under dir.
// Keys may contain '/' to form subdirectories.
func NewFileStore(dir string) (SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &fileStore{dir: dir}, nil
}

func (s *fileStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid snapshot key %q", key)
	}
	return filepath.Join(s.dir, clean) + SnapshotExt, nil
}

func (s *fileStore) Save(ctx context.Context, key string, cm *measure.CallMetrics) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := cm.SaveFile(path); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

func (s *fileStore) Load(ctx context.Context, key string) (*measure.CallMetrics, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", key, err)
	}
	defer f.Close()

	cm, err := measure.Decode(f, measure.WithTitle(key))
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return cm, nil
}

func (s *fileStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, SnapshotExt) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, strings.TrimSuffix(filepath.ToSlash(rel), SnapshotExt))
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	return filterSorted(keys, prefix), nil
}

func (s *fileStore) Close() error {
	return nil
}
