package pricecache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var keyRe = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)

// FileStore keeps one JSON file per key in a directory, so cached prices
// survive restarts. A quota of 0 disables the limit.
type FileStore struct {
	dir   string
	quota int64
	mu    sync.RWMutex
}

// NewFileStore creates a FileStore and ensures the directory exists.
func NewFileStore(dir string, quotaBytes int64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("price file store: mkdir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, quota: quotaBytes}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if !keyRe.MatchString(key) {
		return "", fmt.Errorf("invalid cache key: %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("price file store: read %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quota > 0 {
		used, err := s.usedLocked(p)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > s.quota {
			return ErrQuotaExceeded
		}
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("price file store: write %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			slog.Debug("price file store temp cleanup failed", "key", key, "error", rmErr)
		}
		return fmt.Errorf("price file store: rename %s: %w", key, err)
	}
	return nil
}

// usedLocked sums the size of every stored file except skip.
func (s *FileStore) usedLocked(skip string) (int64, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("price file store: glob: %w", err)
	}
	var total int64
	for _, m := range matches {
		if m == skip {
			continue
		}
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("price file store: delete %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("price file store: glob: %w", err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			slog.Debug("price file store clear failed", "path", m, "error", err)
		}
	}
	return nil
}
