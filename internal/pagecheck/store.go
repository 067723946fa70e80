package pagecheck

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown report ids.
var ErrNotFound = errors.New("pagecheck: report not found")

// Store keeps reports and the markup they were computed from on disk, as
// <id>.json and <id>.html.
type Store struct {
	dir string
	mu  sync.RWMutex
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid report id: %q", id)
	}
	return nil
}

// Save writes the markup first so a listed report always has it.
func (s *Store) Save(r *Report, html string) error {
	if err := validateID(r.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	htmlPath := filepath.Join(s.dir, r.ID+".html")
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("report store: write html: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		_ = os.Remove(htmlPath)
		return fmt.Errorf("report store: marshal: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, r.ID+".json"), data, 0o644); err != nil {
		_ = os.Remove(htmlPath)
		return fmt.Errorf("report store: write report: %w", err)
	}
	return nil
}

func (s *Store) Get(id string) (*Report, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("report store: read: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("report store: unmarshal: %w", err)
	}
	return &r, nil
}

// List returns all reports, newest first. Unreadable files are skipped.
func (s *Store) List() ([]*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("report store: glob: %w", err)
	}
	reports := make([]*Report, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var r Report
		if err := json.Unmarshal(data, &r); err != nil {
			slog.Debug("skipping unreadable report", "path", path, "error", err)
			continue
		}
		reports = append(reports, &r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CheckedAt.After(reports[j].CheckedAt)
	})
	return reports, nil
}

func (s *Store) ReadHTML(id string) (string, error) {
	if err := validateID(id); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, id+".html"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return "", fmt.Errorf("report store: read html: %w", err)
	}
	return string(data), nil
}

// Delete removes a report and its markup.
func (s *Store) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(filepath.Join(s.dir, id+".html")); err != nil {
		slog.Debug("report html cleanup failed", "id", id, "error", err)
	}
	return os.Remove(filepath.Join(s.dir, id+".json"))
}
