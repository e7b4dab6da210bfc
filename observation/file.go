package observation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore keeps state in a single JSON document mapping "<item>|<location>"
// to its record. Writes go through a temp file and rename. There is no file
// locking: one running instance per state file.
type FileStore struct {
	*table
	path   string
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by path. Call Load before use.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{table: newTable(), path: path, logger: logger}
}

// Load reads the state file. A missing file is an empty store; a corrupt
// file is logged and treated as empty.
func (s *FileStore) Load(_ context.Context) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.reset(make(map[Key]Record))
		return nil
	}
	if err != nil {
		s.logger.Warn("observation: read state failed, starting empty", "path", s.path, "error", err)
		s.reset(make(map[Key]Record))
		return nil
	}

	var raw map[string]Record
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("observation: corrupt state, starting empty", "path", s.path, "error", err)
		s.reset(make(map[Key]Record))
		return nil
	}

	records := make(map[Key]Record, len(raw))
	for k, r := range raw {
		key, ok := ParseKey(k)
		if !ok {
			s.logger.Warn("observation: skipping malformed key", "key", k)
			continue
		}
		if !r.Status.Valid() {
			s.logger.Warn("observation: skipping record with unknown status", "key", k, "status", r.Status)
			continue
		}
		records[key] = r
	}
	s.reset(records)
	s.logger.Debug("observation: state loaded", "path", s.path, "records", len(records))
	return nil
}

// DiffAndSave implements Store.
func (s *FileStore) DiffAndSave(key Key, rec Record) *Transition {
	return s.diffAndSave(key, rec)
}

// Get implements Store.
func (s *FileStore) Get(key Key) (Record, bool) { return s.get(key) }

// Transitions implements Store.
func (s *FileStore) Transitions() []Transition { return s.drain() }

// Save writes the whole map as indented JSON.
func (s *FileStore) Save(_ context.Context) error {
	data, err := json.MarshalIndent(s.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("observation: marshal: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("observation: mkdir: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("observation: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("observation: rename: %w", err)
	}
	s.takeDirty()
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }
