package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore implements Store using the in-memory engine plus JSON
// persistence in a data directory. Intended for single-process deployments
// and local development.
type FileStore struct {
	mem      *InMemStore
	filePath string
}

// NewFileStore creates a file-backed store, loading any existing data
func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &FileStore{
		mem:      NewInMemStore(),
		filePath: filepath.Join(dataDir, "store.json"),
	}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return s, nil
}

// Get reads the value at path
func (s *FileStore) Get(ctx context.Context, path string) (Snapshot, error) {
	return s.mem.Get(ctx, path)
}

// Update applies all entries atomically and persists the result
func (s *FileStore) Update(ctx context.Context, updates map[string]interface{}) error {
	s.mem.mu.Lock()
	before := s.exportLocked()
	changed := s.mem.applyLocked(updates)
	if err := s.saveLocked(); err != nil {
		s.mem.entries = before
		s.mem.mu.Unlock()
		return fmt.Errorf("failed to save: %w", err)
	}
	s.mem.mu.Unlock()

	s.mem.notifyWatchers(changed)
	return nil
}

// UpdateIfAbsent applies updates only when guardPath holds no value
func (s *FileStore) UpdateIfAbsent(ctx context.Context, guardPath string, updates map[string]interface{}) error {
	guardPath = normalizePath(guardPath)

	s.mem.mu.Lock()
	if s.mem.snapshotLocked(guardPath).Exists() {
		s.mem.mu.Unlock()
		return ErrPathExists
	}
	before := s.exportLocked()
	changed := s.mem.applyLocked(updates)
	if err := s.saveLocked(); err != nil {
		s.mem.entries = before
		s.mem.mu.Unlock()
		return fmt.Errorf("failed to save: %w", err)
	}
	s.mem.mu.Unlock()

	s.mem.notifyWatchers(changed)
	return nil
}

// Watch subscribes to changes at path
func (s *FileStore) Watch(ctx context.Context, path string) (*Subscription, error) {
	return s.mem.Watch(ctx, path)
}

// Close detaches all watchers
func (s *FileStore) Close() error {
	return s.mem.Close()
}

func (s *FileStore) exportLocked() map[string]interface{} {
	entries := make(map[string]interface{}, len(s.mem.entries))
	for path, value := range s.mem.entries {
		entries[path] = value
	}
	return entries
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	entries := make(map[string]interface{})
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("corrupt store file %s: %w", s.filePath, err)
	}
	s.mem.entries = entries

	// Restore the server clock so timestamps stay monotonic across restarts
	for _, value := range entries {
		if stamp, ok := value.(float64); ok && int64(stamp) > s.mem.lastStamp {
			s.mem.lastStamp = int64(stamp)
		}
	}
	return nil
}

func (s *FileStore) saveLocked() error {
	data, err := json.MarshalIndent(s.mem.entries, "", "  ")
	if err != nil {
		return err
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.filePath)
}
