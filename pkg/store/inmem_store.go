package store

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// InMemStore implements Store using an in-memory map of flattened leaf
// entries. It is the reference engine and the one unit tests run against.
type InMemStore struct {
	entries   map[string]interface{}
	lastStamp int64
	mu        sync.Mutex
	watchers  *notifier
}

// NewInMemStore creates a new in-memory store
func NewInMemStore() *InMemStore {
	return &InMemStore{
		entries:  make(map[string]interface{}),
		watchers: newNotifier(),
	}
}

// Get reads the value at path
func (s *InMemStore) Get(ctx context.Context, path string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(path), nil
}

// Update applies all entries under one lock, so readers observe either the
// whole write or none of it
func (s *InMemStore) Update(ctx context.Context, updates map[string]interface{}) error {
	s.mu.Lock()
	changed := s.applyLocked(updates)
	s.mu.Unlock()

	s.notifyWatchers(changed)
	return nil
}

// UpdateIfAbsent applies updates only when guardPath holds no value. The
// check and the write share the store lock, making check-and-claim a single
// atomic step.
func (s *InMemStore) UpdateIfAbsent(ctx context.Context, guardPath string, updates map[string]interface{}) error {
	guardPath = normalizePath(guardPath)

	s.mu.Lock()
	if s.snapshotLocked(guardPath).Exists() {
		s.mu.Unlock()
		return ErrPathExists
	}
	changed := s.applyLocked(updates)
	s.mu.Unlock()

	s.notifyWatchers(changed)
	return nil
}

// Watch subscribes to changes at path, emitting the current snapshot first
func (s *InMemStore) Watch(ctx context.Context, path string) (*Subscription, error) {
	path = normalizePath(path)
	s.mu.Lock()
	current := s.snapshotLocked(path)
	s.mu.Unlock()
	return s.watchers.subscribe(path, current), nil
}

// Close detaches all watchers
func (s *InMemStore) Close() error {
	s.watchers.close()
	return nil
}

func (s *InMemStore) snapshotLocked(path string) Snapshot {
	path = normalizePath(path)
	return Snapshot{Path: path, Value: assemble(path, s.entries)}
}

// applyLocked writes every update entry and returns the list of changed
// paths. Nil values delete the path and its subtree.
func (s *InMemStore) applyLocked(updates map[string]interface{}) []string {
	stamp := s.nextStampLocked()
	changed := make([]string, 0, len(updates))
	for path, value := range updates {
		path = normalizePath(path)
		changed = append(changed, path)
		s.deleteSubtreeLocked(path)
		if value == nil {
			continue
		}
		flatten(path, value, stamp, s.entries)
	}
	return changed
}

func (s *InMemStore) deleteSubtreeLocked(path string) {
	delete(s.entries, path)
	prefix := path + "/"
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
}

// nextStampLocked assigns the server timestamp for one write. Strictly
// increasing across writes even when the wall clock stalls or jumps back.
func (s *InMemStore) nextStampLocked() int64 {
	stamp := time.Now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	return stamp
}

func (s *InMemStore) notifyWatchers(changed []string) {
	if len(changed) == 0 {
		return
	}
	slog.Debug("Store changed", "paths", changed)
	s.watchers.notify(changed, func(path string) Snapshot {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.snapshotLocked(path)
	})
}
