package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrPathExists is returned by UpdateIfAbsent when the guard path already
// holds a value.
var ErrPathExists = errors.New("store: path already holds a value")

// serverTimestamp is the type of the ServerTimestamp sentinel.
type serverTimestamp struct{}

// ServerTimestamp is a placeholder value. Any occurrence of it in an update
// payload is replaced with a store-assigned millisecond timestamp at write
// time, so claim ordering is trustworthy even under client clock skew.
var ServerTimestamp = serverTimestamp{}

// Snapshot is the value read from a path at a point in time. Value is nil
// when nothing is stored at the path; interior paths materialize as nested
// map[string]interface{} of their descendants.
type Snapshot struct {
	Path  string
	Value interface{}
}

// Exists reports whether the path held a value when the snapshot was taken
func (s Snapshot) Exists() bool {
	return s.Value != nil
}

// Decode unmarshals the snapshot value into dst via JSON
func (s Snapshot) Decode(dst interface{}) error {
	if s.Value == nil {
		return fmt.Errorf("no value at path %s", s.Path)
	}
	data, err := json.Marshal(s.Value)
	if err != nil {
		return fmt.Errorf("failed to encode value at %s: %w", s.Path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode value at %s: %w", s.Path, err)
	}
	return nil
}

// Store is a hierarchical key-value store addressed by /-separated path
// strings. It is the persistence contract of the device-claim core: point
// reads, atomic multi-location writes and deletes, a conditional write for
// check-and-claim, and change-notification subscriptions per path.
type Store interface {
	// Get reads the value at path. Reading an interior path assembles a
	// nested map of everything stored beneath it. A missing path is not an
	// error; the returned snapshot reports Exists() == false.
	Get(ctx context.Context, path string) (Snapshot, error)

	// Update applies all entries as one indivisible operation: either every
	// location is written or none is. A nil value deletes the path and its
	// entire subtree.
	Update(ctx context.Context, updates map[string]interface{}) error

	// UpdateIfAbsent applies updates atomically only when guardPath holds no
	// value, and fails with ErrPathExists otherwise. The check and the write
	// are a single atomic step.
	UpdateIfAbsent(ctx context.Context, guardPath string, updates map[string]interface{}) error

	// Watch subscribes to changes at path. The subscription emits the
	// current snapshot immediately and a fresh snapshot whenever the path,
	// an ancestor, or a descendant changes. Unsubscribe detaches the
	// underlying listener.
	Watch(ctx context.Context, path string) (*Subscription, error)

	// Close releases backend connections and detaches all listeners
	Close() error
}

// normalizePath strips leading and trailing slashes
func normalizePath(path string) string {
	return strings.Trim(path, "/")
}

// pathsRelated reports whether one path is equal to, an ancestor of, or a
// descendant of the other. A change at either end of such a pair is visible
// to a watcher of the other.
func pathsRelated(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// flatten expands nested map values into one leaf entry per scalar, keyed by
// the full path, replacing the ServerTimestamp sentinel with stamp. Arrays
// and scalars are stored as leaves; only maps introduce deeper paths.
func flatten(path string, value interface{}, stamp int64, out map[string]interface{}) {
	switch v := value.(type) {
	case serverTimestamp:
		out[path] = stamp
	case map[string]interface{}:
		for key, child := range v {
			flatten(path+"/"+key, child, stamp, out)
		}
	default:
		out[path] = value
	}
}

// assemble builds the snapshot value for base from flat leaf entries. An
// exact leaf wins; otherwise every entry below base is folded into a nested
// map keyed by the remaining path segments.
func assemble(base string, entries map[string]interface{}) interface{} {
	if v, ok := entries[base]; ok {
		return v
	}
	var tree map[string]interface{}
	prefix := base + "/"
	if base == "" {
		prefix = ""
	}
	for path, v := range entries {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if tree == nil {
			tree = make(map[string]interface{})
		}
		segments := strings.Split(strings.TrimPrefix(path, prefix), "/")
		node := tree
		for _, seg := range segments[:len(segments)-1] {
			child, ok := node[seg].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				node[seg] = child
			}
			node = child
		}
		node[segments[len(segments)-1]] = v
	}
	if tree == nil {
		return nil
	}
	return tree
}
