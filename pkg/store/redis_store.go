package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const (
	// redisKeyPrefix namespaces store entries inside a shared redis instance
	redisKeyPrefix = "store:"
	// redisChannel carries changed paths to watchers, across processes
	redisChannel = "store:changes"
)

// RedisStore implements Store on Redis. One key per leaf path, atomic
// multi-location writes via MULTI/EXEC, conditional claims via WATCH, and
// change notifications via pub/sub.
type RedisStore struct {
	client *redis.Client

	listenOnce   sync.Once
	listenCancel context.CancelFunc
	pubsub       *redis.PubSub
	watchers     *notifier
}

// NewRedisStore creates a redis-backed store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:   client,
		watchers: newNotifier(),
	}
}

func redisKey(path string) string {
	return redisKeyPrefix + path
}

// Get reads the value at path
func (s *RedisStore) Get(ctx context.Context, path string) (Snapshot, error) {
	path = normalizePath(path)

	entries := make(map[string]interface{})

	raw, err := s.client.Get(ctx, redisKey(path)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err == nil {
		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return Snapshot{}, fmt.Errorf("corrupt entry at %s: %w", path, err)
		}
		entries[path] = value
	}

	childKeys, err := s.scanKeys(ctx, redisKey(path)+"/*")
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	if len(childKeys) > 0 {
		values, err := s.client.MGet(ctx, childKeys...).Result()
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to read children of %s: %w", path, err)
		}
		for i, key := range childKeys {
			raw, ok := values[i].(string)
			if !ok {
				continue // expired between SCAN and MGET
			}
			var value interface{}
			if err := json.Unmarshal([]byte(raw), &value); err != nil {
				return Snapshot{}, fmt.Errorf("corrupt entry at %s: %w", key, err)
			}
			entries[strings.TrimPrefix(key, redisKeyPrefix)] = value
		}
	}

	return Snapshot{Path: path, Value: assemble(path, entries)}, nil
}

// Update applies all entries in one MULTI/EXEC transaction
func (s *RedisStore) Update(ctx context.Context, updates map[string]interface{}) error {
	stamp, err := s.serverStamp(ctx)
	if err != nil {
		return err
	}
	staleKeys, err := s.staleKeys(ctx, updates)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.queueUpdates(ctx, pipe, updates, staleKeys, stamp)
	})
	if err != nil {
		return fmt.Errorf("failed to apply update: %w", err)
	}
	return nil
}

// UpdateIfAbsent applies updates only when guardPath holds no value. The
// guard key is WATCHed, so a concurrent write to it aborts the transaction.
func (s *RedisStore) UpdateIfAbsent(ctx context.Context, guardPath string, updates map[string]interface{}) error {
	guardPath = normalizePath(guardPath)

	stamp, err := s.serverStamp(ctx)
	if err != nil {
		return err
	}
	staleKeys, err := s.staleKeys(ctx, updates)
	if err != nil {
		return err
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, redisKey(guardPath)).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return ErrPathExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.queueUpdates(ctx, pipe, updates, staleKeys, stamp)
		})
		return err
	}, redisKey(guardPath))

	if errors.Is(err, ErrPathExists) {
		return ErrPathExists
	}
	if errors.Is(err, redis.TxFailedErr) {
		// the guard key changed under us: somebody else claimed it
		return ErrPathExists
	}
	if err != nil {
		return fmt.Errorf("failed to apply conditional update: %w", err)
	}
	return nil
}

func (s *RedisStore) queueUpdates(ctx context.Context, pipe redis.Pipeliner, updates map[string]interface{}, staleKeys []string, stamp int64) error {
	if len(staleKeys) > 0 {
		pipe.Del(ctx, staleKeys...)
	}
	for path, value := range updates {
		path = normalizePath(path)
		if value != nil {
			leaves := make(map[string]interface{})
			flatten(path, value, stamp, leaves)
			for leafPath, leafValue := range leaves {
				raw, err := json.Marshal(leafValue)
				if err != nil {
					return fmt.Errorf("failed to encode value at %s: %w", leafPath, err)
				}
				pipe.Set(ctx, redisKey(leafPath), raw, 0)
			}
		}
		pipe.Publish(ctx, redisChannel, path)
	}
	return nil
}

// staleKeys collects every existing key under the updated paths; they are
// deleted inside the transaction so a rewrite fully replaces the subtree
func (s *RedisStore) staleKeys(ctx context.Context, updates map[string]interface{}) ([]string, error) {
	var keys []string
	for path := range updates {
		path = normalizePath(path)
		keys = append(keys, redisKey(path))
		children, err := s.scanKeys(ctx, redisKey(path)+"/*")
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", path, err)
		}
		keys = append(keys, children...)
	}
	return keys, nil
}

func (s *RedisStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// serverStamp reads the redis server clock in milliseconds
func (s *RedisStore) serverStamp(ctx context.Context) (int64, error) {
	now, err := s.client.Time(ctx).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read server clock: %w", err)
	}
	return now.UnixMilli(), nil
}

// Watch subscribes to changes at path. The first Watch call opens the
// pub/sub connection.
func (s *RedisStore) Watch(ctx context.Context, path string) (*Subscription, error) {
	path = normalizePath(path)

	current, err := s.Get(ctx, path)
	if err != nil {
		return nil, err
	}

	s.listenOnce.Do(func() {
		listenCtx, cancel := context.WithCancel(context.Background())
		s.listenCancel = cancel
		s.pubsub = s.client.Subscribe(listenCtx, redisChannel)
		go s.listen(listenCtx)
	})

	return s.watchers.subscribe(path, current), nil
}

func (s *RedisStore) listen(ctx context.Context) {
	for {
		select {
		case msg, ok := <-s.pubsub.Channel():
			if !ok {
				return
			}
			s.dispatch(ctx, msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (s *RedisStore) dispatch(ctx context.Context, changedPath string) {
	s.watchers.notify([]string{changedPath}, func(path string) Snapshot {
		snap, err := s.Get(ctx, path)
		if err != nil {
			slog.Error("Failed to re-read watched path", "path", path, "error", err)
			return Snapshot{Path: path}
		}
		return snap
	})
}

// Close stops the pub/sub listener and detaches all watchers. The client is
// owned by the caller and is not closed here.
func (s *RedisStore) Close() error {
	if s.listenCancel != nil {
		s.listenCancel()
	}
	if s.pubsub != nil {
		s.pubsub.Close()
	}
	s.watchers.close()
	return nil
}
