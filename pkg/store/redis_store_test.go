package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRedisStore_UpdateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping redis test in short mode")
	}

	s := setupRedisStore(t)
	ctx := context.Background()

	deviceID := uuid.New().String()
	pointerPath := "devices/" + deviceID + "/status/claimedBy"
	recordPath := "users/test-user/devices/" + deviceID

	err := s.Update(ctx, map[string]interface{}{
		pointerPath: "test-user",
		recordPath:  map[string]interface{}{"claimedOn": ServerTimestamp},
	})
	require.NoError(t, err)
	defer s.Update(ctx, map[string]interface{}{pointerPath: nil, recordPath: nil})

	snap, err := s.Get(ctx, pointerPath)
	require.NoError(t, err)
	assert.Equal(t, "test-user", snap.Value)

	snap, err = s.Get(ctx, recordPath)
	require.NoError(t, err)
	require.True(t, snap.Exists())
}

func TestRedisStore_UpdateIfAbsent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping redis test in short mode")
	}

	s := setupRedisStore(t)
	ctx := context.Background()

	deviceID := uuid.New().String()
	guard := "devices/" + deviceID + "/status/claimedBy"

	err := s.UpdateIfAbsent(ctx, guard, map[string]interface{}{guard: "user-a"})
	require.NoError(t, err)
	defer s.Update(ctx, map[string]interface{}{guard: nil})

	err = s.UpdateIfAbsent(ctx, guard, map[string]interface{}{guard: "user-b"})
	assert.ErrorIs(t, err, ErrPathExists)
}

func TestRedisStore_WatchDeliversChange(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping redis test in short mode")
	}

	s := setupRedisStore(t)
	ctx := context.Background()

	userID := "watch-user-" + uuid.New().String()
	basePath := "users/" + userID + "/devices"

	sub, err := s.Watch(ctx, basePath)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := <-sub.Snapshots()
	assert.False(t, snap.Exists())

	// give the pub/sub subscription a moment to establish
	time.Sleep(100 * time.Millisecond)

	deviceID := uuid.New().String()
	err = s.Update(ctx, map[string]interface{}{
		basePath + "/" + deviceID: map[string]interface{}{"claimedOn": ServerTimestamp},
	})
	require.NoError(t, err)
	defer s.Update(ctx, map[string]interface{}{basePath: nil})

	select {
	case snap = <-sub.Snapshots():
		assert.True(t, snap.Exists())
	case <-time.After(5 * time.Second):
		t.Fatal("expected a snapshot after a change under the watched path")
	}
}
