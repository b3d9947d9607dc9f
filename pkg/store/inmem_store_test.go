package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemStore_GetMissingPath(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	snap, err := s.Get(ctx, "devices/unknown/status/claimedBy")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestInMemStore_UpdateAndAssemble(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	err := s.Update(ctx, map[string]interface{}{
		"devices/d1/status/claimedBy": "user-1",
		"users/user-1/devices/d1": map[string]interface{}{
			"claimedOn": int64(100),
		},
	})
	require.NoError(t, err)

	// Leaf read
	snap, err := s.Get(ctx, "devices/d1/status/claimedBy")
	require.NoError(t, err)
	require.True(t, snap.Exists())
	assert.Equal(t, "user-1", snap.Value)

	// Interior read assembles descendants
	snap, err = s.Get(ctx, "users/user-1/devices")
	require.NoError(t, err)
	require.True(t, snap.Exists())

	var records map[string]struct {
		ClaimedOn int64 `json:"claimedOn"`
	}
	require.NoError(t, snap.Decode(&records))
	assert.Len(t, records, 1)
	assert.Equal(t, int64(100), records["d1"].ClaimedOn)
}

func TestInMemStore_NilValueDeletesSubtree(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	err := s.Update(ctx, map[string]interface{}{
		"users/u/devices/d1": map[string]interface{}{"claimedOn": int64(1)},
		"users/u/devices/d2": map[string]interface{}{"claimedOn": int64(2)},
	})
	require.NoError(t, err)

	err = s.Update(ctx, map[string]interface{}{
		"users/u/devices": nil,
	})
	require.NoError(t, err)

	snap, err := s.Get(ctx, "users/u/devices")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestInMemStore_ServerTimestamp(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	before := time.Now().UnixMilli()
	err := s.Update(ctx, map[string]interface{}{
		"users/u/devices/d1": map[string]interface{}{"claimedOn": ServerTimestamp},
	})
	require.NoError(t, err)

	snap, err := s.Get(ctx, "users/u/devices/d1/claimedOn")
	require.NoError(t, err)
	require.True(t, snap.Exists())

	stamp, ok := snap.Value.(int64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, stamp, before)
}

func TestInMemStore_ServerTimestampsIncrease(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	// Writes land faster than the millisecond clock ticks; stamps must
	// still be strictly increasing so claim order stays trustworthy
	var stamps []int64
	for i := 0; i < 5; i++ {
		err := s.Update(ctx, map[string]interface{}{
			"probe": map[string]interface{}{"at": ServerTimestamp},
		})
		require.NoError(t, err)

		snap, err := s.Get(ctx, "probe/at")
		require.NoError(t, err)
		stamps = append(stamps, snap.Value.(int64))
	}

	for i := 1; i < len(stamps); i++ {
		assert.Greater(t, stamps[i], stamps[i-1])
	}
}

func TestInMemStore_UpdateIfAbsent(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	guard := "devices/d1/status/claimedBy"
	err := s.UpdateIfAbsent(ctx, guard, map[string]interface{}{
		guard: "user-1",
	})
	require.NoError(t, err)

	// A second conditional write on the same guard fails and mutates nothing
	err = s.UpdateIfAbsent(ctx, guard, map[string]interface{}{
		guard: "user-2",
	})
	assert.ErrorIs(t, err, ErrPathExists)

	snap, err := s.Get(ctx, guard)
	require.NoError(t, err)
	assert.Equal(t, "user-1", snap.Value)
}

func TestInMemStore_WatchEmitsCurrentSnapshotFirst(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	err := s.Update(ctx, map[string]interface{}{
		"users/u/devices/d1": map[string]interface{}{"claimedOn": int64(1)},
	})
	require.NoError(t, err)

	sub, err := s.Watch(ctx, "users/u/devices")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	snap := <-sub.Snapshots()
	assert.True(t, snap.Exists())
}

func TestInMemStore_WatchSeesDescendantChange(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	sub, err := s.Watch(ctx, "users/u/devices")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// drain the initial (empty) snapshot
	snap := <-sub.Snapshots()
	assert.False(t, snap.Exists())

	err = s.Update(ctx, map[string]interface{}{
		"users/u/devices/d1": map[string]interface{}{"claimedOn": int64(1)},
	})
	require.NoError(t, err)

	select {
	case snap = <-sub.Snapshots():
		assert.True(t, snap.Exists())
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot after a descendant change")
	}
}

func TestInMemStore_WatchIgnoresUnrelatedChange(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	sub, err := s.Watch(ctx, "users/u/devices")
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-sub.Snapshots()

	err = s.Update(ctx, map[string]interface{}{
		"users/other/devices/d9": map[string]interface{}{"claimedOn": int64(1)},
	})
	require.NoError(t, err)

	select {
	case <-sub.Snapshots():
		t.Fatal("unrelated change must not notify this watcher")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInMemStore_UnsubscribeClosesStream(t *testing.T) {
	s := NewInMemStore()
	ctx := context.Background()

	sub, err := s.Watch(ctx, "users/u/devices")
	require.NoError(t, err)
	<-sub.Snapshots()

	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	_, open := <-sub.Snapshots()
	assert.False(t, open)

	// A write after unsubscribe must not panic or deliver
	err = s.Update(ctx, map[string]interface{}{
		"users/u/devices/d1": map[string]interface{}{"claimedOn": int64(1)},
	})
	require.NoError(t, err)
}
