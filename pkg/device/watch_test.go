package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-claim/pkg/identity"
	"github.com/tendant/simple-claim/pkg/store"
)

// awaitList reads emissions until one satisfies match or the deadline hits.
// Emissions are latest-wins, so intermediate lists may be skipped.
func awaitList(t *testing.T, w *Watcher, match func([]Info) bool) []Info {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case devices, ok := <-w.Devices():
			require.True(t, ok, "device stream closed before a matching list arrived")
			if match(devices) {
				return devices
			}
		case <-deadline:
			t.Fatal("timed out waiting for device list")
		}
	}
}

func newWatchFixture(t *testing.T) (store.Store, *Service, *identity.Session) {
	t.Helper()
	st := store.NewInMemStore()
	svc := NewService(st)
	session := identity.NewSession(identity.NewLocalProvider("watch-test-secret"))
	return st, svc, session
}

func TestWatcherEmitsOnLoginAndClaim(t *testing.T) {
	st, svc, session := newWatchFixture(t)
	ctx := context.Background()

	seedDeviceInfo(t, st, deviceA, "Alpha")
	seedDeviceInfo(t, st, deviceB, "Beta")

	w := svc.OnDevicesChanged(session)
	defer w.Unsubscribe()

	user, err := session.CreateAccount(ctx, "watch@example.com", "pwd12345")
	require.NoError(t, err)

	// login with nothing claimed yet delivers the empty list
	awaitList(t, w, func(devices []Info) bool { return len(devices) == 0 })

	require.NoError(t, svc.Claim(ctx, user.UID, deviceA))
	devices := awaitList(t, w, func(devices []Info) bool { return len(devices) == 1 })
	assert.Equal(t, "Alpha", devices[0].Nickname)

	require.NoError(t, svc.Claim(ctx, user.UID, deviceB))
	devices = awaitList(t, w, func(devices []Info) bool { return len(devices) == 2 })
	assert.Equal(t, deviceA, devices[0].DeviceID)
	assert.Equal(t, deviceB, devices[1].DeviceID)
}

func TestWatcherFollowsUserSwitch(t *testing.T) {
	st, svc, session := newWatchFixture(t)
	ctx := context.Background()

	seedDeviceInfo(t, st, deviceA, "Alpha")
	seedDeviceInfo(t, st, deviceB, "Beta")

	alice, err := session.CreateAccount(ctx, "alice@example.com", "pwd12345")
	require.NoError(t, err)
	require.NoError(t, svc.Claim(ctx, alice.UID, deviceA))

	bob, err := session.CreateAccount(ctx, "bob@example.com", "pwd12345")
	require.NoError(t, err)
	require.NoError(t, svc.Claim(ctx, bob.UID, deviceB))

	// bob is the current user when the watcher attaches
	w := svc.OnDevicesChanged(session)
	defer w.Unsubscribe()

	devices := awaitList(t, w, func(devices []Info) bool { return len(devices) == 1 })
	assert.Equal(t, deviceB, devices[0].DeviceID)

	_, err = session.Login(ctx, identity.Credentials{Email: "alice@example.com", Password: "pwd12345"})
	require.NoError(t, err)

	devices = awaitList(t, w, func(devices []Info) bool {
		return len(devices) == 1 && devices[0].DeviceID == deviceA
	})
	assert.Equal(t, "Alpha", devices[0].Nickname)
}

func TestWatcherIdleAfterLogout(t *testing.T) {
	st, svc, session := newWatchFixture(t)
	ctx := context.Background()

	seedDeviceInfo(t, st, deviceA, "Alpha")

	user, err := session.CreateAccount(ctx, "idle@example.com", "pwd12345")
	require.NoError(t, err)

	w := svc.OnDevicesChanged(session)
	defer w.Unsubscribe()
	awaitList(t, w, func(devices []Info) bool { return len(devices) == 0 })

	require.NoError(t, session.Logout(ctx))
	time.Sleep(50 * time.Millisecond)

	// changes while logged out produce no emission
	require.NoError(t, svc.Claim(ctx, user.UID, deviceA))
	select {
	case devices, ok := <-w.Devices():
		if ok {
			t.Fatalf("unexpected emission while logged out: %v", devices)
		}
		t.Fatal("device stream closed unexpectedly")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcherUnsubscribeClosesStream(t *testing.T) {
	_, svc, session := newWatchFixture(t)

	w := svc.OnDevicesChanged(session)
	w.Unsubscribe()
	w.Unsubscribe() // idempotent

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-w.Devices():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("device stream did not close after unsubscribe")
		}
	}
}
