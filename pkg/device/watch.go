package device

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tendant/simple-claim/pkg/identity"
	"github.com/tendant/simple-claim/pkg/store"
)

// Watcher is a live view of a user's ordered device list. It follows the
// session's auth state: while nobody is logged in it idles; while a user is
// resolved it holds one store subscription on that user's claim records and
// re-aggregates the device list on every change.
type Watcher struct {
	out  chan []Info
	done chan struct{}
	once sync.Once
}

// OnDevicesChanged starts a live device list driven by the session's
// auth-state stream. The watcher never terminates on its own; callers must
// Unsubscribe, which detaches every underlying listener.
func (s *Service) OnDevicesChanged(session *identity.Session) *Watcher {
	w := &Watcher{
		out:  make(chan []Info, 1),
		done: make(chan struct{}),
	}
	go w.run(s, session.OnAuthStateChanged())
	return w
}

// Devices returns the stream of ordered device lists. The channel closes
// after Unsubscribe.
func (w *Watcher) Devices() <-chan []Info {
	return w.out
}

// Unsubscribe stops emission and detaches the auth and store listeners
func (w *Watcher) Unsubscribe() {
	w.once.Do(func() { close(w.done) })
}

func (w *Watcher) run(s *Service, authSub *identity.AuthSubscription) {
	defer close(w.out)
	defer authSub.Unsubscribe()

	ctx := context.Background()

	var storeSub *store.Subscription
	var snapshots <-chan store.Snapshot
	teardown := func() {
		if storeSub != nil {
			storeSub.Unsubscribe()
			storeSub = nil
			snapshots = nil
		}
	}
	defer teardown()

	for {
		select {
		case <-w.done:
			return

		case user, ok := <-authSub.Users():
			if !ok {
				return
			}
			// at most one store subscription open at a time: the previous
			// user's listener is detached before the next one attaches
			teardown()
			if user == nil {
				continue
			}
			sub, err := s.store.Watch(ctx, userDevicesPath(user.UID))
			if err != nil {
				slog.Error("Failed to watch claim records", "userId", user.UID, "error", err)
				continue
			}
			storeSub = sub
			snapshots = sub.Snapshots()

		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			records, err := decodeClaimRecords(snap)
			if err != nil {
				slog.Error("Failed to decode claim records", "path", snap.Path, "error", err)
				continue
			}
			devices, err := s.aggregate(ctx, records)
			if err != nil {
				slog.Error("Failed to aggregate device list", "path", snap.Path, "error", err)
				continue
			}
			w.emit(devices)
		}
	}
}

// emit delivers latest-wins: a consumer that falls behind sees the newest
// list, never a stale one
func (w *Watcher) emit(devices []Info) {
	for {
		select {
		case w.out <- devices:
			return
		default:
		}
		select {
		case <-w.out:
		default:
		}
	}
}
