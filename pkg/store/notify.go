package store

import (
	"sync"
)

// subscriptionBuffer bounds how many undelivered snapshots a subscriber can
// hold. When a slow subscriber falls behind, the oldest pending snapshot is
// dropped in favor of the newest; only the latest state matters.
const subscriptionBuffer = 8

// Subscription is a cancellable change-notification stream for one path.
type Subscription struct {
	path string
	ch   chan Snapshot
	once sync.Once
	stop func(*Subscription)
}

// Snapshots returns the stream of snapshots. The channel is closed after
// Unsubscribe.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.ch
}

// Unsubscribe stops emission and detaches the underlying listener. It is
// safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() { s.stop(s) })
}

// notifier is an in-process fanout registry for store watchers. All pushes
// and detaches run under its lock, so a closed subscription channel is never
// written to.
type notifier struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[*Subscription]struct{})}
}

// subscribe registers a watcher for path and delivers the current snapshot
// as its first emission
func (n *notifier) subscribe(path string, current Snapshot) *Subscription {
	sub := &Subscription{
		path: path,
		ch:   make(chan Snapshot, subscriptionBuffer),
		stop: n.detach,
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[sub] = struct{}{}
	sub.ch <- current
	return sub
}

func (n *notifier) detach(sub *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[sub]; ok {
		delete(n.subs, sub)
		close(sub.ch)
	}
}

// notify pushes a fresh snapshot to every subscriber whose watched path is
// related to one of the changed paths. read must return the current
// snapshot for a watched path.
func (n *notifier) notify(changed []string, read func(path string) Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		for _, path := range changed {
			if pathsRelated(sub.path, path) {
				push(sub.ch, read(sub.path))
				break
			}
		}
	}
}

// close detaches every subscriber
func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		delete(n.subs, sub)
		close(sub.ch)
	}
}

// push delivers latest-wins: if the buffer is full, the oldest pending
// snapshot is discarded to make room.
func push(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
