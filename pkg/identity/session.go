package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/tendant/simple-claim/pkg/errors"
)

// authSubscriptionBuffer bounds undelivered auth-state notifications per
// subscriber; the oldest pending value is dropped in favor of the newest
const authSubscriptionBuffer = 16

// AuthSubscription is a cancellable stream of auth-state transitions. It
// never completes on its own; callers must Unsubscribe.
type AuthSubscription struct {
	ch   chan *User
	once sync.Once
	stop func(*AuthSubscription)
}

// Users returns the stream of auth states. A nil user means logged out. The
// current state is delivered as the first value.
func (s *AuthSubscription) Users() <-chan *User {
	return s.ch
}

// Unsubscribe removes the subscriber from the session registry
func (s *AuthSubscription) Unsubscribe() {
	s.once.Do(func() { s.stop(s) })
}

// FirstLoginSubscription is a one-shot stream: it delivers the first
// resolved user and then closes.
type FirstLoginSubscription struct {
	ch     chan User
	cancel func()
}

// User returns the one-shot stream; the channel closes after the first
// resolved user is delivered
func (s *FirstLoginSubscription) User() <-chan User {
	return s.ch
}

// Unsubscribe abandons the wait before a user resolves
func (s *FirstLoginSubscription) Unsubscribe() {
	s.cancel()
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithDeviceReleaser wires the device service into account deletion, so
// deleting an account first releases every device it has claimed
func WithDeviceReleaser(releaser DeviceReleaser) SessionOption {
	return func(s *Session) {
		s.releaser = releaser
	}
}

// Session wraps the external identity provider and owns the current-user
// state. Auth-state fanout is an explicit subscriber registry with
// subscribe/unsubscribe lifecycle; there are no ambient global callbacks.
type Session struct {
	provider Provider
	releaser DeviceReleaser

	mu      sync.Mutex
	current *User
	subs    map[*AuthSubscription]struct{}
}

// NewSession creates a session over the given identity provider
func NewSession(provider Provider, opts ...SessionOption) *Session {
	s := &Session{
		provider: provider,
		subs:     make(map[*AuthSubscription]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentUser returns the most recently resolved user, or nil before the
// first login and after logout
func (s *Session) CurrentUser() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// OnAuthStateChanged subscribes to auth-state transitions. The current state
// is delivered immediately, then every login, logout, and account change.
func (s *Session) OnAuthStateChanged() *AuthSubscription {
	sub := &AuthSubscription{
		ch:   make(chan *User, authSubscriptionBuffer),
		stop: s.detach,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub] = struct{}{}
	sub.ch <- s.current
	return sub
}

// OnFirstLogin subscribes to the first resolved user and then completes
func (s *Session) OnFirstLogin() *FirstLoginSubscription {
	inner := s.OnAuthStateChanged()
	first := &FirstLoginSubscription{
		ch:     make(chan User, 1),
		cancel: inner.Unsubscribe,
	}
	go func() {
		defer inner.Unsubscribe()
		for user := range inner.Users() {
			if user != nil {
				first.ch <- *user
				close(first.ch)
				return
			}
		}
		close(first.ch)
	}()
	return first
}

func (s *Session) detach(sub *AuthSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; ok {
		delete(s.subs, sub)
		close(sub.ch)
	}
}

// setCurrent records the new auth state and notifies every subscriber
func (s *Session) setCurrent(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = user
	for sub := range s.subs {
		pushAuthState(sub.ch, user)
	}
}

// pushAuthState delivers latest-wins: a slow subscriber loses the oldest
// pending state, never the newest
func pushAuthState(ch chan *User, user *User) {
	for {
		select {
		case ch <- user:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Login authenticates with exactly one of the three recognized credential
// shapes. An unrecognized shape fails without contacting the provider.
func (s *Session) Login(ctx context.Context, credentials Credentials) (*User, error) {
	var user *User
	var err error

	switch credentials.shape() {
	case shapeCustomToken:
		user, err = s.provider.SignInWithCustomToken(ctx, credentials.CustomToken)
	case shapeProviderToken:
		user, err = s.provider.SignInWithProvider(ctx, credentials.ProviderID, credentials.IDToken)
	case shapePassword:
		user, err = s.provider.SignInWithPassword(ctx, credentials.Email, credentials.Password)
	default:
		return nil, errInvalidCredentialsShape()
	}

	if err != nil {
		return nil, err
	}

	slog.Info("User logged in", "uid", user.UID)
	s.setCurrent(user)
	return user, nil
}

// Logout signs out of the provider and clears the current user
func (s *Session) Logout(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		return err
	}
	s.setCurrent(nil)
	return nil
}

// CreateAccount registers a new account with the provider and signs it in
func (s *Session) CreateAccount(ctx context.Context, email, password string) (*User, error) {
	user, err := s.provider.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, err
	}

	slog.Info("Account created", "uid", user.UID)
	s.setCurrent(user)
	return user, nil
}

// DeleteAccount releases every device the current user has claimed and then
// deletes the identity record. The release phase is all-or-fail: any release
// failure aborts the deletion and the account is left intact; releases that
// already applied are not rolled back.
func (s *Session) DeleteAccount(ctx context.Context) error {
	user := s.CurrentUser()
	if user == nil {
		return apperrors.NotAuthenticated("cannot delete an account that is not authenticated")
	}

	if s.releaser != nil {
		if err := s.releaser.ReleaseAll(ctx, user.UID); err != nil {
			slog.Error("Failed to release devices during account deletion", "uid", user.UID, "error", err)
			return fmt.Errorf("failed to release devices: %w", err)
		}
	}

	if err := s.provider.DeleteAccount(ctx, user.UID); err != nil {
		return err
	}

	slog.Info("Account deleted", "uid", user.UID)
	s.setCurrent(nil)
	return nil
}

// CreateCustomToken mints a custom token for the current user via the
// provider's server-side token function
func (s *Session) CreateCustomToken(ctx context.Context) (string, error) {
	user := s.CurrentUser()
	if user == nil {
		return "", apperrors.NotAuthenticated("please login")
	}
	return s.provider.CreateCustomToken(ctx, user.UID)
}
