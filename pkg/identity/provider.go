package identity

import (
	"context"
)

// User is an identity-provider-issued principal
type User struct {
	// UID is the stable, provider-assigned opaque user id
	UID string `json:"uid"`
	// Email is optional; custom-token and external-provider sign-ins may
	// not carry one
	Email string `json:"email,omitempty"`
}

// Provider is the external identity provider consumed by the session. It
// issues and verifies credentials; this module never implements its own
// authentication protocol. Errors returned by a Provider are passed through
// to callers unchanged.
type Provider interface {
	// SignInWithPassword authenticates email+password credentials
	SignInWithPassword(ctx context.Context, email, password string) (*User, error)

	// SignInWithCustomToken authenticates a pre-issued custom token
	SignInWithCustomToken(ctx context.Context, token string) (*User, error)

	// SignInWithProvider authenticates an external-provider id token
	SignInWithProvider(ctx context.Context, providerID, idToken string) (*User, error)

	// SignOut invalidates the provider-side session, if any
	SignOut(ctx context.Context) error

	// CreateAccount registers a new account and signs it in
	CreateAccount(ctx context.Context, email, password string) (*User, error)

	// DeleteAccount destroys the identity record for uid
	DeleteAccount(ctx context.Context, uid string) error

	// CreateCustomToken mints a custom token for uid, server-side
	CreateCustomToken(ctx context.Context, uid string) (string, error)
}

// DeviceReleaser releases every device a user has claimed. Account deletion
// depends on it; the device service satisfies this interface.
type DeviceReleaser interface {
	ReleaseAll(ctx context.Context, userID string) error
}
