package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tendant/simple-claim/pkg/errors"
)

// recordingProvider counts provider calls, to verify that malformed
// credentials never reach the provider
type recordingProvider struct {
	*LocalProvider
	signInCalls int
}

func (p *recordingProvider) SignInWithPassword(ctx context.Context, email, password string) (*User, error) {
	p.signInCalls++
	return p.LocalProvider.SignInWithPassword(ctx, email, password)
}

func (p *recordingProvider) SignInWithCustomToken(ctx context.Context, token string) (*User, error) {
	p.signInCalls++
	return p.LocalProvider.SignInWithCustomToken(ctx, token)
}

func (p *recordingProvider) SignInWithProvider(ctx context.Context, providerID, idToken string) (*User, error) {
	p.signInCalls++
	return p.LocalProvider.SignInWithProvider(ctx, providerID, idToken)
}

// fakeReleaser stands in for the device service during account deletion
type fakeReleaser struct {
	releasedUIDs []string
	err          error
}

func (r *fakeReleaser) ReleaseAll(ctx context.Context, userID string) error {
	if r.err != nil {
		return r.err
	}
	r.releasedUIDs = append(r.releasedUIDs, userID)
	return nil
}

func setupSession(t *testing.T, opts ...SessionOption) *Session {
	provider := NewLocalProvider("test-secret")
	return NewSession(provider, opts...)
}

func TestSession_CreateAccountAndLogin(t *testing.T) {
	session := setupSession(t)
	ctx := context.Background()

	created, err := session.CreateAccount(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
	assert.Equal(t, "alice@example.com", created.Email)

	// Account creation signs the user in
	require.NotNil(t, session.CurrentUser())
	assert.Equal(t, created.UID, session.CurrentUser().UID)

	require.NoError(t, session.Logout(ctx))
	assert.Nil(t, session.CurrentUser())

	user, err := session.Login(ctx, Credentials{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, created.UID, user.UID)
}

func TestSession_LoginWrongPassword(t *testing.T) {
	session := setupSession(t)
	ctx := context.Background()

	_, err := session.CreateAccount(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	require.NoError(t, session.Logout(ctx))

	_, err = session.Login(ctx, Credentials{Email: "alice@example.com", Password: "wrong"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotAuthenticated))
	assert.Nil(t, session.CurrentUser())
}

func TestSession_LoginInvalidShapeSkipsProvider(t *testing.T) {
	provider := &recordingProvider{LocalProvider: NewLocalProvider("test-secret")}
	session := NewSession(provider)
	ctx := context.Background()

	shapes := []Credentials{
		{},
		{Email: "alice@example.com"},             // password missing
		{Password: "password123"},                // email missing
		{IDToken: "token"},                       // provider id missing
		{ProviderID: "google.com"},               // id token missing
		{Email: "alice@example.com", IDToken: "token"}, // no complete shape
	}
	for _, credentials := range shapes {
		_, err := session.Login(ctx, credentials)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidCredentialsShape),
			"credentials %+v must be rejected as malformed", credentials)
	}
	assert.Zero(t, provider.signInCalls, "malformed credentials must never reach the provider")
}

func TestSession_LoginWithCustomToken(t *testing.T) {
	session := setupSession(t)
	ctx := context.Background()

	created, err := session.CreateAccount(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	token, err := session.CreateCustomToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, session.Logout(ctx))

	user, err := session.Login(ctx, Credentials{CustomToken: token})
	require.NoError(t, err)
	assert.Equal(t, created.UID, user.UID)
}

func TestSession_CreateCustomTokenRequiresAuth(t *testing.T) {
	session := setupSession(t)

	_, err := session.CreateCustomToken(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotAuthenticated))
}

func TestSession_OnAuthStateChanged(t *testing.T) {
	session := setupSession(t)
	ctx := context.Background()

	sub := session.OnAuthStateChanged()
	defer sub.Unsubscribe()

	// current state arrives first: nobody is logged in yet
	assert.Nil(t, <-sub.Users())

	created, err := session.CreateAccount(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	user := <-sub.Users()
	require.NotNil(t, user)
	assert.Equal(t, created.UID, user.UID)

	require.NoError(t, session.Logout(ctx))
	assert.Nil(t, <-sub.Users())
}

func TestSession_OnFirstLogin(t *testing.T) {
	session := setupSession(t)
	ctx := context.Background()

	first := session.OnFirstLogin()

	created, err := session.CreateAccount(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	select {
	case user := <-first.User():
		assert.Equal(t, created.UID, user.UID)
	case <-time.After(time.Second):
		t.Fatal("expected the first login to be delivered")
	}

	// the stream completes after the first value
	_, open := <-first.User()
	assert.False(t, open)
}

func TestSession_UnsubscribeStopsNotifications(t *testing.T) {
	session := setupSession(t)
	ctx := context.Background()

	sub := session.OnAuthStateChanged()
	assert.Nil(t, <-sub.Users())
	sub.Unsubscribe()

	_, err := session.CreateAccount(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	_, open := <-sub.Users()
	assert.False(t, open)
}

func TestSession_DeleteAccountRequiresAuth(t *testing.T) {
	session := setupSession(t)

	err := session.DeleteAccount(context.Background())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotAuthenticated))
}

func TestSession_DeleteAccountReleasesDevices(t *testing.T) {
	releaser := &fakeReleaser{}
	provider := NewLocalProvider("test-secret")
	session := NewSession(provider, WithDeviceReleaser(releaser))
	ctx := context.Background()

	created, err := session.CreateAccount(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, session.DeleteAccount(ctx))
	assert.Equal(t, []string{created.UID}, releaser.releasedUIDs)
	assert.Nil(t, session.CurrentUser())

	// the identity record is gone
	_, err = session.Login(ctx, Credentials{Email: "alice@example.com", Password: "password123"})
	assert.Error(t, err)
}

func TestSession_DeleteAccountAbortsOnReleaseFailure(t *testing.T) {
	releaser := &fakeReleaser{err: errors.New("release failed")}
	provider := NewLocalProvider("test-secret")
	session := NewSession(provider, WithDeviceReleaser(releaser))
	ctx := context.Background()

	_, err := session.CreateAccount(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	err = session.DeleteAccount(ctx)
	require.Error(t, err)

	// the account must be left intact
	require.NotNil(t, session.CurrentUser())
	require.NoError(t, session.Logout(ctx))
	_, err = session.Login(ctx, Credentials{Email: "alice@example.com", Password: "password123"})
	assert.NoError(t, err)
}
