package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/tendant/simple-claim/pkg/errors"
)

// customTokenTTL bounds how long a minted custom token stays valid
const customTokenTTL = time.Hour

// localAccount is one registered identity
type localAccount struct {
	uid          string
	email        string
	passwordHash []byte
	// externalKey is "providerID:subject" for accounts created through an
	// external-provider sign-in, empty otherwise
	externalKey string
}

// LocalProvider is an in-process identity provider for development and
// tests. Accounts are held in memory, passwords are bcrypt-hashed, and
// custom tokens are HS256 JWTs minted by CreateCustomToken.
type LocalProvider struct {
	jwtSecret []byte

	mu         sync.Mutex
	byEmail    map[string]*localAccount
	byUID      map[string]*localAccount
	byExternal map[string]*localAccount
}

// NewLocalProvider creates a local identity provider signing custom tokens
// with the given secret
func NewLocalProvider(jwtSecret string) *LocalProvider {
	return &LocalProvider{
		jwtSecret:  []byte(jwtSecret),
		byEmail:    make(map[string]*localAccount),
		byUID:      make(map[string]*localAccount),
		byExternal: make(map[string]*localAccount),
	}
}

// CreateAccount registers a new email+password account
func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[email]; exists {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict, "account already exists: %s", email)
	}

	account := &localAccount{
		uid:          uuid.New().String(),
		email:        email,
		passwordHash: hash,
	}
	p.byEmail[email] = account
	p.byUID[account.uid] = account

	slog.Info("Local account created", "uid", account.uid)
	return &User{UID: account.uid, Email: account.email}, nil
}

// SignInWithPassword authenticates email+password credentials
func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*User, error) {
	p.mu.Lock()
	account, exists := p.byEmail[email]
	p.mu.Unlock()

	if !exists || bcrypt.CompareHashAndPassword(account.passwordHash, []byte(password)) != nil {
		return nil, apperrors.New(apperrors.ErrCodeNotAuthenticated, "invalid email or password")
	}
	return &User{UID: account.uid, Email: account.email}, nil
}

// SignInWithCustomToken authenticates a custom token minted by
// CreateCustomToken
func (p *LocalProvider) SignInWithCustomToken(ctx context.Context, token string) (*User, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.jwtSecret, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNotAuthenticated, "invalid custom token")
	}

	uid, err := parsed.Claims.GetSubject()
	if err != nil || uid == "" {
		return nil, apperrors.New(apperrors.ErrCodeNotAuthenticated, "custom token has no subject")
	}

	p.mu.Lock()
	account, exists := p.byUID[uid]
	p.mu.Unlock()
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrCodeNotFound, "no account for uid %s", uid)
	}
	return &User{UID: account.uid, Email: account.email}, nil
}

// SignInWithProvider authenticates an external-provider id token. The token
// signature is the external provider's concern; the local provider extracts
// the subject and keeps a stable uid per providerID+subject pair.
func (p *LocalProvider) SignInWithProvider(ctx context.Context, providerID, idToken string) (*User, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeNotAuthenticated, "invalid id token")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, apperrors.New(apperrors.ErrCodeNotAuthenticated, "id token has no subject")
	}
	email, _ := claims["email"].(string)

	key := providerID + ":" + subject

	p.mu.Lock()
	defer p.mu.Unlock()

	account, exists := p.byExternal[key]
	if !exists {
		account = &localAccount{
			uid:         uuid.New().String(),
			email:       email,
			externalKey: key,
		}
		p.byExternal[key] = account
		p.byUID[account.uid] = account
		slog.Info("Local account created from external provider", "uid", account.uid, "provider", providerID)
	}
	return &User{UID: account.uid, Email: account.email}, nil
}

// SignOut is a no-op: the local provider keeps no server-side session
func (p *LocalProvider) SignOut(ctx context.Context) error {
	return nil
}

// DeleteAccount destroys the identity record for uid
func (p *LocalProvider) DeleteAccount(ctx context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	account, exists := p.byUID[uid]
	if !exists {
		return apperrors.Newf(apperrors.ErrCodeNotFound, "no account for uid %s", uid)
	}

	delete(p.byUID, uid)
	delete(p.byEmail, account.email)
	if account.externalKey != "" {
		delete(p.byExternal, account.externalKey)
	}

	slog.Info("Local account deleted", "uid", uid)
	return nil
}

// CreateCustomToken mints an HS256 custom token for uid
func (p *LocalProvider) CreateCustomToken(ctx context.Context, uid string) (string, error) {
	p.mu.Lock()
	_, exists := p.byUID[uid]
	p.mu.Unlock()
	if !exists {
		return "", apperrors.Newf(apperrors.ErrCodeNotFound, "no account for uid %s", uid)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uid,
		"iat": now.Unix(),
		"exp": now.Add(customTokenTTL).Unix(),
	})
	signed, err := token.SignedString(p.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign custom token: %w", err)
	}
	return signed, nil
}
