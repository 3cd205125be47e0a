package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sectorboard/api/internal/auth"
	"sectorboard/api/internal/util"
)

// ErrNoSession means the caller presented no usable credentials.
var ErrNoSession = errors.New("no session")

// Credentials are what a client persists between page loads.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Identity is the authenticated principal behind a set of credentials.
type Identity struct {
	UserID string
	Role   string
	JTI    string
	// ExpiresAt is the access token expiry; zero when resolved from a refresh token only.
	ExpiresAt time.Time
}

type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, sess RefreshSession, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// Tokens issues and resolves access/refresh token pairs.
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	sessions   refreshStore
	now        func() time.Time
}

func NewTokens(secret string, accessTTL, refreshTTL time.Duration, sessions refreshStore) *Tokens {
	return &Tokens{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		sessions:   sessions,
		now:        time.Now,
	}
}

func (t *Tokens) Issue(ctx context.Context, userID, role string) (TokenPair, error) {
	now := t.now()
	pair := TokenPair{
		AccessExpiresAt:  now.Add(t.accessTTL),
		RefreshExpiresAt: now.Add(t.refreshTTL),
		RefreshToken:     util.NewToken(32),
	}
	access, err := auth.IssueToken(t.secret, auth.Claims{
		Sub:  userID,
		Role: role,
		JTI:  util.NewID(),
		Exp:  pair.AccessExpiresAt,
	})
	if err != nil {
		return TokenPair{}, err
	}
	pair.AccessToken = access

	err = t.sessions.SaveRefreshSession(ctx, auth.HashToken(pair.RefreshToken), RefreshSession{
		UserID:    userID,
		Role:      role,
		CreatedAt: now.UTC(),
	}, pair.RefreshExpiresAt)
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Resolve prefers the access token and falls back to the refresh token.
func (t *Tokens) Resolve(ctx context.Context, creds Credentials) (Identity, error) {
	if creds.Empty() {
		return Identity{}, ErrNoSession
	}
	if creds.AccessToken != "" {
		id, err := t.resolveAccess(ctx, creds.AccessToken)
		if err == nil || creds.RefreshToken == "" {
			return id, err
		}
	}

	sess, err := t.sessions.LookupRefreshSession(ctx, auth.HashToken(creds.RefreshToken))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Identity{}, fmt.Errorf("%w: %v", ErrNoSession, err)
		}
		return Identity{}, err
	}
	return Identity{UserID: sess.UserID, Role: sess.Role}, nil
}

func (t *Tokens) resolveAccess(ctx context.Context, token string) (Identity, error) {
	claims, err := auth.ParseToken(t.secret, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	revoked, err := t.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Identity{}, err
	}
	if revoked {
		return Identity{}, fmt.Errorf("%w: token revoked", ErrNoSession)
	}
	return Identity{UserID: claims.Sub, Role: claims.Role, JTI: claims.JTI, ExpiresAt: claims.Exp}, nil
}

// Refresh rotates a refresh token: the old one is revoked and a new pair issued.
func (t *Tokens) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, ErrNoSession
	}
	hash := auth.HashToken(refreshToken)
	sess, err := t.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return TokenPair{}, ErrNoSession
		}
		return TokenPair{}, err
	}
	if err := t.sessions.RevokeRefreshSession(ctx, hash); err != nil {
		return TokenPair{}, err
	}
	return t.Issue(ctx, sess.UserID, sess.Role)
}

// SignOut revokes whatever the credentials carry. Invalid tokens are ignored.
func (t *Tokens) SignOut(ctx context.Context, creds Credentials) error {
	var errs []error
	if creds.RefreshToken != "" {
		errs = append(errs, t.sessions.RevokeRefreshSession(ctx, auth.HashToken(creds.RefreshToken)))
	}
	if creds.AccessToken != "" {
		if claims, err := auth.ParseToken(t.secret, creds.AccessToken); err == nil {
			errs = append(errs, t.sessions.RevokeAccessToken(ctx, claims.JTI, claims.Exp))
		}
	}
	return errors.Join(errs...)
}
