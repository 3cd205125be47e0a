package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"sectorboard/api/internal/store"
)

type profileReader interface {
	GetProfile(ctx context.Context, userID string) (store.Profile, error)
}

type authenticator interface {
	Resolve(ctx context.Context, creds Credentials) (Identity, error)
	SignOut(ctx context.Context, creds Credentials) error
}

// Bootstrapper fills a Store from the credentials a client presents on connect.
type Bootstrapper struct {
	auth     authenticator
	profiles profileReader
	logger   *zap.Logger
}

func NewBootstrapper(auth authenticator, profiles profileReader, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{auth: auth, profiles: profiles, logger: logger}
}

// Run bootstraps st once. Later calls against the same Store return its current state untouched.
//
// No credentials, or credentials that do not resolve, clear the state. A resolved identity with no
// profile row is signed out and cleared. Any other profile lookup failure ends loading with a nil
// profile, which callers must read as unauthorized.
func (b *Bootstrapper) Run(ctx context.Context, st *Store, creds Credentials) State {
	if !st.claim() {
		return st.Snapshot()
	}

	id, err := b.auth.Resolve(ctx, creds)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			b.logger.Warn("resolve session", zap.Error(err))
		}
		st.Clear()
		return st.Snapshot()
	}
	st.setUser(id)

	profile, err := b.profiles.GetProfile(ctx, id.UserID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := b.auth.SignOut(ctx, creds); err != nil {
			b.logger.Warn("sign out user without profile", zap.String("user_id", id.UserID), zap.Error(err))
		}
		st.Clear()
	case err != nil:
		b.logger.Warn("fetch profile", zap.String("user_id", id.UserID), zap.Error(err))
		st.setProfile(nil)
	default:
		st.setProfile(&profile)
	}
	return st.Snapshot()
}
