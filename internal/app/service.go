package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sectorboard/api/internal/activity"
	"sectorboard/api/internal/approval"
	"sectorboard/api/internal/authpw"
	"sectorboard/api/internal/config"
	"sectorboard/api/internal/directory"
	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/search"
	"sectorboard/api/internal/session"
	"sectorboard/api/internal/store"
	"sectorboard/api/internal/subtask"
)

type dataStore interface {
	Ping(ctx context.Context) error
	GetProfile(ctx context.Context, userID string) (store.Profile, error)
	ViewerSubsectorIDs(ctx context.Context, profileID string) ([]string, error)
}

// Components are the collaborators the API is assembled from. Optional ones may be nil;
// their routes then answer 503.
type Components struct {
	Store      dataStore
	Tokens     *session.Tokens
	Accounts   *authpw.Service
	Activities *activity.Service
	Subtasks   *subtask.Service
	Approvals  *approval.Service
	Directory  *directory.Service
	Search     *search.Service
	Hub        *realtime.Hub
	// MailConfigured reports whether invitation emails actually go out.
	MailConfigured bool
}

type Service struct {
	cfg        config.Config
	store      dataStore
	tokens     *session.Tokens
	boot       *session.Bootstrapper
	accounts   *authpw.Service
	activities *activity.Service
	subtasks   *subtask.Service
	approvals  *approval.Service
	directory  *directory.Service
	search     *search.Service
	hub        *realtime.Hub
	logger     *zap.Logger

	mailConfigured bool
}

func New(cfg config.Config, c Components, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:        cfg,
		store:      c.Store,
		tokens:     c.Tokens,
		boot:       session.NewBootstrapper(c.Tokens, c.Store, logger.Named("session")),
		accounts:   c.Accounts,
		activities: c.Activities,
		subtasks:   c.Subtasks,
		approvals:  c.Approvals,
		directory:  c.Directory,
		search:     c.Search,
		hub:        c.Hub,
		logger:     logger,

		mailConfigured: c.MailConfigured,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SignInResult carries a fresh token pair and the profile, which is nil while the
// account is still awaiting approval.
type SignInResult struct {
	Tokens  session.TokenPair
	Profile *store.Profile
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	return s.accounts.SignUp(ctx, req)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	user, err := s.accounts.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return SignInResult{}, err
	}

	var result SignInResult
	role := ""
	profile, err := s.store.GetProfile(ctx, user.ID)
	switch {
	case err == nil:
		result.Profile = &profile
		role = string(profile.Role)
	case !errors.Is(err, store.ErrNotFound):
		return SignInResult{}, fmt.Errorf("load profile: %w", err)
	}

	result.Tokens, err = s.tokens.Issue(ctx, user.ID, role)
	if err != nil {
		return SignInResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	return result, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (session.TokenPair, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

func (s *Service) SignOut(ctx context.Context, creds session.Credentials) error {
	return s.tokens.SignOut(ctx, creds)
}

// Session bootstraps a new client session from creds.
func (s *Service) Session(ctx context.Context, creds session.Credentials) (*session.Store, session.State) {
	st := session.NewStore()
	return st, s.boot.Run(ctx, st, creds)
}

// Viewer resolves creds to an approved profile and its visibility scope.
func (s *Service) Viewer(ctx context.Context, creds session.Credentials) (store.Viewer, store.Profile, error) {
	_, state := s.Session(ctx, creds)
	if !state.Authorized() {
		return store.Viewer{}, store.Profile{}, errUnauthorized
	}
	v, err := s.viewerFor(ctx, *state.Profile)
	return v, *state.Profile, err
}

func (s *Service) viewerFor(ctx context.Context, p store.Profile) (store.Viewer, error) {
	subsectors, err := s.store.ViewerSubsectorIDs(ctx, p.ID)
	if err != nil {
		return store.Viewer{}, fmt.Errorf("load viewer subsectors: %w", err)
	}
	return store.Viewer{ID: p.ID, Role: p.Role, SectorID: p.SectorID, SubsectorIDs: subsectors}, nil
}

// subscriber avoids handing a typed nil hub to a feed.
func (s *Service) subscriber() activity.Subscriber {
	if s.hub == nil {
		return nil
	}
	return s.hub
}
