// Package authpw provides email/password registration and sign-in.
// Registration never grants access by itself: it records a pending user that a manager must approve.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"sectorboard/api/internal/auth"
	"sectorboard/api/internal/store"
	"sectorboard/api/internal/util"
)

var (
	ErrMissingFields      = errors.New("email, password, and name are required")
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnknownSector      = errors.New("sector or subsector does not exist")
	ErrInvalidInvitation  = errors.New("invitation is invalid or expired")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetAuthUserByEmail(ctx context.Context, email string) (store.AuthUser, error)
	InsertAuthUser(ctx context.Context, u store.AuthUser) error
	InsertPendingUser(ctx context.Context, p store.PendingUser) error
	SectorExists(ctx context.Context, sectorID string) (bool, error)
	GetSubsector(ctx context.Context, subsectorID string) (store.Subsector, error)
	GetOpenInvitation(ctx context.Context, tokenHash string) (store.Invitation, error)
	SetInvitationStatus(ctx context.Context, id, status string) error
}

type Service struct {
	store UserStore
	cost  int
}

func NewService(store UserStore) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

type SignUpRequest struct {
	Email       string
	Password    string
	Name        string
	SectorID    string
	SubsectorID string
	// InvitationToken, when present, overrides the requested sector, subsector and role.
	InvitationToken string
}

type SignUpResponse struct {
	UserID        string
	PendingUserID string
	Invited       bool
}

// SignUp creates an auth identity and a pending user awaiting approval.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.Name)
	if email == "" || req.Password == "" || name == "" {
		return nil, ErrMissingFields
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	if _, err := s.store.GetAuthUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	pending := store.PendingUser{
		ID:       util.NewID(),
		Email:    email,
		Name:     name,
		Role:     store.RoleCollaborator,
		Status:   store.PendingStatusPending,
		SectorID: strings.TrimSpace(req.SectorID),
	}
	if sub := strings.TrimSpace(req.SubsectorID); sub != "" {
		pending.SubsectorID = &sub
	}

	var invitation *store.Invitation
	if token := strings.TrimSpace(req.InvitationToken); token != "" {
		inv, err := s.store.GetOpenInvitation(ctx, auth.HashToken(token))
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidInvitation
		}
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(inv.Email, email) {
			return nil, ErrInvalidInvitation
		}
		pending.SectorID = inv.SectorID
		pending.SubsectorID = inv.SubsectorID
		pending.Role = inv.Role
		invitation = &inv
	} else if err := s.checkPlacement(ctx, pending.SectorID, pending.SubsectorID); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := store.AuthUser{ID: util.NewID(), Email: email, PasswordHash: string(hash)}
	if err := s.store.InsertAuthUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create auth user: %w", err)
	}

	pending.UserID = user.ID
	if err := s.store.InsertPendingUser(ctx, pending); err != nil {
		return nil, fmt.Errorf("create pending user: %w", err)
	}

	if invitation != nil {
		if err := s.store.SetInvitationStatus(ctx, invitation.ID, "accepted"); err != nil {
			return nil, fmt.Errorf("accept invitation: %w", err)
		}
	}

	return &SignUpResponse{
		UserID:        user.ID,
		PendingUserID: pending.ID,
		Invited:       invitation != nil,
	}, nil
}

func (s *Service) checkPlacement(ctx context.Context, sectorID string, subsectorID *string) error {
	if sectorID == "" {
		return ErrUnknownSector
	}
	ok, err := s.store.SectorExists(ctx, sectorID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownSector
	}
	if subsectorID == nil {
		return nil
	}
	sub, err := s.store.GetSubsector(ctx, *subsectorID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sub.SectorID != sectorID) {
		return ErrUnknownSector
	}
	return err
}

type SignInRequest struct {
	Email    string
	Password string
}

// SignIn checks the password and returns the auth identity.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.AuthUser, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return store.AuthUser{}, ErrInvalidCredentials
	}

	user, err := s.store.GetAuthUserByEmail(ctx, req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return store.AuthUser{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.AuthUser{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.AuthUser{}, ErrInvalidCredentials
	}
	return user, nil
}
