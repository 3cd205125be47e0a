// Package approval moves pending registrations to approved or rejected.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sectorboard/api/internal/email"
	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/rbac"
	"sectorboard/api/internal/store"
)

var (
	ErrForbidden  = rbac.ErrForbidden
	ErrNotFound   = errors.New("pending user not found")
	ErrNotPending = errors.New("pending user already reviewed")

	// ErrApprovalNotRecorded means the profile exists but the pending row still reads pending.
	ErrApprovalNotRecorded = errors.New("profile created but approval was not recorded")
)

type Store interface {
	GetProfile(ctx context.Context, userID string) (store.Profile, error)
	InsertProfile(ctx context.Context, p store.Profile) error
	GetPendingUser(ctx context.Context, id string) (store.PendingUser, error)
	ListPendingUsers(ctx context.Context, sectorID string, status store.PendingStatus) ([]store.PendingUser, error)
	SetPendingStatus(ctx context.Context, id string, status store.PendingStatus, reviewedBy string, reviewedAt time.Time) error
}

// Mailer sends the review outcome. *email.Service satisfies it.
type Mailer interface {
	IsConfigured() bool
	SendReviewEmail(to string, data email.ReviewData) error
}

type Service struct {
	store    Store
	mailer   Mailer
	appName  string
	loginURL string
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the service. mailer may be nil.
func NewService(st Store, mailer Mailer, appName, loginURL string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, mailer: mailer, appName: appName, loginURL: loginURL, logger: logger, now: time.Now}
}

// ListPending returns the open registrations in the actor's sector.
func (s *Service) ListPending(ctx context.Context, actorID string) ([]store.PendingUser, error) {
	actor, err := s.manager(ctx, actorID)
	if err != nil {
		return nil, err
	}
	return s.store.ListPendingUsers(ctx, actor.SectorID, store.PendingStatusPending)
}

// Approve creates the profile and then marks the registration approved. The two writes are
// not atomic: a failed profile insert leaves the registration pending, and a failed status
// write after a successful insert returns ErrApprovalNotRecorded with the profile in place.
func (s *Service) Approve(ctx context.Context, actorID, pendingID string) (profile store.Profile, err error) {
	defer func() { observability.RecordMutation("approve_user", err) }()
	actor, pending, err := s.load(ctx, actorID, pendingID)
	if err != nil {
		return store.Profile{}, err
	}

	now := s.now()
	approver := actor.ID
	profile = store.Profile{
		ID:          pending.UserID,
		Email:       pending.Email,
		DisplayName: pending.Name,
		Role:        pending.Role,
		SectorID:    pending.SectorID,
		SubsectorID: pending.SubsectorID,
		IsApproved:  true,
		ApprovedBy:  &approver,
		ApprovedAt:  &now,
	}
	if profile.Role == "" {
		profile.Role = store.RoleCollaborator
	}
	if err := s.store.InsertProfile(ctx, profile); err != nil {
		return store.Profile{}, fmt.Errorf("create profile: %w", err)
	}

	if err := s.store.SetPendingStatus(ctx, pending.ID, store.PendingStatusApproved, actor.ID, now); err != nil {
		s.logger.Error("approval not recorded",
			zap.String("pending_id", pending.ID), zap.String("user_id", pending.UserID), zap.Error(err))
		return profile, fmt.Errorf("%w: %v", ErrApprovalNotRecorded, err)
	}

	s.notify(pending, true)
	return profile, nil
}

// Reject marks the registration terminal without creating a profile.
func (s *Service) Reject(ctx context.Context, actorID, pendingID string) (err error) {
	defer func() { observability.RecordMutation("reject_user", err) }()
	actor, pending, err := s.load(ctx, actorID, pendingID)
	if err != nil {
		return err
	}
	if err := s.store.SetPendingStatus(ctx, pending.ID, store.PendingStatusRejected, actor.ID, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotPending
		}
		return fmt.Errorf("reject pending user: %w", err)
	}
	s.notify(pending, false)
	return nil
}

func (s *Service) load(ctx context.Context, actorID, pendingID string) (store.Profile, store.PendingUser, error) {
	actor, err := s.manager(ctx, actorID)
	if err != nil {
		return store.Profile{}, store.PendingUser{}, err
	}
	pending, err := s.store.GetPendingUser(ctx, pendingID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, store.PendingUser{}, ErrNotFound
	}
	if err != nil {
		return store.Profile{}, store.PendingUser{}, fmt.Errorf("get pending user: %w", err)
	}
	if err := rbac.Authorize(actor, rbac.ActionApproveUsers, pending.SectorID); err != nil {
		return store.Profile{}, store.PendingUser{}, err
	}
	if pending.Status != store.PendingStatusPending {
		return store.Profile{}, store.PendingUser{}, ErrNotPending
	}
	return actor, pending, nil
}

func (s *Service) manager(ctx context.Context, actorID string) (store.Profile, error) {
	actor, err := s.store.GetProfile(ctx, actorID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Profile{}, ErrForbidden
	}
	if err != nil {
		return store.Profile{}, fmt.Errorf("get approver profile: %w", err)
	}
	if err := rbac.Authorize(actor, rbac.ActionApproveUsers, ""); err != nil {
		return store.Profile{}, err
	}
	return actor, nil
}

// notify mails the outcome in the background; failures are only logged.
func (s *Service) notify(p store.PendingUser, approved bool) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	data := email.ReviewData{AppName: s.appName, UserName: p.Name, Approved: approved, LoginURL: s.loginURL}
	go func() {
		if err := s.mailer.SendReviewEmail(p.Email, data); err != nil {
			s.logger.Warn("send review email", zap.String("pending_id", p.ID), zap.Error(err))
		}
	}()
}
