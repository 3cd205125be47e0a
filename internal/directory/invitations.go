package directory

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"sectorboard/api/internal/auth"
	"sectorboard/api/internal/email"
	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/rbac"
	"sectorboard/api/internal/store"
	"sectorboard/api/internal/util"
)

const (
	InvitationOpen     = "open"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
)

type InviteInput struct {
	Email       string
	SubsectorID *string
	Role        store.Role
}

// Invite records an invitation into the actor's sector and returns the raw token, which is
// never stored. The email goes out in the background and cannot fail the request.
func (s *Service) Invite(ctx context.Context, actorID string, in InviteInput) (inv store.Invitation, token string, err error) {
	defer func() { observability.RecordMutation("invite", err) }()
	actor, err := s.authorize(ctx, actorID, rbac.ActionInviteUsers, "")
	if err != nil {
		return store.Invitation{}, "", err
	}

	address, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return store.Invitation{}, "", fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	role := in.Role
	if role == "" {
		role = store.RoleCollaborator
	}
	if role != store.RoleCollaborator && role != store.RoleManager {
		return store.Invitation{}, "", fmt.Errorf("%w: unknown role", ErrInvalidInput)
	}
	if in.SubsectorID != nil {
		sub, err := s.store.GetSubsector(ctx, *in.SubsectorID)
		if err != nil {
			return store.Invitation{}, "", fmt.Errorf("%w: unknown subsector", ErrInvalidInput)
		}
		if sub.SectorID != actor.SectorID {
			return store.Invitation{}, "", fmt.Errorf("%w: subsector belongs to another sector", ErrInvalidInput)
		}
	}

	token = util.NewToken(32)
	inv = store.Invitation{
		ID:          util.NewID(),
		Email:       strings.ToLower(address.Address),
		SectorID:    actor.SectorID,
		SubsectorID: in.SubsectorID,
		Role:        role,
		TokenHash:   auth.HashToken(token),
		InvitedBy:   actor.ID,
		Status:      InvitationOpen,
		ExpiresAt:   s.now().Add(s.opts.InvitationTTL),
	}
	if err := s.store.InsertInvitation(ctx, inv); err != nil {
		return store.Invitation{}, "", fmt.Errorf("create invitation: %w", err)
	}

	s.sendInvitation(ctx, actor, inv, token)
	return inv, token, nil
}

func (s *Service) Invitations(ctx context.Context, actorID string) ([]store.Invitation, error) {
	actor, err := s.authorize(ctx, actorID, rbac.ActionInviteUsers, "")
	if err != nil {
		return nil, err
	}
	return s.store.ListInvitations(ctx, actor.SectorID)
}

func (s *Service) RevokeInvitation(ctx context.Context, actorID, id string) (err error) {
	defer func() { observability.RecordMutation("invite_revoke", err) }()
	inv, err := s.store.GetInvitation(ctx, id)
	if err != nil {
		return notFound(err)
	}
	if _, err := s.authorize(ctx, actorID, rbac.ActionInviteUsers, inv.SectorID); err != nil {
		return err
	}
	if inv.Status != InvitationOpen {
		return fmt.Errorf("%w: invitation is %s", ErrInvalidInput, inv.Status)
	}
	return notFound(s.store.SetInvitationStatus(ctx, id, InvitationRevoked))
}

func (s *Service) sendInvitation(ctx context.Context, actor store.Profile, inv store.Invitation, token string) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	sectorName := inv.SectorID
	if sector, err := s.store.GetSector(ctx, inv.SectorID); err == nil {
		sectorName = sector.Name
	}
	data := email.InvitationData{
		AppName:     s.opts.AppName,
		InviterName: actor.DisplayName,
		SectorName:  sectorName,
		Role:        string(inv.Role),
		InviteURL:   strings.TrimRight(s.opts.PublicURL, "/") + "/signup?invitation=" + url.QueryEscape(token),
		ExpiresAt:   inv.ExpiresAt,
	}
	go func() {
		if err := s.mailer.SendInvitationEmail(inv.Email, data); err != nil {
			s.logger.Warn("send invitation email", zap.String("invitation_id", inv.ID), zap.Error(err))
		}
	}()
}
