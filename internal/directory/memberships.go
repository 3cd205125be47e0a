package directory

import (
	"context"
	"fmt"

	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/rbac"
	"sectorboard/api/internal/store"
)

func (s *Service) Memberships(ctx context.Context, actorID, profileID string) ([]store.SubsectorMembership, error) {
	if actorID != profileID {
		if _, _, err := s.sameSectorTarget(ctx, actorID, profileID, rbac.ActionManageMembers); err != nil {
			return nil, err
		}
	}
	return s.store.ListSubsectorMemberships(ctx, profileID)
}

func (s *Service) AddMembership(ctx context.Context, actorID, profileID, subsectorID string) (err error) {
	defer func() { observability.RecordMutation("membership_add", err) }()
	_, target, err := s.sameSectorTarget(ctx, actorID, profileID, rbac.ActionManageMembers)
	if err != nil {
		return err
	}
	sub, err := s.store.GetSubsector(ctx, subsectorID)
	if err != nil {
		return notFound(err)
	}
	if sub.SectorID != target.SectorID {
		return fmt.Errorf("%w: subsector belongs to another sector", ErrInvalidInput)
	}
	return s.store.InsertSubsectorMembership(ctx, profileID, subsectorID)
}

func (s *Service) RemoveMembership(ctx context.Context, actorID, profileID, subsectorID string) (err error) {
	defer func() { observability.RecordMutation("membership_remove", err) }()
	if _, _, err := s.sameSectorTarget(ctx, actorID, profileID, rbac.ActionManageMembers); err != nil {
		return err
	}
	return notFound(s.store.DeleteSubsectorMembership(ctx, profileID, subsectorID))
}
