package directory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/rbac"
)

// DeleteUser removes a same-sector user's profile and identity after clearing their
// assignments, in one transaction.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID string) (err error) {
	defer func() { observability.RecordMutation("user_delete", err) }()
	if actorID == userID {
		return fmt.Errorf("%w: managers cannot delete themselves", ErrInvalidInput)
	}
	_, target, err := s.sameSectorTarget(ctx, actorID, userID, rbac.ActionDeleteUsers)
	if err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return notFound(err)
	}
	s.logger.Info("user deleted", zap.String("user_id", userID), zap.String("sector_id", target.SectorID), zap.String("actor_id", actorID))
	return nil
}
