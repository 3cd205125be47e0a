package directory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/store"
	"sectorboard/api/internal/util"
)

func (s *Service) Assignees(ctx context.Context, v store.Viewer, activityID string) ([]store.ActivityAssignee, error) {
	if _, err := s.activities.Get(ctx, v, activityID); err != nil {
		return nil, err
	}
	return s.store.ListAssignees(ctx, activityID)
}

// AddAssignee attaches a sector member to the activity and notifies them.
func (s *Service) AddAssignee(ctx context.Context, v store.Viewer, activityID, userID string) (err error) {
	defer func() { observability.RecordMutation("assignee_add", err) }()
	a, err := s.activities.Get(ctx, v, activityID)
	if err != nil {
		return err
	}
	member, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return notFound(err)
	}
	if member.SectorID != a.SectorID {
		return fmt.Errorf("%w: assignee is outside the sector", ErrInvalidInput)
	}
	if err := s.store.InsertAssignee(ctx, activityID, userID); err != nil {
		return err
	}
	if userID != v.ID {
		s.Notify(ctx, store.Notification{
			UserID:     userID,
			Kind:       "assigned",
			Title:      "New assignment",
			Body:       fmt.Sprintf("You were added to %q.", a.Title),
			ActivityID: &a.ID,
		})
	}
	s.touch(ctx, a)
	return nil
}

func (s *Service) RemoveAssignee(ctx context.Context, v store.Viewer, activityID, userID string) (err error) {
	defer func() { observability.RecordMutation("assignee_remove", err) }()
	a, err := s.activities.Get(ctx, v, activityID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteAssignee(ctx, activityID, userID); err != nil {
		return notFound(err)
	}
	s.touch(ctx, a)
	return nil
}

// touch tells assignee-scoped feeds in the sector to reload.
func (s *Service) touch(ctx context.Context, a store.Activity) {
	if s.bus == nil {
		return
	}
	c := realtime.Change{Table: realtime.TableActivities, Op: "UPDATE", ID: a.ID, SectorID: a.SectorID}
	if err := s.bus.Publish(ctx, c); err != nil {
		s.logger.Warn("broadcast assignee change", zap.String("activity_id", a.ID), zap.Error(err))
	}
}

// Notify stores a notification; failures are logged and never surface to the caller.
func (s *Service) Notify(ctx context.Context, n store.Notification) {
	if n.ID == "" {
		n.ID = util.NewID()
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		s.logger.Warn("insert notification", zap.String("user_id", n.UserID), zap.Error(err))
	}
}
