// Package subtask manages the ordered checklist under an activity.
package subtask

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/store"
	"sectorboard/api/internal/util"
)

var (
	ErrNotFound     = errors.New("subtask not found")
	ErrInvalidInput = errors.New("invalid subtask input")
)

type Store interface {
	ListSubtasks(ctx context.Context, activityID string) ([]store.Subtask, error)
	MaxSubtaskOrder(ctx context.Context, activityID string) (int, error)
	InsertSubtask(ctx context.Context, st store.Subtask) (store.Subtask, error)
	GetSubtask(ctx context.Context, id string) (store.Subtask, error)
	SetSubtaskCompleted(ctx context.Context, id string, completed bool) error
	DeleteSubtask(ctx context.Context, id string) error
}

// ActivityReader resolves the parent activity with the viewer's visibility applied.
// *activity.Service satisfies it.
type ActivityReader interface {
	Get(ctx context.Context, v store.Viewer, id string) (store.Activity, error)
}

// Service appends, toggles and deletes subtasks. Concurrent appends may pick the same
// order index; the last write wins.
type Service struct {
	store      Store
	activities ActivityReader
	bus        realtime.Bus
	logger     *zap.Logger
}

func NewService(st Store, activities ActivityReader, bus realtime.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, activities: activities, bus: bus, logger: logger}
}

func (s *Service) List(ctx context.Context, v store.Viewer, activityID string) ([]store.Subtask, error) {
	if _, err := s.activities.Get(ctx, v, activityID); err != nil {
		return nil, err
	}
	return s.store.ListSubtasks(ctx, activityID)
}

// Add appends after the current highest order index, starting at zero.
func (s *Service) Add(ctx context.Context, v store.Viewer, activityID, title, description string) (created store.Subtask, err error) {
	defer func() { observability.RecordMutation("subtask_add", err) }()
	title = strings.TrimSpace(title)
	if title == "" {
		return store.Subtask{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	parent, err := s.activities.Get(ctx, v, activityID)
	if err != nil {
		return store.Subtask{}, err
	}

	highest, err := s.store.MaxSubtaskOrder(ctx, activityID)
	if err != nil {
		return store.Subtask{}, fmt.Errorf("add subtask: %w", err)
	}
	created, err = s.store.InsertSubtask(ctx, store.Subtask{
		ID:          util.NewID(),
		ActivityID:  activityID,
		Title:       title,
		Description: description,
		OrderIndex:  highest + 1,
	})
	if err != nil {
		return store.Subtask{}, fmt.Errorf("add subtask: %w", err)
	}
	s.publish(ctx, "INSERT", created.ID, parent.SectorID)
	return created, nil
}

// Toggle flips completed and nothing else.
func (s *Service) Toggle(ctx context.Context, v store.Viewer, id string) (updated store.Subtask, err error) {
	defer func() { observability.RecordMutation("subtask_toggle", err) }()
	st, parent, err := s.load(ctx, v, id)
	if err != nil {
		return store.Subtask{}, err
	}
	if err := s.store.SetSubtaskCompleted(ctx, id, !st.Completed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Subtask{}, ErrNotFound
		}
		return store.Subtask{}, fmt.Errorf("toggle subtask: %w", err)
	}
	st.Completed = !st.Completed
	s.publish(ctx, "UPDATE", id, parent.SectorID)
	return st, nil
}

func (s *Service) Delete(ctx context.Context, v store.Viewer, id string) (err error) {
	defer func() { observability.RecordMutation("subtask_delete", err) }()
	_, parent, err := s.load(ctx, v, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteSubtask(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete subtask: %w", err)
	}
	s.publish(ctx, "DELETE", id, parent.SectorID)
	return nil
}

func (s *Service) load(ctx context.Context, v store.Viewer, id string) (store.Subtask, store.Activity, error) {
	st, err := s.store.GetSubtask(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return store.Subtask{}, store.Activity{}, ErrNotFound
	}
	if err != nil {
		return store.Subtask{}, store.Activity{}, fmt.Errorf("get subtask: %w", err)
	}
	parent, err := s.activities.Get(ctx, v, st.ActivityID)
	if err != nil {
		return store.Subtask{}, store.Activity{}, err
	}
	return st, parent, nil
}

func (s *Service) publish(ctx context.Context, op, id, sectorID string) {
	if s.bus == nil {
		return
	}
	c := realtime.Change{Table: realtime.TableSubtasks, Op: op, ID: id, SectorID: sectorID}
	if err := s.bus.Publish(ctx, c); err != nil {
		s.logger.Warn("broadcast subtask change", zap.String("subtask_id", id), zap.Error(err))
	}
}
