package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/store"
	"sectorboard/api/internal/util"
)

var (
	ErrNotFound     = errors.New("activity not found")
	ErrUnauthorized = errors.New("authentication required")
	ErrNoSector     = errors.New("viewer has no sector")
	ErrInvalidInput = errors.New("invalid activity input")
	ErrEmptyPatch   = errors.New("nothing to update")
)

// Store is the persistence the service needs. *store.PostgresStore satisfies it.
type Store interface {
	ListActivities(ctx context.Context, f store.ActivityFilter) ([]store.Activity, error)
	GetActivity(ctx context.Context, id string) (store.Activity, error)
	InsertActivity(ctx context.Context, a store.Activity) (store.Activity, error)
	UpdateActivity(ctx context.Context, id string, p store.ActivityPatch) (store.Activity, error)
	DeleteActivity(ctx context.Context, id string) error
	InsertHistory(ctx context.Context, entry store.HistoryEntry) error
	ListHistory(ctx context.Context, activityID string) ([]store.HistoryEntry, error)
	InsertNotification(ctx context.Context, n store.Notification) error
	GetProfile(ctx context.Context, userID string) (store.Profile, error)
	GetSubsector(ctx context.Context, subsectorID string) (store.Subsector, error)
	GetPersonalList(ctx context.Context, id string) (store.PersonalList, error)
}

// Indexer keeps a search index in step. *search.Service satisfies it.
type Indexer interface {
	IndexActivity(a store.Activity)
	RemoveActivity(id string)
}

type Service struct {
	store  Store
	bus    realtime.Bus
	index  Indexer
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the service. bus and index may be nil.
func NewService(st Store, bus realtime.Bus, index Indexer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, bus: bus, index: index, logger: logger, now: time.Now}
}

type CreateInput struct {
	Title       string
	Description string
	Status      *store.ActivityStatus
	Priority    *store.Priority
	DueDate     *time.Time
	AssigneeID  *string
	SubsectorID *string
	ListID      *string
	IsPrivate   bool
}

func (s *Service) List(ctx context.Context, v store.Viewer, scope Scope) ([]store.Activity, error) {
	if err := requireViewer(v); err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, scope.Filter(v))
}

func (s *Service) Get(ctx context.Context, v store.Viewer, id string) (store.Activity, error) {
	if err := requireViewer(v); err != nil {
		return store.Activity{}, err
	}
	a, err := s.store.GetActivity(ctx, id)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !Visible(v, a)) {
		return store.Activity{}, ErrNotFound
	}
	if err != nil {
		return store.Activity{}, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

// Create inserts an activity in the viewer's sector. Priority defaults to medium, status
// to pending and the assignee to the creator.
func (s *Service) Create(ctx context.Context, v store.Viewer, in CreateInput) (created store.Activity, err error) {
	defer func() { observability.RecordMutation("create", err) }()
	if err := requireViewer(v); err != nil {
		return store.Activity{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return store.Activity{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	a := store.Activity{
		ID:          util.NewID(),
		Title:       title,
		Description: in.Description,
		Status:      store.StatusPending,
		Priority:    store.PriorityMedium,
		DueDate:     in.DueDate,
		AssigneeID:  in.AssigneeID,
		CreatedBy:   v.ID,
		SectorID:    v.SectorID,
		SubsectorID: in.SubsectorID,
		ListID:      in.ListID,
		IsPrivate:   in.IsPrivate,
	}
	if in.Status != nil {
		a.Status = *in.Status
	}
	if in.Priority != nil {
		a.Priority = *in.Priority
	}
	if !a.Status.Valid() || !a.Priority.Valid() {
		return store.Activity{}, fmt.Errorf("%w: unknown status or priority", ErrInvalidInput)
	}
	if a.AssigneeID == nil || *a.AssigneeID == "" {
		creator := v.ID
		a.AssigneeID = &creator
	}
	if err := s.checkRefs(ctx, v, a.AssigneeID, a.SubsectorID, a.ListID); err != nil {
		return store.Activity{}, err
	}
	if a.Status == store.StatusCompleted {
		now := s.now()
		a.CompletedAt = &now
	}

	created, err = s.store.InsertActivity(ctx, a)
	if err != nil {
		return store.Activity{}, fmt.Errorf("create activity: %w", err)
	}

	s.recordHistory(ctx, created.ID, store.HistoryCreated, v.ID, map[string]any{"title": created.Title})
	s.notifyAssignee(ctx, v, created)
	s.afterWrite(ctx, created, "INSERT")
	return created, nil
}

// Update applies a partial patch. The completion rule only runs when the patch sets a status.
func (s *Service) Update(ctx context.Context, v store.Viewer, id string, p store.ActivityPatch) (updated store.Activity, err error) {
	defer func() { observability.RecordMutation("update", err) }()
	return s.update(ctx, v, id, p, "")
}

// Archive moves the activity out of the board.
func (s *Service) Archive(ctx context.Context, v store.Viewer, id string) (updated store.Activity, err error) {
	defer func() { observability.RecordMutation("archive", err) }()
	status := store.StatusArchived
	return s.update(ctx, v, id, store.ActivityPatch{Status: &status}, store.HistoryArchived)
}

// Unarchive always returns the activity to pending with no completion stamp.
func (s *Service) Unarchive(ctx context.Context, v store.Viewer, id string) (updated store.Activity, err error) {
	defer func() { observability.RecordMutation("unarchive", err) }()
	status := store.StatusPending
	return s.update(ctx, v, id, store.ActivityPatch{Status: &status}, store.HistoryUnarchived)
}

func (s *Service) update(ctx context.Context, v store.Viewer, id string, p store.ActivityPatch, action store.HistoryAction) (store.Activity, error) {
	if err := requireViewer(v); err != nil {
		return store.Activity{}, err
	}
	if p.Empty() {
		return store.Activity{}, ErrEmptyPatch
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return store.Activity{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if (p.Status != nil && !p.Status.Valid()) || (p.Priority != nil && !p.Priority.Valid()) {
		return store.Activity{}, fmt.Errorf("%w: unknown status or priority", ErrInvalidInput)
	}

	before, err := s.Get(ctx, v, id)
	if err != nil {
		return store.Activity{}, err
	}
	if err := s.checkRefs(ctx, v, p.AssigneeID, p.SubsectorID, p.ListID); err != nil {
		return store.Activity{}, err
	}

	ApplyCompletionRule(&p, s.now())
	after, err := s.store.UpdateActivity(ctx, id, p)
	if errors.Is(err, store.ErrNotFound) {
		return store.Activity{}, ErrNotFound
	}
	if err != nil {
		return store.Activity{}, fmt.Errorf("update activity: %w", err)
	}

	if action == "" {
		action = store.HistoryUpdated
		if p.Status != nil && before.Status != after.Status {
			action = store.HistoryStatusChanged
		}
	}
	details := map[string]any{"fields": patchFields(p)}
	if before.Status != after.Status {
		details["from"] = before.Status
		details["to"] = after.Status
	}
	s.recordHistory(ctx, id, action, v.ID, details)

	if after.AssigneeID != nil && (before.AssigneeID == nil || *before.AssigneeID != *after.AssigneeID) {
		s.notifyAssignee(ctx, v, after)
	}
	s.afterWrite(ctx, after, "UPDATE")
	return after, nil
}

// Delete removes the activity row only. Subtasks and history are left behind.
func (s *Service) Delete(ctx context.Context, v store.Viewer, id string) (err error) {
	defer func() { observability.RecordMutation("delete", err) }()
	a, err := s.Get(ctx, v, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteActivity(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete activity: %w", err)
	}
	s.recordHistory(ctx, id, store.HistoryDeleted, v.ID, map[string]any{"title": a.Title})
	if s.index != nil {
		s.index.RemoveActivity(id)
	}
	s.publish(ctx, realtime.Change{Table: realtime.TableActivities, Op: "DELETE", ID: id, SectorID: a.SectorID})
	return nil
}

func (s *Service) History(ctx context.Context, v store.Viewer, id string) ([]store.HistoryEntry, error) {
	if _, err := s.Get(ctx, v, id); err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	return entries, nil
}

// checkRefs resolves what a write points at. Assignee and subsector must be in the viewer's
// sector; a personal list must belong to the viewer.
func (s *Service) checkRefs(ctx context.Context, v store.Viewer, assigneeID, subsectorID, listID *string) error {
	if assigneeID != nil && *assigneeID != v.ID {
		p, err := lookup(ctx, *assigneeID, s.store.GetProfile)
		if err := refErr(err, p.SectorID == v.SectorID, "assignee is not a member of this sector"); err != nil {
			return err
		}
	}
	if subsectorID != nil {
		sub, err := lookup(ctx, *subsectorID, s.store.GetSubsector)
		if err := refErr(err, sub.SectorID == v.SectorID, "subsector is not part of this sector"); err != nil {
			return err
		}
	}
	if listID != nil {
		l, err := lookup(ctx, *listID, s.store.GetPersonalList)
		if err := refErr(err, l.OwnerID == v.ID, "list does not belong to you"); err != nil {
			return err
		}
	}
	return nil
}

func lookup[T any](ctx context.Context, id string, get func(context.Context, string) (T, error)) (T, error) {
	if id == "" {
		var zero T
		return zero, store.ErrNotFound
	}
	return get(ctx, id)
}

func refErr(err error, ok bool, problem string) error {
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && !ok):
		return fmt.Errorf("%w: %s", ErrInvalidInput, problem)
	case err != nil:
		return fmt.Errorf("resolve reference: %w", err)
	}
	return nil
}

// History writes never fail the mutation they describe.
func (s *Service) recordHistory(ctx context.Context, activityID string, action store.HistoryAction, actor string, details map[string]any) {
	raw, err := json.Marshal(details)
	if err != nil {
		raw = []byte(`{}`)
	}
	entry := store.HistoryEntry{ActivityID: activityID, Action: action, PerformedBy: actor, Details: raw}
	if err := s.store.InsertHistory(ctx, entry); err != nil {
		s.logger.Warn("record activity history", zap.String("activity_id", activityID), zap.String("action", string(action)), zap.Error(err))
	}
}

func (s *Service) notifyAssignee(ctx context.Context, v store.Viewer, a store.Activity) {
	if a.AssigneeID == nil || *a.AssigneeID == v.ID {
		return
	}
	activityID := a.ID
	n := store.Notification{
		ID:         util.NewID(),
		UserID:     *a.AssigneeID,
		Kind:       "assigned",
		Title:      "New assignment",
		Body:       fmt.Sprintf("You were assigned to %q.", a.Title),
		ActivityID: &activityID,
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		s.logger.Warn("notify assignee", zap.String("activity_id", a.ID), zap.Error(err))
	}
}

func (s *Service) afterWrite(ctx context.Context, a store.Activity, op string) {
	if s.index != nil {
		s.index.IndexActivity(a)
	}
	s.publish(ctx, realtime.Change{Table: realtime.TableActivities, Op: op, ID: a.ID, SectorID: a.SectorID})
}

func (s *Service) publish(ctx context.Context, c realtime.Change) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, c); err != nil {
		s.logger.Warn("broadcast change", zap.String("table", c.Table), zap.String("id", c.ID), zap.Error(err))
	}
}

func requireViewer(v store.Viewer) error {
	if v.ID == "" {
		return ErrUnauthorized
	}
	if v.SectorID == "" {
		return ErrNoSector
	}
	return nil
}

func patchFields(p store.ActivityPatch) []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.Title != nil, "title")
	add(p.Description != nil, "description")
	add(p.Status != nil, "status")
	add(p.Priority != nil, "priority")
	add(p.DueDate != nil || p.ClearDueDate, "due_date")
	add(p.AssigneeID != nil || p.ClearAssignee, "assignee_id")
	add(p.SubsectorID != nil, "subsector_id")
	add(p.ListID != nil || p.ClearList, "list_id")
	add(p.IsPrivate != nil, "is_private")
	return fields
}
