package activity

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/store"
)

// memStore is an in-memory Store that applies the same visibility rule as the SQL.
type memStore struct {
	mu            sync.Mutex
	rows          map[string]store.Activity
	history       []store.HistoryEntry
	notifications []store.Notification
	profiles      map[string]store.Profile
	subsectors    map[string]store.Subsector
	lists         map[string]store.PersonalList
	clock         time.Time

	ListFn   func(f store.ActivityFilter) ([]store.Activity, error)
	InsertFn func(a store.Activity) (store.Activity, error)
}

func newMemStore() *memStore {
	return &memStore{
		rows: make(map[string]store.Activity),
		profiles: map[string]store.Profile{
			"mgr":      {ID: "mgr", Role: store.RoleManager, SectorID: "sec-1"},
			"col":      {ID: "col", Role: store.RoleCollaborator, SectorID: "sec-1"},
			"outsider": {ID: "outsider", Role: store.RoleCollaborator, SectorID: "sec-2"},
		},
		subsectors: map[string]store.Subsector{
			"sub-1": {ID: "sub-1", SectorID: "sec-1"},
			"sub-2": {ID: "sub-2", SectorID: "sec-1"},
			"sub-x": {ID: "sub-x", SectorID: "sec-2"},
		},
		lists: map[string]store.PersonalList{
			"list-col": {ID: "list-col", OwnerID: "col", Name: "Mine"},
			"list-mgr": {ID: "list-mgr", OwnerID: "mgr", Name: "Manager's"},
		},
		clock: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) put(a store.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = a
}

func (m *memStore) ListActivities(_ context.Context, f store.ActivityFilter) ([]store.Activity, error) {
	if m.ListFn != nil {
		return m.ListFn(f)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v := store.Viewer{ID: f.ViewerID, Role: f.ViewerRole, SectorID: f.SectorID, SubsectorIDs: f.ViewerSubsectorIDs}
	out := []store.Activity{}
	for _, a := range m.rows {
		if !Visible(v, a) {
			continue
		}
		if f.SubsectorID != "" && (a.SubsectorID == nil || *a.SubsectorID != f.SubsectorID) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, a.Status) {
			continue
		}
		if slices.Contains(f.ExcludeStatuses, a.Status) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) GetActivity(_ context.Context, id string) (store.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return store.Activity{}, store.ErrNotFound
	}
	return a, nil
}

func (m *memStore) InsertActivity(_ context.Context, a store.Activity) (store.Activity, error) {
	if m.InsertFn != nil {
		return m.InsertFn(a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Minute)
	a.CreatedAt, a.UpdatedAt = m.clock, m.clock
	m.rows[a.ID] = a
	return a, nil
}

func (m *memStore) UpdateActivity(_ context.Context, id string, p store.ActivityPatch) (store.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return store.Activity{}, store.ErrNotFound
	}
	if p.Title != nil {
		a.Title = *p.Title
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Status != nil {
		a.Status = *p.Status
	}
	if p.Priority != nil {
		a.Priority = *p.Priority
	}
	if p.ClearAssignee {
		a.AssigneeID = nil
	} else if p.AssigneeID != nil {
		a.AssigneeID = p.AssigneeID
	}
	if p.SubsectorID != nil {
		a.SubsectorID = p.SubsectorID
	}
	if p.ClearList {
		a.ListID = nil
	} else if p.ListID != nil {
		a.ListID = p.ListID
	}
	if p.IsPrivate != nil {
		a.IsPrivate = *p.IsPrivate
	}
	if p.ClearCompletedAt {
		a.CompletedAt = nil
	} else if p.CompletedAt != nil {
		a.CompletedAt = p.CompletedAt
	}
	m.rows[id] = a
	return a, nil
}

func (m *memStore) DeleteActivity(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memStore) InsertHistory(_ context.Context, e store.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, e)
	return nil
}

func (m *memStore) ListHistory(_ context.Context, activityID string) ([]store.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.HistoryEntry
	for _, e := range m.history {
		if e.ActivityID == activityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) InsertNotification(_ context.Context, n store.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *memStore) GetProfile(_ context.Context, id string) (store.Profile, error) {
	return lookupIn(&m.mu, m.profiles, id)
}

func (m *memStore) GetSubsector(_ context.Context, id string) (store.Subsector, error) {
	return lookupIn(&m.mu, m.subsectors, id)
}

func (m *memStore) GetPersonalList(_ context.Context, id string) (store.PersonalList, error) {
	return lookupIn(&m.mu, m.lists, id)
}

func lookupIn[T any](mu *sync.Mutex, rows map[string]T, id string) (T, error) {
	mu.Lock()
	defer mu.Unlock()
	v, ok := rows[id]
	if !ok {
		return v, store.ErrNotFound
	}
	return v, nil
}

func (m *memStore) actions(activityID string) []store.HistoryAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.HistoryAction
	for _, e := range m.history {
		if e.ActivityID == activityID {
			out = append(out, e.Action)
		}
	}
	return out
}

type recordingBus struct {
	mu      sync.Mutex
	changes []realtime.Change
}

func (b *recordingBus) Publish(_ context.Context, c realtime.Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.changes = append(b.changes, c)
	return nil
}

func (b *recordingBus) ops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.changes))
	for _, c := range b.changes {
		out = append(out, c.Op)
	}
	return out
}

type recordingIndex struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (r *recordingIndex) IndexActivity(a store.Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, a.ID)
}

func (r *recordingIndex) RemoveActivity(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func strPtr(s string) *string { return &s }

func statusPtr(s store.ActivityStatus) *store.ActivityStatus { return &s }

var (
	manager = store.Viewer{ID: "mgr", Role: store.RoleManager, SectorID: "sec-1"}
	collab  = store.Viewer{ID: "col", Role: store.RoleCollaborator, SectorID: "sec-1", SubsectorIDs: []string{"sub-1"}}
)
