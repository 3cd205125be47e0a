package directory

import (
	"context"
	"sync"
	"time"

	"sectorboard/api/internal/email"
	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/store"
)

type fakeStore struct {
	mu            sync.Mutex
	profiles      map[string]store.Profile
	subsectors    map[string]store.Subsector
	lists         map[string]store.PersonalList
	assignees     map[string][]string
	memberships   map[string][]string
	notifications []store.Notification
	invitations   map[string]store.Invitation
	deleted       []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles: map[string]store.Profile{
			"mgr":   {ID: "mgr", DisplayName: "Maria", Role: store.RoleManager, SectorID: "sec-1", IsApproved: true},
			"mgr-2": {ID: "mgr-2", Role: store.RoleManager, SectorID: "sec-2", IsApproved: true},
			"col":   {ID: "col", Role: store.RoleCollaborator, SectorID: "sec-1", IsApproved: true},
			"col-2": {ID: "col-2", Role: store.RoleCollaborator, SectorID: "sec-1", IsApproved: true},
			"out":   {ID: "out", Role: store.RoleCollaborator, SectorID: "sec-2", IsApproved: true},
		},
		subsectors: map[string]store.Subsector{
			"sub-1": {ID: "sub-1", SectorID: "sec-1", Name: "North"},
			"sub-9": {ID: "sub-9", SectorID: "sec-2", Name: "Elsewhere"},
		},
		lists:       map[string]store.PersonalList{},
		assignees:   map[string][]string{},
		memberships: map[string][]string{},
		invitations: map[string]store.Invitation{},
	}
}

func (f *fakeStore) GetProfile(_ context.Context, id string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ListProfilesBySector(_ context.Context, sectorID string) ([]store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Profile
	for _, p := range f.profiles {
		if p.SectorID == sectorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSector(_ context.Context, id string) (store.Sector, error) {
	return store.Sector{ID: id, Name: "Operations"}, nil
}

func (f *fakeStore) GetSubsector(_ context.Context, id string) (store.Subsector, error) {
	sub, ok := f.subsectors[id]
	if !ok {
		return store.Subsector{}, store.ErrNotFound
	}
	return sub, nil
}

func (f *fakeStore) ListSubsectors(_ context.Context, sectorID string) ([]store.Subsector, error) {
	var out []store.Subsector
	for _, sub := range f.subsectors {
		if sub.SectorID == sectorID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.profiles, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) ListPersonalLists(_ context.Context, ownerID string) ([]store.PersonalList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.PersonalList{}
	for _, l := range f.lists {
		if l.OwnerID == ownerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) GetPersonalList(_ context.Context, id string) (store.PersonalList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	if !ok {
		return store.PersonalList{}, store.ErrNotFound
	}
	return l, nil
}

func (f *fakeStore) InsertPersonalList(_ context.Context, l store.PersonalList) (store.PersonalList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[l.ID] = l
	return l, nil
}

func (f *fakeStore) RenamePersonalList(_ context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lists[id]
	if !ok {
		return store.ErrNotFound
	}
	l.Name = name
	f.lists[id] = l
	return nil
}

func (f *fakeStore) DeletePersonalList(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lists, id)
	return nil
}

func (f *fakeStore) ListAssignees(_ context.Context, activityID string) ([]store.ActivityAssignee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.ActivityAssignee{}
	for _, id := range f.assignees[activityID] {
		out = append(out, store.ActivityAssignee{ActivityID: activityID, UserID: id})
	}
	return out, nil
}

func (f *fakeStore) InsertAssignee(_ context.Context, activityID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignees[activityID] = append(f.assignees[activityID], userID)
	return nil
}

func (f *fakeStore) DeleteAssignee(_ context.Context, activityID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.assignees[activityID]
	for i, id := range ids {
		if id == userID {
			f.assignees[activityID] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListSubsectorMemberships(_ context.Context, profileID string) ([]store.SubsectorMembership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.SubsectorMembership{}
	for _, sub := range f.memberships[profileID] {
		out = append(out, store.SubsectorMembership{ProfileID: profileID, SubsectorID: sub})
	}
	return out, nil
}

func (f *fakeStore) InsertSubsectorMembership(_ context.Context, profileID, subsectorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberships[profileID] = append(f.memberships[profileID], subsectorID)
	return nil
}

func (f *fakeStore) DeleteSubsectorMembership(_ context.Context, profileID, subsectorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.memberships[profileID]
	for i, sub := range subs {
		if sub == subsectorID {
			f.memberships[profileID] = append(subs[:i], subs[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) InsertNotification(_ context.Context, n store.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Notification{}
	for _, n := range f.notifications {
		if n.UserID == userID && (!unreadOnly || n.ReadAt == nil) && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, userID, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notifications {
		if n.ID == id && n.UserID == userID && n.ReadAt == nil {
			f.notifications[i].ReadAt = &at
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) InsertInvitation(_ context.Context, inv store.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invitations[inv.ID] = inv
	return nil
}

func (f *fakeStore) GetInvitation(_ context.Context, id string) (store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[id]
	if !ok {
		return store.Invitation{}, store.ErrNotFound
	}
	return inv, nil
}

func (f *fakeStore) ListInvitations(_ context.Context, sectorID string) ([]store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.Invitation{}
	for _, inv := range f.invitations {
		if inv.SectorID == sectorID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeStore) SetInvitationStatus(_ context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invitations[id]
	if !ok {
		return store.ErrNotFound
	}
	inv.Status = status
	f.invitations[id] = inv
	return nil
}

type fakeActivities map[string]store.Activity

func (f fakeActivities) Get(_ context.Context, v store.Viewer, id string) (store.Activity, error) {
	a, ok := f[id]
	if !ok || a.SectorID != v.SectorID {
		return store.Activity{}, ErrNotFound
	}
	return a, nil
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

type fakeMailer struct {
	sent chan email.InvitationData
	to   chan string
}

func (m *fakeMailer) IsConfigured() bool { return true }

func (m *fakeMailer) SendInvitationEmail(to string, data email.InvitationData) error {
	m.to <- to
	m.sent <- data
	return nil
}

var (
	managerViewer = store.Viewer{ID: "mgr", Role: store.RoleManager, SectorID: "sec-1"}
	collabViewer  = store.Viewer{ID: "col", Role: store.RoleCollaborator, SectorID: "sec-1"}
)

func newTestService() (*Service, *fakeStore, *recordingBus, *fakeMailer) {
	st := newFakeStore()
	bus := &recordingBus{}
	mailer := &fakeMailer{sent: make(chan email.InvitationData, 1), to: make(chan string, 1)}
	acts := fakeActivities{"act-1": {ID: "act-1", Title: "Budget", SectorID: "sec-1"}}
	svc := NewService(st, acts, bus, mailer, Options{PublicURL: "https://board.example.com/", InvitationTTL: time.Hour}, nil)
	svc.now = func() time.Time { return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, st, bus, mailer
}
