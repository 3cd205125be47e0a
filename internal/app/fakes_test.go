package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"sectorboard/api/internal/activity"
	"sectorboard/api/internal/approval"
	"sectorboard/api/internal/authpw"
	"sectorboard/api/internal/config"
	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/search"
	"sectorboard/api/internal/session"
	"sectorboard/api/internal/store"
)

const testAPIKey = "test-api-key"

// fakeStore backs every collaborator the app tests wire up.
type fakeStore struct {
	mu         sync.Mutex
	pingFn     func(context.Context) error
	profiles   map[string]store.Profile
	subsectors map[string][]string
	authUsers  map[string]store.AuthUser
	pending    []store.PendingUser
	activities map[string]store.Activity
	history    []store.HistoryEntry
	clock      time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:   make(map[string]store.Profile),
		subsectors: make(map[string][]string),
		authUsers:  make(map[string]store.AuthUser),
		activities: make(map[string]store.Activity),
		clock:      time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetProfile(_ context.Context, userID string) (store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return store.Profile{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) ViewerSubsectorIDs(_ context.Context, profileID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subsectors[profileID]...), nil
}

func (f *fakeStore) GetAuthUserByEmail(_ context.Context, email string) (store.AuthUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.authUsers[strings.ToLower(email)]
	if !ok {
		return store.AuthUser{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) InsertAuthUser(_ context.Context, u store.AuthUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.authUsers[u.Email]; ok {
		return store.ErrDuplicate
	}
	f.authUsers[u.Email] = u
	return nil
}

func (f *fakeStore) InsertPendingUser(_ context.Context, p store.PendingUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, p)
	return nil
}

func (f *fakeStore) SectorExists(_ context.Context, sectorID string) (bool, error) {
	return sectorID == "sec-1", nil
}

func (f *fakeStore) GetSubsector(_ context.Context, id string) (store.Subsector, error) {
	if id == "sub-1" {
		return store.Subsector{ID: id, SectorID: "sec-1", Name: "Logistics"}, nil
	}
	return store.Subsector{}, store.ErrNotFound
}

func (f *fakeStore) GetPersonalList(context.Context, string) (store.PersonalList, error) {
	return store.PersonalList{}, store.ErrNotFound
}

func (f *fakeStore) GetOpenInvitation(context.Context, string) (store.Invitation, error) {
	return store.Invitation{}, store.ErrNotFound
}

func (f *fakeStore) SetInvitationStatus(context.Context, string, string) error {
	return nil
}

func (f *fakeStore) ListActivities(_ context.Context, filter store.ActivityFilter) ([]store.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := store.Viewer{ID: filter.ViewerID, Role: filter.ViewerRole, SectorID: filter.SectorID, SubsectorIDs: filter.ViewerSubsectorIDs}
	out := []store.Activity{}
	for _, a := range f.activities {
		if !activity.Visible(v, a) {
			continue
		}
		if filter.SubsectorID != "" && (a.SubsectorID == nil || *a.SubsectorID != filter.SubsectorID) {
			continue
		}
		if filter.AssigneeID != "" && (a.AssigneeID == nil || *a.AssigneeID != filter.AssigneeID) {
			continue
		}
		if filter.ListID != "" && (a.ListID == nil || *a.ListID != filter.ListID) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, a.Status) {
			continue
		}
		if slices.Contains(filter.ExcludeStatuses, a.Status) {
			continue
		}
		if filter.IDs != nil && !slices.Contains(filter.IDs, a.ID) {
			continue
		}
		if filter.Text != "" && !search.Matches(a, filter.Text) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeStore) GetActivity(_ context.Context, id string) (store.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok {
		return store.Activity{}, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) InsertActivity(_ context.Context, a store.Activity) (store.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = f.clock.Add(time.Minute)
	a.CreatedAt, a.UpdatedAt = f.clock, f.clock
	f.activities[a.ID] = a
	return a, nil
}

func (f *fakeStore) UpdateActivity(_ context.Context, id string, p store.ActivityPatch) (store.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
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
	if p.IsPrivate != nil {
		a.IsPrivate = *p.IsPrivate
	}
	if p.ClearAssignee {
		a.AssigneeID = nil
	} else if p.AssigneeID != nil {
		a.AssigneeID = p.AssigneeID
	}
	if p.ClearList {
		a.ListID = nil
	} else if p.ListID != nil {
		a.ListID = p.ListID
	}
	if p.ClearDueDate {
		a.DueDate = nil
	} else if p.DueDate != nil {
		a.DueDate = p.DueDate
	}
	if p.ClearCompletedAt {
		a.CompletedAt = nil
	} else if p.CompletedAt != nil {
		a.CompletedAt = p.CompletedAt
	}
	f.activities[id] = a
	return a, nil
}

func (f *fakeStore) DeleteActivity(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.activities[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.activities, id)
	return nil
}

func (f *fakeStore) InsertHistory(_ context.Context, e store.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, e)
	return nil
}

func (f *fakeStore) ListHistory(_ context.Context, activityID string) ([]store.HistoryEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.HistoryEntry
	for _, e := range f.history {
		if e.ActivityID == activityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertNotification(context.Context, store.Notification) error {
	return nil
}

func (f *fakeStore) InsertProfile(_ context.Context, p store.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.profiles[p.ID]; ok {
		return store.ErrDuplicate
	}
	f.profiles[p.ID] = p
	return nil
}

func (f *fakeStore) GetPendingUser(_ context.Context, id string) (store.PendingUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pending {
		if p.ID == id {
			return p, nil
		}
	}
	return store.PendingUser{}, store.ErrNotFound
}

func (f *fakeStore) ListPendingUsers(_ context.Context, sectorID string, status store.PendingStatus) ([]store.PendingUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []store.PendingUser{}
	for _, p := range f.pending {
		if p.SectorID == sectorID && p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) SetPendingStatus(_ context.Context, id string, status store.PendingStatus, reviewedBy string, reviewedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pending {
		if f.pending[i].ID == id {
			f.pending[i].Status = status
			f.pending[i].ReviewedBy = &reviewedBy
			f.pending[i].ReviewedAt = &reviewedAt
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) putProfile(p store.Profile, subsectors ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.ID] = p
	f.subsectors[p.ID] = subsectors
}

func (f *fakeStore) putActivity(a store.Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities[a.ID] = a
}

func (f *fakeStore) putAuthUser(t *testing.T, id, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authUsers[email] = store.AuthUser{ID: id, Email: email, PasswordHash: string(hash)}
}

type testEnv struct {
	server *HTTPServer
	store  *fakeStore
	tokens *session.Tokens
	hub    *realtime.Hub
}

// newTestEnv wires the real services over fakeStore, with refresh sessions in miniredis.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fs := newFakeStore()
	tokens := session.NewTokens("test-secret", time.Hour, 24*time.Hour, session.NewRedisStoreWithClient(client))
	hub := realtime.NewHub(20*time.Millisecond, zap.NewNop())
	bus := realtime.NewLocalBus(hub)
	searchSvc := search.NewService(nil, fs, zap.NewNop())

	cfg := config.Config{APIKey: testAPIKey, CORSOrigin: "*", SearchDebounce: 10 * time.Millisecond, SearchLimit: 20}
	svc := New(cfg, Components{
		Store:      fs,
		Tokens:     tokens,
		Accounts:   authpw.NewService(fs),
		Activities: activity.NewService(fs, bus, searchSvc, zap.NewNop()),
		Approvals:  approval.NewService(fs, nil, "Sectorboard", "http://localhost:5173/login", zap.NewNop()),
		Search:     searchSvc,
		Hub:        hub,
	}, zap.NewNop())

	return &testEnv{server: NewHTTPServer(svc, zap.NewNop()), store: fs, tokens: tokens, hub: hub}
}

// signIn stores an approved profile and returns an access token for it.
func (e *testEnv) signIn(t *testing.T, p store.Profile, subsectors ...string) string {
	t.Helper()
	e.store.putProfile(p, subsectors...)
	pair, err := e.tokens.Issue(context.Background(), p.ID, string(p.Role))
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}
	return pair.AccessToken
}

func managerProfile() store.Profile {
	return store.Profile{ID: "mgr", Email: "mgr@example.com", DisplayName: "Mara", Role: store.RoleManager, SectorID: "sec-1", IsApproved: true}
}

func collaboratorProfile() store.Profile {
	sub := "sub-1"
	return store.Profile{ID: "col", Email: "col@example.com", DisplayName: "Cole", Role: store.RoleCollaborator, SectorID: "sec-1", SubsectorID: &sub, IsApproved: true}
}

func strPtr(s string) *string { return &s }

// do sends a request through the full handler chain with the API key set.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("apikey", testAPIKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}
