package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sectorboard/api/internal/store"
)

func newTestService() (*Service, *memStore, *recordingBus, *recordingIndex) {
	st := newMemStore()
	bus := &recordingBus{}
	idx := &recordingIndex{}
	svc := NewService(st, bus, idx, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return svc, st, bus, idx
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc, st, bus, idx := newTestService()

	a, err := svc.Create(context.Background(), collab, CreateInput{Title: "  Prepare report  ", SubsectorID: strPtr("sub-1")})
	require.NoError(t, err)

	assert.Equal(t, "Prepare report", a.Title)
	assert.Equal(t, store.StatusPending, a.Status)
	assert.Equal(t, store.PriorityMedium, a.Priority)
	require.NotNil(t, a.AssigneeID)
	assert.Equal(t, "col", *a.AssigneeID)
	assert.Equal(t, "col", a.CreatedBy)
	assert.Equal(t, "sec-1", a.SectorID)
	assert.Nil(t, a.CompletedAt)

	assert.Equal(t, []store.HistoryAction{store.HistoryCreated}, st.actions(a.ID))
	assert.Equal(t, []string{"INSERT"}, bus.ops())
	assert.Equal(t, []string{a.ID}, idx.indexed)
	assert.Empty(t, st.notifications)
}

func TestCreateAssignedToOtherNotifies(t *testing.T) {
	svc, st, _, _ := newTestService()

	a, err := svc.Create(context.Background(), manager, CreateInput{Title: "Audit", AssigneeID: strPtr("col")})
	require.NoError(t, err)

	require.Len(t, st.notifications, 1)
	assert.Equal(t, "col", st.notifications[0].UserID)
	assert.Equal(t, a.ID, *st.notifications[0].ActivityID)
}

func TestCreateRequiresViewerAndSector(t *testing.T) {
	svc, _, bus, _ := newTestService()

	_, err := svc.Create(context.Background(), store.Viewer{}, CreateInput{Title: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Create(context.Background(), store.Viewer{ID: "u"}, CreateInput{Title: "x"})
	assert.ErrorIs(t, err, ErrNoSector)

	_, err = svc.Create(context.Background(), manager, CreateInput{Title: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.Empty(t, bus.ops())
}

func TestCreateFailureReturnsNoRecord(t *testing.T) {
	svc, st, bus, _ := newTestService()
	st.InsertFn = func(store.Activity) (store.Activity, error) { return store.Activity{}, errors.New("insert failed") }

	a, err := svc.Create(context.Background(), manager, CreateInput{Title: "x"})
	require.Error(t, err)
	assert.Empty(t, a.ID)
	assert.Empty(t, bus.ops())
	assert.Empty(t, st.history)
}

func TestUpdateCompletionIff(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()
	a, err := svc.Create(ctx, manager, CreateInput{Title: "x"})
	require.NoError(t, err)

	done, err := svc.Update(ctx, manager, a.ID, store.ActivityPatch{Status: statusPtr(store.StatusCompleted)})
	require.NoError(t, err)
	assert.NotNil(t, done.CompletedAt)

	renamed, err := svc.Update(ctx, manager, a.ID, store.ActivityPatch{Title: strPtr("y")})
	require.NoError(t, err)
	assert.NotNil(t, renamed.CompletedAt, "patch without status keeps the stamp")

	reopened, err := svc.Update(ctx, manager, a.ID, store.ActivityPatch{Status: statusPtr(store.StatusInProgress)})
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)
}

func TestUpdateRecordsStatusChange(t *testing.T) {
	svc, st, bus, _ := newTestService()
	ctx := context.Background()
	a, err := svc.Create(ctx, manager, CreateInput{Title: "x"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, manager, a.ID, store.ActivityPatch{Status: statusPtr(store.StatusInProgress)})
	require.NoError(t, err)
	_, err = svc.Update(ctx, manager, a.ID, store.ActivityPatch{Description: strPtr("more")})
	require.NoError(t, err)

	assert.Equal(t, []store.HistoryAction{store.HistoryCreated, store.HistoryStatusChanged, store.HistoryUpdated}, st.actions(a.ID))
	assert.Equal(t, []string{"INSERT", "UPDATE", "UPDATE"}, bus.ops())
}

func TestUpdateRejectsEmptyAndInvisible(t *testing.T) {
	svc, st, _, _ := newTestService()
	ctx := context.Background()
	st.put(store.Activity{ID: "hidden", SectorID: "sec-1", CreatedBy: "x", SubsectorID: strPtr("sub-9"), Status: store.StatusPending})

	_, err := svc.Update(ctx, collab, "hidden", store.ActivityPatch{})
	assert.ErrorIs(t, err, ErrEmptyPatch)

	_, err = svc.Update(ctx, collab, "hidden", store.ActivityPatch{Title: strPtr("mine now")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Update(ctx, manager, "hidden", store.ActivityPatch{Status: statusPtr("done")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestArchiveThenUnarchiveRestoresPending(t *testing.T) {
	for _, prior := range []store.ActivityStatus{store.StatusPending, store.StatusInProgress, store.StatusCompleted} {
		t.Run(string(prior), func(t *testing.T) {
			svc, st, _, _ := newTestService()
			ctx := context.Background()
			a, err := svc.Create(ctx, manager, CreateInput{Title: "x", Status: statusPtr(prior)})
			require.NoError(t, err)

			archived, err := svc.Archive(ctx, manager, a.ID)
			require.NoError(t, err)
			assert.Equal(t, store.StatusArchived, archived.Status)
			assert.Nil(t, archived.CompletedAt)

			restored, err := svc.Unarchive(ctx, manager, a.ID)
			require.NoError(t, err)
			assert.Equal(t, store.StatusPending, restored.Status)
			assert.Nil(t, restored.CompletedAt)

			assert.Equal(t, []store.HistoryAction{store.HistoryCreated, store.HistoryArchived, store.HistoryUnarchived}, st.actions(a.ID))
		})
	}
}

func TestDeleteKeepsHistoryAndBroadcasts(t *testing.T) {
	svc, st, bus, idx := newTestService()
	ctx := context.Background()
	a, err := svc.Create(ctx, manager, CreateInput{Title: "x"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, manager, a.ID))

	_, err = svc.Get(ctx, manager, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []store.HistoryAction{store.HistoryCreated, store.HistoryDeleted}, st.actions(a.ID))
	assert.Equal(t, []string{"INSERT", "DELETE"}, bus.ops())
	assert.Equal(t, []string{a.ID}, idx.removed)

	assert.ErrorIs(t, svc.Delete(ctx, manager, a.ID), ErrNotFound)
}

func TestCollaboratorListHonoursCreatedByOverride(t *testing.T) {
	svc, st, _, _ := newTestService()
	st.put(store.Activity{ID: "A", SectorID: "sec-1", CreatedBy: "col", SubsectorID: strPtr("sub-2"), CreatedAt: time.Unix(3, 0)})
	st.put(store.Activity{ID: "B", SectorID: "sec-1", CreatedBy: "other", SubsectorID: strPtr("sub-2"), CreatedAt: time.Unix(2, 0)})
	st.put(store.Activity{ID: "C", SectorID: "sec-1", CreatedBy: "other", SubsectorID: strPtr("sub-1"), CreatedAt: time.Unix(1, 0)})

	items, err := svc.List(context.Background(), collab, Scope{})
	require.NoError(t, err)

	var ids []string
	for _, a := range items {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"A", "C"}, ids)
}

func TestHistoryRequiresVisibility(t *testing.T) {
	svc, st, _, _ := newTestService()
	st.put(store.Activity{ID: "p", SectorID: "sec-1", CreatedBy: "mgr", IsPrivate: true})

	entries, err := svc.History(context.Background(), manager, "p")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = svc.History(context.Background(), collab, "p")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateRejectsReferencesOutsideViewer(t *testing.T) {
	tests := []struct {
		name string
		in   CreateInput
	}{
		{"assignee in another sector", CreateInput{Title: "x", AssigneeID: strPtr("outsider")}},
		{"unknown assignee", CreateInput{Title: "x", AssigneeID: strPtr("ghost")}},
		{"subsector of another sector", CreateInput{Title: "x", SubsectorID: strPtr("sub-x")}},
		{"empty subsector", CreateInput{Title: "x", SubsectorID: strPtr("")}},
		{"someone else's list", CreateInput{Title: "x", ListID: strPtr("list-mgr")}},
		{"unknown list", CreateInput{Title: "x", ListID: strPtr("nope")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, bus, _ := newTestService()

			_, err := svc.Create(context.Background(), collab, tt.in)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Empty(t, st.rows)
			assert.Empty(t, st.notifications)
			assert.Empty(t, bus.ops())
		})
	}
}

func TestCreateAcceptsReferencesInsideViewer(t *testing.T) {
	svc, _, _, _ := newTestService()

	a, err := svc.Create(context.Background(), collab, CreateInput{
		Title: "Stock count", AssigneeID: strPtr("mgr"), SubsectorID: strPtr("sub-2"), ListID: strPtr("list-col"),
	})
	require.NoError(t, err)
	assert.Equal(t, "mgr", *a.AssigneeID)
	assert.Equal(t, "sub-2", *a.SubsectorID)
	assert.Equal(t, "list-col", *a.ListID)
}

func TestUpdateRejectsReferencesOutsideViewer(t *testing.T) {
	svc, st, _, _ := newTestService()
	ctx := context.Background()
	a, err := svc.Create(ctx, collab, CreateInput{Title: "Mine", SubsectorID: strPtr("sub-1")})
	require.NoError(t, err)

	for _, p := range []store.ActivityPatch{
		{AssigneeID: strPtr("outsider")},
		{SubsectorID: strPtr("sub-x")},
		{ListID: strPtr("list-mgr")},
	} {
		_, err := svc.Update(ctx, collab, a.ID, p)
		require.ErrorIs(t, err, ErrInvalidInput)
	}

	got, err := svc.Get(ctx, collab, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "col", *got.AssigneeID)
	assert.Equal(t, "sub-1", *got.SubsectorID)
	assert.Nil(t, got.ListID)
	assert.Empty(t, st.notifications)

	moved, err := svc.Update(ctx, collab, a.ID, store.ActivityPatch{ListID: strPtr("list-col")})
	require.NoError(t, err)
	assert.Equal(t, "list-col", *moved.ListID)
}
