package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sectorboard/api/internal/store"
)

func TestNewStoreStartsLoading(t *testing.T) {
	st := NewStore()
	assert.True(t, st.Snapshot().Loading)
	assert.False(t, st.Snapshot().Authorized())
}

func TestStoreClaimIsOneShot(t *testing.T) {
	st := NewStore()
	assert.True(t, st.claim())
	assert.False(t, st.claim())
	assert.False(t, st.claim())
}

func TestAuthorizedRequiresApprovedProfile(t *testing.T) {
	id := &Identity{UserID: "u"}
	assert.False(t, State{User: id}.Authorized())
	assert.False(t, State{User: id, Profile: &store.Profile{IsApproved: false}}.Authorized())
	assert.True(t, State{User: id, Profile: &store.Profile{IsApproved: true}}.Authorized())
}

func TestWatchReceivesChangesUntilCancelled(t *testing.T) {
	st := NewStore()
	var seen []State
	cancel := st.Watch(func(s State) { seen = append(seen, s) })

	st.setUser(Identity{UserID: "u"})
	st.setProfile(&store.Profile{ID: "u", IsApproved: true})
	cancel()
	st.Clear()

	if assert.Len(t, seen, 2) {
		assert.True(t, seen[0].Loading)
		assert.False(t, seen[1].Loading)
		assert.Equal(t, "u", seen[1].Profile.ID)
	}
}
