package session

import (
	"sync"

	"sectorboard/api/internal/store"
)

// State is a point-in-time copy of a client session.
type State struct {
	User    *Identity
	Profile *store.Profile
	Loading bool
}

// Authorized reports whether the session belongs to an approved application user.
// An authenticated identity without a profile is never authorized.
func (s State) Authorized() bool {
	return s.User != nil && s.Profile != nil && s.Profile.IsApproved
}

// Store holds the state of one client session for its whole lifetime.
// It also owns the bootstrap guard, so a session is bootstrapped at most once.
type Store struct {
	mu           sync.RWMutex
	state        State
	bootstrapped bool
	watchers     map[int]func(State)
	nextWatcher  int
}

func NewStore() *Store {
	return &Store{
		state:    State{Loading: true},
		watchers: make(map[int]func(State)),
	}
}

func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Watch registers fn to receive every state change. The returned func stops delivery.
func (s *Store) Watch(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// claim flips the bootstrap guard and reports whether the caller won it.
func (s *Store) claim() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bootstrapped {
		return false
	}
	s.bootstrapped = true
	return true
}

func (s *Store) setUser(id Identity) {
	s.update(func(st *State) {
		st.User = &id
		st.Profile = nil
		st.Loading = true
	})
}

func (s *Store) setProfile(p *store.Profile) {
	s.update(func(st *State) {
		st.Profile = p
		st.Loading = false
	})
}

// Clear drops identity and profile and ends loading.
func (s *Store) Clear() {
	s.update(func(st *State) {
		*st = State{}
	})
}

func (s *Store) update(fn func(*State)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot := s.state
	watchers := make([]func(State), 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		w(snapshot)
	}
}
