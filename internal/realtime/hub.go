package realtime

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"sectorboard/api/internal/observability"
)

const DefaultDebounce = 300 * time.Millisecond

type key struct {
	table    string
	sectorID string
}

// Hub holds one channel per (table, sector) key, shared by every subscriber of that key.
type Hub struct {
	window time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	nextID   uint64
	channels map[key]map[uint64]*Debouncer
}

func NewHub(window time.Duration, logger *zap.Logger) *Hub {
	if window <= 0 {
		window = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{window: window, logger: logger, channels: make(map[key]map[uint64]*Debouncer)}
}

// Subscription is a single subscriber's handle on a hub channel.
type Subscription struct {
	hub  *Hub
	key  key
	id   uint64
	once sync.Once
}

// Subscribe registers refetch for changes on table within sectorID.
// Bursts are coalesced into one refetch per debounce window.
func (h *Hub) Subscribe(table, sectorID string, refetch func()) *Subscription {
	k := key{table: table, sectorID: sectorID}
	d := NewDebouncer(h.window, func() {
		observability.RecordRefetch(table)
		refetch()
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	subs, ok := h.channels[k]
	if !ok {
		subs = make(map[uint64]*Debouncer)
		h.channels[k] = subs
		h.logger.Debug("realtime channel opened", zap.String("table", table), zap.String("sector_id", sectorID))
	}
	subs[h.nextID] = d
	return &Subscription{hub: h, key: k, id: h.nextID}
}

// Unsubscribe releases the subscription; the channel closes with its last subscriber.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		subs := h.channels[s.key]
		d := subs[s.id]
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(h.channels, s.key)
			h.logger.Debug("realtime channel closed", zap.String("table", s.key.table), zap.String("sector_id", s.key.sectorID))
		}
		h.mu.Unlock()
		if d != nil {
			d.Stop()
		}
	})
}

// Dispatch routes a change to the subscribers of its key.
func (h *Hub) Dispatch(source string, c Change) {
	observability.RecordNotification(source, c.Table)

	h.mu.Lock()
	subs := h.channels[key{table: c.Table, sectorID: c.SectorID}]
	targets := make([]*Debouncer, 0, len(subs))
	for _, d := range subs {
		targets = append(targets, d)
	}
	h.mu.Unlock()

	for _, d := range targets {
		d.Trigger()
	}
}

// Channels reports how many distinct keys are open.
func (h *Hub) Channels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Subscribers reports how many subscribers share the key.
func (h *Hub) Subscribers(table, sectorID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels[key{table: table, sectorID: sectorID}])
}
