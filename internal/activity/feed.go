package activity

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sectorboard/api/internal/cache"
	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/realtime"
	"sectorboard/api/internal/store"
)

const refetchTimeout = 10 * time.Second

var feedSeq atomic.Uint64

// Snapshot is what a feed currently shows.
type Snapshot struct {
	Items   []store.Activity `json:"items"`
	Loading bool             `json:"loading"`
	Err     error            `json:"-"`
}

// Subscriber is the part of *realtime.Hub a feed uses.
type Subscriber interface {
	Subscribe(table, sectorID string, refetch func()) *realtime.Subscription
}

// Feed is one scoped, live view over a session's activities. It refetches when its scope
// changes and when the hub reports a change in the viewer's sector. Results from a
// superseded scope or a closed feed are discarded.
type Feed struct {
	svc    *Service
	hub    Subscriber
	cache  *cache.Cache
	viewer store.Viewer
	key    string
	logger *zap.Logger

	mu       sync.Mutex
	scope    Scope
	gen      uint64
	loading  bool
	err      error
	closed   bool
	sub      *realtime.Subscription
	watchers map[int]func(Snapshot)
	nextW    int
}

// NewFeed subscribes and performs the initial load before returning.
func NewFeed(ctx context.Context, svc *Service, hub Subscriber, c *cache.Cache, v store.Viewer, scope Scope, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Feed{
		svc:      svc,
		hub:      hub,
		cache:    c,
		viewer:   v,
		key:      fmt.Sprintf("feed-%d", feedSeq.Add(1)),
		logger:   logger,
		scope:    scope,
		loading:  true,
		watchers: make(map[int]func(Snapshot)),
	}
	f.register(scope)
	if hub != nil {
		f.sub = hub.Subscribe(realtime.TableActivities, v.SectorID, f.onChange)
	}
	f.Refetch(ctx)
	return f
}

func (f *Feed) register(scope Scope) {
	viewer := f.viewer
	f.cache.Register(f.key, func(a store.Activity) bool { return scope.Matches(viewer, a) })
}

// Snapshot reads the feed's items from the shared cache.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	loading, err := f.loading, f.err
	f.mu.Unlock()
	return Snapshot{Items: f.cache.View(f.key), Loading: loading, Err: err}
}

func (f *Feed) Scope() Scope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scope
}

// Watch calls fn after every change to the feed until the returned cancel is called.
func (f *Feed) Watch(fn func(Snapshot)) func() {
	f.mu.Lock()
	id := f.nextW
	f.nextW++
	f.watchers[id] = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.watchers, id)
		f.mu.Unlock()
	}
}

// Refetch reloads the current scope. A load overtaken by a newer one is dropped.
func (f *Feed) Refetch(ctx context.Context) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.gen++
	gen, scope, viewer := f.gen, f.scope, f.viewer
	f.loading = true
	f.mu.Unlock()

	started := time.Now()
	items, err := f.svc.List(ctx, viewer, scope)
	observability.ObserveRefetch(realtime.TableActivities, started)

	f.mu.Lock()
	if f.closed || gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.loading = false
	f.err = err
	if err == nil {
		f.cache.Replace(f.key, items)
	} else {
		f.logger.Warn("activity refetch failed", zap.String("sector_id", viewer.SectorID), zap.Error(err))
	}
	f.mu.Unlock()
	f.emit()
}

// SetScope switches the feed to scope and reloads. The hub subscription is keyed by the
// viewer's sector, which a scope cannot change, so it is kept.
func (f *Feed) SetScope(ctx context.Context, scope Scope) {
	f.mu.Lock()
	if f.closed || f.scope.Key() == scope.Key() {
		f.mu.Unlock()
		return
	}
	f.scope = scope
	f.register(scope)
	f.mu.Unlock()
	f.Refetch(ctx)
}

// SetViewer re-targets the feed at another viewer, moving the realtime subscription when
// the sector changes.
func (f *Feed) SetViewer(ctx context.Context, v store.Viewer) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	old := f.sub
	moved := v.SectorID != f.viewer.SectorID
	f.viewer = v
	f.register(f.scope)
	if moved {
		f.sub = nil
	}
	f.mu.Unlock()

	if moved && f.hub != nil {
		if old != nil {
			old.Unsubscribe()
		}
		sub := f.hub.Subscribe(realtime.TableActivities, v.SectorID, f.onChange)
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			sub.Unsubscribe()
			return
		}
		f.sub = sub
		f.mu.Unlock()
	}
	f.Refetch(ctx)
}

func (f *Feed) onChange() {
	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()
	f.Refetch(ctx)
}

// Close releases the subscription and the cache view. Later loads are discarded.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	sub := f.sub
	f.sub = nil
	f.watchers = map[int]func(Snapshot){}
	f.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	f.cache.Drop(f.key)
}

func (f *Feed) currentViewer() store.Viewer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewer
}

func (f *Feed) Create(ctx context.Context, in CreateInput) (store.Activity, error) {
	a, err := f.svc.Create(ctx, f.currentViewer(), in)
	return f.applied(a, err)
}

func (f *Feed) Update(ctx context.Context, id string, p store.ActivityPatch) (store.Activity, error) {
	a, err := f.svc.Update(ctx, f.currentViewer(), id, p)
	return f.applied(a, err)
}

func (f *Feed) Archive(ctx context.Context, id string) (store.Activity, error) {
	a, err := f.svc.Archive(ctx, f.currentViewer(), id)
	return f.applied(a, err)
}

func (f *Feed) Unarchive(ctx context.Context, id string) (store.Activity, error) {
	a, err := f.svc.Unarchive(ctx, f.currentViewer(), id)
	return f.applied(a, err)
}

func (f *Feed) Delete(ctx context.Context, id string) error {
	if err := f.svc.Delete(ctx, f.currentViewer(), id); err != nil {
		return err
	}
	f.mu.Lock()
	f.supersedeLocked()
	f.cache.Remove(id)
	f.mu.Unlock()
	f.emit()
	return nil
}

// applied patches the shared cache before returning so the caller's next read reflects
// its own write.
func (f *Feed) applied(a store.Activity, err error) (store.Activity, error) {
	if err != nil {
		return store.Activity{}, err
	}
	f.mu.Lock()
	f.supersedeLocked()
	f.cache.Upsert(a)
	f.mu.Unlock()
	f.emit()
	return a, nil
}

// supersedeLocked drops any load started before a local write; its rows predate the write.
// The write's own change notification brings the next refetch.
func (f *Feed) supersedeLocked() {
	f.gen++
	f.loading = false
}

func (f *Feed) emit() {
	snap := f.Snapshot()
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	fns := make([]func(Snapshot), 0, len(f.watchers))
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
