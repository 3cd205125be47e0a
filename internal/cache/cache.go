// Package cache holds one normalized copy of every activity a client session has loaded.
//
// Feeds register views: ordered id projections plus a membership predicate. A mutation
// patches the entity once and every view sees it.
package cache

import (
	"sort"
	"sync"

	"sectorboard/api/internal/store"
)

type view struct {
	match func(store.Activity) bool
	ids   []string
}

type Cache struct {
	mu    sync.RWMutex
	items map[string]store.Activity
	views map[string]*view
}

func New() *Cache {
	return &Cache{items: make(map[string]store.Activity), views: make(map[string]*view)}
}

// Register declares a view. Re-registering a key replaces its predicate and keeps its ids.
func (c *Cache) Register(key string, match func(store.Activity) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.views[key]; ok {
		v.match = match
		return
	}
	c.views[key] = &view{match: match}
}

// Drop forgets a view and garbage-collects entities no other view references.
func (c *Cache) Drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, key)
	c.collectLocked()
}

// Replace sets the view to exactly items, in the given order.
func (c *Cache) Replace(key string, items []store.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[key]
	if !ok {
		v = &view{}
		c.views[key] = v
	}
	ids := make([]string, 0, len(items))
	for _, a := range items {
		c.items[a.ID] = a
		ids = append(ids, a.ID)
	}
	v.ids = ids
	c.collectLocked()
}

// View materializes a view, newest first as loaded.
func (c *Cache) View(key string) []store.Activity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[key]
	if !ok {
		return []store.Activity{}
	}
	out := make([]store.Activity, 0, len(v.ids))
	for _, id := range v.ids {
		if a, ok := c.items[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

func (c *Cache) Get(id string) (store.Activity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.items[id]
	return a, ok
}

// Upsert stores a and moves it in or out of every view whose predicate changed its answer.
func (c *Cache) Upsert(a store.Activity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[a.ID] = a
	for _, v := range c.views {
		if v.match == nil {
			continue
		}
		idx := indexOf(v.ids, a.ID)
		switch matched := v.match(a); {
		case matched && idx < 0:
			v.ids = c.insertSortedLocked(v.ids, a)
		case !matched && idx >= 0:
			v.ids = append(v.ids[:idx], v.ids[idx+1:]...)
		}
	}
	c.collectLocked()
}

// Remove deletes the entity from the cache and every view.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, id)
	for _, v := range c.views {
		if idx := indexOf(v.ids, id); idx >= 0 {
			v.ids = append(v.ids[:idx], v.ids[idx+1:]...)
		}
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// insertSortedLocked keeps created_at DESC, id DESC ordering, matching the store.
func (c *Cache) insertSortedLocked(ids []string, a store.Activity) []string {
	pos := sort.Search(len(ids), func(i int) bool {
		other := c.items[ids[i]]
		if other.CreatedAt.Equal(a.CreatedAt) {
			return other.ID < a.ID
		}
		return other.CreatedAt.Before(a.CreatedAt)
	})
	ids = append(ids, "")
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = a.ID
	return ids
}

func (c *Cache) collectLocked() {
	referenced := make(map[string]struct{}, len(c.items))
	for _, v := range c.views {
		for _, id := range v.ids {
			referenced[id] = struct{}{}
		}
	}
	for id := range c.items {
		if _, ok := referenced[id]; !ok {
			delete(c.items, id)
		}
	}
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
