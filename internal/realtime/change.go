// Package realtime turns row changes into debounced refetch signals.
//
// Changes arrive from the Postgres change feed (Listener) or from local mutations
// published on a Bus. The Hub fans each change out to the subscribers registered for
// its (table, sector) key.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	TableActivities = "activities"
	TableSubtasks   = "subtasks"

	// Channel is the Postgres NOTIFY channel fed by the row triggers.
	Channel = "sectorboard_changes"
)

// Change is one row-level change notification.
type Change struct {
	Table    string `json:"table"`
	Op       string `json:"op"`
	ID       string `json:"id"`
	SectorID string `json:"sector_id"`
}

func ParseChange(payload []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(payload, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if c.Table == "" || c.SectorID == "" {
		return Change{}, fmt.Errorf("decode change: missing table or sector")
	}
	return c, nil
}

// Bus broadcasts locally originated changes.
type Bus interface {
	Publish(ctx context.Context, c Change) error
}

// Dispatcher receives changes from a feed.
type Dispatcher interface {
	Dispatch(source string, c Change)
}
