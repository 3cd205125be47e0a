package search

import (
	"context"
	"strings"

	"sectorboard/api/internal/store"
)

type activityLister interface {
	ListActivities(ctx context.Context, f store.ActivityFilter) ([]store.Activity, error)
}

// PgSearcher runs searches as ILIKE queries against the activities table.
type PgSearcher struct {
	activities activityLister
}

func NewPgSearcher(activities activityLister) *PgSearcher {
	return &PgSearcher{activities: activities}
}

func (p *PgSearcher) Search(ctx context.Context, req Request) ([]store.Activity, error) {
	if strings.TrimSpace(req.Text) == "" {
		return []store.Activity{}, nil
	}
	f := req.Viewer.Filter()
	f.Text = req.Text
	f.ExcludeStatuses = []store.ActivityStatus{store.StatusArchived}
	f.Limit = normalizeLimit(req.Limit)
	return p.activities.ListActivities(ctx, f)
}
