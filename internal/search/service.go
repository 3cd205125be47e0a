package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"sectorboard/api/internal/observability"
	"sectorboard/api/internal/store"
)

const (
	BackendMeili    = "meilisearch"
	BackendPostgres = "postgres"

	reindexBatch = 500
)

// indexer is the optional full-text backend. *Meili satisfies it.
type indexer interface {
	Healthy() bool
	SearchIDs(text, sectorID string, limit int) ([]string, error)
	IndexActivity(r ActivityRecord) error
	IndexActivities(records []ActivityRecord) error
	DeleteActivity(id string) error
}

// activitySource lists every row that belongs in the index.
type activitySource interface {
	ListSearchableActivities(ctx context.Context) ([]store.Activity, error)
}

// Service tries the index first and falls back to Postgres.
type Service struct {
	index  indexer
	pg     *PgSearcher
	logger *zap.Logger
}

// NewService creates a search service. index may be nil when Meilisearch is not configured.
func NewService(index indexer, activities activityLister, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, pg: NewPgSearcher(activities), logger: logger}
}

// Search never returns archived rows or rows outside the viewer's visibility. The result set
// and its newest-first order always come from Postgres; a healthy index only breaks ties.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Response{Results: []store.Activity{}, Query: req.Text}, nil
	}
	req.Limit = normalizeLimit(req.Limit)

	backend := BackendPostgres
	var ranking []string
	if s.index != nil && s.index.Healthy() {
		ids, err := s.index.SearchIDs(text, req.Viewer.SectorID, req.Limit*3)
		if err != nil {
			s.logger.Warn("meilisearch error, falling back to postgres", zap.Error(err))
		} else {
			backend, ranking = BackendMeili, ids
		}
	}

	results, err := s.pg.Search(ctx, req)
	if err != nil {
		return Response{Results: []store.Activity{}, Query: req.Text}, err
	}
	if backend == BackendMeili {
		results = rankByIndex(results, ranking)
	}
	observability.RecordSearch(backend)
	return Response{Results: results, Query: req.Text, Backend: backend}, nil
}

// rankByIndex keeps rows newest first and orders rows created at the same instant by index
// relevance. Rows the index missed keep their Postgres order.
func rankByIndex(rows []store.Activity, ranking []string) []store.Activity {
	pos := make(map[string]int, len(ranking))
	for i, id := range ranking {
		if _, seen := pos[id]; !seen {
			pos[id] = i
		}
	}
	out := make([]store.Activity, len(rows))
	copy(out, rows)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		pi, iok := pos[out[i].ID]
		pj, jok := pos[out[j].ID]
		if iok && jok {
			return pi < pj
		}
		return iok && !jok
	})
	return out
}

// IndexActivity upserts the activity in the index in the background.
func (s *Service) IndexActivity(a store.Activity) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	record := RecordFromActivity(a)
	go func() {
		if err := s.index.IndexActivity(record); err != nil {
			s.logger.Warn("index activity", zap.String("activity_id", record.ID), zap.Error(err))
		}
	}()
}

// RemoveActivity drops the activity from the index in the background.
func (s *Service) RemoveActivity(id string) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.index.DeleteActivity(id); err != nil {
			s.logger.Warn("delete activity from index", zap.String("activity_id", id), zap.Error(err))
		}
	}()
}

// Reindex pushes every non-archived activity to the index in batches of reindexBatch.
// It is a no-op while the index is unconfigured or unhealthy.
func (s *Service) Reindex(ctx context.Context, src activitySource) (int, error) {
	if s.index == nil || !s.index.Healthy() {
		return 0, nil
	}
	rows, err := src.ListSearchableActivities(ctx)
	if err != nil {
		return 0, fmt.Errorf("load activities for reindex: %w", err)
	}
	indexed := 0
	for start := 0; start < len(rows); start += reindexBatch {
		end := min(start+reindexBatch, len(rows))
		batch := make([]ActivityRecord, 0, end-start)
		for _, a := range rows[start:end] {
			batch = append(batch, RecordFromActivity(a))
		}
		if err := s.index.IndexActivities(batch); err != nil {
			return indexed, fmt.Errorf("index batch at %d: %w", start, err)
		}
		indexed += len(batch)
	}
	s.logger.Info("search index rebuilt", zap.Int("activities", indexed))
	return indexed, nil
}

// Backend names the backend a search would use right now.
func (s *Service) Backend() string {
	if s.index != nil && s.index.Healthy() {
		return BackendMeili
	}
	return BackendPostgres
}
