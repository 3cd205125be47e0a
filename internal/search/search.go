// Package search answers free-text activity queries.
//
// Postgres ILIKE decides which activities match and their newest-first order. Meilisearch, when
// configured and healthy, only orders rows created at the same instant, so both backends return
// the same set.
package search

import (
	"strings"

	"sectorboard/api/internal/store"
)

const DefaultLimit = 20

// Request is one search against one viewer's visible activities.
type Request struct {
	Text   string
	Viewer store.Viewer
	Limit  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []store.Activity `json:"results"`
	Query   string           `json:"query"`
	Backend string           `json:"backend"`
}

// ActivityRecord is the document stored in the search index.
type ActivityRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	SectorID    string `json:"sectorId"`
	SubsectorID string `json:"subsectorId,omitempty"`
	CreatedBy   string `json:"createdBy"`
	IsPrivate   bool   `json:"isPrivate"`
	CreatedAt   int64  `json:"createdAt"`
}

func RecordFromActivity(a store.Activity) ActivityRecord {
	r := ActivityRecord{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Status:      string(a.Status),
		SectorID:    a.SectorID,
		CreatedBy:   a.CreatedBy,
		IsPrivate:   a.IsPrivate,
		CreatedAt:   a.CreatedAt.Unix(),
	}
	if a.SubsectorID != nil {
		r.SubsectorID = *a.SubsectorID
	}
	return r
}

// Matches reports whether a belongs in the results for text: a case-insensitive substring of
// title or description, never archived.
func Matches(a store.Activity, text string) bool {
	if a.Status == store.StatusArchived {
		return false
	}
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(a.Title), needle) ||
		strings.Contains(strings.ToLower(a.Description), needle)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > DefaultLimit {
		return DefaultLimit
	}
	return limit
}
