// Package activity owns activity mutations and the scoped, realtime-refreshed feeds
// that present them.
package activity

import (
	"slices"
	"strings"
	"time"

	"sectorboard/api/internal/store"
)

// ApplyCompletionRule keeps completed_at in step with status. It only acts when the patch
// sets a status: completed stamps now unless a timestamp was supplied, anything else clears it.
func ApplyCompletionRule(p *store.ActivityPatch, now time.Time) {
	if p.Status == nil {
		return
	}
	if *p.Status == store.StatusCompleted {
		p.ClearCompletedAt = false
		if p.CompletedAt == nil {
			stamp := now
			p.CompletedAt = &stamp
		}
		return
	}
	p.CompletedAt = nil
	p.ClearCompletedAt = true
}

// Visible mirrors the SQL visibility rule for a single row.
func Visible(v store.Viewer, a store.Activity) bool {
	if a.SectorID != v.SectorID {
		return false
	}
	if a.IsPrivate && a.CreatedBy != v.ID {
		return false
	}
	if v.Role == store.RoleManager || a.CreatedBy == v.ID {
		return true
	}
	return a.SubsectorID != nil && slices.Contains(v.SubsectorIDs, *a.SubsectorID)
}

// Scope narrows a feed within the viewer's sector.
type Scope struct {
	SubsectorID string
	// UserID selects activities assigned to the user.
	UserID   string
	ListID   string
	Statuses []store.ActivityStatus
}

// Key identifies equivalent scopes.
func (s Scope) Key() string {
	statuses := make([]string, 0, len(s.Statuses))
	for _, st := range s.Statuses {
		statuses = append(statuses, string(st))
	}
	slices.Sort(statuses)
	return strings.Join([]string{s.SubsectorID, s.UserID, s.ListID, strings.Join(statuses, ",")}, "|")
}

func (s Scope) Filter(v store.Viewer) store.ActivityFilter {
	f := v.Filter()
	f.SubsectorID = s.SubsectorID
	f.AssigneeID = s.UserID
	f.ListID = s.ListID
	f.Statuses = s.Statuses
	return f
}

// Matches reports whether a belongs in the scope for v. Additional assignees are not
// known locally; such rows arrive with the next refetch.
func (s Scope) Matches(v store.Viewer, a store.Activity) bool {
	if !Visible(v, a) {
		return false
	}
	if s.SubsectorID != "" && (a.SubsectorID == nil || *a.SubsectorID != s.SubsectorID) {
		return false
	}
	if s.UserID != "" && (a.AssigneeID == nil || *a.AssigneeID != s.UserID) {
		return false
	}
	if s.ListID != "" && (a.ListID == nil || *a.ListID != s.ListID) {
		return false
	}
	if len(s.Statuses) > 0 && !slices.Contains(s.Statuses, a.Status) {
		return false
	}
	return true
}
