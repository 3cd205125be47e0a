package app

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"sectorboard/api/internal/activity"
	"sectorboard/api/internal/session"
	"sectorboard/api/internal/store"
)

const dateLayout = "2006-01-02"

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func activityPayload(a store.Activity) map[string]any {
	return map[string]any{
		"id":            a.ID,
		"title":         a.Title,
		"description":   a.Description,
		"status":        a.Status,
		"priority":      a.Priority,
		"dueDate":       timeOrNil(a.DueDate),
		"assigneeId":    stringOrNil(a.AssigneeID),
		"createdBy":     a.CreatedBy,
		"creatorName":   a.CreatorName,
		"sectorId":      a.SectorID,
		"subsectorId":   stringOrNil(a.SubsectorID),
		"subsectorName": a.SubsectorName,
		"listId":        stringOrNil(a.ListID),
		"isPrivate":     a.IsPrivate,
		"completedAt":   timeOrNil(a.CompletedAt),
		"createdAt":     a.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":     a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func activitiesPayload(items []store.Activity) []map[string]any {
	return mapSlice(items, activityPayload)
}

func subtaskPayload(st store.Subtask) map[string]any {
	return map[string]any{
		"id":          st.ID,
		"activityId":  st.ActivityID,
		"title":       st.Title,
		"description": st.Description,
		"completed":   st.Completed,
		"orderIndex":  st.OrderIndex,
		"createdAt":   st.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func historyPayload(e store.HistoryEntry) map[string]any {
	details := e.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	return map[string]any{
		"id":          e.ID,
		"activityId":  e.ActivityID,
		"action":      e.Action,
		"performedBy": e.PerformedBy,
		"details":     details,
		"createdAt":   e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func optionalProfile(p *store.Profile) any {
	if p == nil {
		return nil
	}
	return profilePayload(*p)
}

func profilePayload(p store.Profile) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"email":       p.Email,
		"displayName": p.DisplayName,
		"role":        p.Role,
		"sectorId":    p.SectorID,
		"subsectorId": stringOrNil(p.SubsectorID),
		"isApproved":  p.IsApproved,
		"approvedBy":  stringOrNil(p.ApprovedBy),
		"approvedAt":  timeOrNil(p.ApprovedAt),
	}
}

func sessionPayload(st session.State) map[string]any {
	var user any
	if st.User != nil {
		user = map[string]any{"id": st.User.UserID, "role": st.User.Role}
	}
	return map[string]any{
		"user":       user,
		"profile":    optionalProfile(st.Profile),
		"loading":    st.Loading,
		"authorized": st.Authorized(),
	}
}

func pendingPayload(p store.PendingUser) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"userId":      p.UserID,
		"email":       p.Email,
		"name":        p.Name,
		"sectorId":    p.SectorID,
		"subsectorId": stringOrNil(p.SubsectorID),
		"role":        p.Role,
		"status":      p.Status,
		"createdAt":   p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func listPayload(l store.PersonalList) map[string]any {
	return map[string]any{"id": l.ID, "name": l.Name, "createdAt": l.CreatedAt.UTC().Format(time.RFC3339)}
}

func assigneePayload(a store.ActivityAssignee) map[string]any {
	return map[string]any{
		"activityId":  a.ActivityID,
		"userId":      a.UserID,
		"displayName": a.DisplayName,
		"assignedAt":  a.AssignedAt.UTC().Format(time.RFC3339),
	}
}

func membershipPayload(m store.SubsectorMembership) map[string]any {
	return map[string]any{"profileId": m.ProfileID, "subsectorId": m.SubsectorID, "subsectorName": m.SubsectorName}
}

func notificationPayload(n store.Notification) map[string]any {
	return map[string]any{
		"id":         n.ID,
		"kind":       n.Kind,
		"title":      n.Title,
		"body":       n.Body,
		"activityId": stringOrNil(n.ActivityID),
		"readAt":     timeOrNil(n.ReadAt),
		"createdAt":  n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func invitationPayload(inv store.Invitation) map[string]any {
	return map[string]any{
		"id":          inv.ID,
		"email":       inv.Email,
		"subsectorId": stringOrNil(inv.SubsectorID),
		"role":        inv.Role,
		"status":      inv.Status,
		"expiresAt":   inv.ExpiresAt.UTC().Format(time.RFC3339),
		"createdAt":   inv.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func mapSlice[T any](items []T, fn func(T) map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}

type scopeBody struct {
	SubsectorID string   `json:"subsectorId"`
	UserID      string   `json:"userId"`
	ListID      string   `json:"listId"`
	Statuses    []string `json:"statuses"`
}

func (b scopeBody) scope() (activity.Scope, error) {
	scope := activity.Scope{SubsectorID: b.SubsectorID, UserID: b.UserID, ListID: b.ListID}
	for _, raw := range b.Statuses {
		status := store.ActivityStatus(strings.TrimSpace(raw))
		if status == "" {
			continue
		}
		if !status.Valid() {
			return activity.Scope{}, fmt.Errorf("%w: unknown status %q", activity.ErrInvalidInput, raw)
		}
		scope.Statuses = append(scope.Statuses, status)
	}
	return scope, nil
}

func scopeFromQuery(q url.Values) (activity.Scope, error) {
	body := scopeBody{
		SubsectorID: strings.TrimSpace(q.Get("subsector")),
		UserID:      strings.TrimSpace(q.Get("user")),
		ListID:      strings.TrimSpace(q.Get("list")),
	}
	if statuses := strings.TrimSpace(q.Get("status")); statuses != "" {
		body.Statuses = strings.Split(statuses, ",")
	}
	return body.scope()
}

type createActivityBody struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     string  `json:"dueDate"`
	AssigneeID  *string `json:"assigneeId"`
	SubsectorID *string `json:"subsectorId"`
	ListID      *string `json:"listId"`
	IsPrivate   bool    `json:"isPrivate"`
}

func (b createActivityBody) input() (activity.CreateInput, error) {
	in := activity.CreateInput{
		Title:       b.Title,
		Description: b.Description,
		AssigneeID:  b.AssigneeID,
		SubsectorID: b.SubsectorID,
		ListID:      b.ListID,
		IsPrivate:   b.IsPrivate,
	}
	if b.Status != "" {
		status := store.ActivityStatus(b.Status)
		if !status.Valid() {
			return activity.CreateInput{}, fmt.Errorf("%w: unknown status", activity.ErrInvalidInput)
		}
		in.Status = &status
	}
	if b.Priority != "" {
		priority := store.Priority(b.Priority)
		if !priority.Valid() {
			return activity.CreateInput{}, fmt.Errorf("%w: unknown priority", activity.ErrInvalidInput)
		}
		in.Priority = &priority
	}
	if b.DueDate != "" {
		due, err := parseDate(b.DueDate)
		if err != nil {
			return activity.CreateInput{}, err
		}
		in.DueDate = &due
	}
	return in, nil
}

// patchFromJSON reads a partial update. An explicit null clears dueDate, assigneeId and listId.
func patchFromJSON(data []byte) (store.ActivityPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return store.ActivityPatch{}, fmt.Errorf("%w: invalid JSON body", activity.ErrInvalidInput)
	}

	var p store.ActivityPatch
	var err error
	field := func(name string, target any) bool {
		value, ok := raw[name]
		if !ok || err != nil {
			return false
		}
		if string(value) == "null" {
			return true
		}
		if e := json.Unmarshal(value, target); e != nil {
			err = fmt.Errorf("%w: %s", activity.ErrInvalidInput, name)
		}
		return true
	}
	isNull := func(name string) bool { return string(raw[name]) == "null" }

	var title, description, subsector string
	if field("title", &title) && !isNull("title") {
		p.Title = &title
	}
	if field("description", &description) && !isNull("description") {
		p.Description = &description
	}
	var status store.ActivityStatus
	if field("status", &status) && !isNull("status") {
		if !status.Valid() {
			return store.ActivityPatch{}, fmt.Errorf("%w: unknown status", activity.ErrInvalidInput)
		}
		p.Status = &status
	}
	var priority store.Priority
	if field("priority", &priority) && !isNull("priority") {
		if !priority.Valid() {
			return store.ActivityPatch{}, fmt.Errorf("%w: unknown priority", activity.ErrInvalidInput)
		}
		p.Priority = &priority
	}
	var due string
	if field("dueDate", &due) {
		if isNull("dueDate") {
			p.ClearDueDate = true
		} else {
			parsed, perr := parseDate(due)
			if perr != nil {
				return store.ActivityPatch{}, perr
			}
			p.DueDate = &parsed
		}
	}
	var assignee string
	if field("assigneeId", &assignee) {
		if isNull("assigneeId") {
			p.ClearAssignee = true
		} else {
			p.AssigneeID = &assignee
		}
	}
	if field("subsectorId", &subsector) && !isNull("subsectorId") {
		p.SubsectorID = &subsector
	}
	var list string
	if field("listId", &list) {
		if isNull("listId") {
			p.ClearList = true
		} else {
			p.ListID = &list
		}
	}
	var private bool
	if field("isPrivate", &private) && !isNull("isPrivate") {
		p.IsPrivate = &private
	}
	if err != nil {
		return store.ActivityPatch{}, err
	}
	return p, nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: dueDate must be a date", activity.ErrInvalidInput)
}
