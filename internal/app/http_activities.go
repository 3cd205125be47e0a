package app

import (
	"net/http"
	"strconv"
	"strings"

	"sectorboard/api/internal/search"
	"sectorboard/api/internal/store"
)

func (s *HTTPServer) handleActivities(w http.ResponseWriter, r *http.Request, rest []string) {
	if s.service.activities == nil {
		unavailable(w)
		return
	}
	viewer, _, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	svc := s.service.activities

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		scope, err := scopeFromQuery(r.URL.Query())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		items, err := svc.List(ctx, viewer, scope)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": activitiesPayload(items)})

	case len(rest) == 0 && r.Method == http.MethodPost:
		var body createActivityBody
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		in, err := body.input()
		if err != nil {
			s.failMutation(w, r, "create the activity", err)
			return
		}
		created, err := svc.Create(ctx, viewer, in)
		if err != nil {
			s.failMutation(w, r, "create the activity", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"activity": activityPayload(created)})

	case len(rest) == 1 && r.Method == http.MethodGet:
		a, err := svc.Get(ctx, viewer, rest[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": activityPayload(a)})

	case len(rest) == 1 && (r.Method == http.MethodPatch || r.Method == http.MethodPut):
		data, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
			return
		}
		patch, err := patchFromJSON(data)
		if err != nil {
			s.failMutation(w, r, "update the activity", err)
			return
		}
		updated, err := svc.Update(ctx, viewer, rest[0], patch)
		if err != nil {
			s.failMutation(w, r, "update the activity", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": activityPayload(updated)})

	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := svc.Delete(ctx, viewer, rest[0]); err != nil {
			s.failMutation(w, r, "delete the activity", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(rest) == 2 && r.Method == http.MethodPost && rest[1] == "archive":
		updated, err := svc.Archive(ctx, viewer, rest[0])
		if err != nil {
			s.failMutation(w, r, "archive the activity", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": activityPayload(updated)})

	case len(rest) == 2 && r.Method == http.MethodPost && rest[1] == "unarchive":
		updated, err := svc.Unarchive(ctx, viewer, rest[0])
		if err != nil {
			s.failMutation(w, r, "restore the activity", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activity": activityPayload(updated)})

	case len(rest) == 2 && r.Method == http.MethodGet && rest[1] == "history":
		entries, err := svc.History(ctx, viewer, rest[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(entries, historyPayload)})

	case len(rest) == 2 && rest[1] == "subtasks":
		s.handleActivitySubtasks(w, r, viewer, rest[0])

	case len(rest) >= 2 && len(rest) <= 3 && rest[1] == "assignees":
		s.handleAssignees(w, r, viewer, rest[0], rest[2:])

	default:
		notFound(w)
	}
}

func (s *HTTPServer) handleActivitySubtasks(w http.ResponseWriter, r *http.Request, viewer store.Viewer, activityID string) {
	if s.service.subtasks == nil {
		unavailable(w)
		return
	}

	switch r.Method {
	case http.MethodGet:
		items, err := s.service.subtasks.List(r.Context(), viewer, activityID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, subtaskPayload)})
	case http.MethodPost:
		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := s.service.subtasks.Add(r.Context(), viewer, activityID, body.Title, body.Description)
		if err != nil {
			s.failMutation(w, r, "add the subtask", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"subtask": subtaskPayload(created)})
	default:
		notFound(w)
	}
}

func (s *HTTPServer) handleSubtasks(w http.ResponseWriter, r *http.Request, rest []string) {
	if s.service.subtasks == nil {
		unavailable(w)
		return
	}
	viewer, _, ok := s.requireViewer(w, r)
	if !ok {
		return
	}

	switch {
	case len(rest) == 2 && r.Method == http.MethodPost && rest[1] == "toggle":
		updated, err := s.service.subtasks.Toggle(r.Context(), viewer, rest[0])
		if err != nil {
			s.failMutation(w, r, "update the subtask", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"subtask": subtaskPayload(updated)})
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := s.service.subtasks.Delete(r.Context(), viewer, rest[0]); err != nil {
			s.failMutation(w, r, "delete the subtask", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		notFound(w)
	}
}

func (s *HTTPServer) handleAssignees(w http.ResponseWriter, r *http.Request, viewer store.Viewer, activityID string, rest []string) {
	if s.service.directory == nil {
		unavailable(w)
		return
	}
	dir := s.service.directory

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := dir.Assignees(r.Context(), viewer, activityID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, assigneePayload)})
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body struct {
			UserID string `json:"userId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := dir.AddAssignee(r.Context(), viewer, activityID, strings.TrimSpace(body.UserID)); err != nil {
			s.failMutation(w, r, "add the assignee", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := dir.RemoveAssignee(r.Context(), viewer, activityID, rest[0]); err != nil {
			s.failMutation(w, r, "remove the assignee", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		notFound(w)
	}
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.service.search == nil {
		unavailable(w)
		return
	}
	viewer, _, ok := s.requireViewer(w, r)
	if !ok {
		return
	}

	limit := s.service.cfg.SearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	resp, err := s.service.search.Search(r.Context(), search.Request{
		Text:   r.URL.Query().Get("q"),
		Viewer: viewer,
		Limit:  limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   resp.Query,
		"backend": resp.Backend,
		"results": activitiesPayload(resp.Results),
	})
}
