package app

import (
	"net/http"
	"strings"

	"sectorboard/api/internal/directory"
	"sectorboard/api/internal/store"
)

func (s *HTTPServer) handleLists(w http.ResponseWriter, r *http.Request, rest []string) {
	if s.service.directory == nil {
		unavailable(w)
		return
	}
	viewer, _, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	dir := s.service.directory

	var body struct {
		Name string `json:"name"`
	}
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		lists, err := dir.Lists(r.Context(), viewer.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(lists, listPayload)})
	case len(rest) == 0 && r.Method == http.MethodPost:
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		created, err := dir.CreateList(r.Context(), viewer.ID, body.Name)
		if err != nil {
			s.failMutation(w, r, "create the list", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"list": listPayload(created)})
	case len(rest) == 1 && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := dir.RenameList(r.Context(), viewer.ID, rest[0], body.Name); err != nil {
			s.failMutation(w, r, "rename the list", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := dir.DeleteList(r.Context(), viewer.ID, rest[0]); err != nil {
			s.failMutation(w, r, "delete the list", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		notFound(w)
	}
}

// handleMembers serves the sector directory, subsector memberships and user deletion.
func (s *HTTPServer) handleMembers(w http.ResponseWriter, r *http.Request, rest []string) {
	if s.service.directory == nil {
		unavailable(w)
		return
	}
	viewer, _, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	dir := s.service.directory
	ctx := r.Context()

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		members, err := dir.Members(ctx, viewer)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(members, profilePayload)})
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := dir.DeleteUser(ctx, viewer.ID, rest[0]); err != nil {
			s.failMutation(w, r, "delete the user", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case len(rest) == 2 && rest[1] == "subsectors" && r.Method == http.MethodGet:
		items, err := dir.Memberships(ctx, viewer.ID, rest[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, membershipPayload)})
	case len(rest) == 2 && rest[1] == "subsectors" && r.Method == http.MethodPost:
		var body struct {
			SubsectorID string `json:"subsectorId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := dir.AddMembership(ctx, viewer.ID, rest[0], strings.TrimSpace(body.SubsectorID)); err != nil {
			s.failMutation(w, r, "add the subsector membership", err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
	case len(rest) == 3 && rest[1] == "subsectors" && r.Method == http.MethodDelete:
		if err := dir.RemoveMembership(ctx, viewer.ID, rest[0], rest[2]); err != nil {
			s.failMutation(w, r, "remove the subsector membership", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		notFound(w)
	}
}

func (s *HTTPServer) handleSubsectors(w http.ResponseWriter, r *http.Request) {
	if s.service.directory == nil {
		unavailable(w)
		return
	}
	viewer, _, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	items, err := s.service.directory.Subsectors(r.Context(), viewer)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, func(sub store.Subsector) map[string]any {
		return map[string]any{"id": sub.ID, "sectorId": sub.SectorID, "name": sub.Name}
	})})
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, rest []string) {
	if s.service.directory == nil {
		unavailable(w)
		return
	}
	viewer, _, ok := s.requireViewer(w, r)
	if !ok {
		return
	}

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		unreadOnly := r.URL.Query().Get("unread") == "1" || r.URL.Query().Get("unread") == "true"
		items, err := s.service.directory.Notifications(r.Context(), viewer.ID, unreadOnly)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, notificationPayload)})
	case len(rest) == 2 && rest[1] == "read" && r.Method == http.MethodPost:
		if err := s.service.directory.MarkRead(r.Context(), viewer.ID, rest[0]); err != nil {
			s.failMutation(w, r, "mark the notification as read", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		notFound(w)
	}
}

func (s *HTTPServer) handleInvitations(w http.ResponseWriter, r *http.Request, rest []string) {
	if s.service.directory == nil {
		unavailable(w)
		return
	}
	viewer, _, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	dir := s.service.directory

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := dir.Invitations(r.Context(), viewer.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, invitationPayload)})
	case len(rest) == 0 && r.Method == http.MethodPost:
		var body struct {
			Email       string  `json:"email"`
			SubsectorID *string `json:"subsectorId"`
			Role        string  `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		inv, token, err := dir.Invite(r.Context(), viewer.ID, directory.InviteInput{
			Email:       body.Email,
			SubsectorID: body.SubsectorID,
			Role:        store.Role(body.Role),
		})
		if err != nil {
			s.failMutation(w, r, "send the invitation", err)
			return
		}
		response := map[string]any{"invitation": invitationPayload(inv)}
		// Dev bypass: without SMTP the token is the only way to use the invitation.
		if !s.service.mailConfigured {
			response["devInvitationToken"] = token
		}
		writeJSON(w, http.StatusCreated, response)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := dir.RevokeInvitation(r.Context(), viewer.ID, rest[0]); err != nil {
			s.failMutation(w, r, "revoke the invitation", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		notFound(w)
	}
}

func (s *HTTPServer) handlePending(w http.ResponseWriter, r *http.Request, rest []string) {
	if s.service.approvals == nil {
		unavailable(w)
		return
	}
	viewer, _, ok := s.requireViewer(w, r)
	if !ok {
		return
	}
	approvals := s.service.approvals

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		items, err := approvals.ListPending(r.Context(), viewer.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": mapSlice(items, pendingPayload)})
	case len(rest) == 2 && rest[1] == "approve" && r.Method == http.MethodPost:
		profile, err := approvals.Approve(r.Context(), viewer.ID, rest[0])
		if err != nil {
			s.failMutation(w, r, "approve the user", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"profile": profilePayload(profile)})
	case len(rest) == 2 && rest[1] == "reject" && r.Method == http.MethodPost:
		if err := approvals.Reject(r.Context(), viewer.ID, rest[0]); err != nil {
			s.failMutation(w, r, "reject the user", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		notFound(w)
	}
}
