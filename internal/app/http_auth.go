package app

import (
	"net/http"

	"sectorboard/api/internal/authpw"
)

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 1 {
		notFound(w)
		return
	}
	switch {
	case r.Method == http.MethodPost && rest[0] == "signup":
		s.handleSignUp(w, r)
	case r.Method == http.MethodPost && rest[0] == "signin":
		s.handleSignIn(w, r)
	case r.Method == http.MethodPost && rest[0] == "refresh":
		s.handleRefresh(w, r)
	case r.Method == http.MethodPost && rest[0] == "signout":
		s.handleSignOut(w, r)
	case r.Method == http.MethodGet && rest[0] == "session":
		s.handleSession(w, r)
	default:
		notFound(w)
	}
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	if s.service.accounts == nil {
		unavailable(w)
		return
	}
	var body struct {
		Email           string `json:"email"`
		Password        string `json:"password"`
		Name            string `json:"name"`
		SectorID        string `json:"sectorId"`
		SubsectorID     string `json:"subsectorId"`
		InvitationToken string `json:"invitationToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	resp, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:           body.Email,
		Password:        body.Password,
		Name:            body.Name,
		SectorID:        body.SectorID,
		SubsectorID:     body.SubsectorID,
		InvitationToken: body.InvitationToken,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"userId":        resp.UserID,
		"pendingUserId": resp.PendingUserID,
		"invited":       resp.Invited,
		"message":       "Your account is awaiting approval by a sector manager.",
	})
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if s.service.accounts == nil {
		unavailable(w)
		return
	}
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	result, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tokens":     result.Tokens,
		"profile":    optionalProfile(result.Profile),
		"authorized": result.Profile != nil && result.Profile.IsApproved,
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	pair, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": pair})
}

func (s *HTTPServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	creds := credentials(r)
	if body.RefreshToken != "" {
		creds.RefreshToken = body.RefreshToken
	}
	if err := s.service.SignOut(r.Context(), creds); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleSession reports the bootstrapped session. It never fails: unusable credentials
// come back as an empty, unauthorized session.
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	_, state := s.service.Session(r.Context(), credentials(r))
	writeJSON(w, http.StatusOK, sessionPayload(state))
}
