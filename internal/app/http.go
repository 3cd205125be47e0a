package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sectorboard/api/internal/session"
	"sectorboard/api/internal/store"
)

const maxBodyBytes = 1 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	apiKey     string
	logger     *zap.Logger
	metrics    http.Handler
	upgrader   websocket.Upgrader
}

func NewHTTPServer(service *Service, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	corsOrigin := service.cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		apiKey:     service.cfg.APIKey,
		logger:     logger,
		metrics:    promhttp.Handler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return corsOrigin == "*" || r.Header.Get("Origin") == "" || r.Header.Get("Origin") == corsOrigin
			},
		},
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	isRead := r.Method == http.MethodGet || r.Method == http.MethodHead
	switch {
	case isRead && r.URL.Path == "/api/health":
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	case isRead && r.URL.Path == "/api/ready":
		s.handleReady(w, r)
		return
	case isRead && r.URL.Path == "/metrics":
		s.metrics.ServeHTTP(w, r)
		return
	}

	if !s.validAPIKey(r) {
		writeError(w, http.StatusUnauthorized, "INVALID_API_KEY", "Missing or invalid API key", nil)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	rest := parts[2:]
	switch parts[1] {
	case "live":
		if r.Method == http.MethodGet && len(rest) == 0 {
			s.handleLive(w, r)
			return
		}
	case "auth":
		s.handleAuth(w, r, rest)
		return
	case "activities":
		s.handleActivities(w, r, rest)
		return
	case "subtasks":
		s.handleSubtasks(w, r, rest)
		return
	case "search":
		if r.Method == http.MethodGet && len(rest) == 0 {
			s.handleSearch(w, r)
			return
		}
	case "lists":
		s.handleLists(w, r, rest)
		return
	case "members":
		s.handleMembers(w, r, rest)
		return
	case "subsectors":
		if r.Method == http.MethodGet && len(rest) == 0 {
			s.handleSubsectors(w, r)
			return
		}
	case "notifications":
		s.handleNotifications(w, r, rest)
		return
	case "invitations":
		s.handleInvitations(w, r, rest)
		return
	case "pending":
		s.handlePending(w, r, rest)
		return
	}

	notFound(w)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error"}
	}
	if s.service.search != nil {
		checks["search"] = map[string]any{"status": "ok", "backend": s.service.search.Backend()}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// validAPIKey accepts the key from the apikey header, or from the query string for
// WebSocket clients that cannot set headers.
func (s *HTTPServer) validAPIKey(r *http.Request) bool {
	if s.apiKey == "" {
		return true
	}
	presented := r.Header.Get("apikey")
	if presented == "" {
		presented = r.URL.Query().Get("apikey")
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(s.apiKey)) == 1
}

// requireViewer writes a 401 and returns false unless the request carries credentials
// of an approved profile.
func (s *HTTPServer) requireViewer(w http.ResponseWriter, r *http.Request) (store.Viewer, store.Profile, bool) {
	viewer, profile, err := s.service.Viewer(r.Context(), credentials(r))
	if err != nil {
		status, code, message, details := mapError(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("resolve viewer", zap.Error(err))
		}
		writeError(w, status, code, message, details)
		return store.Viewer{}, store.Profile{}, false
	}
	return viewer, profile, true
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

// failMutation reports a failed write with a notice naming the action.
func (s *HTTPServer) failMutation(w http.ResponseWriter, r *http.Request, action string, err error) {
	de := mutationError(action, err)
	if de.Status >= http.StatusInternalServerError {
		s.logger.Error("mutation failed", zap.String("action", action), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, de.Status, de.Code, de.Message, de.Details)
}

func unavailable(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "This feature is not configured", nil)
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func credentials(r *http.Request) session.Credentials {
	creds := session.Credentials{
		AccessToken:  bearerToken(r),
		RefreshToken: strings.TrimSpace(r.Header.Get("X-Refresh-Token")),
	}
	if creds.AccessToken == "" {
		creds.AccessToken = strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = strings.TrimSpace(r.URL.Query().Get("refresh_token"))
	}
	return creds
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Refresh-Token, apikey")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
