package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"whisperrflow/sync/internal/identity"
	"whisperrflow/sync/internal/intent"
	"whisperrflow/sync/internal/realtime"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/identity/sync" {
		s.handleIdentitySync(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/directory/search" {
		s.handleDirectorySearch(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/intents/parse" {
		s.handleIntentParse(w, r)
		return
	}

	segments := splitPath(r.URL.Path)
	if r.Method == http.MethodGet && len(segments) == 3 && segments[0] == "api" && segments[1] == "realtime" {
		s.handleRealtimeSocket(w, r, segments[2])
		return
	}

	if r.Method == http.MethodPost && len(segments) == 4 && segments[0] == "api" && segments[1] == "internal" && segments[2] == "realtime" {
		s.handleRealtimePublish(w, r, segments[3])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleIdentitySync triggers a best-effort reconciliation against the global
// directory. Always responds 200: identity sync failures are invisible to
// the end user.
func (s *HTTPServer) handleIdentitySync(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string            `json:"userId"`
		Name   string            `json:"name"`
		Prefs  map[string]string `json:"prefs"`
		Force  bool              `json:"force"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	s.service.StartupSync(r.Context(), identity.User{
		ID:    body.UserID,
		Name:  body.Name,
		Prefs: body.Prefs,
	}, body.Force)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleDirectorySearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.service.SearchDirectory(r.Context(), query, limit))
}

func (s *HTTPServer) handleIntentParse(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	decoded, ok := intent.Parse(body.URL)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"intent": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"intent": string(decoded.Kind()),
		"data":   intentData(decoded),
	})
}

// handleRealtimePublish is the internal producer endpoint: backend mutation
// paths and sibling services announce row changes here.
func (s *HTTPServer) handleRealtimePublish(w http.ResponseWriter, r *http.Request, tableID string) {
	syncToken := strings.TrimSpace(r.Header.Get("x-flow-sync-token"))
	if syncToken == "" || syncToken != s.service.SyncToken() {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	var body struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	eventType := realtime.EventType(body.Event)
	switch eventType {
	case realtime.EventCreate, realtime.EventUpdate, realtime.EventDelete:
	default:
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "event must be create, update, or delete", nil)
		return
	}

	if err := s.service.PublishChange(r.Context(), tableID, eventType, body.Payload); err != nil {
		writeError(w, http.StatusInternalServerError, "PUBLISH_FAILED", "Publish failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func intentData(decoded intent.Intent) map[string]string {
	switch v := decoded.(type) {
	case intent.CreateTask:
		return map[string]string{"title": v.Title, "body": v.Body, "due": v.Due}
	case intent.CreateNote:
		return map[string]string{"title": v.Title, "body": v.Body}
	case intent.CreateEvent:
		return map[string]string{"title": v.Title, "location": v.Location, "starts_at": v.StartsAt}
	default:
		return map[string]string{}
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade reach the underlying connection through
// the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
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
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
