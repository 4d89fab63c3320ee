// Package httpapi serves the sync queue over JSON/HTTP.
//
// Every /v1 route requires an HS256 bearer token whose sub claim is the
// caller's user id.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/roach88/syncq/internal/clock"
	"github.com/roach88/syncq/internal/engine"
	"github.com/roach88/syncq/internal/ids"
	"github.com/roach88/syncq/internal/service"
	"github.com/roach88/syncq/internal/status"
	"github.com/roach88/syncq/internal/syncerr"
)

// Backend is the set of operations the server exposes. *service.Service
// implements it.
type Backend interface {
	EnqueueAction(ctx context.Context, userID string, req service.ActionRequest) (service.EnqueueResult, error)
	EnqueueBatch(ctx context.Context, userID string, reqs []service.ActionRequest) (service.BatchResult, error)
	DrainQueue(ctx context.Context, userID string) (engine.DrainResult, error)
	GetSyncStatus(ctx context.Context, userID string) (status.SyncStatus, error)
	GetLastSyncTimestamp(ctx context.Context, userID string) (status.LastSync, error)
}

// DevSecret signs tokens when no JWT secret is configured.
const DevSecret = "dev-secret"

// ServerConfig configures a Server.
type ServerConfig struct {
	JWTSecret    string
	MaxBodyBytes int64
	Clock        clock.Clock
	Logger       *slog.Logger

	// CorrelationIDs generates ids for requests that carry none.
	CorrelationIDs ids.Generator
}

// Server routes HTTP requests to a Backend.
type Server struct {
	backend Backend
	cfg     ServerConfig
}

// NewServer creates a Server. An empty JWTSecret falls back to a
// development secret.
func NewServer(backend Backend, cfg ServerConfig) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = DevSecret
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	cfg.Clock = clock.OrSystem(cfg.Clock)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CorrelationIDs == nil {
		cfg.CorrelationIDs = ids.UUIDv7Generator{}
	}
	return &Server{backend: backend, cfg: cfg}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/healthz" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	correlationID := r.Header.Get("X-Correlation-Id")
	if correlationID == "" {
		correlationID = s.cfg.CorrelationIDs.Generate()
	}
	w.Header().Set("X-Correlation-Id", correlationID)

	var handle func(http.ResponseWriter, *http.Request, string, string)
	switch {
	case r.URL.Path == "/v1/actions" && r.Method == http.MethodPost:
		handle = s.handleEnqueue
	case r.URL.Path == "/v1/actions:batch" && r.Method == http.MethodPost:
		handle = s.handleEnqueueBatch
	case r.URL.Path == "/v1/sync:drain" && r.Method == http.MethodPost:
		handle = s.handleDrain
	case r.URL.Path == "/v1/sync/status" && r.Method == http.MethodGet:
		handle = s.handleSyncStatus
	case r.URL.Path == "/v1/sync/last" && r.Method == http.MethodGet:
		handle = s.handleLastSync
	default:
		writeError(w, http.StatusNotFound, "not-found", "route not found", correlationID)
		return
	}

	claims, authErr := parseBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, s.cfg.Clock.Now())
	if authErr != nil {
		writeError(w, http.StatusUnauthorized, string(syncerr.CodeUnauthenticated), authErr.Error(), correlationID)
		return
	}
	s.cfg.Logger.Debug("request", "method", r.Method, "path", r.URL.Path,
		"user_id", claims.UserID, "correlation_id", correlationID)
	handle(w, r, claims.UserID, correlationID)
}

type enqueueResponse struct {
	Success  bool   `json:"success"`
	ActionID string `json:"actionId"`
}

type batchRequest struct {
	Actions []service.ActionRequest `json:"actions"`
}

type batchResponse struct {
	Success       bool     `json:"success"`
	QueuedActions int      `json:"queuedActions"`
	ActionIDs     []string `json:"actionIds"`
}

type actionResult struct {
	ActionID string `json:"actionId"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type drainResponse struct {
	Success          bool           `json:"success"`
	ProcessedActions int            `json:"processedActions"`
	Results          []actionResult `json:"results"`
}

type syncStatusResponse struct {
	QueuedActions   int     `json:"queuedActions"`
	FailedActions   int     `json:"failedActions"`
	LastSyncAt      *string `json:"lastSyncAt"`
	LastQueuedAt    *string `json:"lastQueuedAt"`
	SuccessfulSyncs int     `json:"successfulSyncs"`
	FailedSyncs     int     `json:"failedSyncs"`
}

type lastSyncResponse struct {
	LastSyncAt      *string `json:"lastSyncAt"`
	ServerTimestamp string  `json:"serverTimestamp"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request, userID, correlationID string) {
	var req service.ActionRequest
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	res, err := s.backend.EnqueueAction(r.Context(), userID, req)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, enqueueResponse{Success: true, ActionID: res.ActionID})
}

func (s *Server) handleEnqueueBatch(w http.ResponseWriter, r *http.Request, userID, correlationID string) {
	var req batchRequest
	if !s.decodeJSONBody(w, r, correlationID, &req) {
		return
	}
	res, err := s.backend.EnqueueBatch(r.Context(), userID, req.Actions)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{Success: true, QueuedActions: res.QueuedActions, ActionIDs: res.ActionIDs})
}

func (s *Server) handleDrain(w http.ResponseWriter, r *http.Request, userID, correlationID string) {
	res, err := s.backend.DrainQueue(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	out := drainResponse{Success: true, ProcessedActions: res.ProcessedActions, Results: make([]actionResult, 0, len(res.Results))}
	for _, ar := range res.Results {
		out.Results = append(out.Results, actionResult{ActionID: ar.ActionID, Status: string(ar.Status), Error: ar.Error})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request, userID, correlationID string) {
	st, err := s.backend.GetSyncStatus(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, syncStatusResponse{
		QueuedActions:   st.QueuedActions,
		FailedActions:   st.FailedActions,
		LastSyncAt:      optionalTime(st.LastSyncAt),
		LastQueuedAt:    optionalTime(st.LastQueuedAt),
		SuccessfulSyncs: st.SuccessfulSyncs,
		FailedSyncs:     st.FailedSyncs,
	})
}

func (s *Server) handleLastSync(w http.ResponseWriter, r *http.Request, userID, correlationID string) {
	last, err := s.backend.GetLastSyncTimestamp(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err, correlationID)
		return
	}
	writeJSON(w, http.StatusOK, lastSyncResponse{
		LastSyncAt:      optionalTime(last.LastSyncAt),
		ServerTimestamp: last.ServerTimestamp.UTC().Format(time.RFC3339Nano),
	})
}

func optionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error, correlationID string) {
	code := syncerr.CodeOf(err)
	httpStatus := http.StatusInternalServerError
	switch code {
	case syncerr.CodeUnauthenticated:
		httpStatus = http.StatusUnauthorized
	case syncerr.CodeInvalidArgument:
		httpStatus = http.StatusBadRequest
	case syncerr.CodeNotFound:
		httpStatus = http.StatusNotFound
	default:
		s.cfg.Logger.Error("request failed", "correlation_id", correlationID, "error", err)
	}
	writeError(w, httpStatus, string(code), syncerr.MessageOf(err), correlationID)
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, correlationID string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, string(syncerr.CodeInvalidArgument), "request body exceeds configured limit", correlationID)
			return false
		}
		writeError(w, http.StatusBadRequest, string(syncerr.CodeInvalidArgument), "failed to read request body", correlationID)
		return false
	}
	// Numbers stay json.Number so payload integers survive unchanged.
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(syncerr.CodeInvalidArgument), "invalid json body", correlationID)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message, correlationID string) {
	writeJSON(w, status, map[string]any{
		"code":          code,
		"message":       message,
		"correlationId": correlationID,
	})
}
