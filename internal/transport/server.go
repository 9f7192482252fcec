package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/illarion/cipherstore/internal/account"
	"github.com/illarion/cipherstore/internal/core"
)

const (
	maxBodySize = 64 << 10
	maxWait     = time.Minute
)

// Subscriber is implemented by services that can announce new events, which
// lets GET /v1/events wait for them instead of returning empty
type Subscriber interface {
	Subscribe(buffer int) (<-chan core.Event, func())
}

type storeRequest struct {
	// Account, when present, must name the caller's own slot.
	Account *account.Address `json:"account,omitempty"`
	core.Bundle
}

type keyRequest struct {
	Account       *account.Address `json:"account,omitempty"`
	EncryptionKey account.Address  `json:"encryptionKey"`
}

type eventsResponse struct {
	Events []core.Event `json:"events"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes a RecordService over HTTP. Mutating requests must be
// signed; the signer's address is the caller passed to the service.
type Server struct {
	svc   core.RecordService
	mux   *http.ServeMux
	guard *replayGuard
	clock func() time.Time
}

// NewServer creates a server backed by svc
func NewServer(svc core.RecordService) *Server {
	s := &Server{
		svc:   svc,
		mux:   http.NewServeMux(),
		guard: newReplayGuard(),
		clock: time.Now,
	}
	s.mux.HandleFunc("POST /v1/records", s.handleStore)
	s.mux.HandleFunc("POST /v1/records/key", s.handleUpdateKey)
	s.mux.HandleFunc("GET /v1/records/{account}", s.handleGet)
	s.mux.HandleFunc("GET /v1/events", s.handleEvents)
	return s
}

// Handler returns the HTTP handler with request logging
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		s.mux.ServeHTTP(rec, r)

		slog.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.authenticated(w, r)
	if !ok {
		return
	}

	var req storeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := authorizeTarget(caller, req.Account); err != nil {
		writeServiceError(w, err)
		return
	}

	if err := s.svc.StoreEncryptedData(r.Context(), caller, req.Bundle); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	caller, body, ok := s.authenticated(w, r)
	if !ok {
		return
	}

	var req keyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := authorizeTarget(caller, req.Account); err != nil {
		writeServiceError(w, err)
		return
	}

	if err := s.svc.UpdateEncryptionKey(r.Context(), caller, req.EncryptionKey); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	addr, err := account.ParseAddress(r.PathValue("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := s.svc.GetEncryptedUserData(r.Context(), addr)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		after = n
	}

	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}

	var wait time.Duration
	if v := q.Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, errors.New("wait must be a non-negative duration"))
			return
		}
		wait = min(d, maxWait)
	}

	// Subscribe before reading so nothing committed in between is missed
	var live <-chan core.Event
	if sub, ok := s.svc.(Subscriber); ok && wait > 0 {
		ch, cancel := sub.Subscribe(1)
		defer cancel()
		live = ch
	}

	events, err := s.svc.Events(r.Context(), after, limit)
	if err == nil && len(events) == 0 && live != nil {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-live:
			events, err = s.svc.Events(r.Context(), after, limit)
		case <-timer.C:
		case <-r.Context().Done():
			return
		}
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []core.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (s *Server) authenticated(w http.ResponseWriter, r *http.Request) (account.Address, []byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return account.Address{}, nil, false
	}

	now := s.clock()
	caller, stamp, err := authenticate(r, body, now)
	if err == nil {
		err = s.guard.accept(caller, stamp, now)
	}
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return account.Address{}, nil, false
	}
	return caller, body, true
}

func authorizeTarget(caller account.Address, target *account.Address) error {
	if target == nil {
		return nil
	}
	return core.Authorize(caller, *target)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrMalformedInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, core.ErrAuthorizationViolation):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, core.ErrNoRecord):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
