package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/venuedesk/venuedesk/common/version"
	"github.com/venuedesk/venuedesk/internal/venuedesk/approvals"
	"github.com/venuedesk/venuedesk/internal/venuedesk/engine"
	"github.com/venuedesk/venuedesk/internal/venuedesk/store"
)

// Server exposes the negotiation engine over HTTP.  The mail gateway posts
// inbound messages to /messages; the operator surface decides drafts and
// reads the audit trail.
type Server struct {
	addr      string
	engine    *engine.Engine
	store     *store.Store
	gate      *approvals.Gate
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

type messageRequest struct {
	BookingID string `json:"booking_id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
}

type decisionRequest struct {
	DecidedBy string `json:"decided_by"`
	Body      string `json:"body,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Commit       string    `json:"commit"`
	BuildTime    string    `json:"build_time"`
	StartedAt    time.Time `json:"started_at"`
	UptimeSecs   float64   `json:"uptime_seconds"`
	OpenBookings int       `json:"open_bookings"`
	Sessions     int       `json:"sessions"`
}

// NewServer creates and configures the HTTP server (does not start it).
func NewServer(addr string, eng *engine.Engine, st *store.Store, gate *approvals.Gate) *Server {
	mux := http.NewServeMux()
	s := &Server{
		addr:      addr,
		engine:    eng,
		store:     st,
		gate:      gate,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /messages", s.handleMessage)
	mux.HandleFunc("POST /drafts/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /drafts/{id}/edit", s.handleEdit)
	mux.HandleFunc("POST /drafts/{id}/reject", s.handleReject)
	mux.HandleFunc("GET /drafts/{id}", s.handleGetDraft)
	mux.HandleFunc("GET /bookings", s.handleListBookings)
	mux.HandleFunc("GET /bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("GET /bookings/{id}/audit", s.handleAudit)
	mux.HandleFunc("GET /bookings/{id}/draft", s.handlePendingDraft)
	mux.HandleFunc("GET /traces/{id}", s.handleTrace)
	return s
}

// ServeHTTP implements http.Handler so the API can be tested with
// httptest.NewRecorder, without a live listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Start begins listening in the background.  Blocks until the listener is
// established so the caller knows the port is open before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http server: listen %s: %w", s.addr, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("http server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server stopped", "err", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	open := 0
	if n, err := s.store.BookingCount(r.Context()); err == nil {
		open = n
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:       "ok",
		Version:      version.Version,
		Commit:       version.GitCommit,
		BuildTime:    version.BuildTime,
		StartedAt:    s.startedAt,
		UptimeSecs:   time.Since(s.startedAt).Seconds(),
		OpenBookings: open,
		Sessions:     s.engine.Sessions().Len(),
	})
}

// handleMessage runs one inbound client message through the engine.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	if req.BookingID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "booking_id and message are required"})
		return
	}

	res, err := s.engine.ProcessMessage(r.Context(), req.BookingID, req.Sender, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	dec, err := s.engine.ApproveDraft(r.Context(), r.PathValue("id"), req.DecidedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	if req.Body == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body is required for an edit"})
		return
	}
	dec, err := s.engine.EditDraft(r.Context(), r.PathValue("id"), req.DecidedBy, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeDecision(w, r)
	if !ok {
		return
	}
	dec, err := s.engine.RejectDraft(r.Context(), r.PathValue("id"), req.DecidedBy, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.gate.Store().Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.store.ListBookings(r.Context(), r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.GetBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.AuditByBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePendingDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.gate.Store().PendingByBooking(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.AuditByTrace(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func decodeDecision(w http.ResponseWriter, r *http.Request) (*decisionRequest, bool) {
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return nil, false
	}
	if req.DecidedBy == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "decided_by is required"})
		return nil, false
	}
	return &req, true
}

// writeError maps store and approvals sentinels onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrBookingNotFound), errors.Is(err, approvals.ErrDraftNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, approvals.ErrAlreadyDecided):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		slog.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", "err", err)
	}
}
