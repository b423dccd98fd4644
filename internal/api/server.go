package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/snl-sec/snlscan/internal/auth"
	"github.com/snl-sec/snlscan/internal/jobs"
	"github.com/snl-sec/snlscan/internal/model"
)

// Runner executes the pipeline for one accepted job. The call records
// all outcomes in the job registry and returns when the job reaches a
// terminal state.
type Runner interface {
	Run(ctx context.Context, scanID string)
}

// Server handles the scan API. One background goroutine is spawned per
// accepted job; its context is the server's base context, not the
// submission request's, so a client disconnect never kills a scan.
type Server struct {
	registry *jobs.Registry
	runner   Runner
	verifier *auth.Verifier
	logger   *slog.Logger
	baseCtx  context.Context
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithVerifier enables bearer-token authentication. Without it the API
// is anonymous and all jobs share one scope.
func WithVerifier(v *auth.Verifier) ServerOption {
	return func(s *Server) {
		s.verifier = v
	}
}

// WithServerLogger sets a custom logger for the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBaseContext sets the context background scans inherit. Cancelling
// it stops all running scans, which is how shutdown propagates.
func WithBaseContext(ctx context.Context) ServerOption {
	return func(s *Server) {
		s.baseCtx = ctx
	}
}

// NewServer creates the API server over the given registry and runner.
func NewServer(registry *jobs.Registry, runner Runner, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		runner:   runner,
		baseCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scan", s.authenticated(s.handleSubmit))
	mux.HandleFunc("GET /scan/{id}", s.authenticated(s.handleGet))
	mux.HandleFunc("GET /scans", s.authenticated(s.handleList))
	mux.HandleFunc("DELETE /scan/{id}", s.authenticated(s.handleDelete))
	mux.HandleFunc("POST /scan/{id}/cancel", s.authenticated(s.handleCancel))
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ownerHandler is a handler that has passed authentication.
type ownerHandler func(w http.ResponseWriter, r *http.Request, ownerID string)

// authenticated wraps a handler with bearer-token verification when a
// verifier is configured. The verified subject becomes the owner scope.
func (s *Server) authenticated(next ownerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			next(w, r, "")
			return
		}

		token := auth.FromHeader(r.Header.Get("Authorization"))
		ownerID, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			s.logger.Info("request rejected",
				"path", r.URL.Path,
				"error", err,
			)
			writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		next(w, r, ownerID)
	}
}

// submitRequest is the scan submission body.
type submitRequest struct {
	Target string `json:"target"`
	Mode   string `json:"mode,omitempty"`
}

// submitResponse acknowledges an accepted scan.
type submitResponse struct {
	ScanID string          `json:"scan_id"`
	Status model.JobStatus `json:"status"`
}

// handleSubmit accepts a new scan and starts it in the background.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := validateTarget(req.Target); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := s.registry.Create(r.Context(), req.Target, model.ParseScanMode(req.Mode), ownerID)

	go s.runner.Run(s.baseCtx, job.ScanID)

	writeJSON(w, http.StatusAccepted, submitResponse{ScanID: job.ScanID, Status: job.Status})
}

// handleGet returns one job with its result, if any.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, ownerID string) {
	job, err := s.registry.Get(r.PathValue("id"), ownerID)
	if err != nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// listResponse wraps the job list.
type listResponse struct {
	Scans []*model.ScanJob `json:"scans"`
}

// handleList returns the caller's jobs, newest first.
func (s *Server) handleList(w http.ResponseWriter, _ *http.Request, ownerID string) {
	writeJSON(w, http.StatusOK, listResponse{Scans: s.registry.List(ownerID)})
}

// handleDelete removes a terminal job.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, ownerID string) {
	err := s.registry.Delete(r.Context(), r.PathValue("id"), ownerID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "scan not found")
	case errors.Is(err, jobs.ErrIllegalTransition):
		writeError(w, http.StatusConflict, "scan is still active, cancel it first")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "could not delete scan")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleCancel cancels a pending or running job. Cancellation is
// advisory for a running pipeline: the job is marked cancelled and its
// eventual result discarded.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, ownerID string) {
	scanID := r.PathValue("id")
	err := s.registry.Cancel(r.Context(), scanID, ownerID)
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "scan not found")
	case errors.Is(err, jobs.ErrIllegalTransition):
		writeError(w, http.StatusConflict, "scan already finished")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "could not cancel scan")
	default:
		job, getErr := s.registry.Get(scanID, ownerID)
		if getErr != nil {
			writeError(w, http.StatusInternalServerError, "could not load scan")
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// handleHealth is the unauthenticated liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateTarget checks that a submitted target is an absolute http(s)
// URL with a host.
func validateTarget(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("target is required")
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("target must be an absolute http or https URL")
	}
	return nil
}

// errorResponse is the error body shape.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // response is already committed
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg}) //nolint:errcheck // response is already committed
}
