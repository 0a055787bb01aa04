// Package server exposes the engine operations as a JSON HTTP API.
//
//	POST /api/segment  {"text": ...}
//	POST /api/compare  {"previous": ..., "current": ...}
//	POST /api/verify   {"source": ..., "derived": ...}
//	POST /api/diff     {"old": ..., "new": ...}
//	GET  /healthz
//	GET  /metrics
//
// Results are wrapped in a report.Envelope. Errors are {"error", "message"}.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/semdiff/config"
	"github.com/c360studio/semdiff/engine"
	"github.com/c360studio/semdiff/metrics"
	"github.com/c360studio/semdiff/report"
)

// Publisher forwards envelopes to subscribers.
type Publisher interface {
	Publish(ctx context.Context, env *report.Envelope) error
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// SegmentRequest is the body of POST /api/segment.
type SegmentRequest struct {
	Text string `json:"text"`
}

// CompareRequest is the body of POST /api/compare.
type CompareRequest struct {
	Previous string `json:"previous"`
	Current  string `json:"current"`
}

// VerifyRequest is the body of POST /api/verify.
type VerifyRequest struct {
	Source  string `json:"source"`
	Derived string `json:"derived"`
}

// DiffRequest is the body of POST /api/diff.
type DiffRequest struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Server serves the engine over HTTP.
type Server struct {
	engine       *engine.Engine
	metrics      *metrics.Metrics
	publisher    Publisher
	logger       *slog.Logger
	addr         string
	maxBodyBytes int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics serves m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPublisher publishes compare and verify results.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// New creates a Server.
func New(eng *engine.Engine, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		engine:       eng,
		logger:       slog.Default(),
		addr:         cfg.Addr,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterHTTPHandlers registers the API handlers under prefix
// (e.g. "api" registers "/api/compare").
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"segment", s.handleSegment)
	mux.HandleFunc(prefix+"compare", s.handleCompare)
	mux.HandleFunc(prefix+"verify", s.handleVerify)
	mux.HandleFunc(prefix+"diff", s.handleDiff)
}

// Handler returns the complete route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterHTTPHandlers("api", mux)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return s.logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down HTTP API")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use GET")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSegment(w http.ResponseWriter, r *http.Request) {
	var req SegmentRequest
	if !s.decode(w, r, &req) {
		return
	}
	sections := s.engine.Segment(req.Text)
	writeJSON(w, http.StatusOK, report.NewEnvelope(report.KindSegment, sections))
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if !s.decode(w, r, &req) {
		return
	}
	env := report.NewEnvelope(report.KindCompare, s.engine.CompareRevisions(req.Previous, req.Current))
	s.publish(r.Context(), env)
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	env := report.NewEnvelope(report.KindVerify, s.engine.VerifyCompleteness(req.Source, req.Derived))
	s.publish(r.Context(), env)
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req DiffRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, report.NewEnvelope(report.KindDiff, s.engine.DiffWords(req.Old, req.New)))
}

// decode reads a JSON POST body into dst, writing the error response and
// returning false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use POST")
		return false
	}
	if s.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "body_too_large",
				fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// publish forwards env when a publisher is configured. Failures are logged;
// the HTTP response does not depend on delivery.
func (s *Server) publish(ctx context.Context, env *report.Envelope) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		s.logger.Warn("Failed to publish result",
			slog.String("kind", string(env.Kind)),
			slog.String("id", env.ID),
			slog.String("error", err.Error()))
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)))
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

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, errorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
