// Package api provides HTTP handlers and the main API server logic for AgentBuilder.
//
// It exposes JSON endpoints for driving agent-building sessions, reviewing the
// synthesized workflow and exporting generated prompts, plus a Twilio WhatsApp
// webhook that runs the same dialogue over chat.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/AgentBuilder/internal/metrics"
	"github.com/BTreeMap/AgentBuilder/internal/session"
	"github.com/BTreeMap/AgentBuilder/internal/twiliowhatsapp"
)

// Server timeouts.
const (
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Server serves the AgentBuilder HTTP API.
type Server struct {
	sessions        *session.Manager
	sender          twiliowhatsapp.Sender
	validator       *twiliowhatsapp.WebhookValidator
	shutdownTimeout time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithWhatsApp enables the Twilio webhook. A nil validator accepts unsigned requests.
func WithWhatsApp(sender twiliowhatsapp.Sender, validator *twiliowhatsapp.WebhookValidator) Option {
	return func(s *Server) {
		s.sender = sender
		s.validator = validator
	}
}

// WithShutdownTimeout bounds how long Run waits for in-flight requests on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) { s.shutdownTimeout = d }
}

// NewServer creates a new API server over the session manager.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{sessions: sessions, shutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(s)
	}
	slog.Debug("Server created", "whatsapp", s.sender != nil, "signatureValidation", s.validator != nil)
	return s
}

// Handler returns the routed HTTP handler with request metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /sessions", s.createSessionHandler)
	mux.HandleFunc("POST /sessions/{id}/messages", s.sendMessageHandler)
	mux.HandleFunc("GET /sessions/{id}/status", s.sessionStatusHandler)
	mux.HandleFunc("POST /sessions/{id}/resume", s.resumeSessionHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSessionHandler)

	mux.HandleFunc("GET /sessions/{id}/workflow", s.getWorkflowHandler)
	mux.HandleFunc("POST /sessions/{id}/workflow/review", s.reviewWorkflowHandler)
	mux.HandleFunc("POST /sessions/{id}/workflow/regenerate", s.regenerateWorkflowHandler)

	mux.HandleFunc("POST /sessions/{id}/prompts", s.generatePromptsHandler)
	mux.HandleFunc("GET /sessions/{id}/export", s.exportHandler)

	if s.sender != nil {
		mux.HandleFunc("POST /twilio/webhook", s.twilioWebhookHandler)
	}
	return instrument(mux)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("AgentBuilder API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("AgentBuilder API shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: graceful shutdown failed", "error", err)
		srv.Close()
		<-errCh
		return err
	}
	<-errCh
	return nil
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts responses per matched route pattern.
func instrument(mux *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		_, pattern := mux.Handler(r)
		mux.ServeHTTP(rec, r)
		if pattern == "" {
			pattern = "unmatched"
		}
		metrics.RecordHTTPRequest(pattern, strconv.Itoa(rec.status))
	})
}
