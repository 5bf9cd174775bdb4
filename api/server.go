// Package api provides the HTTP REST API for MedChat.
//
// Endpoints:
//
//	POST /api/chat      →  answer a question (full RAG pipeline)
//	POST /api/sessions  →  create a conversation session
//	GET  /api/sessions/{id}/messages  →  session history
//	POST /api/feedback  →  thumbs up/down on a message
//	GET  /health        →  liveness probe
//	GET  /ready         →  readiness probe (pings the database)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (recovery, rate limit, logging)
//   - health.go: health check endpoints
//   - session.go: session endpoints
//   - chat.go: the answer endpoint
//   - feedback.go: the feedback endpoint
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medchat/medchat/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response. Answer
	// turns chain several model calls, so this is generous.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum wait for the next keep-alive request.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for MedChat's REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	rateLimitRPS   float64
	rateLimitBurst int

	health   *HealthHandler
	session  *SessionHandler
	chat     *ChatHandler
	feedback *FeedbackHandler
}

// Config carries the server's collaborators and tuning.
type Config struct {
	Pool           *pgxpool.Pool
	Orchestrator   Answerer
	Sessions       SessionStore
	Feedback       FeedbackStore
	Logger         log.Logger
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg Config) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:            mux,
		logger:         cfg.Logger,
		rateLimitRPS:   cfg.RateLimitRPS,
		rateLimitBurst: cfg.RateLimitBurst,
		health:         NewHealthHandler(cfg.Pool, cfg.Logger),
		session:        NewSessionHandler(cfg.Sessions, cfg.Logger),
		chat:           NewChatHandler(cfg.Orchestrator, cfg.Logger),
		feedback:       NewFeedbackHandler(cfg.Feedback, cfg.Logger),
	}

	s.health.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.feedback.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → rate limit → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		rateLimitMiddleware(s.rateLimitRPS, s.rateLimitBurst),
		loggingMiddleware(s.logger),
	)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
