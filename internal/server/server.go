// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/comigor/portfolio-chat/internal/chat"
	"github.com/comigor/portfolio-chat/internal/config"
	"github.com/comigor/portfolio-chat/internal/history"
	"github.com/comigor/portfolio-chat/internal/logger"
	"github.com/comigor/portfolio-chat/internal/metrics"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "portfolio-chat-api"

// ChatService is the conversation pipeline served by the API.
type ChatService interface {
	Send(ctx context.Context, sessionID, message string) (chat.Turn, error)
	History(ctx context.Context, sessionID string, limit int) ([]history.Message, error)
}

// Server is the HTTP front of the chat service.
type Server struct {
	cfg           config.ServerConfig
	chat          ChatService
	metrics       *metrics.Metrics
	origins       []string
	originPattern *regexp.Regexp
}

// New builds a server. A nil metrics leaves /metrics unmounted.
func New(cfg config.ServerConfig, svc ChatService, m *metrics.Metrics) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		chat:    svc,
		metrics: m,
		origins: cfg.Origins(),
	}
	if cfg.AllowedOriginPattern != "" {
		re, err := regexp.Compile(cfg.AllowedOriginPattern)
		if err != nil {
			return nil, fmt.Errorf("server: allowed origin pattern: %w", err)
		}
		s.originPattern = re
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  s.allowOrigin,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth())
		r.Post("/chat", s.handleChat())
		r.Get("/chat/history/{sessionID}", s.handleHistory())
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// allowOrigin accepts the configured origins and anything matching the
// origin pattern in full.
func (s *Server) allowOrigin(_ *http.Request, origin string) bool {
	if slices.Contains(s.origins, origin) {
		return true
	}
	if s.originPattern == nil {
		return false
	}
	loc := s.originPattern.FindStringIndex(origin)
	return loc != nil && loc[0] == 0 && loc[1] == len(origin)
}

// Run listens on the configured address and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("server: listen failed: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve handles connections on ln until ctx is canceled, then shuts down
// gracefully within the configured shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	logger.L.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.L.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
