package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/finchat/internal/access"
	"github.com/ziadkadry99/finchat/internal/audit"
	"github.com/ziadkadry99/finchat/internal/auth"
	"github.com/ziadkadry99/finchat/internal/bots"
	"github.com/ziadkadry99/finchat/internal/chat"
	"github.com/ziadkadry99/finchat/internal/dashboard"
	"github.com/ziadkadry99/finchat/internal/gaps"
	"github.com/ziadkadry99/finchat/internal/ingest"
)

// Config holds server configuration.
type Config struct {
	Port     int
	AllowAll bool // allow all CORS origins (dev mode)
}

// Deps bundles the feature services the router mounts. Users is
// required; nil optional fields leave their routes unregistered.
type Deps struct {
	Users     *auth.Store
	Google    auth.GoogleConfig
	Chat      *chat.Service
	Documents *ingest.Store
	Audit     *audit.Store
	Gaps      *gaps.Store
	Recorder  *audit.Recorder
	Dashboard *dashboard.Dashboard
	Slack     *bots.SlackHandler
	Teams     *bots.TeamsHandler
}

// Server is the finchat HTTP server.
type Server struct {
	cfg        Config
	deps       Deps
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
	stopPurge  chan struct{}
}

// New assembles the router from the configured features.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, deps: deps, logger: logger}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Public surface: login and SSO, platform webhooks, the chat page.
	auth.RegisterRoutes(r, s.deps.Users, s.deps.Google, s.deps.Recorder)
	bots.RegisterRoutes(r, s.deps.Slack, s.deps.Teams)
	if s.deps.Dashboard != nil {
		s.deps.Dashboard.RegisterRoutes(r)
	}

	// Everything below requires a session.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.deps.Users))

		if s.deps.Chat != nil {
			chat.RegisterRoutes(r, s.deps.Chat)
		}
		if s.deps.Documents != nil {
			r.Get("/api/documents", s.handleDocuments)
			r.Get("/api/stats", s.handleStats)
		}

		// Admin surface.
		if s.deps.Audit != nil || s.deps.Gaps != nil {
			r.Route("/api/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(access.RoleCLevel))
				if s.deps.Audit != nil {
					audit.RegisterRoutes(r, s.deps.Audit)
				}
				if s.deps.Gaps != nil {
					gaps.RegisterRoutes(r, s.deps.Gaps, s.deps.Recorder)
				}
			})
		}
	})

	return r
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// Start begins listening on the configured port and starts the hourly
// expired-session sweep.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if s.deps.Users != nil {
		s.stopPurge = make(chan struct{})
		go s.purgeSessions()
	}

	s.logger.Info("finchat server listening", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// purgeSessions deletes expired sessions once an hour until Shutdown.
func (s *Server) purgeSessions() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := s.deps.Users.PurgeExpiredSessions(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("session sweep failed", "error", err)
			} else if n > 0 {
				s.logger.Info("expired sessions purged", "count", n)
			}
		case <-s.stopPurge:
			return
		}
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stopPurge != nil {
		close(s.stopPurge)
		s.stopPurge = nil
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
