package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/Rentora/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Rentora/internal/api/middlewares"
	"github.com/markdave123-py/Rentora/internal/auth"
	"github.com/markdave123-py/Rentora/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer builds and wires all routes: chat webhooks, health and the
// operator API.
func NewServer(cfg *config.Config, a *App, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	storage := cfg.Storage
	r.Get("/healthz", handlers.NewHealthHandler(storage, a.Serial).Health)

	r.Route("/webhooks", func(wh chi.Router) {
		if a.Telegram != nil {
			wh.Post("/telegram", a.Telegram.Webhook)
		}
		if a.WhatsApp != nil {
			wh.Get("/whatsapp", a.WhatsApp.Verify)
			wh.Post("/whatsapp", a.WhatsApp.Webhook)
		}
	})

	if cfg.AdminEmail != "" {
		issuer := auth.NewIssuer(cfg.JWTSecret, nil)
		authHandler := handlers.NewAuthHandler(issuer, cfg.AdminEmail, cfg.AdminPasswordHash, logger)
		notifHandler := handlers.NewNotificationHandler(a.Store, logger)

		r.Route("/api", func(api chi.Router) {
			// public endpoints
			api.Post("/login", authHandler.Login)

			// protected endpoints
			api.Group(func(protected chi.Router) {
				protected.Use(appMiddleware.JWTMiddleware(issuer, handlers.OperatorRole))
				protected.Get("/notifications", notifHandler.List)
				protected.Post("/notifications/{id}/requeue", notifHandler.Requeue)
			})
		})
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv, log: logger.With("component", "http")}
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.FrontendURL != "" {
		return []string{cfg.FrontendURL}
	}
	return []string{"http://localhost:5173"}
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
