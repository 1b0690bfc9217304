// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the store, cache, services,
// handlers and middleware, and decides:
//   - which URL patterns map to which handler functions
//   - which middleware runs on which routes
//   - how the server starts and stops
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → OpenStore (sqlite.DB or postgres.DB) + cache (Redis or Nop)
//	  → AuthService, UserService, EventService, RegistrationService
//	  → AuthHandler, UserHandler, EventHandler, HealthHandler
//	  → chi routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/routes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/community-events/internal/auth"
	"github.com/sakif/community-events/internal/cache"
	"github.com/sakif/community-events/internal/config"
	"github.com/sakif/community-events/internal/handler"
	"github.com/sakif/community-events/internal/metrics"
	"github.com/sakif/community-events/internal/middleware"
	"github.com/sakif/community-events/internal/repository"
	"github.com/sakif/community-events/internal/repository/postgres"
	"github.com/sakif/community-events/internal/repository/sqlite"
	"github.com/sakif/community-events/internal/service"
)

const (
	loginWindow        = 15 * time.Minute
	dbMetricsInterval  = 15 * time.Second
	connectTimeout     = 10 * time.Second
	defaultDrainPeriod = 30 * time.Second
)

// Server owns every long-lived resource of the API process.
//
// RESOURCE MANAGEMENT:
// The store, cache, login limiter and pool collector are created in New and
// released by Close. Start calls Close itself once the HTTP server has
// drained, so callers only need Close when Start is never reached.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	router *chi.Mux

	store     repository.Store
	cache     cache.Cache
	limiter   *middleware.LoginRateLimit
	collector *metrics.DBCollector
	users     *service.UserService
}

// New opens the store and cache, builds the services and mounts the routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
		Expiry: cfg.Auth.JWTExpiry,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("server: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    chi.NewRouter(),
		store:     store,
		cache:     openCache(ctx, cfg.Redis, logger),
		limiter:   middleware.NewLoginRateLimit(cfg.RateLimit.LoginPer15Minutes, loginWindow, logger),
		collector: metrics.NewDBCollector(poolStats(store)),
	}

	passwords := auth.NewPasswordService(cfg.Auth.BcryptCost)
	authSvc := service.NewAuthService(store.Users(), tokens, passwords, logger)
	s.users = service.NewUserService(store, passwords, s.cache, logger)
	events := service.NewEventService(store, s.cache, cfg.Redis.CacheTTL, logger)
	registrations := service.NewRegistrationService(store, s.cache, logger)

	var github *auth.GitHubProvider
	if gh := githubConfig(cfg); gh.Enabled() {
		github = auth.NewGitHubProvider(gh)
		logger.Info("GitHub login enabled", slog.String("callback", gh.CallbackURL))
	}

	s.routes(tokens, routeHandlers{
		auth:   handler.NewAuthHandler(authSvc, github, logger),
		users:  handler.NewUserHandler(s.users, registrations, logger),
		events: handler.NewEventHandler(events, registrations, logger),
		health: handler.NewHealthHandler(store, logger),
	})
	return s, nil
}

type routeHandlers struct {
	auth   *handler.AuthHandler
	users  *handler.UserHandler
	events *handler.EventHandler
	health *handler.HealthHandler
}

// routes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /healthz                          liveness
//	GET    /readyz                           store ping
//	GET    /metrics                          Prometheus
//
//	POST   /api/auth/register                public, rate limited
//	POST   /api/auth/login                   public, rate limited
//	GET    /api/auth/me                      bearer
//	GET    /api/auth/github/login            public
//	GET    /api/auth/github/callback         public
//
//	GET    /api/users                        admin
//	GET    /api/users/{username}             public (email for owner/admin)
//	PATCH  /api/users/{username}             bearer, self or admin
//	DELETE /api/users/{username}             bearer, self or admin
//	GET    /api/users/{username}/registrations  bearer, self or admin
//
//	GET    /api/events                       public
//	GET    /api/events/{id}                  public
//	POST   /api/events/{id}/register         bearer
//	DELETE /api/events/{id}/register         bearer
//	POST   /api/events                       admin
//	PATCH  /api/events/{id}                  admin, creator or admin
//	DELETE /api/events/{id}                  admin, creator or admin
//	GET    /api/events/creator/{username}    admin
//	GET    /api/events/{id}/registrations    admin
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can print it; Recoverer sits inside
// the logger so a panic is still logged as a 500.
func (s *Server) routes(tokens *auth.TokenService, h routeHandlers) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware)

	s.router.Get("/healthz", h.health.HandleLive)
	s.router.Get("/readyz", h.health.HandleReady)
	s.router.Handle("/metrics", metrics.Handler())

	requireAuth := auth.RequireAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(s.limiter.Handler).Post("/register", h.auth.HandleRegister)
			r.With(s.limiter.Handler).Post("/login", h.auth.HandleLogin)
			r.Get("/github/login", h.auth.HandleGitHubLogin)
			r.Get("/github/callback", h.auth.HandleGitHubCallback)
			r.With(requireAuth).Get("/me", h.auth.HandleMe)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(requireAuth, auth.RequireAdmin).Get("/", h.users.HandleList)
			r.With(auth.OptionalAuth(tokens)).Get("/{username}", h.users.HandleGet)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Patch("/{username}", h.users.HandleUpdate)
				r.Delete("/{username}", h.users.HandleDelete)
				r.Get("/{username}/registrations", h.users.HandleRegistrations)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.events.HandleList)
			r.Get("/{id}", h.events.HandleGet)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/{id}/register", h.events.HandleRegister)
				r.Delete("/{id}/register", h.events.HandleUnregister)

				r.Group(func(r chi.Router) {
					r.Use(auth.RequireAdmin)
					r.Post("/", h.events.HandleCreate)
					r.Patch("/{id}", h.events.HandleUpdate)
					r.Delete("/{id}", h.events.HandleDelete)
					r.Get("/creator/{username}", h.events.HandleListByCreator)
					r.Get("/{id}/registrations", h.events.HandleRegistrations)
				})
			})
		})
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store is the open repository store.
func (s *Server) Store() repository.Store {
	return s.store
}

// BootstrapAdmin creates or promotes the admin account named in
// AdminBootstrap. It does nothing when no username is configured.
func (s *Server) BootstrapAdmin(ctx context.Context) error {
	b := s.cfg.AdminBootstrap
	if b.Username == "" {
		s.logger.Debug("admin bootstrap not configured; skipping")
		return nil
	}
	if _, err := s.users.BootstrapAdmin(ctx, b.Username, b.Email, b.Password); err != nil {
		return fmt.Errorf("server: bootstrapping admin %s: %w", b.Username, err)
	}
	return nil
}

// Start serves HTTP until ctx is cancelled or the process receives SIGINT or
// SIGTERM, then drains in-flight requests and closes every resource.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to ShutdownTimeout for in-flight requests
//  3. Stop the pool collector and close the limiter, cache and store
func (s *Server) Start(ctx context.Context) error {
	defer s.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.collector.Start(gctx, dbMetricsInterval)
		return nil
	})

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("url", s.cfg.Server.BaseURL),
			slog.String("database", s.cfg.Database.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listening on %s: %w", srv.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		drain := s.cfg.Server.ShutdownTimeout
		if drain <= 0 {
			drain = defaultDrainPeriod
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

// Close releases the limiter, collector, cache and store.
func (s *Server) Close() error {
	s.limiter.Stop()
	s.collector.Stop()
	return errors.Join(s.cache.Close(), s.store.Close())
}

// OpenStore opens the configured backend. Postgres migrations run first when
// AutoMigrate is set; SQLite always migrates itself.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite, "":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("database opened", slog.String("driver", "sqlite"), slog.String("path", cfg.SQLitePath))
		return db, nil

	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := postgres.MigrateUp(cfg.URL); err != nil {
				return nil, err
			}
		}
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		db, err := postgres.New(ctx, cfg.URL, cfg.MaxConnections)
		if err != nil {
			return nil, err
		}
		logger.Info("database opened", slog.String("driver", "postgres"))
		return db, nil
	}
	return nil, fmt.Errorf("server: unknown database driver %q", cfg.Driver)
}

// ensureDir creates the parent directory of a SQLite file.
func ensureDir(path string) error {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("server: creating database directory %s: %w", dir, err)
	}
	return nil
}

// openCache connects to Redis when an address is configured. An unreachable
// Redis is logged and replaced by Nop; the API works without the cache.
func openCache(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) cache.Cache {
	if cfg.Addr == "" {
		return cache.Nop{}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, err := cache.NewRedis(ctx, cache.RedisConfig{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		Prefix:   cfg.Prefix,
	})
	if err != nil {
		logger.Warn("event cache disabled", slog.String("error", err.Error()))
		return cache.Nop{}
	}
	logger.Info("event cache enabled", slog.String("addr", cfg.Addr))
	return c
}

func githubConfig(cfg config.Config) auth.GitHubConfig {
	callback := cfg.GitHub.CallbackURL
	if callback == "" {
		callback = strings.TrimRight(cfg.Server.BaseURL, "/") + "/api/auth/github/callback"
	}
	return auth.GitHubConfig{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: cfg.GitHub.ClientSecret,
		CallbackURL:  callback,
	}
}

// poolStats adapts the backend's pool statistics for metrics.DBCollector.
func poolStats(store repository.Store) func() metrics.PoolStats {
	switch db := store.(type) {
	case *sqlite.DB:
		return func() metrics.PoolStats {
			st := db.Stats()
			return metrics.PoolStats{
				Open:    st.OpenConnections,
				InUse:   st.InUse,
				Idle:    st.Idle,
				MaxOpen: st.MaxOpenConnections,
			}
		}
	case *postgres.DB:
		return func() metrics.PoolStats {
			st := db.Stat()
			return metrics.PoolStats{
				Open:    int(st.TotalConns()),
				InUse:   int(st.AcquiredConns()),
				Idle:    int(st.IdleConns()),
				MaxOpen: int(st.MaxConns()),
			}
		}
	}
	return nil
}
