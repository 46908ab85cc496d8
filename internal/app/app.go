package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"killswitch/internal/auth"
	"killswitch/internal/config"
	"killswitch/internal/infrastructure"
	"killswitch/internal/license"
	"killswitch/internal/metrics"
	"killswitch/internal/middleware"
	"killswitch/internal/store"
	handlers "killswitch/internal/transport/http"
)

const adminUsername = "admin"

// Application is the assembled server: configuration, store, snapshot cache
// and the HTTP surface.
type Application struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Router   *chi.Mux
	Server   *http.Server
	Cache    *license.Cache
	Registry *prometheus.Registry
}

// NewApplication builds the full dependency graph from configuration.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig builds the application from an already validated
// configuration. Tests use this to inject temp-dir stores and fixed secrets.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	logger := infrastructure.InitializeLogger(cfg.Logging)

	logger.Info("application starting",
		slog.Int("port", cfg.Server.Port),
		slog.String("store", cfg.Store.Path))

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	users := store.NewUserStore(db)
	services := store.NewServiceStore(db)
	licenses := store.NewLicenseStore(db)
	requestLogs := store.NewRequestLogStore(db)

	if err := seedAdmin(context.Background(), users, cfg.Security.AdminPassword, logger); err != nil {
		db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	cache := license.NewCache(services, licenses, m, logger)
	if err := cache.Rebuild(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("build initial snapshot: %w", err)
	}

	tokens := auth.NewTokenService(
		cfg.Security.JWTSecret,
		cfg.Security.AccessTokenTTL,
		cfg.Security.RefreshTokenTTL,
		logger,
	)
	validator := license.NewValidator(cache, requestLogs, m, logger)
	gate := middleware.RequireAuth(tokens)

	authHandler := handlers.NewAuthHandler(users, tokens, cfg.Security.AllowRegistration, logger)
	serviceHandler := handlers.NewServiceHandler(services, cache, logger)
	licenseHandler := handlers.NewLicenseHandler(licenses, services, cache, validator, logger)
	logHandler := handlers.NewLogHandler(requestLogs, logger)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.StructuredLogger(logger))
	router.Use(middleware.Recoverer(logger))
	if cfg.Security.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, logger)
		router.Use(limiter.Handler)
	}
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))

	router.Get("/ping", handlers.Ping)
	router.Mount("/auth", authHandler.Routes(gate))
	router.Mount("/license", licenseHandler.Routes(gate))
	router.With(gate).Mount("/services", serviceHandler.Routes())
	router.With(gate).Mount("/logs", logHandler.Routes())
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		Config:   cfg,
		Logger:   logger,
		DB:       db,
		Router:   router,
		Server:   server,
		Cache:    cache,
		Registry: registry,
	}, nil
}

// seedAdmin creates the initial admin account on an empty user table. The
// password comes from configuration and is hashed here; unlike the other
// startup requirements it is only mandatory when seeding actually happens.
func seedAdmin(ctx context.Context, users *store.UserStore, password string, logger *slog.Logger) error {
	count, err := users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		return fmt.Errorf("user table is empty and security.admin_password is unset; cannot seed the admin account")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if _, err := users.Insert(ctx, adminUsername, hash); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	logger.Info("seeded initial admin account", slog.String("username", adminUsername))
	return nil
}

// Run starts the HTTP server and blocks until SIGINT or SIGTERM, then shuts
// down gracefully within the configured timeout. A listen failure cancels the
// group and surfaces as the returned error.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", slog.String("addr", a.Server.Addr))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.Logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if closeErr := a.DB.Close(); err == nil && closeErr != nil {
		return fmt.Errorf("close store: %w", closeErr)
	}
	if err != nil {
		return err
	}

	a.Logger.Info("shutdown complete")
	return nil
}
