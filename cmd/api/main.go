package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/api"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/audit"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/config"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/face"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/preference"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/session"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting facecheck API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("backend", cfg.InferenceBackend),
		slog.String("preference_store", cfg.PreferenceStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, err := face.NewBackendFactory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create inference backend: %w", err)
	}

	prefs, checks, closePrefs, err := openPreferences(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePrefs()

	hub := ws.NewHub()
	go hub.Run(ctx)

	manager := session.NewManager(factory, session.ManagerConfig{
		DefaultAPIURL: cfg.InferenceURL,
		AutoChecks:    cfg.AutoChecks,
		Timeout:       cfg.InferenceTimeout,
		TTL:           cfg.SessionTTL,
		BackendName:   cfg.InferenceBackend,
	},
		session.WithPublisher(hub),
		session.WithAuditLogger(audit.NewSlogLogger(logger)),
		session.WithPreferences(prefs),
		session.WithLogger(logger),
	)
	go manager.Run(ctx)

	router := api.NewRouter(logger, &api.Dependencies{
		Sessions:     manager,
		Hub:          hub,
		RateLimitMax: cfg.RateLimitMax,
		ReadyChecks:  checks,
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")
	if err := router.Shutdown(); err != nil {
		logger.Error("shutdown error", slog.Any("error", err))
	}

	// Let in-flight background checks finish before closing the stores
	done := make(chan struct{})
	go func() {
		manager.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("background checks still running at shutdown")
	}

	logger.Info("server stopped")

	return nil
}

// openPreferences connects the configured preference store and returns the
// readiness checks of its backing service
func openPreferences(ctx context.Context, cfg *config.Config) (preference.Store, map[string]handler.ReadinessCheck, func(), error) {
	switch cfg.PreferenceStore {
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		checks := map[string]handler.ReadinessCheck{"postgres": pool.Ping}
		return preference.NewPGStore(pool), checks, pool.Close, nil

	case config.StoreRedis:
		client, err := preference.NewRedisClient(ctx, preference.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			Namespace: "facecheck",
		})
		if err != nil {
			return nil, nil, nil, err
		}
		checks := map[string]handler.ReadinessCheck{
			"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}
		return preference.NewRedisStore(client, "facecheck"), checks, func() { _ = client.Close() }, nil

	default:
		return preference.NewMemoryStore(), nil, func() {}, nil
	}
}
