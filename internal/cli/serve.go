package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/voicelab/internal/api"
	"github.com/ashureev/voicelab/internal/config"
	"github.com/ashureev/voicelab/internal/identity"
	"github.com/ashureev/voicelab/internal/middleware"
	"github.com/ashureev/voicelab/internal/pipecat"
	"github.com/ashureev/voicelab/internal/session"
	"github.com/ashureev/voicelab/internal/store"
	"github.com/ashureev/voicelab/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "version", version)

	catalog, err := loadCatalog(cmd, cfg)
	if err != nil {
		return err
	}
	slog.Info("Level catalog loaded", "levels", catalog.Len(), "source", cfg.LevelsFile)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	if !cfg.PipecatConfigured() {
		slog.Warn("AGENT_NAME or PIPECAT_CLOUD_API_KEY not set, calls will fail to start")
	}

	registry := session.NewRegistry(catalog, repo, slog.Default())
	agentClient := pipecat.NewClient(cfg.Pipecat.APIBase, cfg.Pipecat.AgentName, cfg.Pipecat.APIKey, cfg.Pipecat.ConnectTimeout)
	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, catalog, registry, cfg)
	challengeHandler := api.NewChallengeHandler(baseHandler)
	connectHandler := api.NewConnectHandler(agentClient, limiter)
	healthHandler := api.NewHealthHandler(repo, registry)
	wsHandler := api.NewCallSocketHandler(registry, cfg.Call.CommandTimeout, cfg.AllowedOrigins)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Everything else runs as an anonymous player.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.IsDevelopment()))
		challengeHandler.RegisterRoutes(r)
		connectHandler.RegisterRoutes(r)
		r.Get("/ws/call", wsHandler.ServeHTTP)
	})

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// No WriteTimeout: /ws/call connections live as long as the call.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session.StartIdleSweeper(ctx, registry, cfg.Session.IdleTTL, cfg.Session.SweepInterval)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal.
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}
