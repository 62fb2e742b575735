// El Vecinito - neighborhood shop assistant server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/elvecinito/vecinito-server/internal/agent"
	"github.com/elvecinito/vecinito-server/internal/api"
	"github.com/elvecinito/vecinito-server/internal/catalog"
	"github.com/elvecinito/vecinito-server/internal/coalesce"
	"github.com/elvecinito/vecinito-server/internal/config"
	"github.com/elvecinito/vecinito-server/internal/identity"
	"github.com/elvecinito/vecinito-server/internal/llm"
	"github.com/elvecinito/vecinito-server/internal/middleware"
	"github.com/elvecinito/vecinito-server/internal/session"
	"github.com/elvecinito/vecinito-server/internal/telemetry"
	"github.com/elvecinito/vecinito-server/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if _, err := telemetry.InitLogger(cfg.LogDir); err != nil {
		slog.Error("Failed to initialize logging", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryCleanup, err := telemetry.Init(ctx, cfg.LogDir)
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer telemetryCleanup()

	slog.Info("Starting server", "port", cfg.Port, "backend", cfg.Backend, "agent", cfg.Agent)

	// Initialize dependencies.
	var client llm.Client
	switch cfg.Backend {
	case config.BackendGroq:
		client = llm.NewGroq(cfg.GroqURL, cfg.GroqModel, func() string { return cfg.GroqAPIKey }, cfg.UpstreamTimeout)
	default:
		client = llm.NewOllama(cfg.OllamaURL, cfg.ModelName, cfg.UpstreamTimeout)
	}

	sessions := session.NewMemoryStore()
	index := catalog.NewIndex(cfg.ProductDir())
	picker := catalog.NewPicker(index)
	prompts := agent.NewPromptLoader(cfg.AgentDir)
	coord := agent.NewCoordinator(sessions, index, client, prompts, cfg.Agent)

	// A zero quiet period disables coalescing; every request is answered
	// directly.
	var buffer *coalesce.Buffer
	if cfg.CoalesceQuiet > 0 {
		buffer = coalesce.New(cfg.CoalesceQuiet, api.DegradedFlush(coord, picker))
	}

	handler := api.NewHandler(coord, buffer, index, picker)
	wsHandler := api.NewWebSocketHandler(coord, buffer, cfg.AllowedOrigins, isDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(identity.Middleware(isDevelopment()))

	handler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Product images straight from disk; the landing page is embedded.
	fileServer := http.StripPrefix(catalog.URLPrefix, http.FileServer(http.Dir(cfg.ProductDir())))
	r.Get(catalog.URLPrefix+"/*", fileServer.ServeHTTP)
	r.Handle("/*", web.Handler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // chat requests sit out the coalescing quiet period
		IdleTimeout:  120 * time.Second,
	}

	session.StartSweeper(ctx, sessions, cfg.SessionTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// isDevelopment reports whether the server runs in development mode, which
// relaxes cookie and websocket origin checks.
func isDevelopment() bool {
	env := strings.ToLower(os.Getenv("APP_ENV"))
	return env == "" || env == "development"
}
