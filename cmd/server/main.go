// Chat transport server: streams agent replies over WebSocket.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/kipackjeong/Demo-sub001/internal/api"
	"github.com/kipackjeong/Demo-sub001/internal/chat"
	"github.com/kipackjeong/Demo-sub001/internal/config"
	"github.com/kipackjeong/Demo-sub001/internal/engine"
	"github.com/kipackjeong/Demo-sub001/internal/identity"
	"github.com/kipackjeong/Demo-sub001/internal/metrics"
	"github.com/kipackjeong/Demo-sub001/internal/middleware"
	"github.com/kipackjeong/Demo-sub001/internal/store"
	"github.com/kipackjeong/Demo-sub001/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Agent engine: gRPC when an address is configured, local echo otherwise.
	var eng engine.Engine
	if cfg.EngineAddr != "" {
		slog.Info("Connecting to agent engine via gRPC", "address", cfg.EngineAddr)
		grpcEngine, err := engine.NewGrpc(engine.DefaultGrpcConfig(cfg.EngineAddr), logger)
		if err != nil {
			slog.Error("Failed to connect to agent engine", "error", err)
			os.Exit(1)
		}
		eng = grpcEngine
	} else {
		slog.Warn("ENGINE_ADDR not set, using the local echo engine")
		eng = engine.NewLocal(nil)
	}
	defer eng.Close()

	transcript, err := chat.NewTranscript(chat.TranscriptConfig{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	})
	if err != nil {
		slog.Error("Failed to initialize transcript writer", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcript.Close(); closeErr != nil {
			slog.Error("Failed to close transcript writer", "error", closeErr)
		}
	}()

	mtr := metrics.New()
	registry := chat.NewRegistry()
	chatHandler := chat.NewHandler(repo, eng, registry, chat.Options{
		TurnTimeout:    cfg.TurnTimeout,
		TurnQueueDepth: cfg.TurnQueueDepth,
		AllowedOrigin:  cfg.FrontendURL,
		Dev:            cfg.IsDevelopment(),
		Transcript:     transcript,
		Metrics:        mtr,
	})

	baseHandler := api.NewHandler(repo)
	sessionsHandler := api.NewSessionsHandler(baseHandler)
	healthHandler := api.NewHealthHandler(repo, eng, registry)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	sessionsHandler.RegisterRoutes(r)
	r.Handle("/metrics", mtr.Handler())

	// WebSocket endpoint.
	r.Get("/ws/chat", chatHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WriteTimeout stays 0: streaming replies hold the socket open for the
	// whole turn.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	// Normal closure tells clients not to reconnect.
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
