/*
Package main is the entry point for the Chatterbox server.

It loads configuration, initializes logging and metrics, opens the configured store and object
storage, wires the realtime layer and services, and serves HTTP until SIGINT or SIGTERM.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatterbox/internal/app/chat"
	"chatterbox/internal/app/delivery"
	"chatterbox/internal/app/gateway"
	"chatterbox/internal/app/presence"
	"chatterbox/internal/app/realtime"
	"chatterbox/internal/app/storage"
	"chatterbox/internal/app/store"
	"chatterbox/internal/app/store/memory"
	"chatterbox/internal/app/store/mongo"
	"chatterbox/internal/app/store/postgres"
	"chatterbox/internal/app/user"
	"chatterbox/internal/configs"
	"chatterbox/internal/handler"
	"chatterbox/internal/pkg/logx"
	"chatterbox/internal/pkg/pow"
	"chatterbox/internal/pkg/telemetry"
)

func openStore(ctx context.Context, cfg *configs.AppConfig) (store.Store, error) {
	switch cfg.StoreDriver {
	case configs.StorePostgres:
		return postgres.Open(ctx, cfg.DatabaseDSN)
	case configs.StoreMongo:
		return mongo.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		logx.Warn("Using the in-memory store; data is lost on restart")
		return memory.New(), nil
	}
}

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.Origins()).
		Str("store_driver", cfg.StoreDriver).
		Bool("uploads_enabled", cfg.UploadsEnabled()).
		Int("pow_difficulty", cfg.PowDifficulty).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		logx.Fatal(err, "Failed to initialize telemetry")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open store", "driver", cfg.StoreDriver)
	}

	files, err := storage.NewService(ctx, storage.ServiceConfig{
		BucketName:      cfg.S3BucketName,
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		PublicBaseURL:   cfg.S3PublicBaseURL,
	})
	if err != nil {
		logx.Fatal(err, "Failed to initialize object storage")
	}

	registry := realtime.NewRegistry()
	rooms := realtime.NewRooms()
	broadcaster := realtime.NewBroadcaster(registry, rooms)

	engine := delivery.NewEngine(st, registry, broadcaster)
	tracker := presence.NewTracker(registry, rooms, broadcaster, st, engine)
	gw := gateway.New(tracker, rooms, broadcaster, engine, st)

	deps := &handler.AppDeps{
		Config: cfg,
		Users:  user.NewService(st, files, broadcaster, cfg.MaxUploadBytes),
		Chats: chat.NewService(st, files, engine, broadcaster, tracker, chat.Options{
			MaxUploadBytes: cfg.MaxUploadBytes,
		}),
		Gateway: gw,
		Pow:     pow.NewManager(ctx, cfg.PowDifficulty),
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.Router(ctx, deps),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Chatterbox server starting on http://localhost%s", cfg.Addr()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Hijacked WebSocket connections are not tracked by server.Shutdown.
	tracker.CloseAll()

	if err := st.Close(shutdownCtx); err != nil {
		logx.Error(err, "Failed to close store")
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logx.Error(err, "Failed to flush telemetry")
	}

	logx.Info("Server gracefully stopped.")
}
