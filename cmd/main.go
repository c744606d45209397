/*
Package main is the entry point for the Buzz chat server.

It is responsible for loading configuration, initializing the global logging system,
opening the document store, starting the presence hub and the push notifier,
setting up the HTTP server, and gracefully handling operating system interrupt
signals (SIGINT, SIGTERM) to ensure a smooth server shutdown.
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

	"golang.org/x/time/rate"

	"buzzchat/internal/app/chat"
	"buzzchat/internal/app/db"
	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/identity"
	"buzzchat/internal/app/push"
	"buzzchat/internal/app/storage"
	"buzzchat/internal/configs"
	"buzzchat/internal/handler"
	"buzzchat/internal/pkg/limiter"
	"buzzchat/internal/pkg/logx"
	"buzzchat/internal/pkg/pow"
)

const (
	// SendRate and SendBurst bound SEND commands per user.
	SendRate  = 1
	SendBurst = 5
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Str("store_driver", cfg.StoreDriver).
		Bool("memory_blob_store", cfg.UseMemoryBlobStore()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := openStore(ctx, cfg)
	defer closeStore()

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize blob store")
	}

	gateway, err := openPushGateway(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to initialize push gateway")
	}

	// The hub outlives the HTTP server so shutdown can kick live sessions.
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := chat.NewHub(store)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	notifier := push.NewNotifier(store, hub, gateway)
	go func() {
		if err := notifier.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logx.Error(err, "Push notifier stopped")
		}
	}()

	deps := &handler.AppDeps{
		Config:      cfg,
		Store:       store,
		Identity:    identity.NewService(store, cfg.JWTSecret, cfg.TokenTTL),
		Hub:         hub,
		Storage:     blobs,
		Push:        gateway,
		PoW:         pow.NewPoWManager(ctx, cfg.PowDifficulty),
		SendLimiter: limiter.NewKeyedLimiter(ctx, "send", rate.Limit(SendRate), SendBurst),
	}

	// Setup HTTP server and routes
	router := handler.Router(ctx, deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Buzz Chat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	stopHub()
	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
		logx.Warn("Hub did not stop before the shutdown deadline")
	}

	logx.Info("Server gracefully stopped.")
}

// openStore returns the configured document store and its release function.
func openStore(ctx context.Context, cfg *configs.AppConfig) (docstore.Store, func()) {
	if cfg.StoreDriver == configs.StoreDriverMemory {
		logx.Warn("Using the in-memory document store; data is lost on restart")
		mem := docstore.NewMemoryStore(docstore.WithUniqueField(identity.Collection, "email"))
		return mem, mem.Close
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to the database")
	}
	pg := docstore.NewPostgresStore(pool)
	return pg, func() {
		pg.Close()
		pool.Close()
	}
}

func openBlobStore(ctx context.Context, cfg *configs.AppConfig) (storage.Service, error) {
	if cfg.UseMemoryBlobStore() {
		logx.Warn("S3 is not configured; uploads are kept in memory")
		return storage.NewMemoryService(), nil
	}
	return storage.NewStorageService(ctx, storage.ServiceConfig{
		S3BucketName:      cfg.S3BucketName,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		Region:            cfg.AWSRegion,
	})
}

func openPushGateway(ctx context.Context, cfg *configs.AppConfig) (push.Gateway, error) {
	if cfg.SNSPlatformApplicationARN == "" {
		logx.Warn("SNS is not configured; push notifications are only logged")
		return push.NewLogGateway(), nil
	}
	return push.NewSNSGateway(ctx, cfg.SNSPlatformApplicationARN)
}
