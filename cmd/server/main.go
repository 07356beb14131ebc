package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/custonfe/nfe-cost-service/api"
	"github.com/custonfe/nfe-cost-service/internal/auth"
	"github.com/custonfe/nfe-cost-service/internal/db"
	"github.com/custonfe/nfe-cost-service/internal/logger"
	"github.com/custonfe/nfe-cost-service/internal/models"
	"github.com/custonfe/nfe-cost-service/internal/storage"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	config, err := models.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(config.Log, config.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	// Initialize JWT
	if err := auth.Init(); err != nil {
		appLogger.Fatal("Failed to initialize auth", zap.Error(err))
	}

	// Database and storage are optional document sources
	if err := db.Init(appLogger); err != nil {
		appLogger.Warn("Database not available, stored documents by id disabled", zap.Error(err))
	} else {
		defer db.Close()
	}

	if err := storage.Init(); err != nil {
		appLogger.Warn("MinIO storage not available, stored objects disabled", zap.Error(err))
	} else {
		appLogger.Info("MinIO storage initialized", zap.String("bucket", storage.BucketName))
	}

	handler := api.NewHandler(config, appLogger)
	router := handler.SetupRoutes()
	router.HandleFunc("/api/login", auth.LoginHandler).Methods("POST")

	// Wrap router with JWT middleware (skips /health and /api/login)
	var root http.Handler = auth.JWTMiddleware(router)
	root = logger.Recovery(appLogger)(root)
	root = logger.Middleware(appLogger)(root)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		appLogger.Info("Starting NF-e cost service",
			zap.String("version", api.Version),
			zap.String("addr", addr),
			zap.String("policy", config.Allocation.Policy),
			zap.Int("concurrency", config.Batch.Concurrency),
			zap.String("ai_provider", config.AI.DefaultProvider),
			zap.Bool("database", db.Available()),
			zap.Bool("storage", storage.Available()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
