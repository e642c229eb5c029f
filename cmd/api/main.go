package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jclararobles/AppListVideos/infrastructure/config"
	"github.com/jclararobles/AppListVideos/infrastructure/di"
	"github.com/jclararobles/AppListVideos/pkg/observability"
)

func main() {
	// Initialize context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize dependency container
	container, cleanup, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer cleanup()
	logger := container.Logger

	var tracer *observability.TracerProvider
	if cfg.EnableTracing {
		tracer, err = observability.InitTracing(ctx, observability.TracingConfig{
			ServiceName:  cfg.ServiceName,
			Version:      cfg.Version,
			Environment:  cfg.Environment,
			OTLPEndpoint: cfg.OTLPEndpoint,
			SampleRate:   cfg.TraceSampleRate,
			Insecure:     !cfg.IsProduction(),
		})
		if err != nil {
			logger.Warn("Tracing disabled", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:        cfg.ServerAddress,
		Handler:     container.Router.Setup(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket connections are long lived
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
			zap.String("store", cfg.Store.Backend),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	// Shutdown does not wait for hijacked connections
	container.Live.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	if tracer != nil {
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown error", zap.Error(err))
		}
	}

	log.Println("Server stopped")
}
