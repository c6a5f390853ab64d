// Package main provides the entrypoint for the cardroute reconcile worker.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/database"
	"github.com/cardroute/cardroute/internal/httpx"
	"github.com/cardroute/cardroute/internal/resilience"
	"github.com/cardroute/cardroute/internal/routing"
	"github.com/cardroute/cardroute/internal/transport"
	"github.com/cardroute/cardroute/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "cardroute-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting cardroute worker")

	// Worker also exposes a health endpoint for the container platform
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database for health snapshot writes
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	syncURL := os.Getenv("SYNC_URL")
	if syncURL == "" {
		syncURL = "http://localhost:8080/v1/sync"
	}

	queue := transport.NewPendingSyncQueue()
	reconcileJob := worker.NewReconcileJob(worker.ReconcileJobConfig{
		Config: worker.ReconcileConfig{SyncURL: syncURL},
		Queue:  queue,
		Client: httpx.NewClient(httpx.DefaultConfig("sync-backend")),
		Logger: log,
	})

	healthSweep := worker.NewHealthSweep(
		resilience.NewHealthTracker(0),
		routing.NewPostgresStore(pool),
		log,
	)

	// Health check server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","version":"%s"}`, Version)
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Pub/Sub-triggered job processing
	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	if subscription == "" {
		subscription = "cardroute-worker-jobs"
	}

	if projectID != "" {
		pubsubHandler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        projectID,
			SubscriptionName: subscription,
			ReconcileJob:     reconcileJob,
			HealthSweep:      healthSweep,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer pubsubHandler.Close()

		go func() {
			if err := pubsubHandler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
		log.Info().Str("subscription", subscription).Msg("pubsub handler started")
	} else {
		// Without Pub/Sub, fall back to a periodic reconcile loop
		interval := 30 * time.Second
		log.Warn().
			Dur("interval", interval).
			Msg("PUBSUB_PROJECT_ID not set, running periodic reconcile loop")

		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					reconcileJob.Run(ctx)
					healthSweep.Run(ctx)
				}
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
