// Package main provides the entrypoint for the subjectdesk worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/subjectdesk/subjectdesk/internal/database"
	"github.com/subjectdesk/subjectdesk/internal/mail"
	"github.com/subjectdesk/subjectdesk/internal/notify"
	"github.com/subjectdesk/subjectdesk/internal/request"
	"github.com/subjectdesk/subjectdesk/internal/resilience"
	"github.com/subjectdesk/subjectdesk/internal/telemetry"
	"github.com/subjectdesk/subjectdesk/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "subjectdesk-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting subjectdesk worker")

	// Worker also exposes health and metrics endpoints for Cloud Run
	port := getEnvOrDefault("APP_PORT", "8080")
	cfg := worker.ConfigFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := worker.NewMetrics(reg)

	purger, closeStore, err := ledgerFromEnv(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger store")
	}
	defer closeStore()

	var jobs sync.WaitGroup

	if purger != nil {
		sweep := worker.NewSweep(worker.SweepConfig{
			Purger:   purger,
			Interval: cfg.SweepInterval,
			Metrics:  metrics,
			Logger:   log,
		})
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			_ = sweep.Run(ctx) //nolint:errcheck // returns only on cancellation
		}()
	}

	if cfg.ProjectID != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub client")
		}
		defer psClient.Close()

		registry := resilience.NewRegistry(nil)
		mailer := mail.NewClient(mail.ConfigFromEnv(), resilience.NewClient(resilience.ClientConfig{
			Name:     mail.DependencyName,
			Registry: registry,
			Logger:   log,
		}), log)

		delivery := worker.NewDelivery(worker.DeliveryConfig{
			Client:         psClient,
			Subscription:   cfg.Subscription,
			MaxOutstanding: cfg.MaxOutstanding,
			Sender:         notify.NewDirect(notify.NewComposer(getEnvOrDefault("APP_BASE_URL", "http://localhost:8080")), mailer, log),
			Metrics:        metrics,
			Logger:         log,
		})
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			if err := delivery.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("notification delivery stopped")
			}
		}()
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - notification delivery disabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"OK","version":%q}`, Version)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

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
	jobs.Wait()

	log.Info().Msg("worker stopped")
}

// ledgerFromEnv opens the ledger store named by LEDGER_BACKEND for sweeping.
// The memory backend has nothing to sweep from another process.
func ledgerFromEnv(ctx context.Context, log zerolog.Logger) (worker.Purger, func(), error) {
	var repo request.Repository
	closeStore := func() {}

	switch backend := getEnvOrDefault("LEDGER_BACKEND", "postgres"); backend {
	case "memory":
		log.Warn().Msg("memory ledger backend - expiry sweep disabled")
		return nil, closeStore, nil
	case "redis":
		db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
		rdb := redis.NewClient(&redis.Options{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       db,
		})
		repo = request.NewRedisRepository(request.RedisRepositoryConfig{Client: rdb})
		closeStore = func() { _ = rdb.Close() }
	case "postgres":
		pool, err := database.Connect(ctx, database.ConfigFromEnv())
		if err != nil {
			return nil, closeStore, err
		}
		repo = request.NewPostgresRepository(pool)
		closeStore = pool.Close
	default:
		return nil, closeStore, fmt.Errorf("unknown LEDGER_BACKEND %q", backend)
	}

	ttl := request.DefaultTokenTTL
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			closeStore()
			return nil, func() {}, fmt.Errorf("invalid TOKEN_TTL: %w", err)
		}
		ttl = parsed
	}

	ledger, err := request.NewLedger(request.LedgerConfig{
		Repository: repo,
		TokenTTL:   ttl,
		Logger:     log,
	})
	if err != nil {
		closeStore()
		return nil, func() {}, err
	}
	return ledger, closeStore, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
