// Package main provides the entrypoint for the subjectdesk API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/juju/clock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/subjectdesk/subjectdesk/internal/action"
	"github.com/subjectdesk/subjectdesk/internal/api"
	"github.com/subjectdesk/subjectdesk/internal/api/handler"
	"github.com/subjectdesk/subjectdesk/internal/api/middleware"
	"github.com/subjectdesk/subjectdesk/internal/auth"
	"github.com/subjectdesk/subjectdesk/internal/database"
	"github.com/subjectdesk/subjectdesk/internal/identity"
	"github.com/subjectdesk/subjectdesk/internal/mail"
	"github.com/subjectdesk/subjectdesk/internal/notify"
	"github.com/subjectdesk/subjectdesk/internal/request"
	"github.com/subjectdesk/subjectdesk/internal/resilience"
	"github.com/subjectdesk/subjectdesk/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	const serviceName = "subjectdesk-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting subjectdesk API")

	port := getEnvOrDefault("APP_PORT", "8080")
	baseURL := getEnvOrDefault("APP_BASE_URL", "http://localhost:"+port)
	ctx := context.Background()

	telemetryCfg := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryCfg.Enabled {
		log.Info().Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	stores := map[string]handler.Pinger{}

	// Accounts, action records and (by default) the ledger live in Postgres.
	// The memory backend runs without any database for local development.
	backend := getEnvOrDefault("LEDGER_BACKEND", "postgres")

	var (
		accountRepo identity.Repository
		recordRepo  action.RecordRepository
		ledgerRepo  request.Repository
	)

	if backend == "memory" {
		mem := identity.NewInMemoryRepository()
		accountRepo = mem
		recordRepo = action.NewInMemoryRecordRepository()
		ledgerRepo = request.NewInMemoryRepository()
		log.Warn().Msg("using in-memory storage - data is lost on restart")
	} else {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("database", dbConfig.Target()).
			Msg("database connected")

		if os.Getenv("DB_MIGRATE") != "false" {
			if err := database.Migrate(ctx, pool, log); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate database")
			}
		}

		stores["database"] = pool
		accountRepo = identity.NewPostgresRepository(pool)
		recordRepo = action.NewPostgresRecordRepository(pool)
		ledgerRepo = request.NewPostgresRepository(pool)
	}

	tokenTTL := request.DefaultTokenTTL
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		tokenTTL, err = time.ParseDuration(v)
		if err != nil {
			log.Fatal().Err(err).Str("value", v).Msg("invalid TOKEN_TTL")
		}
	}

	if backend == "redis" {
		rdb := redis.NewClient(redisOptionsFromEnv())
		defer rdb.Close()
		stores["redis"] = pingerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

		var redisTTL time.Duration
		if tokenTTL > 0 {
			redisTTL = tokenTTL
		}
		ledgerRepo = request.NewRedisRepository(request.RedisRepositoryConfig{Client: rdb, TTL: redisTTL})
		log.Info().Str("addr", os.Getenv("REDIS_ADDR")).Msg("redis ledger store configured")
	}

	accounts := identity.NewService(accountRepo, clock.WallClock, log)
	if backend == "memory" {
		seedAccounts(ctx, accounts, os.Getenv("DEV_ACCOUNTS"), log)
	}

	// Upstream dependencies report into the registry shown on /v1/ops/status.
	registry := resilience.NewRegistry(nil)

	var notifier request.NotificationSender
	switch mode := getEnvOrDefault("NOTIFY_MODE", "direct"); mode {
	case "pubsub":
		psClient, err := pubsub.NewClient(ctx, os.Getenv("PUBSUB_PROJECT_ID"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub client")
		}
		defer psClient.Close()

		publisher := notify.NewPublisher(psClient, getEnvOrDefault("PUBSUB_TOPIC", "subjectdesk-notifications"), log)
		defer publisher.Stop()
		notifier = publisher
		log.Info().Msg("notifications queued through pubsub")
	case "direct":
		mailer := mail.NewClient(mail.ConfigFromEnv(), resilience.NewClient(resilience.ClientConfig{
			Name:     mail.DependencyName,
			Registry: registry,
			Logger:   log,
		}), log)
		notifier = notify.NewDirect(notify.NewComposer(baseURL), mailer, log)
		log.Info().Msg("notifications sent directly")
	default:
		log.Fatal().Str("mode", mode).Msg("unknown NOTIFY_MODE")
	}

	hasher, err := tokenHasherFromEnv(log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token hasher")
	}

	executor := action.NewExecutor(action.ExecutorConfig{
		Accounts: accounts,
		Records:  recordRepo,
		Notifier: notifier,
		Clock:    clock.WallClock,
		Logger:   log,
	})

	ledger, err := request.NewLedger(request.LedgerConfig{
		Repository: ledgerRepo,
		Identities: accounts,
		Retention:  accounts,
		Executor:   executor,
		Hasher:     hasher,
		TokenTTL:   tokenTTL,
		Clock:      clock.WallClock,
		Logger:     log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create request ledger")
	}

	requests := request.NewService(request.ServiceConfig{
		Ledger:     ledger,
		Identities: accounts,
		Notifier:   notifier,
		Logger:     log,
	})
	log.Info().Str("backend", backend).Dur("token_ttl", tokenTTL).Msg("request ledger initialized")

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     getEnvOrDefault("JWT_ISSUER", "subjectdesk"),
		Audience:   getEnvOrDefault("JWT_AUDIENCE", "subjectdesk-api"),
	})

	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		Metrics:      metrics,
		Requests:     requests,
		TokenTTL:     ledger.TokenTTL(),
		Clock:        clock.WallClock,
		Tokens:       jwtService,
		Stores:       stores,
		Dependencies: registry,
		RequireTLS:   os.Getenv("REQUIRE_TLS") == "true",
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// tokenHasherFromEnv keys token digests with TOKEN_SECRET so tokens survive
// restarts and are shared between replicas.
func tokenHasherFromEnv(log zerolog.Logger) (*request.TokenHasher, error) {
	secret := os.Getenv("TOKEN_SECRET")
	if secret == "" {
		log.Warn().Msg("TOKEN_SECRET not set - pending requests cannot be confirmed after a restart")
		return request.NewRandomTokenHasher()
	}
	return request.NewTokenHasher([]byte(secret))
}

func redisOptionsFromEnv() *redis.Options {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	return &redis.Options{
		Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}
}

// seedAccounts registers the comma separated DEV_ACCOUNTS. An entry may end
// in ":admin" to grant the administrator role.
func seedAccounts(ctx context.Context, accounts *identity.Service, list string, log zerolog.Logger) {
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		email, role, _ := strings.Cut(entry, ":")
		roles := []identity.Role{identity.RoleMember}
		if role == "admin" {
			roles = append(roles, identity.RoleAdmin)
		}

		account, err := accounts.Register(ctx, email, roles...)
		if err != nil {
			log.Warn().Err(err).Msg("failed to seed account")
			continue
		}
		log.Info().Str("account_id", account.ID).Msg("seeded account")
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
