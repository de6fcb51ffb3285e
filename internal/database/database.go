// Package database provides PostgreSQL connection management and the schema
// shared by the account directory, the request ledger and the action records.
package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds database connection configuration.
type Config struct {
	// URL, when set, is used as-is instead of the individual fields.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	// Pool sizing, passed to pgxpool.
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	HealthCheckPeriod time.Duration

	// ConnectAttempts bounds how often Connect pings before giving up.
	// Replicas often start before the database accepts connections.
	ConnectAttempts uint64
	ConnectBackoff  time.Duration
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		URL:               os.Getenv("DATABASE_URL"),
		Host:              getEnvOrDefault("DB_HOST", "localhost"),
		Port:              getEnvInt("DB_PORT", 5432),
		User:              getEnvOrDefault("DB_USER", "subjectdesk"),
		Password:          getEnvOrDefault("DB_PASSWORD", "localdev"),
		Name:              getEnvOrDefault("DB_NAME", "subjectdesk"),
		SSLMode:           getEnvOrDefault("DB_SSL_MODE", "disable"),
		MaxConns:          int32(getEnvInt("DB_MAX_CONNS", 10)), //nolint:gosec // checked by Validate
		MinConns:          int32(getEnvInt("DB_MIN_CONNS", 2)),  //nolint:gosec // checked by Validate
		MaxConnLifetime:   getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		HealthCheckPeriod: getEnvDuration("DB_HEALTH_CHECK_PERIOD", time.Minute),
		ConnectAttempts:   uint64(getEnvInt("DB_CONNECT_ATTEMPTS", 5)), //nolint:gosec // checked by Validate
		ConnectBackoff:    getEnvDuration("DB_CONNECT_BACKOFF", 500*time.Millisecond),
	}
}

// Validate reports settings pgxpool would reject or misinterpret.
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" && c.Host == "" {
		errs = append(errs, errors.New("database host is required"))
	}
	if c.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("max conns must be positive, got %d", c.MaxConns))
	}
	if c.MinConns < 0 || c.MinConns > c.MaxConns {
		errs = append(errs, fmt.Errorf("min conns must be between 0 and %d, got %d", c.MaxConns, c.MinConns))
	}
	if c.ConnectAttempts < 1 {
		errs = append(errs, errors.New("connect attempts must be at least 1"))
	}
	return errors.Join(errs...)
}

// ConnectionString returns the PostgreSQL connection string.
// Credentials are escaped, so passwords may contain URL metacharacters.
func (c Config) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Target describes the database for logs without exposing credentials.
func (c Config) Target() string {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return "invalid url"
		}
		return u.Host + u.Path
	}
	return fmt.Sprintf("%s:%d/%s", c.Host, c.Port, c.Name)
}

// Connect creates a connection pool and waits for the database to answer,
// retrying the ping with exponential backoff.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.ConnectBackoff
	bo.MaxElapsedTime = 0

	ping := func() error { return pool.Ping(ctx) }
	if err := backoff.Retry(ping, backoff.WithContext(backoff.WithMaxRetries(bo, cfg.ConnectAttempts-1), ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s: %w", cfg.Target(), err)
	}

	return pool, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return defaultValue
}
