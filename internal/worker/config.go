// Package worker runs the background side of subjectdesk: delivering queued
// notifications and sweeping expired pending requests.
package worker

import (
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the worker process.
type Config struct {
	// ProjectID is the Google Cloud project hosting the subscription.
	ProjectID string

	// Subscription is the Pub/Sub subscription carrying notifications.
	Subscription string

	// MaxOutstanding bounds the messages handled concurrently. Default: 10
	MaxOutstanding int

	// SweepInterval is how often expired requests are purged. Default: 15m
	SweepInterval time.Duration
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		Subscription:   "subjectdesk-notifications-worker",
		MaxOutstanding: 10,
		SweepInterval:  15 * time.Minute,
	}
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.ProjectID = os.Getenv("PUBSUB_PROJECT_ID")
	cfg.Subscription = getEnvOrDefault("PUBSUB_SUBSCRIPTION", cfg.Subscription)

	if v, err := strconv.Atoi(os.Getenv("PUBSUB_MAX_OUTSTANDING")); err == nil && v > 0 {
		cfg.MaxOutstanding = v
	}
	if d, err := time.ParseDuration(os.Getenv("SWEEP_INTERVAL")); err == nil && d > 0 {
		cfg.SweepInterval = d
	}
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
