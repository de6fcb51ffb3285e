// Package mail delivers transactional email through an HTTP relay.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/subjectdesk/subjectdesk/internal/resilience"
)

// DependencyName identifies the mail relay in the resilience registry.
const DependencyName = "mail-relay"

// ErrNotConfigured is returned by Send when no relay URL is set.
var ErrNotConfigured = errors.New("mail relay not configured")

// Config holds mail relay configuration.
type Config struct {
	// BaseURL is the relay endpoint; messages are POSTed to {BaseURL}/send.
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// From is the sender address.
	From string
}

// ConfigFromEnv creates a Config from environment variables.
func ConfigFromEnv() Config {
	return Config{
		BaseURL: strings.TrimRight(os.Getenv("MAIL_API_URL"), "/"),
		APIKey:  os.Getenv("MAIL_API_KEY"),
		From:    getEnvOrDefault("MAIL_FROM", "privacy@subjectdesk.local"),
	}
}

// Message is an outgoing email.
type Message struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Client sends email through the relay.
type Client struct {
	cfg        Config
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new mail relay client.
// If httpClient is nil, a resilient client with defaults is used.
func NewClient(cfg Config, httpClient *resilience.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.ClientConfig{Name: DependencyName, Logger: logger})
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Send delivers msg. An empty From is filled from the configuration.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if c.cfg.BaseURL == "" {
		return ErrNotConfigured
	}
	if msg.From == "" {
		msg.From = c.cfg.From
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mail relay rejected message: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	c.logger.Debug().Str("subject", msg.Subject).Msg("mail sent")
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
