package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Errors returned by Client.
var (
	// ErrCircuitOpen is returned without calling upstream while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrBodyNotReplayable is returned when a request with a body cannot be retried.
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")
)

// StatusError is returned when upstream answers with a server error after
// all retries are spent.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the upstream dependency.
	Name string

	// Timeout bounds each attempt. Default: 10s
	Timeout time.Duration

	// MaxRetries is how many times a failed attempt is repeated. Default: 3
	MaxRetries uint64

	// InitialInterval is the first backoff delay. Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay. Default: 2s
	MaxInterval time.Duration

	// Breaker configures the circuit breaker. Zero values take defaults.
	Breaker BreakerConfig

	// Registry receives success and failure reports. Optional.
	Registry *Registry

	// Transport overrides the HTTP transport. Optional.
	Transport http.RoundTripper

	Logger zerolog.Logger
}

// Client is an HTTP client with per-dependency circuit breaking and retries.
// Requests with a body must be built with http.NewRequest from a replayable
// reader (bytes.Buffer, bytes.Reader, strings.Reader) so retries resend it.
type Client struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	registry *Registry
	cfg      ClientConfig
	logger   zerolog.Logger
}

// NewClient creates a new resilient HTTP client and registers it.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = cfg.Name
	}

	c := &Client{
		name:     cfg.Name,
		http:     &http.Client{Timeout: cfg.Timeout, Transport: cfg.Transport},
		breaker:  NewBreaker[*http.Response](cfg.Breaker, cfg.Logger), //nolint:bodyclose // type param, not response
		registry: cfg.Registry,
		cfg:      cfg,
		logger:   cfg.Logger,
	}
	if c.registry != nil {
		c.registry.Register(c)
	}
	return c
}

// Name returns the dependency name.
func (c *Client) Name() string {
	return c.name
}

// State returns the circuit breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the circuit breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do sends req, retrying network errors and 5xx responses with exponential
// backoff. 4xx responses are returned to the caller as-is. The caller must
// close the body of the returned response.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, ErrBodyNotReplayable
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	var resp *http.Response
	attempt := 0

	operation := func() error {
		attempt++
		r, err := c.breaker.Execute(func() (*http.Response, error) {
			out, err := c.attempt(ctx, req)
			if err != nil {
				return nil, err
			}
			if out.StatusCode >= http.StatusInternalServerError {
				drain(out)
				return nil, &StatusError{StatusCode: out.StatusCode}
			}
			return out, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if err != nil {
			c.logger.Debug().Err(err).
				Str("dependency", c.name).
				Int("attempt", attempt).
				Msg("upstream attempt failed")
			return err
		}
		resp = r
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx))
	if c.registry != nil {
		if err != nil {
			c.registry.RecordFailure(c.name, err)
		} else {
			c.registry.RecordSuccess(c.name)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	out := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}
	return c.http.Do(out)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
