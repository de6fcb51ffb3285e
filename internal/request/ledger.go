package request

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/juju/clock"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTokenTTL is how long a confirmation token stays valid.
const DefaultTokenTTL = 48 * time.Hour

// LedgerConfig holds configuration for the request ledger.
type LedgerConfig struct {
	// Repository stores pending requests (required).
	Repository Repository

	// Identities answers the sole-administrator question for erasures.
	// If nil, erasures are never refused.
	Identities IdentityStore

	// Retention decides whether a confirmed erasure is held back.
	// If nil, no erasure is held back.
	Retention ContentRetentionChecker

	// Executor performs the effect of confirmed requests.
	// If nil, confirmations only consume the pending entry.
	Executor ActionExecutor

	// Hasher digests tokens before they are stored.
	// If nil, an ephemeral random key is used.
	Hasher *TokenHasher

	// Types enumerates the accepted request types.
	// If nil, uses DefaultTypes.
	Types map[Type]TypeConfig

	// TokenTTL is how long a pending request can be confirmed.
	// Default: DefaultTokenTTL. Negative disables expiry.
	TokenTTL time.Duration

	// Clock supplies the current time. Default: clock.WallClock.
	Clock clock.Clock

	Logger zerolog.Logger
}

// Ledger owns the set of pending requests and their two transitions.
// Submit and Confirm are serialized per (identity, type); different keys
// proceed in parallel.
type Ledger struct {
	repo       Repository
	identities IdentityStore
	retention  ContentRetentionChecker
	executor   ActionExecutor
	hasher     *TokenHasher
	types      map[Type]TypeConfig
	ttl        time.Duration
	clock      clock.Clock
	logger     zerolog.Logger

	locks   *kmutex.Kmutex
	tracer  trace.Tracer
	metrics *ledgerMetrics
}

// NewLedger creates a new request ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Repository == nil {
		return nil, errors.New("ledger repository is required")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		var err error
		hasher, err = NewRandomTokenHasher()
		if err != nil {
			return nil, err
		}
	}

	types := cfg.Types
	if types == nil {
		types = DefaultTypes()
	}

	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	metrics, err := newLedgerMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating ledger metrics: %w", err)
	}

	return &Ledger{
		repo:       cfg.Repository,
		identities: cfg.Identities,
		retention:  cfg.Retention,
		executor:   cfg.Executor,
		hasher:     hasher,
		types:      types,
		ttl:        ttl,
		clock:      clk,
		logger:     cfg.Logger,
		locks:      kmutex.New(),
		tracer:     otel.Tracer(instrumentationName),
		metrics:    metrics,
	}, nil
}

// TokenTTL returns how long issued tokens stay valid. Non-positive means forever.
func (l *Ledger) TokenTTL() time.Duration {
	return l.ttl
}

// Submit records a pending request and returns its confirmation token.
// Any pending request for the same identity and type is replaced, which
// invalidates its token.
func (l *Ledger) Submit(ctx context.Context, identity Identity, t Type, data string) (token string, err error) {
	ctx, span := l.tracer.Start(ctx, "request.Ledger.Submit", trace.WithAttributes(
		attribute.String("request.type", string(t)),
	))
	defer func() {
		l.metrics.recordSubmission(ctx, t, err)
		endSpan(span, err)
	}()

	if err := l.Validate(t, data); err != nil {
		return "", err
	}
	data = strings.TrimSpace(data)

	if identity.ID == "" {
		return "", ErrIdentityNotFound
	}

	if t == TypeErasure && l.identities != nil {
		sole, err := l.identities.IsSoleAdmin(ctx, identity)
		if err != nil {
			return "", fmt.Errorf("checking administrators: %w", err)
		}
		if sole {
			return "", ErrForbidden
		}
	}

	token, err = GenerateToken()
	if err != nil {
		return "", err
	}

	req := &PendingRequest{
		Identity:  identity,
		Type:      t,
		Data:      data,
		TokenHash: l.hasher.Digest(token),
		State:     StatePending,
		CreatedAt: l.clock.Now(),
	}

	if err := l.store(ctx, req); err != nil {
		return "", fmt.Errorf("storing pending request: %w", err)
	}

	l.logger.Info().
		Str("identity_id", identity.ID).
		Str("request_type", string(t)).
		Msg("request submitted")

	return token, nil
}

// Validate checks a submission's type and payload without touching the ledger.
func (l *Ledger) Validate(t Type, data string) error {
	typeCfg, ok := l.types[t]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidType, t)
	}
	if typeCfg.RequiresData && strings.TrimSpace(data) == "" {
		return ErrMissingData
	}
	return nil
}

func (l *Ledger) store(ctx context.Context, req *PendingRequest) error {
	key := req.Key().String()
	l.locks.Lock(key)
	defer l.locks.Unlock(key)

	return l.repo.Put(ctx, req)
}

// Confirm consumes the pending request matching (identity, type, token) and
// performs its action.
//
// It returns ErrNotFound when no live request exists and ErrTokenMismatch when
// the token is wrong; in the latter case the pending request is left intact.
// A token can be used at most once.
func (l *Ledger) Confirm(ctx context.Context, identity Identity, t Type, token string) (outcome Outcome, err error) {
	ctx, span := l.tracer.Start(ctx, "request.Ledger.Confirm", trace.WithAttributes(
		attribute.String("request.type", string(t)),
	))
	defer func() {
		l.metrics.recordConfirmation(ctx, t, outcome, err)
		endSpan(span, err)
	}()

	if _, ok := l.types[t]; !ok {
		return "", ErrNotFound
	}

	req, err := l.consume(ctx, Key{IdentityID: identity.ID, Type: t}, token)
	if err != nil {
		return "", err
	}

	logger := l.logger.With().
		Str("identity_id", req.Identity.ID).
		Str("request_type", string(t)).
		Logger()

	if t == TypeErasure && l.retention != nil {
		retained, err := l.retention.HasRetainedContent(ctx, req.Identity)
		if err != nil {
			return "", fmt.Errorf("checking retained content: %w", err)
		}
		if retained {
			if l.executor != nil {
				if err := l.executor.Hold(ctx, req.Identity, t, req.Data); err != nil {
					return "", fmt.Errorf("holding %s request: %w", t, err)
				}
			}
			logger.Info().Msg("erasure confirmed, account kept because it owns content")
			return OutcomeContentRetained, nil
		}
	}

	if l.executor != nil {
		if err := l.executor.Execute(ctx, req.Identity, t, req.Data); err != nil {
			return "", fmt.Errorf("executing %s request: %w", t, err)
		}
	}

	logger.Info().Msg("request confirmed")
	return OutcomeCompleted, nil
}

// consume verifies token against the pending request for key and removes it.
//
// The removal is conditional on the digest that was read, so a request that
// another process replaced in the meantime survives and this confirmation
// reports ErrNotFound.
func (l *Ledger) consume(ctx context.Context, key Key, token string) (*PendingRequest, error) {
	lockKey := key.String()
	l.locks.Lock(lockKey)
	defer l.locks.Unlock(lockKey)

	req, err := l.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	if req.Expired(l.clock.Now(), l.ttl) {
		if err := l.repo.DeleteIfMatch(ctx, key, req.TokenHash); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("removing expired request: %w", err)
		}
		return nil, ErrNotFound
	}

	if !l.hasher.Matches(token, req.TokenHash) {
		return nil, ErrTokenMismatch
	}

	if err := l.repo.DeleteIfMatch(ctx, key, req.TokenHash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("removing confirmed request: %w", err)
	}
	req.State = StateConfirmed

	return req, nil
}

// PurgeExpired removes pending requests whose tokens have expired.
func (l *Ledger) PurgeExpired(ctx context.Context) (int, error) {
	if l.ttl <= 0 {
		return 0, nil
	}

	n, err := l.repo.DeleteCreatedBefore(ctx, l.clock.Now().Add(-l.ttl))
	if err != nil {
		return n, fmt.Errorf("purging expired requests: %w", err)
	}

	if n > 0 {
		l.metrics.recordPurge(ctx, n)
		l.logger.Info().Int("purged", n).Msg("expired requests purged")
	}
	return n, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
