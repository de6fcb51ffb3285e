// Package action performs the effects of confirmed data-subject requests.
package action

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/subjectdesk/subjectdesk/internal/request"
)

// AccountDeleter removes an account and everything it owns.
type AccountDeleter interface {
	DeleteAccount(ctx context.Context, id string) error
}

// ExecutorConfig holds configuration for the executor.
type ExecutorConfig struct {
	Accounts AccountDeleter
	Records  RecordRepository

	// Notifier sends the account-deleted notice. Optional.
	Notifier request.NotificationSender

	// Clock stamps records. Default: clock.WallClock.
	Clock clock.Clock

	Logger zerolog.Logger
}

// Executor dispatches confirmed requests to their effect.
type Executor struct {
	accounts AccountDeleter
	records  RecordRepository
	notifier request.NotificationSender
	clock    clock.Clock
	logger   zerolog.Logger
}

// NewExecutor creates a new action executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	return &Executor{
		accounts: cfg.Accounts,
		records:  cfg.Records,
		notifier: cfg.Notifier,
		clock:    clk,
		logger:   cfg.Logger,
	}
}

// Execute performs the effect of a confirmed request.
//
// An erasure deletes the account and then tells the subject. Failing to send
// that notice does not undo the deletion. Rectifications and complaints are
// recorded for follow-up.
func (e *Executor) Execute(ctx context.Context, identity request.Identity, t request.Type, data string) error {
	switch t {
	case request.TypeErasure:
		return e.erase(ctx, identity)
	case request.TypeRectification, request.TypeComplaint:
		return e.record(ctx, identity, t, data, false)
	default:
		return fmt.Errorf("%w: %q", request.ErrInvalidType, t)
	}
}

// Hold records a confirmed request whose effect staff must carry out by hand.
// Nothing is deleted.
func (e *Executor) Hold(ctx context.Context, identity request.Identity, t request.Type, data string) error {
	if _, err := request.ParseType(string(t)); err != nil {
		return err
	}
	return e.record(ctx, identity, t, data, true)
}

func (e *Executor) erase(ctx context.Context, identity request.Identity) error {
	if err := e.accounts.DeleteAccount(ctx, identity.ID); err != nil {
		return err
	}

	if e.notifier == nil {
		return nil
	}
	err := e.notifier.Send(ctx, request.Notification{
		Kind:     request.NotificationAccountDeleted,
		Identity: identity,
		Type:     request.TypeErasure,
	})
	if err != nil {
		e.logger.Warn().Err(err).
			Str("identity_id", identity.ID).
			Msg("account deleted but notice could not be sent")
	}
	return nil
}

func (e *Executor) record(ctx context.Context, identity request.Identity, t request.Type, data string, deferred bool) error {
	rec := &Record{
		ID:          "rec_" + uuid.New().String()[:8],
		IdentityID:  identity.ID,
		Email:       identity.Email,
		Type:        t,
		Data:        data,
		Deferred:    deferred,
		ConfirmedAt: e.clock.Now().UTC(),
	}
	if err := e.records.Add(ctx, rec); err != nil {
		return fmt.Errorf("recording %s request: %w", t, err)
	}

	e.logger.Info().
		Str("record_id", rec.ID).
		Str("identity_id", identity.ID).
		Str("request_type", string(t)).
		Bool("deferred", deferred).
		Msg("request recorded for follow-up")
	return nil
}

// Ensure Executor implements request.ActionExecutor.
var _ request.ActionExecutor = (*Executor)(nil)
