package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the request service.
type ServiceConfig struct {
	Ledger     *Ledger
	Identities IdentityStore
	Notifier   NotificationSender
	Logger     zerolog.Logger
}

// Service connects the ledger to identity resolution and notification delivery.
type Service struct {
	ledger     *Ledger
	identities IdentityStore
	notifier   NotificationSender
	logger     zerolog.Logger
}

// NewService creates a new request service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		ledger:     cfg.Ledger,
		identities: cfg.Identities,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger,
	}
}

// Submission is a request as received from a subject.
type Submission struct {
	// IdentityID is set when the subject is already authenticated.
	// It takes precedence over Email.
	IdentityID string

	// Email identifies an anonymous subject.
	Email string

	Type Type
	Data string
}

// Request submits a request and sends the confirmation message.
//
// When the message cannot be sent the error wraps ErrNotificationFailed and
// the pending request stays valid; submitting again issues a fresh token.
func (s *Service) Request(ctx context.Context, sub Submission) (Identity, error) {
	if err := s.ledger.Validate(sub.Type, sub.Data); err != nil {
		return Identity{}, err
	}

	identity, err := s.resolve(ctx, sub)
	if err != nil {
		return Identity{}, err
	}

	token, err := s.ledger.Submit(ctx, identity, sub.Type, sub.Data)
	if err != nil {
		return identity, err
	}

	err = s.notifier.Send(ctx, Notification{
		Kind:     NotificationConfirmRequest,
		Identity: identity,
		Type:     sub.Type,
		Token:    token,
		Data:     sub.Data,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("identity_id", identity.ID).
			Str("request_type", string(sub.Type)).
			Msg("failed to send confirmation message")
		return identity, fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}

	return identity, nil
}

// Confirm confirms the request of the subject registered under email.
// An unknown email is reported as ErrNotFound.
func (s *Service) Confirm(ctx context.Context, email string, t Type, token string) (Outcome, error) {
	identity, err := s.identities.Resolve(ctx, email)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}

	return s.ledger.Confirm(ctx, identity, t, token)
}

func (s *Service) resolve(ctx context.Context, sub Submission) (Identity, error) {
	if sub.IdentityID != "" {
		return s.identities.Lookup(ctx, sub.IdentityID)
	}
	if sub.Email == "" {
		return Identity{}, ErrIdentityNotFound
	}
	return s.identities.Resolve(ctx, sub.Email)
}
