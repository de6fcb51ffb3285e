package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/subjectdesk/subjectdesk/internal/request"
)

// Service provides account operations and answers the ledger's identity questions.
type Service struct {
	repo   Repository
	clock  clock.Clock
	logger zerolog.Logger
}

// NewService creates a new identity service. A nil clk uses the wall clock.
func NewService(repo Repository, clk clock.Clock, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Service{repo: repo, clock: clk, logger: logger}
}

// Register creates an account for email with the given roles.
func (s *Service) Register(ctx context.Context, email string, roles ...Role) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	if len(roles) == 0 {
		roles = []Role{RoleMember}
	}

	account := &Account{
		ID:        "acc_" + uuid.New().String()[:8],
		Email:     email,
		Roles:     roles,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info().Str("account_id", account.ID).Msg("account registered")
	return account, nil
}

// Resolve finds the identity registered under email.
func (s *Service) Resolve(ctx context.Context, email string) (request.Identity, error) {
	account, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return request.Identity{}, mapNotFound(err)
	}
	return account.Identity(), nil
}

// Lookup finds the identity with the given account ID.
func (s *Service) Lookup(ctx context.Context, id string) (request.Identity, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return request.Identity{}, mapNotFound(err)
	}
	return account.Identity(), nil
}

// IsSoleAdmin reports whether the account is the only administrator left.
func (s *Service) IsSoleAdmin(ctx context.Context, identity request.Identity) (bool, error) {
	account, err := s.repo.Get(ctx, identity.ID)
	if err != nil {
		return false, mapNotFound(err)
	}
	if !account.HasRole(RoleAdmin) {
		return false, nil
	}

	admins, err := s.repo.CountByRole(ctx, RoleAdmin)
	if err != nil {
		return false, fmt.Errorf("counting administrators: %w", err)
	}
	return admins <= 1, nil
}

// HasRetainedContent reports whether the account still owns content.
func (s *Service) HasRetainedContent(ctx context.Context, identity request.Identity) (bool, error) {
	n, err := s.repo.CountContent(ctx, identity.ID)
	if err != nil {
		return false, fmt.Errorf("counting content: %w", err)
	}
	return n > 0, nil
}

// DeleteAccount removes the account and everything it owns.
// Deleting an account that no longer exists is not an error.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrAccountNotFound) {
		return fmt.Errorf("deleting account: %w", err)
	}
	s.logger.Info().Str("account_id", id).Msg("account deleted")
	return nil
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrAccountNotFound) {
		return request.ErrIdentityNotFound
	}
	return err
}

// Ensure Service satisfies the ledger's collaborator interfaces.
var (
	_ request.IdentityStore           = (*Service)(nil)
	_ request.ContentRetentionChecker = (*Service)(nil)
)
