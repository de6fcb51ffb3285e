package identity

import (
	"context"
	"errors"
	"sync"
)

// Repository errors.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

// Repository defines the interface for account persistence.
type Repository interface {
	// Get retrieves an account by ID.
	Get(ctx context.Context, id string) (*Account, error)

	// GetByEmail retrieves an account by normalized email.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// Create stores a new account.
	Create(ctx context.Context, account *Account) error

	// Delete removes an account and the content it owns.
	Delete(ctx context.Context, id string) error

	// CountByRole returns how many accounts hold role.
	CountByRole(ctx context.Context, role Role) (int, error)

	// CountContent returns how many content items the account owns.
	CountContent(ctx context.Context, id string) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	content  map[string]int
}

// NewInMemoryRepository creates a new in-memory account repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		accounts: make(map[string]*Account),
		content:  make(map[string]int),
	}
}

// Get retrieves an account by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(account), nil
}

// GetByEmail retrieves an account by normalized email.
func (r *InMemoryRepository) GetByEmail(_ context.Context, email string) (*Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, account := range r.accounts {
		if account.Email == email {
			return copyAccount(account), nil
		}
	}
	return nil, ErrAccountNotFound
}

// Create stores a new account.
func (r *InMemoryRepository) Create(_ context.Context, account *Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.accounts {
		if existing.Email == account.Email {
			return ErrEmailTaken
		}
	}
	r.accounts[account.ID] = copyAccount(account)
	return nil
}

// Delete removes an account and the content it owns.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(r.accounts, id)
	delete(r.content, id)
	return nil
}

// CountByRole returns how many accounts hold role.
func (r *InMemoryRepository) CountByRole(_ context.Context, role Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, account := range r.accounts {
		if account.HasRole(role) {
			n++
		}
	}
	return n, nil
}

// CountContent returns how many content items the account owns.
func (r *InMemoryRepository) CountContent(_ context.Context, id string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.content[id], nil
}

// AddContent records n content items owned by the account.
func (r *InMemoryRepository) AddContent(id string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content[id] += n
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
