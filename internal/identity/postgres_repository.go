package identity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for unique constraint failures.
const uniqueViolation = "23505"

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL account repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectAccount = `
	SELECT account_id, email, roles, created_at
	FROM accounts
`

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		account Account
		roles   []string
	)
	if err := row.Scan(&account.ID, &account.Email, &roles, &account.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	for _, role := range roles {
		account.Roles = append(account.Roles, Role(role))
	}
	return &account, nil
}

// Get retrieves an account by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, selectAccount+`WHERE account_id = $1`, id))
}

// GetByEmail retrieves an account by normalized email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, selectAccount+`WHERE email = $1`, email))
}

// Create stores a new account.
func (r *PostgresRepository) Create(ctx context.Context, account *Account) error {
	roles := make([]string, 0, len(account.Roles))
	for _, role := range account.Roles {
		roles = append(roles, string(role))
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (account_id, email, roles, created_at)
		VALUES ($1, $2, $3, $4)
	`, account.ID, account.Email, roles, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// Delete removes an account. Content rows go with it via ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE account_id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CountByRole returns how many accounts hold role.
func (r *PostgresRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE $1 = ANY(roles)`, string(role)).Scan(&n)
	return n, err
}

// CountContent returns how many content items the account owns.
func (r *PostgresRepository) CountContent(ctx context.Context, id string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM content_items WHERE owner_id = $1`, id).Scan(&n)
	return n, err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
