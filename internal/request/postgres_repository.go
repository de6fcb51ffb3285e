package request

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL pending request repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves the pending request for key.
func (r *PostgresRepository) Get(ctx context.Context, key Key) (*PendingRequest, error) {
	query := `
		SELECT identity_id, identity_email, request_type, data, token_hash, state, created_at
		FROM pending_requests
		WHERE identity_id = $1 AND request_type = $2
	`

	var req PendingRequest
	err := r.pool.QueryRow(ctx, query, key.IdentityID, key.Type).Scan(
		&req.Identity.ID,
		&req.Identity.Email,
		&req.Type,
		&req.Data,
		&req.TokenHash,
		&req.State,
		&req.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &req, nil
}

// Put stores req, replacing any request with the same key.
func (r *PostgresRepository) Put(ctx context.Context, req *PendingRequest) error {
	query := `
		INSERT INTO pending_requests (identity_id, identity_email, request_type, data, token_hash, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity_id, request_type) DO UPDATE SET
			identity_email = EXCLUDED.identity_email,
			data = EXCLUDED.data,
			token_hash = EXCLUDED.token_hash,
			state = EXCLUDED.state,
			created_at = EXCLUDED.created_at
	`

	_, err := r.pool.Exec(ctx, query,
		req.Identity.ID,
		req.Identity.Email,
		req.Type,
		req.Data,
		req.TokenHash,
		req.State,
		req.CreatedAt,
	)
	return err
}

// DeleteIfMatch removes the pending request for key if it still carries tokenHash.
// The comparison and the removal are one statement.
func (r *PostgresRepository) DeleteIfMatch(ctx context.Context, key Key, tokenHash []byte) error {
	query := `
		DELETE FROM pending_requests
		WHERE identity_id = $1 AND request_type = $2 AND token_hash = $3
	`

	result, err := r.pool.Exec(ctx, query, key.IdentityID, key.Type, tokenHash)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteCreatedBefore removes requests created before cutoff.
func (r *PostgresRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM pending_requests WHERE created_at < $1`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}

	return int(result.RowsAffected()), nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
