package action

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subjectdesk/subjectdesk/internal/request"
)

// Record is a confirmed request awaiting staff follow-up.
// Deferred marks a request whose effect was held back, such as an erasure of
// an account that still owns retained content.
type Record struct {
	ID          string
	IdentityID  string
	Email       string
	Type        request.Type
	Data        string
	Deferred    bool
	ConfirmedAt time.Time
}

// RecordRepository stores confirmed requests for follow-up.
type RecordRepository interface {
	// Add stores a new record.
	Add(ctx context.Context, rec *Record) error

	// List returns records newest first. An empty identityID lists all.
	List(ctx context.Context, identityID string) ([]*Record, error)
}

// InMemoryRecordRepository is an in-memory implementation of RecordRepository.
type InMemoryRecordRepository struct {
	mu      sync.RWMutex
	records []*Record
}

// NewInMemoryRecordRepository creates a new in-memory record repository.
func NewInMemoryRecordRepository() *InMemoryRecordRepository {
	return &InMemoryRecordRepository{}
}

// Add stores a new record.
func (r *InMemoryRecordRepository) Add(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *rec
	r.records = append(r.records, &c)
	return nil
}

// List returns records newest first.
func (r *InMemoryRecordRepository) List(_ context.Context, identityID string) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0, len(r.records))
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if identityID != "" && rec.IdentityID != identityID {
			continue
		}
		c := *rec
		out = append(out, &c)
	}
	return out, nil
}

// PostgresRecordRepository is a PostgreSQL implementation of RecordRepository.
type PostgresRecordRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRecordRepository creates a new PostgreSQL record repository.
func NewPostgresRecordRepository(pool *pgxpool.Pool) *PostgresRecordRepository {
	return &PostgresRecordRepository{pool: pool}
}

// Add stores a new record.
func (r *PostgresRecordRepository) Add(ctx context.Context, rec *Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO request_records (record_id, identity_id, email, request_type, data, deferred, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.IdentityID, rec.Email, string(rec.Type), rec.Data, rec.Deferred, rec.ConfirmedAt)
	return err
}

// List returns records newest first.
func (r *PostgresRecordRepository) List(ctx context.Context, identityID string) ([]*Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT record_id, identity_id, email, request_type, data, deferred, confirmed_at
		FROM request_records
		WHERE $1 = '' OR identity_id = $1
		ORDER BY confirmed_at DESC
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var (
			rec Record
			t   string
		)
		if err := rows.Scan(&rec.ID, &rec.IdentityID, &rec.Email, &t, &rec.Data, &rec.Deferred, &rec.ConfirmedAt); err != nil {
			return nil, err
		}
		rec.Type = request.Type(t)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

var (
	_ RecordRepository = (*InMemoryRecordRepository)(nil)
	_ RecordRepository = (*PostgresRecordRepository)(nil)
)
