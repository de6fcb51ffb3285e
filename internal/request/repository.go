package request

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// Repository defines the interface for pending request persistence.
//
// The ledger serializes access per key within one process only. Replicas
// sharing a store rely on DeleteIfMatch being a single atomic
// compare-and-delete, so a request replaced by another process is never
// removed on behalf of the old token.
type Repository interface {
	// Get retrieves the pending request for key.
	// Returns ErrNotFound when there is none.
	Get(ctx context.Context, key Key) (*PendingRequest, error)

	// Put stores req, replacing any request with the same key.
	Put(ctx context.Context, req *PendingRequest) error

	// DeleteIfMatch removes the pending request for key only while its
	// token digest equals tokenHash. Returns ErrNotFound when there is no
	// such request, including when it has been replaced.
	DeleteIfMatch(ctx context.Context, key Key, tokenHash []byte) error

	// DeleteCreatedBefore removes requests created before cutoff and
	// returns how many were removed.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and single-process deployments.
type InMemoryRepository struct {
	mu       sync.RWMutex
	requests map[Key]*PendingRequest
}

// NewInMemoryRepository creates a new in-memory pending request repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		requests: make(map[Key]*PendingRequest),
	}
}

// Get retrieves the pending request for key.
func (r *InMemoryRepository) Get(_ context.Context, key Key) (*PendingRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRequest(req), nil
}

// Put stores req, replacing any request with the same key.
func (r *InMemoryRepository) Put(_ context.Context, req *PendingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requests[req.Key()] = copyRequest(req)
	return nil
}

// DeleteIfMatch removes the pending request for key if it still carries tokenHash.
func (r *InMemoryRepository) DeleteIfMatch(_ context.Context, key Key, tokenHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[key]
	if !ok || !bytes.Equal(req.TokenHash, tokenHash) {
		return ErrNotFound
	}
	delete(r.requests, key)
	return nil
}

// DeleteCreatedBefore removes requests created before cutoff.
func (r *InMemoryRepository) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, req := range r.requests {
		if req.CreatedAt.Before(cutoff) {
			delete(r.requests, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of pending requests.
func (r *InMemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.requests)
}

func copyRequest(req *PendingRequest) *PendingRequest {
	if req == nil {
		return nil
	}
	c := *req
	c.TokenHash = append([]byte(nil), req.TokenHash...)
	return &c
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
