package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subjectdesk/subjectdesk/internal/request"
)

func TestInMemoryRepository_PutGetDeleteIfMatch(t *testing.T) {
	repo := request.NewInMemoryRepository()
	ctx := context.Background()
	key := request.Key{IdentityID: bob.ID, Type: request.TypeComplaint}

	_, err := repo.Get(ctx, key)
	assert.ErrorIs(t, err, request.ErrNotFound)

	req := &request.PendingRequest{
		Identity:  bob,
		Type:      request.TypeComplaint,
		Data:      "spam",
		TokenHash: []byte{1, 2, 3},
		State:     request.StatePending,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.Put(ctx, req))

	got, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, req, got)

	// Stored copies are isolated from callers.
	got.TokenHash[0] = 9
	again, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, byte(1), again.TokenHash[0])

	// Removal only succeeds while the stored digest still matches.
	assert.ErrorIs(t, repo.DeleteIfMatch(ctx, key, []byte{4, 5, 6}), request.ErrNotFound)
	assert.Equal(t, 1, repo.Len())

	require.NoError(t, repo.DeleteIfMatch(ctx, key, []byte{1, 2, 3}))
	assert.ErrorIs(t, repo.DeleteIfMatch(ctx, key, []byte{1, 2, 3}), request.ErrNotFound)
}

func TestInMemoryRepository_PutReplaces(t *testing.T) {
	repo := request.NewInMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, &request.PendingRequest{Identity: bob, Type: request.TypeRectification, Data: "one"}))
	require.NoError(t, repo.Put(ctx, &request.PendingRequest{Identity: bob, Type: request.TypeRectification, Data: "two"}))
	require.NoError(t, repo.Put(ctx, &request.PendingRequest{Identity: bob, Type: request.TypeComplaint, Data: "three"}))

	assert.Equal(t, 2, repo.Len())

	got, err := repo.Get(ctx, request.Key{IdentityID: bob.ID, Type: request.TypeRectification})
	require.NoError(t, err)
	assert.Equal(t, "two", got.Data)
}

func TestInMemoryRepository_DeleteCreatedBefore(t *testing.T) {
	repo := request.NewInMemoryRepository()
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(ctx, &request.PendingRequest{Identity: alice, Type: request.TypeErasure, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Put(ctx, &request.PendingRequest{Identity: bob, Type: request.TypeErasure, CreatedAt: now}))

	n, err := repo.DeleteCreatedBefore(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, repo.Len())
}

// runRepositoryContract checks the behavior every Repository must share.
// Timestamps sit far in the past so sweeping a shared store only touches
// the rows written here.
func runRepositoryContract(t *testing.T, repo request.Repository) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2001, 2, 3, 4, 5, 6, 0, time.UTC)
	bobKey := request.Key{IdentityID: bob.ID, Type: request.TypeRectification}

	_, err := repo.Get(ctx, bobKey)
	require.ErrorIs(t, err, request.ErrNotFound)

	first := &request.PendingRequest{
		Identity:  bob,
		Type:      request.TypeRectification,
		Data:      "one",
		TokenHash: []byte{1, 2, 3},
		State:     request.StatePending,
		CreatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, repo.Put(ctx, first))

	got, err := repo.Get(ctx, bobKey)
	require.NoError(t, err)
	assert.Equal(t, bob, got.Identity)
	assert.Equal(t, request.TypeRectification, got.Type)
	assert.Equal(t, "one", got.Data)
	assert.Equal(t, []byte{1, 2, 3}, got.TokenHash)
	assert.Equal(t, request.StatePending, got.State)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	// A resubmission replaces the entry; the old digest no longer removes it.
	second := *first
	second.Data = "two"
	second.TokenHash = []byte{4, 5, 6}
	second.CreatedAt = now
	require.NoError(t, repo.Put(ctx, &second))
	assert.ErrorIs(t, repo.DeleteIfMatch(ctx, bobKey, first.TokenHash), request.ErrNotFound)

	got, err = repo.Get(ctx, bobKey)
	require.NoError(t, err)
	assert.Equal(t, "two", got.Data)

	require.NoError(t, repo.Put(ctx, &request.PendingRequest{
		Identity:  alice,
		Type:      request.TypeErasure,
		TokenHash: []byte{7},
		State:     request.StatePending,
		CreatedAt: now.Add(-2 * time.Hour),
	}))

	n, err := repo.DeleteCreatedBefore(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = repo.Get(ctx, request.Key{IdentityID: alice.ID, Type: request.TypeErasure})
	assert.ErrorIs(t, err, request.ErrNotFound)

	require.NoError(t, repo.DeleteIfMatch(ctx, bobKey, second.TokenHash))
	_, err = repo.Get(ctx, bobKey)
	assert.ErrorIs(t, err, request.ErrNotFound)
}

func TestInMemoryRepository_Contract(t *testing.T) {
	runRepositoryContract(t, request.NewInMemoryRepository())
}
