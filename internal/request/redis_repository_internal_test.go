package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stringFields mirrors what HGETALL hands back for an encoded request.
func stringFields(t *testing.T, encoded map[string]interface{}) map[string]string {
	t.Helper()
	out := make(map[string]string, len(encoded))
	for k, v := range encoded {
		s, ok := v.(string)
		require.True(t, ok, "field %s is %T", k, v)
		out[k] = s
	}
	return out
}

func TestRedisFields_RoundTrip(t *testing.T) {
	req := &PendingRequest{
		Identity:  Identity{ID: "acc_bob", Email: "bob@example.com"},
		Type:      TypeRectification,
		Data:      "new address: 1 Main St\nFlat 2",
		TokenHash: []byte{0x00, 0xff, 0x10, 0x7f},
		State:     StatePending,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("CEST", 2*3600)),
	}

	fields := stringFields(t, encodeRedisFields(req))
	assert.Equal(t, "00ff107f", fields[redisFieldTokenHash])
	assert.Equal(t, "2024-05-01T10:00:00.123456789Z", fields[redisFieldCreatedAt])

	got, err := decodeRedisFields(fields)
	require.NoError(t, err)
	assert.Equal(t, req.Identity, got.Identity)
	assert.Equal(t, req.Type, got.Type)
	assert.Equal(t, req.Data, got.Data)
	assert.Equal(t, req.TokenHash, got.TokenHash)
	assert.Equal(t, req.State, got.State)
	assert.True(t, req.CreatedAt.Equal(got.CreatedAt))
}

func TestRedisFields_EmptyDataAndEmail(t *testing.T) {
	req := &PendingRequest{
		Identity:  Identity{ID: "acc_alice"},
		Type:      TypeErasure,
		TokenHash: []byte{1},
		State:     StatePending,
		CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}

	got, err := decodeRedisFields(stringFields(t, encodeRedisFields(req)))
	require.NoError(t, err)
	assert.Empty(t, got.Data)
	assert.Empty(t, got.Identity.Email)
}

func TestDecodeRedisFields_Malformed(t *testing.T) {
	valid := func() map[string]string {
		return map[string]string{
			redisFieldIdentityID: "acc_bob",
			redisFieldType:       "complaint",
			redisFieldTokenHash:  "0102",
			redisFieldState:      "pending",
			redisFieldCreatedAt:  "2024-05-01T12:00:00Z",
		}
	}

	tests := []struct {
		name   string
		modify func(map[string]string)
		errMsg string
	}{
		{"missing identity", func(f map[string]string) { delete(f, redisFieldIdentityID) }, "missing identity_id"},
		{"missing type", func(f map[string]string) { delete(f, redisFieldType) }, "missing type"},
		{"missing token", func(f map[string]string) { delete(f, redisFieldTokenHash) }, "missing token_hash"},
		{"token not hex", func(f map[string]string) { f[redisFieldTokenHash] = "zz" }, "token"},
		{"bad time", func(f map[string]string) { f[redisFieldCreatedAt] = "yesterday" }, "time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := valid()
			tt.modify(fields)
			_, err := decodeRedisFields(fields)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := decodeRedisFields(valid())
	assert.NoError(t, err)
}

func TestNewRedisRepository_DefaultPrefix(t *testing.T) {
	repo := NewRedisRepository(RedisRepositoryConfig{})
	key := Key{IdentityID: "acc_bob", Type: TypeComplaint}
	assert.Equal(t, DefaultRedisKeyPrefix+key.String(), repo.redisKey(key))

	repo = NewRedisRepository(RedisRepositoryConfig{KeyPrefix: "test:"})
	assert.Equal(t, "test:"+key.String(), repo.redisKey(key))
}
