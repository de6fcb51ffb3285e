package request_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subjectdesk/subjectdesk/internal/request"
)

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := request.GenerateToken()
		require.NoError(t, err)

		raw, err := base64.RawURLEncoding.DecodeString(token)
		require.NoError(t, err)
		assert.Len(t, raw, request.TokenLength)

		assert.False(t, seen[token], "duplicate token generated")
		seen[token] = true
	}
}

func TestNewTokenHasher_EmptySecret(t *testing.T) {
	_, err := request.NewTokenHasher(nil)
	assert.ErrorIs(t, err, request.ErrEmptySecret)
}

func TestTokenHasher_Matches(t *testing.T) {
	hasher, err := request.NewTokenHasher([]byte("secret"))
	require.NoError(t, err)

	digest := hasher.Digest("token-a")
	assert.True(t, hasher.Matches("token-a", digest))
	assert.False(t, hasher.Matches("token-b", digest))
	assert.False(t, hasher.Matches("token-a", nil))
	assert.False(t, hasher.Matches("token-a", digest[:16]))
}

func TestTokenHasher_SameSecretSameDigest(t *testing.T) {
	h1, err := request.NewTokenHasher([]byte("secret"))
	require.NoError(t, err)
	h2, err := request.NewTokenHasher([]byte("secret"))
	require.NoError(t, err)
	other, err := request.NewTokenHasher([]byte("another secret"))
	require.NoError(t, err)

	assert.Equal(t, h1.Digest("token"), h2.Digest("token"))
	assert.NotEqual(t, h1.Digest("token"), other.Digest("token"))
}

func TestNewRandomTokenHasher(t *testing.T) {
	h1, err := request.NewRandomTokenHasher()
	require.NoError(t, err)
	h2, err := request.NewRandomTokenHasher()
	require.NoError(t, err)

	assert.NotEqual(t, h1.Digest("token"), h2.Digest("token"))
}
