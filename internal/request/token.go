package request

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// TokenLength is the byte length of confirmation tokens (256 bits of entropy).
const TokenLength = 32

// hkdfInfo binds derived digest keys to their purpose.
const hkdfInfo = "subjectdesk confirmation token digest v1"

// ErrEmptySecret is returned when a token hasher is created without key material.
var ErrEmptySecret = errors.New("token secret must not be empty")

// TokenHasher computes keyed digests of confirmation tokens.
// Stored digests cannot be turned back into working tokens without the secret.
type TokenHasher struct {
	key []byte
}

// NewTokenHasher derives a digest key from secret.
func NewTokenHasher(secret []byte) (*TokenHasher, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	kdf := hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving token digest key: %w", err)
	}

	return &TokenHasher{key: key}, nil
}

// NewRandomTokenHasher creates a hasher with an ephemeral random secret.
// Tokens issued through it do not survive a process restart.
func NewRandomTokenHasher() (*TokenHasher, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating token secret: %w", err)
	}
	return NewTokenHasher(secret)
}

// Digest returns the keyed digest of token.
func (h *TokenHasher) Digest(token string) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(token))
	return mac.Sum(nil)
}

// Matches reports whether token hashes to digest, in constant time.
func (h *TokenHasher) Matches(token string, digest []byte) bool {
	return hmac.Equal(h.Digest(token), digest)
}

// GenerateToken creates a new unguessable confirmation token.
func GenerateToken() (string, error) {
	b := make([]byte, TokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating confirmation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
