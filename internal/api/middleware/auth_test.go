package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subjectdesk/subjectdesk/internal/api/middleware"
	"github.com/subjectdesk/subjectdesk/internal/api/models"
	"github.com/subjectdesk/subjectdesk/internal/auth"
)

func newJWT() *auth.JWTService {
	return auth.NewJWTService(auth.JWTConfig{
		SigningKey: "middleware-test-key",
		Issuer:     "https://privacy.example.com",
		Audience:   "subjectdesk-api",
	})
}

func accountEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.GetAccountID(r.Context())))
	})
}

func TestOptionalAuth_Anonymous(t *testing.T) {
	handler := middleware.OptionalAuth(newJWT())(accountEcho())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/requests", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestOptionalAuth_ValidToken(t *testing.T) {
	jwtSvc := newJWT()
	token, _, err := jwtSvc.GenerateAccessToken("acc_bob")
	require.NoError(t, err)

	handler := middleware.OptionalAuth(jwtSvc)(accountEcho())

	req := httptest.NewRequest(http.MethodPost, "/v1/requests", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc_bob", rec.Body.String())
}

func TestOptionalAuth_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
	}

	handler := middleware.OptionalAuth(newJWT())(accountEcho())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/requests", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

			var p models.Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, "/v1/requests", p.Instance)
		})
	}
}

func TestGetAccountID_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, middleware.GetAccountID(req.Context()))
}
