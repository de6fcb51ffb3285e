package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/subjectdesk/subjectdesk/internal/api/middleware"
)

func TestRateLimitByIP(t *testing.T) {
	limiter := middleware.RateLimitByIP(middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute})
	handler := limiter(ok)

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/requests", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)

	rec := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code)
}

func TestRateLimitByAccount(t *testing.T) {
	jwtSvc := newJWT()
	limiter := middleware.RateLimitByAccount(middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute})
	handler := middleware.OptionalAuth(jwtSvc)(limiter(ok))

	send := func(account string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/requests", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		if account != "" {
			token, _, err := jwtSvc.GenerateAccessToken(account)
			assert.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	// Accounts behind one IP are limited independently.
	assert.Equal(t, http.StatusOK, send("acc_a"))
	assert.Equal(t, http.StatusOK, send("acc_b"))
	assert.Equal(t, http.StatusTooManyRequests, send("acc_a"))
	assert.Equal(t, http.StatusOK, send(""))
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}
