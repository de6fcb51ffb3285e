package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/subjectdesk/subjectdesk/internal/api/middleware"
)

func requestIDEcho() http.Handler {
	return middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(middleware.GetRequestID(r.Context())))
	}))
}

func TestRequestID_Generated(t *testing.T) {
	rec := httptest.NewRecorder()
	requestIDEcho().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	id := rec.Body.String()
	assert.True(t, strings.HasPrefix(id, "req_"))
	assert.Equal(t, id, rec.Header().Get("X-Request-Id"))
}

func TestRequestID_ReusesClientValue(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "client-abc_123")
	rec := httptest.NewRecorder()
	requestIDEcho().ServeHTTP(rec, req)

	assert.Equal(t, "client-abc_123", rec.Body.String())
}

func TestRequestID_ReplacesUnsafeValue(t *testing.T) {
	for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("a", 65)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", bad)
		rec := httptest.NewRecorder()
		requestIDEcho().ServeHTTP(rec, req)

		assert.NotEqual(t, bad, rec.Body.String())
		assert.True(t, strings.HasPrefix(rec.Body.String(), "req_"))
	}
}
