package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/subjectdesk/subjectdesk/internal/api/models"
	"github.com/subjectdesk/subjectdesk/internal/auth"
)

// accountIDKey is the context key for the authenticated account ID.
type accountIDKey struct{}

// TokenValidator validates bearer access tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// OptionalAuth authenticates requests that carry a bearer token and lets
// anonymous requests through. A token that is present but invalid is rejected.
func OptionalAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || validator == nil {
				next.ServeHTTP(w, r)
				return
			}

			const bearerPrefix = "Bearer "
			if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "invalid authorization header format")
				return
			}

			claims, err := validator.ValidateAccessToken(header[len(bearerPrefix):])
			if err != nil {
				if errors.Is(err, auth.ErrAccessTokenExpired) {
					writeUnauthorized(w, r, "access token has expired")
				} else {
					writeUnauthorized(w, r, "invalid access token")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), claims.AccountID)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="subjectdesk"`)
	writeProblem(w, r, models.NewUnauthorized(GetRequestID(r.Context()), detail))
}

// WithAccountID returns a copy of ctx carrying the authenticated account ID.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey{}, accountID)
}

// GetAccountID retrieves the authenticated account ID from the context.
// Returns an empty string for anonymous requests.
func GetAccountID(ctx context.Context) string {
	if id, ok := ctx.Value(accountIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequireAccount rejects requests that OptionalAuth did not authenticate.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetAccountID(r.Context()) == "" {
			writeUnauthorized(w, r, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
