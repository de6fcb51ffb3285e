package middleware

import (
	"mime"
	"net/http"

	"github.com/subjectdesk/subjectdesk/internal/api/models"
)

// RequireJSON rejects request bodies that are not declared as JSON.
// A missing Content-Type is accepted.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			if ct := r.Header.Get("Content-Type"); ct != "" {
				mediaType, _, err := mime.ParseMediaType(ct)
				if err != nil || mediaType != "application/json" {
					p := models.NewProblem(
						"https://subjectdesk.dev/problems/unsupported-media-type",
						"Unsupported media type",
						http.StatusUnsupportedMediaType,
						GetRequestID(r.Context()),
					).WithDetail("Content-Type must be application/json")
					writeProblem(w, r, p)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
