package handler

import (
	"context"

	"github.com/subjectdesk/subjectdesk/internal/api/middleware"
)

// GetAccountID retrieves the authenticated account ID from the context.
func GetAccountID(ctx context.Context) string {
	return middleware.GetAccountID(ctx)
}
