package request

import "errors"

// Submission and confirmation errors.
var (
	ErrInvalidType        = errors.New("invalid request type")
	ErrMissingData        = errors.New("required information missing")
	ErrForbidden          = errors.New("request not permitted for this identity")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrNotFound           = errors.New("pending request not found")
	ErrTokenMismatch      = errors.New("confirmation token mismatch")
	ErrNotificationFailed = errors.New("notification failed")
)

// IsUnconfirmable reports whether err means the presented (identity, type, token)
// triple cannot be confirmed. Callers should render these cases identically.
func IsUnconfirmable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrTokenMismatch)
}
