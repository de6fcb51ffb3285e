// Package identity manages subject accounts.
//
// Accounts are looked up by email for anonymous request submission and by ID
// once a subject is authenticated. The package also answers the two questions
// the request ledger asks about an account: whether it is the last
// administrator and whether it still owns content that must be retained.
package identity

import (
	"slices"
	"strings"
	"time"

	"github.com/subjectdesk/subjectdesk/internal/request"
)

// Role is a privilege granted to an account.
type Role string

// Account roles.
const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// Account is a registered subject.
type Account struct {
	// ID is the unique account identifier (format: acc_XXXX).
	ID string

	// Email is the normalized delivery address. Unique across accounts.
	Email string

	Roles []Role

	CreatedAt time.Time
}

// HasRole reports whether the account holds role.
func (a *Account) HasRole(role Role) bool {
	return slices.Contains(a.Roles, role)
}

// Identity returns the ledger view of the account.
func (a *Account) Identity() request.Identity {
	return request.Identity{ID: a.ID, Email: a.Email}
}

// NormalizeEmail canonicalizes an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyAccount(a *Account) *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Roles = slices.Clone(a.Roles)
	return &c
}
