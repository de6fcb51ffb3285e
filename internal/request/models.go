// Package request implements the data-subject request ledger.
//
// A subject submits a typed request (erasure, rectification, complaint). The ledger
// keeps one pending entry per (identity, type) and hands back a single-use token that
// is delivered out-of-band. Presenting the token confirms the request, removes the
// entry, and triggers the action configured for the type.
//
// Only a keyed digest of each token is stored. The clear token leaves the ledger once,
// as the return value of Submit.
package request

import (
	"fmt"
	"strings"
	"time"
)

// Type is the kind of data-subject request.
type Type string

// Request types.
const (
	TypeErasure       Type = "delete"
	TypeRectification Type = "rectify"
	TypeComplaint     Type = "complaint"
)

// ParseType parses a request type from its wire value.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeErasure, TypeRectification, TypeComplaint:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// String returns the wire value of the type.
func (t Type) String() string {
	return string(t)
}

// TypeConfig describes how the ledger treats one request type.
type TypeConfig struct {
	// RequiresData rejects submissions without a free-text payload.
	RequiresData bool
}

// DefaultTypes returns the standard set of request types.
func DefaultTypes() map[Type]TypeConfig {
	return map[Type]TypeConfig{
		TypeErasure:       {RequiresData: false},
		TypeRectification: {RequiresData: true},
		TypeComplaint:     {RequiresData: true},
	}
}

// Identity is the subject of a request.
type Identity struct {
	// ID is the stable account identifier. It is the ledger key.
	ID string

	// Email is where confirmation messages are delivered.
	Email string
}

// State is the lifecycle state of a pending request.
type State string

// Request states.
const (
	StatePending   State = "PENDING"
	StateConfirmed State = "CONFIRMED"
)

// PendingRequest is a submitted request awaiting confirmation.
type PendingRequest struct {
	Identity  Identity
	Type      Type
	Data      string
	TokenHash []byte
	State     State
	CreatedAt time.Time
}

// Key returns the ledger key of the request.
func (p *PendingRequest) Key() Key {
	return Key{IdentityID: p.Identity.ID, Type: p.Type}
}

// Expired reports whether the request is older than ttl at now.
// A non-positive ttl disables expiry.
func (p *PendingRequest) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return !now.Before(p.CreatedAt.Add(ttl))
}

// Key identifies the single pending slot of an identity for a request type.
type Key struct {
	IdentityID string
	Type       Type
}

// String returns the key in "identity|type" form.
func (k Key) String() string {
	return k.IdentityID + "|" + string(k.Type)
}

// Outcome is the result of a successful confirmation.
type Outcome string

// Confirmation outcomes.
const (
	// OutcomeCompleted means the action for the request type was executed.
	OutcomeCompleted Outcome = "completed"

	// OutcomeContentRetained means an erasure was confirmed but the account was kept
	// because it still owns content.
	OutcomeContentRetained Outcome = "content-retained"
)

// NotificationKind is the kind of message sent to a subject.
type NotificationKind string

// Notification kinds.
const (
	NotificationConfirmRequest NotificationKind = "confirm-request"
	NotificationAccountDeleted NotificationKind = "account-deleted"
)

// Notification is an out-of-band message for a subject.
type Notification struct {
	Kind     NotificationKind
	Identity Identity
	Type     Type
	Token    string
	Data     string
}
