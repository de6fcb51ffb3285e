package request

import "context"

// IdentityStore resolves subjects and answers questions about their privileges.
type IdentityStore interface {
	// Resolve finds the identity registered under an email address.
	// Returns ErrIdentityNotFound when there is none.
	Resolve(ctx context.Context, email string) (Identity, error)

	// Lookup finds the identity with the given ID.
	// Returns ErrIdentityNotFound when there is none.
	Lookup(ctx context.Context, id string) (Identity, error)

	// IsSoleAdmin reports whether the identity is the only administrator left.
	IsSoleAdmin(ctx context.Context, identity Identity) (bool, error)
}

// NotificationSender delivers messages to subjects out-of-band.
type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}

// ActionExecutor performs the effect of a confirmed request.
type ActionExecutor interface {
	Execute(ctx context.Context, identity Identity, t Type, data string) error

	// Hold records a confirmed request whose effect is deferred to staff,
	// such as an erasure held back by retained content.
	Hold(ctx context.Context, identity Identity, t Type, data string) error
}

// ContentRetentionChecker reports whether an erasure must be held back.
type ContentRetentionChecker interface {
	HasRetainedContent(ctx context.Context, identity Identity) (bool, error)
}

// NotificationSenderFunc adapts a function to NotificationSender.
type NotificationSenderFunc func(ctx context.Context, n Notification) error

// Send calls f.
func (f NotificationSenderFunc) Send(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
