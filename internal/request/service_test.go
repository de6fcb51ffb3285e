package request_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subjectdesk/subjectdesk/internal/request"
)

// outbox captures notifications instead of delivering them.
type outbox struct {
	mu   sync.Mutex
	sent []request.Notification
	err  error
}

func (o *outbox) Send(_ context.Context, n request.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, n)
	return nil
}

func (o *outbox) Last() request.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[len(o.sent)-1]
}

func newServiceFixture(t *testing.T) (*request.Service, *ledgerFixture, *outbox) {
	t.Helper()

	f := newLedgerFixture(t)
	box := &outbox{}
	svc := request.NewService(request.ServiceConfig{
		Ledger:     f.ledger,
		Identities: f.identities,
		Notifier:   box,
		Logger:     zerolog.Nop(),
	})
	return svc, f, box
}

func TestService_RequestAndConfirm(t *testing.T) {
	svc, f, box := newServiceFixture(t)
	ctx := context.Background()

	identity, err := svc.Request(ctx, request.Submission{
		Email: bob.Email,
		Type:  request.TypeRectification,
		Data:  "fix address",
	})
	require.NoError(t, err)
	assert.Equal(t, bob, identity)

	n := box.Last()
	assert.Equal(t, request.NotificationConfirmRequest, n.Kind)
	assert.Equal(t, bob, n.Identity)
	assert.Equal(t, request.TypeRectification, n.Type)
	assert.NotEmpty(t, n.Token)

	outcome, err := svc.Confirm(ctx, bob.Email, request.TypeRectification, n.Token)
	require.NoError(t, err)
	assert.Equal(t, request.OutcomeCompleted, outcome)
	assert.Len(t, f.executor.Actions(), 1)
}

func TestService_Request_ByIdentityID(t *testing.T) {
	svc, _, box := newServiceFixture(t)

	identity, err := svc.Request(context.Background(), request.Submission{
		IdentityID: alice.ID,
		Email:      "ignored@example.com",
		Type:       request.TypeErasure,
	})
	require.NoError(t, err)
	assert.Equal(t, alice, identity)
	assert.Equal(t, alice.Email, box.Last().Identity.Email)
}

func TestService_Request_UnknownEmail(t *testing.T) {
	svc, f, box := newServiceFixture(t)

	_, err := svc.Request(context.Background(), request.Submission{
		Email: "nobody@example.com",
		Type:  request.TypeErasure,
	})
	assert.ErrorIs(t, err, request.ErrIdentityNotFound)
	assert.Equal(t, 0, f.repo.Len())
	assert.Empty(t, box.sent)
}

func TestService_Request_NoIdentity(t *testing.T) {
	svc, _, _ := newServiceFixture(t)

	_, err := svc.Request(context.Background(), request.Submission{Type: request.TypeErasure})
	assert.ErrorIs(t, err, request.ErrIdentityNotFound)
}

func TestService_Request_ValidatesBeforeResolving(t *testing.T) {
	svc, _, _ := newServiceFixture(t)

	_, err := svc.Request(context.Background(), request.Submission{
		Email: "nobody@example.com",
		Type:  request.TypeComplaint,
	})
	assert.ErrorIs(t, err, request.ErrMissingData)
}

func TestService_Request_NotificationFailureKeepsEntry(t *testing.T) {
	svc, f, box := newServiceFixture(t)
	box.err = errors.New("smtp relay down")

	_, err := svc.Request(context.Background(), request.Submission{
		Email: alice.Email,
		Type:  request.TypeErasure,
	})
	assert.ErrorIs(t, err, request.ErrNotificationFailed)
	assert.Equal(t, 1, f.repo.Len())

	// A retry issues a fresh token for the same slot.
	box.err = nil
	_, err = svc.Request(context.Background(), request.Submission{
		Email: alice.Email,
		Type:  request.TypeErasure,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.Len())
}

func TestService_Confirm_UnknownEmail(t *testing.T) {
	svc, _, _ := newServiceFixture(t)

	_, err := svc.Confirm(context.Background(), "nobody@example.com", request.TypeErasure, "token")
	assert.ErrorIs(t, err, request.ErrNotFound)
}
