// Package notify turns ledger notifications into email, either directly or
// through a Pub/Sub topic drained by the worker.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/subjectdesk/subjectdesk/internal/request"
)

// ErrMalformedMessage is returned when a queued message cannot be decoded.
var ErrMalformedMessage = errors.New("malformed notification message")

// Message is the queued form of a notification.
type Message struct {
	Kind       request.NotificationKind `json:"kind"`
	IdentityID string                   `json:"identity_id"`
	Email      string                   `json:"email"`
	Type       request.Type             `json:"type"`
	Token      string                   `json:"token,omitempty"`
	Data       string                   `json:"data,omitempty"`
}

// Encode serializes n for the queue.
func Encode(n request.Notification) ([]byte, error) {
	return json.Marshal(Message{
		Kind:       n.Kind,
		IdentityID: n.Identity.ID,
		Email:      n.Identity.Email,
		Type:       n.Type,
		Token:      n.Token,
		Data:       n.Data,
	})
}

// Decode parses a queued message.
func Decode(data []byte) (request.Notification, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return request.Notification{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.Kind == "" || msg.Email == "" {
		return request.Notification{}, fmt.Errorf("%w: kind and email are required", ErrMalformedMessage)
	}
	return request.Notification{
		Kind:     msg.Kind,
		Identity: request.Identity{ID: msg.IdentityID, Email: msg.Email},
		Type:     msg.Type,
		Token:    msg.Token,
		Data:     msg.Data,
	}, nil
}
