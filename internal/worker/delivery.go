package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/subjectdesk/subjectdesk/internal/notify"
	"github.com/subjectdesk/subjectdesk/internal/request"
)

// Disposition is what happens to a message once it has been handled.
type Disposition int

const (
	// Ack removes the message from the subscription.
	Ack Disposition = iota
	// Nack asks Pub/Sub to redeliver the message later.
	Nack
)

// NotificationSender delivers a decoded notification.
type NotificationSender interface {
	Send(ctx context.Context, n request.Notification) error
}

// DeliveryConfig holds configuration for the delivery subscriber.
type DeliveryConfig struct {
	Client         *pubsub.Client
	Subscription   string
	MaxOutstanding int
	Sender         NotificationSender
	Metrics        *Metrics
	Logger         zerolog.Logger
}

// Delivery drains the notification subscription and mails each message.
type Delivery struct {
	subscriber   *pubsub.Subscriber
	subscription string
	sender       NotificationSender
	metrics      *Metrics
	logger       zerolog.Logger
}

// NewDelivery creates a new delivery subscriber. Client may be nil when only
// Handle is used.
func NewDelivery(cfg DeliveryConfig) *Delivery {
	d := &Delivery{
		subscription: cfg.Subscription,
		sender:       cfg.Sender,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}

	if cfg.Client != nil {
		d.subscriber = cfg.Client.Subscriber(cfg.Subscription)
		if cfg.MaxOutstanding > 0 {
			d.subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstanding
		}
		d.subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute
	}

	return d
}

// Start receives messages until ctx is cancelled.
func (d *Delivery) Start(ctx context.Context) error {
	if d.subscriber == nil {
		return errors.New("delivery has no pubsub client")
	}

	d.logger.Info().
		Str("subscription", d.subscription).
		Msg("starting notification delivery")

	return d.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		disposition := d.Handle(ctx, msg.Data)
		d.logger.Debug().
			Str("message_id", msg.ID).
			Stringer("disposition", disposition).
			Msg("handled pubsub message")

		if disposition == Ack {
			msg.Ack()
		} else {
			msg.Nack()
		}
	})
}

// Handle delivers one queued notification and reports what to do with the
// message. Undecodable payloads are acknowledged so they are not redelivered
// forever; delivery failures are retried.
func (d *Delivery) Handle(ctx context.Context, data []byte) Disposition {
	logger := d.logger

	n, err := notify.Decode(data)
	if err != nil {
		logger.Error().Err(err).Msg("dropping undecodable notification")
		d.count("", "malformed")
		return Ack
	}

	start := time.Now()
	if err := d.sender.Send(ctx, n); err != nil {
		if errors.Is(err, notify.ErrMalformedMessage) {
			logger.Error().Err(err).Str("kind", string(n.Kind)).Msg("dropping unsendable notification")
			d.count(n.Kind, "malformed")
			return Ack
		}
		logger.Warn().Err(err).
			Str("kind", string(n.Kind)).
			Str("identity_id", n.Identity.ID).
			Msg("notification delivery failed, will retry")
		d.count(n.Kind, "retry")
		return Nack
	}

	logger.Info().
		Str("kind", string(n.Kind)).
		Str("identity_id", n.Identity.ID).
		Dur("duration", time.Since(start)).
		Msg("notification delivered")
	d.count(n.Kind, "delivered")
	return Ack
}

func (d *Delivery) count(kind request.NotificationKind, result string) {
	if d.metrics != nil {
		d.metrics.Deliveries.WithLabelValues(kindLabel(kind), result).Inc()
	}
}

// kindLabel keeps the kind label bounded: queue payloads are untrusted.
func kindLabel(kind request.NotificationKind) string {
	switch kind {
	case request.NotificationConfirmRequest, request.NotificationAccountDeleted:
		return string(kind)
	default:
		return "unknown"
	}
}

// String describes the disposition for logs.
func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Nack:
		return "nack"
	default:
		return fmt.Sprintf("disposition(%d)", int(d))
	}
}
