package notify

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/subjectdesk/subjectdesk/internal/mail"
	"github.com/subjectdesk/subjectdesk/internal/request"
)

// Mailer sends a single email.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) error
}

// Direct delivers notifications synchronously through a Mailer.
type Direct struct {
	composer *Composer
	mailer   Mailer
	logger   zerolog.Logger
}

// NewDirect creates a synchronous notification sender.
func NewDirect(composer *Composer, mailer Mailer, logger zerolog.Logger) *Direct {
	return &Direct{composer: composer, mailer: mailer, logger: logger}
}

// Send composes and mails n.
func (d *Direct) Send(ctx context.Context, n request.Notification) error {
	msg, err := d.composer.Compose(n)
	if err != nil {
		return err
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		return err
	}

	d.logger.Debug().
		Str("identity_id", n.Identity.ID).
		Str("kind", string(n.Kind)).
		Msg("notification delivered")
	return nil
}

// Publisher queues notifications on a Pub/Sub topic for the worker.
type Publisher struct {
	publisher *pubsub.Publisher
	logger    zerolog.Logger
}

// NewPublisher creates a sender that publishes to topic.
func NewPublisher(client *pubsub.Client, topic string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		publisher: client.Publisher(topic),
		logger:    logger,
	}
}

// Send publishes n and waits for the server to accept it.
func (p *Publisher) Send(ctx context.Context, n request.Notification) error {
	data, err := Encode(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind": string(n.Kind),
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}

	p.logger.Debug().
		Str("message_id", id).
		Str("kind", string(n.Kind)).
		Msg("notification queued")
	return nil
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	p.publisher.Stop()
}

var (
	_ request.NotificationSender = (*Direct)(nil)
	_ request.NotificationSender = (*Publisher)(nil)
)
