package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends JSON payloads to the exchange of its ConnectionManager.
// It never retries; that decision belongs to the caller.
type Publisher struct {
	manager        *ConnectionManager
	publishTimeout time.Duration
	logger         *slog.Logger
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithPublishTimeout bounds a single publish when the caller's context has no deadline
func WithPublishTimeout(timeout time.Duration) PublisherOption {
	return func(p *Publisher) {
		p.publishTimeout = timeout
	}
}

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a new publisher
func NewPublisher(manager *ConnectionManager, options ...PublisherOption) *Publisher {
	p := &Publisher{
		manager:        manager,
		publishTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish encodes payload as JSON and sends it, marked persistent, on ch.
func (p *Publisher) Publish(ctx context.Context, ch Channel, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return p.publishError(routingKey, fmt.Errorf("%w: %w", ErrEncode, err))
	}
	return p.PublishBody(ctx, ch, routingKey, body)
}

// PublishBody sends an already encoded JSON body, marked persistent, on ch.
func (p *Publisher) PublishBody(ctx context.Context, ch Channel, routingKey string, body []byte) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && p.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		AppId:        p.manager.Name(),
		Body:         body,
	}

	if err := ch.PublishWithContext(
		ctx,
		p.manager.Exchange(),
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	); err != nil {
		p.logger.Error("publish failed",
			"client", p.manager.Name(),
			"routingKey", routingKey,
			"error", err)
		return p.publishError(routingKey, err)
	}

	return nil
}

// PublishOnce opens a dedicated connection, publishes payload and closes the
// connection again on every path. Low-frequency senders use it so they never
// hold an idle connection.
func (p *Publisher) PublishOnce(ctx context.Context, routingKey string, payload any) error {
	err := p.manager.WithChannel(ctx, func(ch Channel) error {
		return p.Publish(ctx, ch, routingKey, payload)
	})
	if err != nil {
		return err
	}

	p.logger.Info("message sent",
		"client", p.manager.Name(),
		"routingKey", routingKey)
	return nil
}

func (p *Publisher) publishError(routingKey string, err error) error {
	return &PublishError{
		Exchange:   p.manager.Exchange(),
		RoutingKey: routingKey,
		Err:        err,
		Timestamp:  time.Now(),
	}
}
