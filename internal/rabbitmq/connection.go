package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/expedition-bus/internal/reliability"
)

const (
	defaultConnectAttempts = 5
	defaultConnectDelay    = 5 * time.Second
)

// ConnectionManager opens fresh connection+channel pairs with the topic
// exchange already declared. It never caches a connection: every caller gets
// its own pair and is responsible for closing it.
type ConnectionManager struct {
	url      string
	name     string
	exchange ExchangeDeclaration
	dial     Dialer
	attempts int
	delay    time.Duration
	policy   reliability.RetryPolicy
	logger   *slog.Logger
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithClientName sets the name reported in log lines
func WithClientName(name string) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.name = name
	}
}

// WithDialer replaces the transport dialer
func WithDialer(dial Dialer) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dial = dial
	}
}

// WithExchange sets the exchange declared on every new channel
func WithExchange(exchange ExchangeDeclaration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.exchange = exchange
	}
}

// WithConnectAttempts sets how many times Connect tries before giving up
func WithConnectAttempts(attempts int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.attempts = attempts
	}
}

// WithConnectDelay sets the fixed pause between connection attempts
func WithConnectDelay(delay time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.delay = delay
	}
}

// WithConnectPolicy replaces the fixed-delay policy built from
// WithConnectAttempts and WithConnectDelay.
func WithConnectPolicy(policy reliability.RetryPolicy) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.policy = policy
	}
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:  url,
		name: "client",
		exchange: ExchangeDeclaration{
			Name:    "system_bus",
			Type:    ExchangeTopic,
			Durable: true,
		},
		dial:     DialAMQP,
		attempts: defaultConnectAttempts,
		delay:    defaultConnectDelay,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(cm)
	}

	if cm.policy == nil {
		attempts := cm.attempts
		if attempts < 1 {
			attempts = 1
		}
		cm.policy = reliability.NewFixedDelay(cm.delay, attempts-1)
	}

	return cm
}

// Exchange returns the name of the exchange declared on every channel
func (cm *ConnectionManager) Exchange() string {
	return cm.exchange.Name
}

// Name returns the client name used in logs
func (cm *ConnectionManager) Name() string {
	return cm.name
}

// Connect returns an open connection and channel on which the exchange has
// been declared. It tries as often as the connect policy allows; a failed
// attempt leaves nothing open behind it. Fatal causes, such as an exchange
// declared with conflicting settings, end the attempts early.
func (cm *ConnectionManager) Connect(ctx context.Context) (Connection, Channel, error) {
	var (
		conn     Connection
		ch       Channel
		attempts int
	)

	err := reliability.Retry(ctx, cm.policy, func() error {
		attempts++
		c, channel, err := cm.open()
		if err != nil {
			cm.logger.Warn("cannot connect to broker",
				"client", cm.name,
				"url", SanitizeURL(cm.url),
				"attempt", attempts,
				"maxAttempts", cm.maxAttempts(),
				"error", err)
			if IsFatal(err) {
				return reliability.Permanent(err)
			}
			return err
		}
		conn, ch = c, channel
		return nil
	})

	if err != nil {
		cause := fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
		switch ctxErr := ctx.Err(); {
		case ctxErr != nil && errors.Is(err, ctxErr):
			cause = fmt.Errorf("%w: %w", ErrOperationCancelled, err)
		case IsFatal(err):
			cause = err
		}
		return nil, nil, &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       cause,
			Timestamp: time.Now(),
			Attempts:  attempts,
		}
	}

	cm.logger.Info("connected to broker",
		"client", cm.name,
		"url", SanitizeURL(cm.url),
		"exchange", cm.exchange.Name)

	return conn, ch, nil
}

// WithChannel connects, runs fn on the new channel and releases the channel
// and connection on every path.
func (cm *ConnectionManager) WithChannel(ctx context.Context, fn func(Channel) error) error {
	conn, ch, err := cm.Connect(ctx)
	if err != nil {
		return err
	}
	defer closeQuietly(ch, conn)

	return fn(ch)
}

// Probe performs a single connection attempt and closes it again.
func (cm *ConnectionManager) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, ch, err := cm.open()
	if err != nil {
		return &ConnectionError{
			Op:        "probe",
			URL:       SanitizeURL(cm.url),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}
	closeQuietly(ch, conn)
	return nil
}

// open makes one attempt: dial, open a channel, declare the exchange.
func (cm *ConnectionManager) open() (Connection, Channel, error) {
	conn, err := cm.dial(cm.url)
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		closeQuietly(nil, conn)
		return nil, nil, &ChannelError{Op: "open", ChannelID: cm.name, Err: err, Timestamp: time.Now()}
	}

	if err := declareExchange(ch, cm.exchange); err != nil {
		closeQuietly(ch, conn)
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Code == amqp.PreconditionFailed {
			err = fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		return nil, nil, &TopologyError{
			Component: "exchange",
			Name:      cm.exchange.Name,
			Op:        "declare",
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	return conn, ch, nil
}

func (cm *ConnectionManager) maxAttempts() int {
	if cm.policy.MaxRetries() < 0 {
		return -1
	}
	return cm.policy.MaxRetries() + 1
}
