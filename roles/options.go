package roles

import (
	"log/slog"
	"time"

	"github.com/glimte/expedition-bus/contracts"
	"github.com/glimte/expedition-bus/internal/rabbitmq"
)

// MonitoredMessage is one message seen by the administrator's monitor.
// Fields is nil when the body is not a JSON object.
type MonitoredMessage struct {
	RoutingKey string
	Fields     map[string]any
	Raw        []byte
}

type options struct {
	logger         *slog.Logger
	dialer         rabbitmq.Dialer
	now            func() time.Time
	onConfirmation func(contracts.Confirmation)
	onBroadcast    func(contracts.Broadcast)
	onMonitored    func(MonitoredMessage)
}

// Option configures a role
type Option func(*options)

// WithLogger sets the logger for the role and its workers
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDialer replaces the broker transport
func WithDialer(dial rabbitmq.Dialer) Option {
	return func(o *options) {
		o.dialer = dial
	}
}

// WithClock sets the time source used to stamp broadcasts
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithConfirmationHandler is called by a Team for every confirmation it
// receives. It runs on the worker goroutine and must not block.
func WithConfirmationHandler(fn func(contracts.Confirmation)) Option {
	return func(o *options) {
		o.onConfirmation = fn
	}
}

// WithBroadcastHandler is called by a Team or Supplier for every
// administrator broadcast it receives. It runs on the worker goroutine.
func WithBroadcastHandler(fn func(contracts.Broadcast)) Option {
	return func(o *options) {
		o.onBroadcast = fn
	}
}

// WithMonitorHandler is called by the Administrator for every monitored message
func WithMonitorHandler(fn func(MonitoredMessage)) Option {
	return func(o *options) {
		o.onMonitored = fn
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
