package rabbitmq

import (
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeTopic is the only exchange kind the coordination protocol uses.
const ExchangeTopic = "topic"

// ExchangeDeclaration defines an exchange to be declared
type ExchangeDeclaration struct {
	Name       string
	Type       string
	Durable    bool
	AutoDelete bool
	Arguments  amqp.Table
}

// QueueDeclaration defines a queue to be declared
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// DurableQueue returns the declaration used for every role queue: durable,
// never auto-deleted, shared between connections.
func DurableQueue(name string) QueueDeclaration {
	return QueueDeclaration{Name: name, Durable: true}
}

// Binding defines a queue-to-exchange binding
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// TopologyManager declares queues and their bindings on a caller-supplied
// channel. It holds no channel of its own and is safe for concurrent use.
type TopologyManager struct {
	exchange string
	logger   *slog.Logger
}

// TopologyOption configures the TopologyManager
type TopologyOption func(*TopologyManager)

// WithTopologyLogger sets the logger
func WithTopologyLogger(logger *slog.Logger) TopologyOption {
	return func(tm *TopologyManager) {
		tm.logger = logger
	}
}

// NewTopologyManager creates a topology manager binding queues to exchange
func NewTopologyManager(exchange string, options ...TopologyOption) *TopologyManager {
	tm := &TopologyManager{
		exchange: exchange,
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(tm)
	}

	return tm
}

// Exchange returns the exchange queues are bound to
func (tm *TopologyManager) Exchange() string {
	return tm.exchange
}

// DeclareAndBind declares queue and binds it once per routing key, in order.
// Both broker operations are idempotent, so calling this again after a
// reconnect with the same arguments is harmless.
func (tm *TopologyManager) DeclareAndBind(ch Channel, queue QueueDeclaration, routingKeys ...string) (string, error) {
	q, err := declareQueue(ch, queue)
	if err != nil {
		return "", &TopologyError{
			Component: "queue",
			Name:      queue.Name,
			Op:        "declare",
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	for _, key := range routingKeys {
		binding := Binding{Queue: q.Name, Exchange: tm.exchange, RoutingKey: key}
		if err := bindQueue(ch, binding); err != nil {
			return "", &TopologyError{
				Component: "binding",
				Name:      q.Name + "<-" + key,
				Op:        "declare",
				Err:       err,
				Timestamp: time.Now(),
			}
		}
		tm.logger.Debug("queue bound",
			"queue", q.Name,
			"exchange", tm.exchange,
			"routingKey", key)
	}

	return q.Name, nil
}

// declareExchange declares an exchange on the given channel
func declareExchange(ch Channel, exchange ExchangeDeclaration) error {
	return ch.ExchangeDeclare(
		exchange.Name,
		exchange.Type,
		exchange.Durable,
		exchange.AutoDelete,
		false, // internal
		false, // no-wait
		exchange.Arguments,
	)
}

// declareQueue declares a queue on the given channel
func declareQueue(ch Channel, queue QueueDeclaration) (amqp.Queue, error) {
	return ch.QueueDeclare(
		queue.Name,
		queue.Durable,
		queue.AutoDelete,
		queue.Exclusive,
		false, // no-wait
		queue.Arguments,
	)
}

// bindQueue binds a queue to an exchange on the given channel
func bindQueue(ch Channel, binding Binding) error {
	return ch.QueueBind(
		binding.Queue,
		binding.RoutingKey,
		binding.Exchange,
		false, // no-wait
		binding.Arguments,
	)
}
