package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/expedition-bus/internal/reliability"
)

// MessageHandler processes one delivery. ch is the consumer's own channel and
// may be used to publish replies; it must not be retained after return.
type MessageHandler func(ctx context.Context, ch Channel, delivery amqp.Delivery) error

// ConsumerState is a step of the supervision loop
type ConsumerState int32

const (
	StateStopped ConsumerState = iota
	StateConnecting
	StateDeclaring
	StateConsuming
	StateReconnecting
	StateDraining
)

func (s ConsumerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateDeclaring:
		return "declaring"
	case StateConsuming:
		return "consuming"
	case StateReconnecting:
		return "reconnecting"
	case StateDraining:
		return "draining"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ConsumerStats is a snapshot of a consumer's counters
type ConsumerStats struct {
	Queue      string
	State      ConsumerState
	Delivered  int64
	Failed     int64
	Reconnects int64
}

// SupervisedConsumer owns one queue and keeps consuming it across broker
// outages. Each (re)connection gets a fresh connection and channel that no
// other goroutine touches.
type SupervisedConsumer struct {
	manager     *ConnectionManager
	topology    *TopologyManager
	queue       QueueDeclaration
	routingKeys []string
	handler     MessageHandler
	consumerTag string

	prefetchCount int
	idleTimeout   time.Duration
	policy        reliability.RetryPolicy
	logger        *slog.Logger

	state      atomic.Int32
	delivered  atomic.Int64
	failed     atomic.Int64
	reconnects atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SupervisedConsumerOption configures a SupervisedConsumer
type SupervisedConsumerOption func(*SupervisedConsumer)

// WithPrefetchCount sets the number of unacknowledged deliveries in flight
func WithPrefetchCount(count int) SupervisedConsumerOption {
	return func(c *SupervisedConsumer) {
		c.prefetchCount = count
	}
}

// WithIdleTimeout sets how long the consumer waits for a delivery before it
// checks its channel and stop signal again
func WithIdleTimeout(timeout time.Duration) SupervisedConsumerOption {
	return func(c *SupervisedConsumer) {
		c.idleTimeout = timeout
	}
}

// WithReconnectDelay sets a fixed, unbounded reconnect backoff
func WithReconnectDelay(delay time.Duration) SupervisedConsumerOption {
	return func(c *SupervisedConsumer) {
		c.policy = reliability.NewFixedDelay(delay, reliability.Unbounded)
	}
}

// WithReconnectPolicy replaces the reconnect backoff policy
func WithReconnectPolicy(policy reliability.RetryPolicy) SupervisedConsumerOption {
	return func(c *SupervisedConsumer) {
		c.policy = policy
	}
}

// WithConsumerTag sets the consumer tag
func WithConsumerTag(tag string) SupervisedConsumerOption {
	return func(c *SupervisedConsumer) {
		c.consumerTag = tag
	}
}

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *slog.Logger) SupervisedConsumerOption {
	return func(c *SupervisedConsumer) {
		c.logger = logger
	}
}

// NewSupervisedConsumer creates a consumer for queue, bound to routingKeys on
// the manager's exchange.
func NewSupervisedConsumer(
	manager *ConnectionManager,
	queue QueueDeclaration,
	routingKeys []string,
	handler MessageHandler,
	options ...SupervisedConsumerOption,
) *SupervisedConsumer {
	c := &SupervisedConsumer{
		manager:       manager,
		queue:         queue,
		routingKeys:   append([]string(nil), routingKeys...),
		handler:       handler,
		consumerTag:   fmt.Sprintf("%s_consumer_%s", manager.Name(), queue.Name),
		prefetchCount: 1,
		idleTimeout:   time.Second,
		policy:        reliability.NewFixedDelay(5*time.Second, reliability.Unbounded),
		logger:        slog.Default(),
	}

	for _, opt := range options {
		opt(c)
	}

	c.topology = NewTopologyManager(manager.Exchange(), WithTopologyLogger(c.logger))
	return c
}

// Queue returns the consumed queue name
func (c *SupervisedConsumer) Queue() string {
	return c.queue.Name
}

// State returns the current supervision state
func (c *SupervisedConsumer) State() ConsumerState {
	return ConsumerState(c.state.Load())
}

// Stats returns a snapshot of the consumer's counters
func (c *SupervisedConsumer) Stats() ConsumerStats {
	return ConsumerStats{
		Queue:      c.queue.Name,
		State:      c.State(),
		Delivered:  c.delivered.Load(),
		Failed:     c.failed.Load(),
		Reconnects: c.reconnects.Load(),
	}
}

// Start launches the supervision loop in its own goroutine. The loop ends
// when ctx is cancelled or Stop is called.
func (c *SupervisedConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		select {
		case <-c.done:
		default:
			return ErrAlreadyRunning
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setState(StateConnecting)

	go c.run(runCtx, c.done)

	c.logger.Info("consumer started",
		"client", c.manager.Name(),
		"queue", c.queue.Name)
	return nil
}

// Done is closed once the supervision loop has exited. It is nil before Start.
func (c *SupervisedConsumer) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Stop raises the stop signal and waits up to timeout for the loop to exit.
// The loop is never forced; on timeout ErrStopTimeout is returned and the
// goroutine keeps winding down on its own.
func (c *SupervisedConsumer) Stop(timeout time.Duration) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		c.logger.Warn("consumer did not stop in time",
			"client", c.manager.Name(),
			"queue", c.queue.Name,
			"timeout", timeout,
			"state", c.State().String())
		return &ConsumerError{
			Queue:       c.queue.Name,
			ConsumerTag: c.consumerTag,
			Op:          "stop",
			Err:         ErrStopTimeout,
			Timestamp:   time.Now(),
		}
	}
}

func (c *SupervisedConsumer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		c.setState(StateStopped)
		c.logger.Info("consumer stopped",
			"client", c.manager.Name(),
			"queue", c.queue.Name)
	}()

	attempt := 0
	for ctx.Err() == nil {
		consumed, err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if consumed {
			attempt = 0
		}

		c.setState(StateReconnecting)
		c.reconnects.Add(1)

		retry, delay := c.policy.ShouldRetry(attempt, err)
		if !retry {
			c.logger.Error("consumer giving up",
				"client", c.manager.Name(),
				"queue", c.queue.Name,
				"attempts", attempt+1,
				"error", err)
			return
		}
		attempt++

		c.logger.Warn("consumer interrupted, reconnecting",
			"client", c.manager.Name(),
			"queue", c.queue.Name,
			"retryIn", delay,
			"error", err)

		if reliability.Sleep(ctx, delay) != nil {
			return
		}
	}
}

// session runs one connect/declare/consume cycle. It returns nil only when
// the stop signal ended it, and reports whether consuming was reached.
func (c *SupervisedConsumer) session(ctx context.Context) (bool, error) {
	c.setState(StateConnecting)
	conn, ch, err := c.manager.Connect(ctx)
	if err != nil {
		return false, err
	}
	defer closeQuietly(ch, conn)

	c.setState(StateDeclaring)
	if _, err := c.topology.DeclareAndBind(ch, c.queue, c.routingKeys...); err != nil {
		return false, err
	}

	if err := ch.Qos(c.prefetchCount, 0, false); err != nil {
		return false, &ChannelError{Op: "qos", ChannelID: c.consumerTag, Err: err, Timestamp: time.Now()}
	}

	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	deliveries, err := ch.Consume(
		c.queue.Name,
		c.consumerTag,
		false, // auto-ack; deliveries are acked by hand on receipt
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return false, c.consumerError("consume", err)
	}

	c.setState(StateConsuming)
	c.logger.Info("consuming",
		"client", c.manager.Name(),
		"queue", c.queue.Name,
		"routingKeys", c.routingKeys,
		"prefetchCount", c.prefetchCount)

	for {
		select {
		case <-ctx.Done():
			c.setState(StateDraining)
			c.logger.Info("stop signal received",
				"client", c.manager.Name(),
				"queue", c.queue.Name)
			return true, nil

		case amqpErr, ok := <-closed:
			if !ok || amqpErr == nil {
				return true, c.consumerError("consume", ErrChannelClosed)
			}
			return true, c.consumerError("consume", amqpErr)

		case delivery, ok := <-deliveries:
			if !ok {
				return true, c.consumerError("consume", ErrDeliveriesClosed)
			}
			if err := c.dispatch(ctx, ch, delivery); err != nil {
				return true, err
			}

		case <-time.After(c.idleTimeout):
			if ch.IsClosed() || conn.IsClosed() {
				return true, c.consumerError("consume", ErrConnectionClosed)
			}
		}
	}
}

// dispatch acknowledges delivery and then hands it to the handler. Acking
// first means a crash inside the handler loses the message instead of
// redelivering it. Handler failures are logged and never end the session.
func (c *SupervisedConsumer) dispatch(ctx context.Context, ch Channel, delivery amqp.Delivery) error {
	if err := delivery.Ack(false); err != nil {
		return c.consumerError("ack", err)
	}
	c.delivered.Add(1)

	if err := c.handler(ctx, ch, delivery); err != nil {
		c.failed.Add(1)
		c.logger.Error("message handler failed",
			"client", c.manager.Name(),
			"queue", c.queue.Name,
			"routingKey", delivery.RoutingKey,
			"error", err)
	}
	return nil
}

func (c *SupervisedConsumer) setState(state ConsumerState) {
	prev := ConsumerState(c.state.Swap(int32(state)))
	if prev != state {
		c.logger.Debug("consumer state changed",
			"queue", c.queue.Name,
			"from", prev.String(),
			"to", state.String())
	}
}

func (c *SupervisedConsumer) consumerError(op string, err error) error {
	return &ConsumerError{
		Queue:       c.queue.Name,
		ConsumerTag: c.consumerTag,
		Op:          op,
		Err:         err,
		Timestamp:   time.Now(),
	}
}
