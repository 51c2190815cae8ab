// Package rabbitmqtest provides an in-memory topic broker that satisfies the
// rabbitmq.Dialer seam, so the coordination protocol can be exercised without
// a running RabbitMQ.
//
// It mimics the broker behavior the protocol relies on: idempotent exchange,
// queue and binding declarations (with PRECONDITION_FAILED on a conflicting
// redeclare), topic routing with "*" and "#", competing consumers on a shared
// queue, requeue of in-flight deliveries when a channel dies, and forced
// connection closure to simulate outages.
package rabbitmqtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/expedition-bus/internal/rabbitmq"
)

const queueCapacity = 4096

// ErrBrokerDown is returned by Dial while the broker is marked unreachable.
var ErrBrokerDown = errors.New("rabbitmqtest: broker unreachable")

// Published records a message accepted by an exchange
type Published struct {
	Exchange   string
	RoutingKey string
	Message    amqp.Publishing
}

// QueueInfo describes a declared queue
type QueueInfo struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Bindings   []string
	Messages   int
}

type exchange struct {
	kind    string
	durable bool
}

type queue struct {
	decl     rabbitmq.QueueDeclaration
	bindings map[string]map[string]struct{} // exchange -> routing keys
	msgs     chan amqp.Delivery
}

// Broker is an in-memory topic broker. The zero value is not usable; call New.
type Broker struct {
	mu        sync.Mutex
	exchanges map[string]exchange
	queues    map[string]*queue
	conns     map[*Conn]struct{}
	published []Published
	down      bool
	dials     int
	acks      int
	tags      uint64
	dropped   int
}

// New creates an empty, reachable broker
func New() *Broker {
	return &Broker{
		exchanges: make(map[string]exchange),
		queues:    make(map[string]*queue),
		conns:     make(map[*Conn]struct{}),
	}
}

var _ rabbitmq.Dialer = New().Dial

// Dial implements rabbitmq.Dialer
func (b *Broker) Dial(url string) (rabbitmq.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.down {
		return nil, fmt.Errorf("dial %s: %w", url, ErrBrokerDown)
	}

	c := &Conn{broker: b}
	b.conns[c] = struct{}{}
	return c, nil
}

// SetDown marks the broker reachable or not. It does not affect connections
// that are already open; combine with CloseAll to simulate an outage.
func (b *Broker) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// Outage makes the broker unreachable for d and force-closes every open
// connection. It returns immediately; the broker recovers on its own.
func (b *Broker) Outage(d time.Duration) {
	b.SetDown(true)
	b.CloseAll()
	time.AfterFunc(d, func() { b.SetDown(false) })
}

// CloseAll force-closes every open connection as the broker would on shutdown.
func (b *Broker) CloseAll() {
	b.mu.Lock()
	conns := make([]*Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.shutdown(&amqp.Error{Code: amqp.ConnectionForced, Reason: "CONNECTION_FORCED - broker forced connection closure", Server: true})
	}
}

// Dials returns how many times Dial was called, successful or not
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// OpenConnections returns the number of connections not yet closed
func (b *Broker) OpenConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Acks returns the number of acknowledged deliveries
func (b *Broker) Acks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks
}

// HasExchange reports whether an exchange of the given kind exists
func (b *Broker) HasExchange(name, kind string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ex, ok := b.exchanges[name]
	return ok && ex.kind == kind
}

// Queue returns a description of the named queue
func (b *Broker) Queue(name string) (QueueInfo, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return QueueInfo{}, false
	}

	var keys []string
	for ex, set := range q.bindings {
		for key := range set {
			keys = append(keys, ex+":"+key)
		}
	}
	sort.Strings(keys)

	return QueueInfo{
		Name:       name,
		Durable:    q.decl.Durable,
		AutoDelete: q.decl.AutoDelete,
		Exclusive:  q.decl.Exclusive,
		Bindings:   keys,
		Messages:   len(q.msgs),
	}, true
}

// Queues returns the sorted names of all declared queues
func (b *Broker) Queues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Published returns every message accepted so far, in order
func (b *Broker) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Published(nil), b.published...)
}

// PublishedTo returns the messages published with routingKey
func (b *Broker) PublishedTo(routingKey string) []Published {
	var out []Published
	for _, p := range b.Published() {
		if p.RoutingKey == routingKey {
			out = append(out, p)
		}
	}
	return out
}

// Inject routes a raw body through exchange as if a client had published it.
func (b *Broker) Inject(exchangeName, routingKey string, body []byte) error {
	return b.publish(exchangeName, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (b *Broker) publish(exchangeName, routingKey string, msg amqp.Publishing) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if exchangeName != "" {
		if _, ok := b.exchanges[exchangeName]; !ok {
			return &amqp.Error{Code: amqp.NotFound, Reason: fmt.Sprintf("NOT_FOUND - no exchange '%s'", exchangeName)}
		}
	}
	b.published = append(b.published, Published{Exchange: exchangeName, RoutingKey: routingKey, Message: msg})

	for _, q := range b.queues {
		if !q.matches(exchangeName, routingKey) {
			continue
		}
		b.tags++
		d := amqp.Delivery{
			Headers:      msg.Headers,
			ContentType:  msg.ContentType,
			DeliveryMode: msg.DeliveryMode,
			MessageId:    msg.MessageId,
			Timestamp:    msg.Timestamp,
			AppId:        msg.AppId,
			DeliveryTag:  b.tags,
			Exchange:     exchangeName,
			RoutingKey:   routingKey,
			Body:         msg.Body,
		}
		select {
		case q.msgs <- d:
		default:
			b.dropped++
		}
	}
	return nil
}

func (q *queue) matches(exchangeName, routingKey string) bool {
	if exchangeName == "" {
		return q.decl.Name == routingKey
	}
	for pattern := range q.bindings[exchangeName] {
		if MatchTopic(pattern, routingKey) {
			return true
		}
	}
	return false
}

// MatchTopic reports whether routingKey matches a topic binding pattern,
// where "*" stands for exactly one word and "#" for zero or more words.
func MatchTopic(pattern, routingKey string) bool {
	var keyWords []string
	if routingKey != "" {
		keyWords = strings.Split(routingKey, ".")
	}
	return matchWords(strings.Split(pattern, "."), keyWords)
}

func matchWords(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	switch pattern[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pattern[1:], key[1:])
	default:
		return len(key) > 0 && pattern[0] == key[0] && matchWords(pattern[1:], key[1:])
	}
}

func (b *Broker) release(c *Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conns, c)
}

// Conn is an in-memory connection
type Conn struct {
	broker *Broker

	mu       sync.Mutex
	closed   bool
	channels []*Chan
	notify   []chan *amqp.Error
}

// Channel implements rabbitmq.Connection
func (c *Conn) Channel() (rabbitmq.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &Chan{conn: c, done: make(chan struct{})}
	c.channels = append(c.channels, ch)
	return ch, nil
}

// NotifyClose implements rabbitmq.Connection
func (c *Conn) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		close(receiver)
		return receiver
	}
	c.notify = append(c.notify, receiver)
	return receiver
}

// IsClosed implements rabbitmq.Connection
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close implements rabbitmq.Connection
func (c *Conn) Close() error {
	if c.IsClosed() {
		return amqp.ErrClosed
	}
	c.shutdown(nil)
	return nil
}

func (c *Conn) shutdown(reason *amqp.Error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	channels, notify := c.channels, c.notify
	c.channels, c.notify = nil, nil
	c.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown(reason)
	}
	signal(notify, reason)
	c.broker.release(c)
}

func signal(receivers []chan *amqp.Error, reason *amqp.Error) {
	for _, r := range receivers {
		if reason != nil {
			select {
			case r <- reason:
			default:
			}
		}
		close(r)
	}
}

// Chan is an in-memory channel
type Chan struct {
	conn *Conn

	mu       sync.Mutex
	closed   bool
	done     chan struct{}
	notify   []chan *amqp.Error
	prefetch int
}

var _ rabbitmq.Channel = (*Chan)(nil)
var _ amqp.Acknowledger = (*Chan)(nil)

// ExchangeDeclare implements rabbitmq.Channel
func (ch *Chan) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	if err := ch.check(); err != nil {
		return err
	}

	b := ch.conn.broker
	b.mu.Lock()
	existing, ok := b.exchanges[name]
	if !ok {
		b.exchanges[name] = exchange{kind: kind, durable: durable}
	}
	b.mu.Unlock()

	if ok && (existing.kind != kind || existing.durable != durable) {
		return ch.fail(&amqp.Error{
			Code:   amqp.PreconditionFailed,
			Reason: fmt.Sprintf("PRECONDITION_FAILED - inequivalent arg for exchange '%s'", name),
		})
	}
	return nil
}

// QueueDeclare implements rabbitmq.Channel
func (ch *Chan) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	if err := ch.check(); err != nil {
		return amqp.Queue{}, err
	}

	decl := rabbitmq.QueueDeclaration{Name: name, Durable: durable, AutoDelete: autoDelete, Exclusive: exclusive}

	b := ch.conn.broker
	b.mu.Lock()
	if decl.Name == "" {
		b.tags++
		decl.Name = fmt.Sprintf("amq.gen-%d", b.tags)
	}
	q, ok := b.queues[decl.Name]
	if !ok {
		q = &queue{
			decl:     decl,
			bindings: make(map[string]map[string]struct{}),
			msgs:     make(chan amqp.Delivery, queueCapacity),
		}
		b.queues[decl.Name] = q
	}
	conflict := ok && (q.decl.Durable != durable || q.decl.AutoDelete != autoDelete || q.decl.Exclusive != exclusive)
	info := amqp.Queue{Name: decl.Name, Messages: len(q.msgs)}
	b.mu.Unlock()

	if conflict {
		return amqp.Queue{}, ch.fail(&amqp.Error{
			Code:   amqp.PreconditionFailed,
			Reason: fmt.Sprintf("PRECONDITION_FAILED - inequivalent arg for queue '%s'", decl.Name),
		})
	}
	return info, nil
}

// QueueBind implements rabbitmq.Channel
func (ch *Chan) QueueBind(name, key, exchangeName string, noWait bool, args amqp.Table) error {
	if err := ch.check(); err != nil {
		return err
	}

	b := ch.conn.broker
	b.mu.Lock()
	q, hasQueue := b.queues[name]
	_, hasExchange := b.exchanges[exchangeName]
	if hasQueue && hasExchange {
		if q.bindings[exchangeName] == nil {
			q.bindings[exchangeName] = make(map[string]struct{})
		}
		q.bindings[exchangeName][key] = struct{}{}
	}
	b.mu.Unlock()

	if !hasQueue || !hasExchange {
		return ch.fail(&amqp.Error{
			Code:   amqp.NotFound,
			Reason: fmt.Sprintf("NOT_FOUND - cannot bind queue '%s' to exchange '%s'", name, exchangeName),
		})
	}
	return nil
}

// Qos implements rabbitmq.Channel
func (ch *Chan) Qos(prefetchCount, prefetchSize int, global bool) error {
	if err := ch.check(); err != nil {
		return err
	}
	ch.mu.Lock()
	ch.prefetch = prefetchCount
	ch.mu.Unlock()
	return nil
}

// Prefetch returns the last prefetch count set with Qos
func (ch *Chan) Prefetch() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.prefetch
}

// Consume implements rabbitmq.Channel. Each consumer pulls from the shared
// queue buffer, so several consumers on one queue compete for messages.
func (ch *Chan) Consume(queueName, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if err := ch.check(); err != nil {
		return nil, err
	}

	b := ch.conn.broker
	b.mu.Lock()
	q, ok := b.queues[queueName]
	b.mu.Unlock()
	if !ok {
		return nil, ch.fail(&amqp.Error{
			Code:   amqp.NotFound,
			Reason: fmt.Sprintf("NOT_FOUND - no queue '%s'", queueName),
		})
	}

	out := make(chan amqp.Delivery)
	go ch.forward(q, out)
	return out, nil
}

func (ch *Chan) forward(q *queue, out chan<- amqp.Delivery) {
	defer close(out)
	for {
		select {
		case <-ch.done:
			return
		case d := <-q.msgs:
			d.Acknowledger = ch
			select {
			case out <- d:
			case <-ch.done:
				d.Redelivered = true
				select {
				case q.msgs <- d:
				default:
				}
				return
			}
		}
	}
}

// PublishWithContext implements rabbitmq.Channel
func (ch *Chan) PublishWithContext(ctx context.Context, exchangeName, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if err := ch.check(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ch.conn.broker.publish(exchangeName, key, msg); err != nil {
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) {
			return ch.fail(amqpErr)
		}
		return err
	}
	return nil
}

// NotifyClose implements rabbitmq.Channel
func (ch *Chan) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		close(receiver)
		return receiver
	}
	ch.notify = append(ch.notify, receiver)
	return receiver
}

// IsClosed implements rabbitmq.Channel
func (ch *Chan) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// Close implements rabbitmq.Channel
func (ch *Chan) Close() error {
	if ch.IsClosed() {
		return amqp.ErrClosed
	}
	ch.shutdown(nil)
	return nil
}

// Ack implements amqp.Acknowledger
func (ch *Chan) Ack(tag uint64, multiple bool) error {
	if err := ch.check(); err != nil {
		return err
	}
	b := ch.conn.broker
	b.mu.Lock()
	b.acks++
	b.mu.Unlock()
	return nil
}

// Nack implements amqp.Acknowledger
func (ch *Chan) Nack(tag uint64, multiple bool, requeue bool) error {
	return ch.check()
}

// Reject implements amqp.Acknowledger
func (ch *Chan) Reject(tag uint64, requeue bool) error {
	return ch.check()
}

func (ch *Chan) check() error {
	if ch.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

// fail closes the channel with reason, as the broker does on a channel-level
// exception, and returns reason.
func (ch *Chan) fail(reason *amqp.Error) error {
	ch.shutdown(reason)
	return reason
}

func (ch *Chan) shutdown(reason *amqp.Error) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	notify := ch.notify
	ch.notify = nil
	close(ch.done)
	ch.mu.Unlock()

	signal(notify, reason)
}
