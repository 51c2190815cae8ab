package roles

import (
	"context"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/expedition-bus/config"
	"github.com/glimte/expedition-bus/contracts"
	"github.com/glimte/expedition-bus/internal/rabbitmq"
)

// Administrator broadcasts to the other roles and monitors every message on
// the exchange.
type Administrator struct {
	*client
	monitor workerGroup
}

// NewAdministrator creates the administrator role
func NewAdministrator(cfg *config.Config, opts ...Option) (*Administrator, error) {
	c, err := newClient("admin", cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Administrator{client: c}, nil
}

// BroadcastToTeams sends content to every team
func (a *Administrator) BroadcastToTeams(ctx context.Context, content string) error {
	return a.Broadcast(ctx, contracts.ToTeams, content)
}

// BroadcastToSuppliers sends content to every supplier
func (a *Administrator) BroadcastToSuppliers(ctx context.Context, content string) error {
	return a.Broadcast(ctx, contracts.ToSuppliers, content)
}

// BroadcastToAll sends content to every team and supplier
func (a *Administrator) BroadcastToAll(ctx context.Context, content string) error {
	return a.Broadcast(ctx, contracts.ToAll, content)
}

// Broadcast publishes content to audience over a short-lived connection
func (a *Administrator) Broadcast(ctx context.Context, audience contracts.BroadcastType, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}

	routingKey, err := a.routes.BroadcastKey(audience)
	if err != nil {
		return err
	}

	msg := contracts.NewBroadcast(audience, content, a.opts.now())
	if err := a.publisher.PublishOnce(ctx, routingKey, msg); err != nil {
		a.logger.Error("broadcast failed",
			"client", a.name,
			"audience", audience,
			"error", err)
		return err
	}

	a.logger.Info("broadcast sent",
		"client", a.name,
		"audience", audience,
		"routingKey", routingKey)
	return nil
}

// StartMonitoring starts the monitor worker. Calling it while the monitor is
// running does nothing.
func (a *Administrator) StartMonitoring(ctx context.Context) error {
	if a.monitor.running() {
		a.logger.Info("monitor already running", "client", a.name)
		return nil
	}

	worker := a.newWorker(a.routes.MonitorQueue, []string{a.routes.MonitorBinding}, a.handleMonitored)
	return a.monitor.start(ctx, worker)
}

// StopMonitoring stops the monitor worker, waiting up to timeout
func (a *Administrator) StopMonitoring(timeout time.Duration) error {
	return a.stopWorkers(&a.monitor, timeout)
}

// Workers returns the monitor worker, if started
func (a *Administrator) Workers() []*rabbitmq.SupervisedConsumer {
	return a.monitor.snapshot()
}

func (a *Administrator) handleMonitored(_ context.Context, _ rabbitmq.Channel, delivery amqp.Delivery) error {
	msg := MonitoredMessage{RoutingKey: delivery.RoutingKey, Raw: delivery.Body}

	fields, err := contracts.DecodeMap(delivery.Body)
	if err != nil {
		a.logger.Info("monitored raw message",
			"client", a.name,
			"routingKey", delivery.RoutingKey,
			"body", string(delivery.Body))
	} else {
		msg.Fields = fields
		a.logger.Info("monitored message",
			"client", a.name,
			"routingKey", delivery.RoutingKey,
			"message", fields)
	}

	if a.opts.onMonitored != nil {
		a.opts.onMonitored(msg)
	}
	return nil
}
