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

// Team orders equipment and listens for confirmations and broadcasts on its
// own queue.
type Team struct {
	*client
	teamName string
	listener workerGroup
}

// NewTeam creates the team role for name
func NewTeam(name string, cfg *config.Config, opts ...Option) (*Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	c, err := newClient("team_"+name, cfg, opts)
	if err != nil {
		return nil, err
	}
	return &Team{client: c, teamName: name}, nil
}

// Name returns the team name
func (t *Team) Name() string {
	return t.teamName
}

// Queue returns the team's private queue
func (t *Team) Queue() string {
	return contracts.TeamQueue(t.teamName)
}

// ReplyKey returns the routing key suppliers answer this team on
func (t *Team) ReplyKey() string {
	return t.routes.ConfirmationKey(t.teamName)
}

// SendOrder publishes an order for equipmentType and returns its id at once.
// The confirmation, if any, arrives later on the team queue and carries the
// same id.
func (t *Team) SendOrder(ctx context.Context, equipmentType string) (string, error) {
	equipmentType = strings.TrimSpace(equipmentType)
	if equipmentType == "" {
		return "", ErrEmptyEquipmentType
	}
	if !t.cfg.IsKnownEquipment(equipmentType) {
		t.logger.Warn("no supplier queue exists for equipment type",
			"client", t.name,
			"equipmentType", equipmentType)
	}

	order := contracts.NewOrder(t.teamName, equipmentType, t.ReplyKey())
	routingKey := t.routes.OrderKey(equipmentType)

	if err := t.publisher.PublishOnce(ctx, routingKey, order); err != nil {
		t.logger.Error("order not sent",
			"client", t.name,
			"equipmentType", equipmentType,
			"error", err)
		return "", err
	}

	t.logger.Info("order sent",
		"client", t.name,
		"teamOrderId", order.TeamOrderID,
		"equipmentType", equipmentType,
		"routingKey", routingKey)
	return order.TeamOrderID, nil
}

// StartListening starts the team's worker. Calling it while the worker is
// running does nothing.
func (t *Team) StartListening(ctx context.Context) error {
	if t.listener.running() {
		t.logger.Info("already listening", "client", t.name)
		return nil
	}

	worker := t.newWorker(t.Queue(), t.routes.TeamBindings(t.teamName), t.handle)
	return t.listener.start(ctx, worker)
}

// StopListening stops the team's worker, waiting up to timeout
func (t *Team) StopListening(timeout time.Duration) error {
	return t.stopWorkers(&t.listener, timeout)
}

// Workers returns the team's worker, if started
func (t *Team) Workers() []*rabbitmq.SupervisedConsumer {
	return t.listener.snapshot()
}

func (t *Team) handle(_ context.Context, _ rabbitmq.Channel, delivery amqp.Delivery) error {
	msg, err := contracts.Decode(delivery.Body)
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *contracts.Confirmation:
		t.logger.Info("confirmation received",
			"client", t.name,
			"teamOrderId", m.TeamOrderID,
			"equipmentType", m.EquipmentType,
			"supplier", m.SupplierName,
			"supplierOrderId", m.SupplierOrderID)
		if t.opts.onConfirmation != nil {
			t.opts.onConfirmation(*m)
		}

	case *contracts.Broadcast:
		t.logger.Info("broadcast received",
			"client", t.name,
			"routingKey", delivery.RoutingKey,
			"type", m.Type,
			"content", m.Content)
		if t.opts.onBroadcast != nil {
			t.opts.onBroadcast(*m)
		}

	default:
		t.logger.Info("message received",
			"client", t.name,
			"routingKey", delivery.RoutingKey,
			"kind", msg.Kind().String())
	}
	return nil
}
