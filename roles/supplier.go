package roles

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/expedition-bus/config"
	"github.com/glimte/expedition-bus/contracts"
	"github.com/glimte/expedition-bus/internal/rabbitmq"
)

// Supplier serves orders for the equipment types it is configured for.
// Suppliers with a common equipment type compete for the same order queue.
type Supplier struct {
	*client
	supplierName string
	capabilities config.CapabilitySet
	workers      workerGroup
}

// NewSupplier creates the supplier role for name. Its capabilities come from
// the supplier table of cfg; an entry naming an unknown equipment type is an
// error, a missing entry leaves the supplier serving only broadcasts. A name
// found in the table takes the table's spelling.
func NewSupplier(name string, cfg *config.Config, opts ...Option) (*Supplier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if canonical, ok := cfg.SupplierName(name); ok {
		name = canonical
	}

	c, err := newClient("supplier_"+name, cfg, opts)
	if err != nil {
		return nil, err
	}

	capabilities, _, err := c.cfg.Capabilities(name)
	if err != nil {
		return nil, err
	}
	if len(capabilities) == 0 {
		c.logger.Warn("supplier has no capabilities configured", "client", c.name)
	}

	return &Supplier{client: c, supplierName: name, capabilities: capabilities}, nil
}

// Name returns the supplier name
func (s *Supplier) Name() string {
	return s.supplierName
}

// Capabilities returns the equipment types the supplier serves
func (s *Supplier) Capabilities() config.CapabilitySet {
	return append(config.CapabilitySet(nil), s.capabilities...)
}

// AdminQueue returns the supplier's private broadcast queue
func (s *Supplier) AdminQueue() string {
	return contracts.SupplierAdminQueue(s.supplierName)
}

// Start declares the shared topology once and then launches one worker per
// capability plus one for the admin queue. A failed initial declaration is
// logged and does not prevent the workers from starting; each of them
// declares its own queue again on every connect. Calling Start while the
// workers are running does nothing.
func (s *Supplier) Start(ctx context.Context) error {
	if s.workers.running() {
		s.logger.Info("supplier already running", "client", s.name)
		return nil
	}

	s.logger.Info("supplier starting",
		"client", s.name,
		"capabilities", []string(s.capabilities))

	if err := s.setupTopology(ctx); err != nil {
		s.logger.Error("initial topology setup failed, supplier may not work correctly",
			"client", s.name,
			"error", err)
	}

	workers := make([]*rabbitmq.SupervisedConsumer, 0, len(s.capabilities)+1)
	for _, equipmentType := range s.capabilities {
		workers = append(workers, s.newWorker(
			contracts.OrderQueue(equipmentType),
			[]string{s.routes.OrderKey(equipmentType)},
			s.handleOrder,
		))
	}
	workers = append(workers, s.newWorker(s.AdminQueue(), s.routes.SupplierAdminBindings(), s.handleAdmin))

	if err := s.workers.start(ctx, workers...); err != nil {
		return err
	}

	s.logger.Info("supplier workers started", "client", s.name, "workers", len(workers))
	return nil
}

// Stop stops every worker, waiting up to timeout for each
func (s *Supplier) Stop(timeout time.Duration) error {
	return s.stopWorkers(&s.workers, timeout)
}

// Workers returns the supplier's workers, if started
func (s *Supplier) Workers() []*rabbitmq.SupervisedConsumer {
	return s.workers.snapshot()
}

// setupTopology declares the order queue of every known equipment type and
// the supplier's admin queue on one short-lived channel.
func (s *Supplier) setupTopology(ctx context.Context) error {
	topology := rabbitmq.NewTopologyManager(s.manager.Exchange(), rabbitmq.WithTopologyLogger(s.logger))

	return s.manager.WithChannel(ctx, func(ch rabbitmq.Channel) error {
		for _, equipmentType := range s.cfg.EquipmentTypes {
			queue := rabbitmq.DurableQueue(contracts.OrderQueue(equipmentType))
			if _, err := topology.DeclareAndBind(ch, queue, s.routes.OrderKey(equipmentType)); err != nil {
				return err
			}
		}

		_, err := topology.DeclareAndBind(ch, rabbitmq.DurableQueue(s.AdminQueue()), s.routes.SupplierAdminBindings()...)
		return err
	})
}

// handleOrder confirms an order back to the team on the worker's own channel.
// Orders are not de-duplicated; a redelivered order is confirmed again.
func (s *Supplier) handleOrder(ctx context.Context, ch rabbitmq.Channel, delivery amqp.Delivery) error {
	order, err := contracts.DecodeOrder(delivery.Body)
	if err != nil {
		return err
	}

	s.logger.Info("order received",
		"client", s.name,
		"routingKey", delivery.RoutingKey,
		"team", order.TeamName,
		"teamOrderId", order.TeamOrderID,
		"equipmentType", order.EquipmentType)

	if order.ReplyRoutingKey == "" {
		return fmt.Errorf("%w: order %s from team %s", ErrMissingReplyRoute, order.TeamOrderID, order.TeamName)
	}

	confirmation := order.Confirm(s.supplierName)
	if err := s.publisher.Publish(ctx, ch, order.ReplyRoutingKey, confirmation); err != nil {
		return err
	}

	s.logger.Info("confirmation sent",
		"client", s.name,
		"teamOrderId", order.TeamOrderID,
		"supplierOrderId", confirmation.SupplierOrderID,
		"routingKey", order.ReplyRoutingKey)
	return nil
}

func (s *Supplier) handleAdmin(_ context.Context, _ rabbitmq.Channel, delivery amqp.Delivery) error {
	broadcast, err := contracts.DecodeBroadcast(delivery.Body)
	if err != nil {
		return err
	}

	s.logger.Info("broadcast received",
		"client", s.name,
		"routingKey", delivery.RoutingKey,
		"type", broadcast.Type,
		"content", broadcast.Content)
	if s.opts.onBroadcast != nil {
		s.opts.onBroadcast(broadcast)
	}
	return nil
}
