package roles

import (
	"log/slog"

	"github.com/glimte/expedition-bus/config"
	"github.com/glimte/expedition-bus/contracts"
	"github.com/glimte/expedition-bus/internal/rabbitmq"
)

// client is the broker plumbing shared by every role
type client struct {
	name      string
	cfg       *config.Config
	routes    contracts.Routes
	manager   *rabbitmq.ConnectionManager
	publisher *rabbitmq.Publisher
	opts      *options
	logger    *slog.Logger
}

func newClient(name string, cfg *config.Config, opts []Option) (*client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := newOptions(opts)

	connOpts := []rabbitmq.ConnectionOption{
		rabbitmq.WithClientName(name),
		rabbitmq.WithExchange(rabbitmq.ExchangeDeclaration{
			Name:    cfg.Broker.Exchange,
			Type:    rabbitmq.ExchangeTopic,
			Durable: true,
		}),
		rabbitmq.WithConnectAttempts(cfg.Broker.ConnectAttempts),
		rabbitmq.WithConnectDelay(cfg.Broker.ConnectDelay),
		rabbitmq.WithLogger(o.logger),
	}
	if o.dialer != nil {
		connOpts = append(connOpts, rabbitmq.WithDialer(o.dialer))
	}
	manager := rabbitmq.NewConnectionManager(cfg.Broker.URL, connOpts...)

	return &client{
		name:      name,
		cfg:       cfg,
		routes:    cfg.Routing,
		manager:   manager,
		publisher: rabbitmq.NewPublisher(manager, rabbitmq.WithPublisherLogger(o.logger)),
		opts:      o,
		logger:    o.logger,
	}, nil
}

// ClientName returns the name the role uses in logs and consumer tags
func (c *client) ClientName() string {
	return c.name
}

// Manager returns the role's connection manager
func (c *client) Manager() *rabbitmq.ConnectionManager {
	return c.manager
}

func (c *client) newWorker(queue string, routingKeys []string, handler rabbitmq.MessageHandler) *rabbitmq.SupervisedConsumer {
	return rabbitmq.NewSupervisedConsumer(c.manager, rabbitmq.DurableQueue(queue), routingKeys, handler,
		rabbitmq.WithIdleTimeout(c.cfg.Broker.IdleTimeout),
		rabbitmq.WithReconnectDelay(c.cfg.Broker.ReconnectDelay),
		rabbitmq.WithConsumerLogger(c.logger),
	)
}
