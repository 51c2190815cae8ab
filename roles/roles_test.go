package roles

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/expedition-bus/config"
	"github.com/glimte/expedition-bus/contracts"
	"github.com/glimte/expedition-bus/internal/rabbitmq"
	"github.com/glimte/expedition-bus/internal/rabbitmq/rabbitmqtest"
)

const waitFor = 2 * time.Second

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Broker.ConnectAttempts = 3
	cfg.Broker.ConnectDelay = 5 * time.Millisecond
	cfg.Broker.ReconnectDelay = 20 * time.Millisecond
	cfg.Broker.IdleTimeout = 10 * time.Millisecond
	return cfg
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseOptions(broker *rabbitmqtest.Broker, extra ...Option) []Option {
	return append([]Option{WithDialer(broker.Dial), WithLogger(quiet())}, extra...)
}

// collector gathers values delivered on worker goroutines
type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, v)
}

func (c *collector[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func (c *collector[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func waitConsuming(t *testing.T, workers ...*rabbitmq.SupervisedConsumer) {
	t.Helper()
	require.NotEmpty(t, workers)
	require.Eventually(t, func() bool {
		for _, w := range workers {
			if w.State() != rabbitmq.StateConsuming {
				return false
			}
		}
		return true
	}, waitFor, 5*time.Millisecond)
}

func startTeam(t *testing.T, broker *rabbitmqtest.Broker, name string, opts ...Option) *Team {
	t.Helper()
	team, err := NewTeam(name, testConfig(), baseOptions(broker, opts...)...)
	require.NoError(t, err)
	require.NoError(t, team.StartListening(context.Background()))
	t.Cleanup(func() { _ = team.StopListening(time.Second) })
	waitConsuming(t, team.Workers()...)
	return team
}

func startSupplier(t *testing.T, broker *rabbitmqtest.Broker, name string, opts ...Option) *Supplier {
	t.Helper()
	supplier, err := NewSupplier(name, testConfig(), baseOptions(broker, opts...)...)
	require.NoError(t, err)
	require.NoError(t, supplier.Start(context.Background()))
	t.Cleanup(func() { _ = supplier.Stop(time.Second) })
	waitConsuming(t, supplier.Workers()...)
	return supplier
}

func startAdmin(t *testing.T, broker *rabbitmqtest.Broker, opts ...Option) *Administrator {
	t.Helper()
	admin, err := NewAdministrator(testConfig(), baseOptions(broker, opts...)...)
	require.NoError(t, err)
	require.NoError(t, admin.StartMonitoring(context.Background()))
	t.Cleanup(func() { _ = admin.StopMonitoring(time.Second) })
	waitConsuming(t, admin.Workers()...)
	return admin
}

func failedDeliveries(workers []*rabbitmq.SupervisedConsumer, queue string) int64 {
	for _, w := range workers {
		if w.Queue() == queue {
			return w.Stats().Failed
		}
	}
	return -1
}

func confirmationsPublished(broker *rabbitmqtest.Broker) int {
	n := 0
	for _, p := range broker.Published() {
		if strings.HasPrefix(p.RoutingKey, "confirmations.") {
			n++
		}
	}
	return n
}

func TestOrderIsConfirmedToTheOrderingTeam(t *testing.T) {
	broker := rabbitmqtest.New()
	confirmations := &collector[contracts.Confirmation]{}

	startSupplier(t, broker, "Dostawca1")
	team := startTeam(t, broker, "Alfa", WithConfirmationHandler(confirmations.add))

	id, err := team.SendOrder(context.Background(), "tlen")
	require.NoError(t, err)

	orders := broker.PublishedTo("orders.tlen")
	require.Len(t, orders, 1)
	order, err := contracts.DecodeOrder(orders[0].Message.Body)
	require.NoError(t, err)
	assert.Equal(t, id, order.TeamOrderID)
	assert.Equal(t, "tlen", order.EquipmentType)
	assert.Equal(t, "confirmations.to_team.Alfa", order.ReplyRoutingKey)

	require.Eventually(t, func() bool { return confirmations.len() == 1 }, waitFor, 5*time.Millisecond)
	got := confirmations.all()[0]
	assert.Equal(t, id, got.TeamOrderID)
	assert.Equal(t, "Alfa", got.TeamName)
	assert.Equal(t, "Dostawca1", got.SupplierName)
	assert.Equal(t, contracts.StatusConfirmed, got.Status)
	assert.Len(t, broker.PublishedTo("confirmations.to_team.Alfa"), 1)
}

func TestBroadcastToAllReachesEveryone(t *testing.T) {
	broker := rabbitmqtest.New()
	teamBroadcasts := map[string]*collector[contracts.Broadcast]{}
	supplierBroadcasts := map[string]*collector[contracts.Broadcast]{}
	monitored := &collector[MonitoredMessage]{}

	now := time.Unix(1700000000, 0)
	admin := startAdmin(t, broker, WithMonitorHandler(monitored.add), WithClock(func() time.Time { return now }))
	for _, name := range []string{"Alfa", "Beta"} {
		teamBroadcasts[name] = &collector[contracts.Broadcast]{}
		startTeam(t, broker, name, WithBroadcastHandler(teamBroadcasts[name].add))
	}
	for _, name := range []string{"Dostawca1", "Dostawca2"} {
		supplierBroadcasts[name] = &collector[contracts.Broadcast]{}
		startSupplier(t, broker, name, WithBroadcastHandler(supplierBroadcasts[name].add))
	}

	require.NoError(t, admin.BroadcastToAll(context.Background(), "Ewakuacja!"))

	for name, c := range teamBroadcasts {
		require.Eventually(t, func() bool { return c.len() == 1 }, waitFor, 5*time.Millisecond, name)
		b := c.all()[0]
		assert.Equal(t, "Ewakuacja!", b.Content)
		assert.Equal(t, contracts.ToAll, b.Type)
		assert.Equal(t, contracts.AdminSender, b.Sender)
		assert.Equal(t, float64(1700000000), b.Timestamp)
	}
	for name, c := range supplierBroadcasts {
		require.Eventually(t, func() bool { return c.len() == 1 }, waitFor, 5*time.Millisecond, name)
	}
	require.Eventually(t, func() bool { return monitored.len() == 1 }, waitFor, 5*time.Millisecond)

	m := monitored.all()[0]
	assert.Equal(t, "admin.broadcast.all", m.RoutingKey)
	assert.Equal(t, "Ewakuacja!", m.Fields["content"])
	// one connection per worker: monitor, two teams, two suppliers with three each
	assert.Equal(t, 9, broker.OpenConnections(), "broadcast connection was released")
}

func TestBroadcastToTeamsIsScoped(t *testing.T) {
	broker := rabbitmqtest.New()
	teamBroadcasts := &collector[contracts.Broadcast]{}
	supplierBroadcasts := &collector[contracts.Broadcast]{}
	monitored := &collector[MonitoredMessage]{}

	admin := startAdmin(t, broker, WithMonitorHandler(monitored.add))
	startTeam(t, broker, "Alfa", WithBroadcastHandler(teamBroadcasts.add))
	startTeam(t, broker, "Beta", WithBroadcastHandler(teamBroadcasts.add))
	supplier := startSupplier(t, broker, "Dostawca1", WithBroadcastHandler(supplierBroadcasts.add))

	require.NoError(t, admin.BroadcastToTeams(context.Background(), "zbiórka o 6"))

	require.Eventually(t, func() bool { return teamBroadcasts.len() == 2 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return monitored.len() == 1 }, waitFor, 5*time.Millisecond)

	// give any misrouted copy time to arrive
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, supplierBroadcasts.len())
	for _, w := range supplier.Workers() {
		assert.Zero(t, w.Stats().Delivered, w.Queue())
	}
}

func TestEveryConfirmationBelongsToTheTeam(t *testing.T) {
	broker := rabbitmqtest.New()
	alfa := &collector[contracts.Confirmation]{}
	beta := &collector[contracts.Confirmation]{}

	startSupplier(t, broker, "Dostawca1")
	startSupplier(t, broker, "Dostawca2")
	teamAlfa := startTeam(t, broker, "Alfa", WithConfirmationHandler(alfa.add))
	teamBeta := startTeam(t, broker, "Beta", WithConfirmationHandler(beta.add))

	sent := map[string]bool{}
	for _, equipmentType := range []string{"tlen", "buty", "plecak", "tlen", "tlen"} {
		id, err := teamAlfa.SendOrder(context.Background(), equipmentType)
		require.NoError(t, err)
		assert.False(t, sent[id], "order ids are unique")
		sent[id] = true
	}
	betaID, err := teamBeta.SendOrder(context.Background(), "buty")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return alfa.len() == 5 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return beta.len() == 1 }, waitFor, 5*time.Millisecond)

	for _, c := range alfa.all() {
		assert.True(t, sent[c.TeamOrderID], "confirmation for unknown order %s", c.TeamOrderID)
		assert.Equal(t, "Alfa", c.TeamName)
	}
	assert.Equal(t, betaID, beta.all()[0].TeamOrderID)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5, alfa.len(), "each order is confirmed by exactly one supplier")
}

func TestSupplierResumesAfterConnectionLoss(t *testing.T) {
	broker := rabbitmqtest.New()
	confirmations := &collector[contracts.Confirmation]{}

	supplier := startSupplier(t, broker, "Dostawca1")
	team := startTeam(t, broker, "Alfa", WithConfirmationHandler(confirmations.add))

	broker.CloseAll()

	require.Eventually(t, func() bool {
		for _, w := range append(supplier.Workers(), team.Workers()...) {
			if w.Stats().Reconnects == 0 || w.State() != rabbitmq.StateConsuming {
				return false
			}
		}
		return true
	}, waitFor, 5*time.Millisecond)

	id, err := team.SendOrder(context.Background(), "buty")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return confirmations.len() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, id, confirmations.all()[0].TeamOrderID)
}

func TestSupplierSurvivesUndecodableOrder(t *testing.T) {
	broker := rabbitmqtest.New()
	confirmations := &collector[contracts.Confirmation]{}

	supplier := startSupplier(t, broker, "Dostawca1")
	team := startTeam(t, broker, "Alfa", WithConfirmationHandler(confirmations.add))

	require.NoError(t, broker.Inject("system_bus", "orders.tlen", []byte("to nie jest JSON")))
	id, err := team.SendOrder(context.Background(), "tlen")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return confirmations.len() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, id, confirmations.all()[0].TeamOrderID)
	assert.Equal(t, int64(1), failedDeliveries(supplier.Workers(), "q_orders_tlen"))
}

func TestOrderWithoutReplyKeyIsDropped(t *testing.T) {
	broker := rabbitmqtest.New()
	supplier := startSupplier(t, broker, "Dostawca1")

	require.NoError(t, broker.Inject("system_bus", "orders.buty",
		[]byte(`{"team_name":"Alfa","team_order_id":"o-1","equipment_type":"buty"}`)))

	require.Eventually(t, func() bool {
		return failedDeliveries(supplier.Workers(), "q_orders_buty") == 1
	}, waitFor, 5*time.Millisecond)
	assert.Zero(t, confirmationsPublished(broker))
}

func TestSupplierRedeliveryIsConfirmedTwice(t *testing.T) {
	broker := rabbitmqtest.New()
	startSupplier(t, broker, "Dostawca2")

	body := []byte(`{"team_name":"Alfa","team_order_id":"o-1","equipment_type":"plecak","reply_to_rk":"confirmations.to_team.Alfa"}`)
	require.NoError(t, broker.Inject("system_bus", "orders.plecak", body))
	require.NoError(t, broker.Inject("system_bus", "orders.plecak", body))

	require.Eventually(t, func() bool { return confirmationsPublished(broker) == 2 }, waitFor, 5*time.Millisecond)

	first, err := contracts.DecodeConfirmation(broker.PublishedTo("confirmations.to_team.Alfa")[0].Message.Body)
	require.NoError(t, err)
	second, err := contracts.DecodeConfirmation(broker.PublishedTo("confirmations.to_team.Alfa")[1].Message.Body)
	require.NoError(t, err)
	assert.Equal(t, first.TeamOrderID, second.TeamOrderID)
	assert.NotEqual(t, first.SupplierOrderID, second.SupplierOrderID)
}

func TestAdministrator(t *testing.T) {
	t.Run("monitor keeps non JSON bodies raw", func(t *testing.T) {
		broker := rabbitmqtest.New()
		monitored := &collector[MonitoredMessage]{}
		startAdmin(t, broker, WithMonitorHandler(monitored.add))

		require.NoError(t, broker.Inject("system_bus", "anything.at.all", []byte("hello")))

		require.Eventually(t, func() bool { return monitored.len() == 1 }, waitFor, 5*time.Millisecond)
		m := monitored.all()[0]
		assert.Nil(t, m.Fields)
		assert.Equal(t, "hello", string(m.Raw))
		assert.Equal(t, "anything.at.all", m.RoutingKey)
	})

	t.Run("monitor binds the wildcard", func(t *testing.T) {
		broker := rabbitmqtest.New()
		startAdmin(t, broker)

		info, ok := broker.Queue("q_admin_monitor")
		require.True(t, ok)
		assert.Equal(t, []string{"system_bus:#"}, info.Bindings)
		assert.True(t, info.Durable)
	})

	t.Run("empty content is rejected", func(t *testing.T) {
		broker := rabbitmqtest.New()
		admin, err := NewAdministrator(testConfig(), baseOptions(broker)...)
		require.NoError(t, err)

		assert.ErrorIs(t, admin.BroadcastToSuppliers(context.Background(), "  "), ErrEmptyContent)
		assert.Empty(t, broker.Published())
	})

	t.Run("unknown audience is rejected", func(t *testing.T) {
		broker := rabbitmqtest.New()
		admin, err := NewAdministrator(testConfig(), baseOptions(broker)...)
		require.NoError(t, err)

		err = admin.Broadcast(context.Background(), "TO_MARS", "hi")
		assert.ErrorIs(t, err, contracts.ErrUnknownBroadcastType)
	})

	t.Run("broadcast fails when the broker is unreachable", func(t *testing.T) {
		broker := rabbitmqtest.New()
		broker.SetDown(true)
		admin, err := NewAdministrator(testConfig(), baseOptions(broker)...)
		require.NoError(t, err)

		err = admin.BroadcastToAll(context.Background(), "hi")

		var connErr *rabbitmq.ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, 3, connErr.Attempts)
	})

	t.Run("starting twice keeps one monitor", func(t *testing.T) {
		broker := rabbitmqtest.New()
		admin := startAdmin(t, broker)
		first := admin.Workers()[0]

		require.NoError(t, admin.StartMonitoring(context.Background()))

		require.Len(t, admin.Workers(), 1)
		assert.Same(t, first, admin.Workers()[0])
	})

	t.Run("monitor can be restarted after stop", func(t *testing.T) {
		broker := rabbitmqtest.New()
		admin := startAdmin(t, broker)

		require.NoError(t, admin.StopMonitoring(time.Second))
		assert.Equal(t, rabbitmq.StateStopped, admin.Workers()[0].State())

		require.NoError(t, admin.StartMonitoring(context.Background()))
		waitConsuming(t, admin.Workers()...)
	})
}

func TestTeam(t *testing.T) {
	t.Run("empty name is rejected", func(t *testing.T) {
		_, err := NewTeam("   ", testConfig())
		assert.ErrorIs(t, err, ErrEmptyName)
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		cfg := testConfig()
		cfg.Broker.URL = ""

		_, err := NewTeam("Alfa", cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("queue and bindings", func(t *testing.T) {
		broker := rabbitmqtest.New()
		team := startTeam(t, broker, "Alfa")

		info, ok := broker.Queue(team.Queue())
		require.True(t, ok)
		assert.Equal(t, "q_team_Alfa", info.Name)
		assert.Equal(t, []string{
			"system_bus:admin.broadcast.all",
			"system_bus:admin.broadcast.teams",
			"system_bus:confirmations.to_team.Alfa",
		}, info.Bindings)
	})

	t.Run("empty equipment type is rejected", func(t *testing.T) {
		broker := rabbitmqtest.New()
		team, err := NewTeam("Alfa", testConfig(), baseOptions(broker)...)
		require.NoError(t, err)

		_, err = team.SendOrder(context.Background(), "")
		assert.ErrorIs(t, err, ErrEmptyEquipmentType)
	})

	t.Run("unknown equipment type is still sent", func(t *testing.T) {
		broker := rabbitmqtest.New()
		team, err := NewTeam("Alfa", testConfig(), baseOptions(broker)...)
		require.NoError(t, err)

		_, err = team.SendOrder(context.Background(), "lina")

		require.NoError(t, err)
		assert.Len(t, broker.PublishedTo("orders.lina"), 1)
		assert.Equal(t, 0, broker.OpenConnections())
	})

	t.Run("orders are persistent", func(t *testing.T) {
		broker := rabbitmqtest.New()
		team, err := NewTeam("Alfa", testConfig(), baseOptions(broker)...)
		require.NoError(t, err)

		_, err = team.SendOrder(context.Background(), "tlen")
		require.NoError(t, err)

		sent := broker.PublishedTo("orders.tlen")
		require.Len(t, sent, 1)
		assert.Equal(t, uint8(2), sent[0].Message.DeliveryMode)
	})

	t.Run("confirmations and broadcasts reach the handlers", func(t *testing.T) {
		broker := rabbitmqtest.New()
		confirmations := &collector[contracts.Confirmation]{}
		broadcasts := &collector[contracts.Broadcast]{}
		team := startTeam(t, broker, "Alfa",
			WithConfirmationHandler(confirmations.add),
			WithBroadcastHandler(broadcasts.add))

		confirmation, err := json.Marshal(contracts.Confirmation{
			TeamName:        "Alfa",
			TeamOrderID:     "o-7",
			EquipmentType:   "tlen",
			SupplierName:    "Dostawca1",
			SupplierOrderID: "s-7",
			Status:          contracts.StatusConfirmed,
		})
		require.NoError(t, err)
		broadcast, err := json.Marshal(contracts.NewBroadcast(contracts.ToTeams, "zbiórka", time.Unix(1700000000, 0)))
		require.NoError(t, err)

		require.NoError(t, broker.Inject("system_bus", team.ReplyKey(), confirmation))
		require.NoError(t, broker.Inject("system_bus", "admin.broadcast.teams", broadcast))

		require.Eventually(t, func() bool {
			return confirmations.len() == 1 && broadcasts.len() == 1
		}, waitFor, 5*time.Millisecond)
		assert.Equal(t, "o-7", confirmations.all()[0].TeamOrderID)
		assert.Equal(t, "Dostawca1", confirmations.all()[0].SupplierName)
		assert.Equal(t, "zbiórka", broadcasts.all()[0].Content)
		assert.Equal(t, contracts.ToTeams, broadcasts.all()[0].Type)
		assert.Zero(t, failedDeliveries(team.Workers(), team.Queue()))
	})

	t.Run("stop is prompt when idle", func(t *testing.T) {
		broker := rabbitmqtest.New()
		team := startTeam(t, broker, "Alfa")

		start := time.Now()
		require.NoError(t, team.StopListening(time.Second))

		assert.Less(t, time.Since(start), 200*time.Millisecond)
		assert.Equal(t, 0, broker.OpenConnections())
	})
}

func TestSupplier(t *testing.T) {
	t.Run("capabilities come from the config", func(t *testing.T) {
		broker := rabbitmqtest.New()
		supplier := startSupplier(t, broker, "Dostawca2")

		assert.Equal(t, config.CapabilitySet{"tlen", "plecak"}, supplier.Capabilities())
		var queues []string
		for _, w := range supplier.Workers() {
			queues = append(queues, w.Queue())
		}
		assert.Equal(t, []string{"q_orders_tlen", "q_orders_plecak", "q_supplier_Dostawca2_admin"}, queues)
	})

	t.Run("initial setup declares every order queue", func(t *testing.T) {
		broker := rabbitmqtest.New()
		startSupplier(t, broker, "Dostawca1")

		assert.Equal(t, []string{
			"q_orders_buty",
			"q_orders_plecak",
			"q_orders_tlen",
			"q_supplier_Dostawca1_admin",
		}, broker.Queues())

		info, _ := broker.Queue("q_supplier_Dostawca1_admin")
		assert.Equal(t, []string{
			"system_bus:admin.broadcast.all",
			"system_bus:admin.broadcast.suppliers",
		}, info.Bindings)
	})

	t.Run("name takes the configured spelling", func(t *testing.T) {
		broker := rabbitmqtest.New()
		supplier := startSupplier(t, broker, "dostawca1")

		assert.Equal(t, "Dostawca1", supplier.Name())
		assert.Equal(t, "q_supplier_Dostawca1_admin", supplier.AdminQueue())
		_, declared := broker.Queue("q_supplier_dostawca1_admin")
		assert.False(t, declared)

		require.NoError(t, broker.Inject("system_bus", "orders.buty",
			[]byte(`{"team_name":"Alfa","team_order_id":"o-1","equipment_type":"buty","reply_to_rk":"confirmations.to_team.Alfa"}`)))
		require.Eventually(t, func() bool { return confirmationsPublished(broker) == 1 }, waitFor, 5*time.Millisecond)

		c, err := contracts.DecodeConfirmation(broker.PublishedTo("confirmations.to_team.Alfa")[0].Message.Body)
		require.NoError(t, err)
		assert.Equal(t, "Dostawca1", c.SupplierName)
	})

	t.Run("unknown equipment type fails construction", func(t *testing.T) {
		cfg := testConfig()
		cfg.Suppliers = map[string][]string{"Dostawca1": {"tlen", "lodz"}}

		_, err := NewSupplier("Dostawca1", cfg)
		assert.ErrorIs(t, err, config.ErrUnknownEquipment)
	})

	t.Run("supplier without capabilities serves broadcasts only", func(t *testing.T) {
		broker := rabbitmqtest.New()
		supplier := startSupplier(t, broker, "Nieznany")

		assert.Empty(t, supplier.Capabilities())
		require.Len(t, supplier.Workers(), 1)
		assert.Equal(t, "q_supplier_Nieznany_admin", supplier.Workers()[0].Queue())
	})

	t.Run("starts degraded when the broker is down", func(t *testing.T) {
		broker := rabbitmqtest.New()
		broker.SetDown(true)
		supplier, err := NewSupplier("Dostawca1", testConfig(), baseOptions(broker)...)
		require.NoError(t, err)

		require.NoError(t, supplier.Start(context.Background()))
		t.Cleanup(func() { _ = supplier.Stop(time.Second) })
		assert.Len(t, supplier.Workers(), 3)

		broker.SetDown(false)
		waitConsuming(t, supplier.Workers()...)
	})

	t.Run("stop reports every worker stopped", func(t *testing.T) {
		broker := rabbitmqtest.New()
		supplier := startSupplier(t, broker, "Dostawca1")

		require.NoError(t, supplier.Stop(time.Second))
		for _, w := range supplier.Workers() {
			assert.Equal(t, rabbitmq.StateStopped, w.State())
		}
		assert.Equal(t, 0, broker.OpenConnections())
	})
}

func TestStopError(t *testing.T) {
	err := &StopError{Client: "supplier_Dostawca1", Unstopped: 2, Total: 3}

	assert.ErrorIs(t, err, rabbitmq.ErrStopTimeout)
	assert.Equal(t, "roles: supplier_Dostawca1: 2 of 3 workers did not stop in time", err.Error())
}
