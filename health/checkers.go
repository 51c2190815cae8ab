package health

import (
	"context"
	"fmt"
	"time"

	"github.com/glimte/expedition-bus/internal/rabbitmq"
)

// Prober makes one connection attempt to the broker
type Prober interface {
	Probe(ctx context.Context) error
}

// BrokerChecker dials the broker once, opens a channel and declares the
// exchange. It never retries.
type BrokerChecker struct {
	prober Prober
}

// NewBrokerChecker creates a broker checker, usually around a
// *rabbitmq.ConnectionManager
func NewBrokerChecker(prober Prober) *BrokerChecker {
	return &BrokerChecker{prober: prober}
}

func (c *BrokerChecker) Name() string {
	return "broker"
}

func (c *BrokerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]any),
	}

	if err := c.prober.Probe(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Message = "broker unreachable"
		result.Error = err.Error()
	} else {
		result.Status = StatusHealthy
		result.Message = "broker reachable"
	}

	result.Duration = time.Since(start)
	result.Details["response_time_ms"] = result.Duration.Milliseconds()
	return result
}

// WorkerSource is implemented by every role
type WorkerSource interface {
	Workers() []*rabbitmq.SupervisedConsumer
}

// WorkerChecker reports the supervision state of a role's workers
type WorkerChecker struct {
	name   string
	source WorkerSource
}

// NewWorkerChecker creates a checker named name for the workers of source
func NewWorkerChecker(name string, source WorkerSource) *WorkerChecker {
	return &WorkerChecker{name: name, source: source}
}

func (c *WorkerChecker) Name() string {
	return c.name
}

func (c *WorkerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details:   make(map[string]any),
	}

	workers := c.source.Workers()
	if len(workers) == 0 {
		result.Status = StatusUnhealthy
		result.Message = "no workers started"
		result.Duration = time.Since(start)
		return result
	}

	status := StatusHealthy
	consuming := 0
	for _, w := range workers {
		stats := w.Stats()
		workerStatus := StateStatus(stats.State)
		status = Worse(status, workerStatus)
		if stats.State == rabbitmq.StateConsuming {
			consuming++
		}

		result.Details[stats.Queue] = map[string]any{
			"state":      stats.State.String(),
			"delivered":  stats.Delivered,
			"failed":     stats.Failed,
			"reconnects": stats.Reconnects,
		}
	}

	result.Status = status
	result.Message = fmt.Sprintf("%d of %d workers consuming", consuming, len(workers))
	result.Duration = time.Since(start)
	return result
}

// StateStatus maps a consumer state onto a health status
func StateStatus(state rabbitmq.ConsumerState) Status {
	switch state {
	case rabbitmq.StateConsuming:
		return StatusHealthy
	case rabbitmq.StateConnecting, rabbitmq.StateDeclaring, rabbitmq.StateReconnecting, rabbitmq.StateDraining:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
