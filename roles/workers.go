package roles

import (
	"context"
	"sync"
	"time"

	"github.com/glimte/expedition-bus/internal/rabbitmq"
)

// workerGroup owns the supervised consumers of one role
type workerGroup struct {
	mu      sync.Mutex
	workers []*rabbitmq.SupervisedConsumer
}

// running reports whether any worker of the group has not exited yet
func (g *workerGroup) running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, w := range g.workers {
		select {
		case <-w.Done():
		default:
			return true
		}
	}
	return false
}

// start launches every worker. If one fails to start the ones already
// launched are stopped again.
func (g *workerGroup) start(ctx context.Context, workers ...*rabbitmq.SupervisedConsumer) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, w := range workers {
		if err := w.Start(ctx); err != nil {
			for _, started := range workers[:i] {
				_ = started.Stop(time.Second)
			}
			return err
		}
	}
	g.workers = workers
	return nil
}

// stop signals every worker at once and waits up to timeout for each.
// It returns how many were still running and how many there were.
func (g *workerGroup) stop(timeout time.Duration) (unstopped, total int) {
	workers := g.snapshot()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	for _, w := range workers {
		wg.Add(1)
		go func(w *rabbitmq.SupervisedConsumer) {
			defer wg.Done()
			if err := w.Stop(timeout); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()

	return failed, len(workers)
}

func (g *workerGroup) snapshot() []*rabbitmq.SupervisedConsumer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*rabbitmq.SupervisedConsumer(nil), g.workers...)
}

// stopWorkers stops g on behalf of c, logging the outcome the same way for
// every role.
func (c *client) stopWorkers(g *workerGroup, timeout time.Duration) error {
	c.logger.Info("stopping workers", "client", c.name)

	unstopped, total := g.stop(timeout)
	if unstopped > 0 {
		c.logger.Warn("workers did not stop in time",
			"client", c.name,
			"unstopped", unstopped,
			"total", total,
			"timeout", timeout)
		return &StopError{Client: c.name, Unstopped: unstopped, Total: total}
	}

	c.logger.Info("all workers stopped", "client", c.name, "total", total)
	return nil
}
