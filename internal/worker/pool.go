package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/checker"
	"github.com/notifyhub/changewatch/internal/notify"
	"github.com/notifyhub/changewatch/internal/queue"
	"github.com/notifyhub/changewatch/internal/ratelimiter"
	"github.com/notifyhub/changewatch/internal/registry"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnChecked func(outcome string, latency time.Duration)
	OnDropped func(reason string)
}

// Deps are the collaborators every worker shares.
type Deps struct {
	Queue    *queue.RecheckQueue
	Registry *registry.Registry
	Checker  checker.Checker
	Limiter  *ratelimiter.HostLimiters // nil disables rate limiting
	Notifier notify.Notifier           // nil disables notifications
}

// Pool manages the lifecycle of all workers.
// All workers share the same recheck queue; the queue hands each pending
// watch to exactly one of them.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates n identical workers.
func NewPool(n int, deps Deps, logger *zap.Logger, hooks MetricHooks) *Pool {
	if n < 1 {
		n = 1
	}
	workers := make([]*Worker, n)
	for i := range workers {
		workers[i] = NewWorker(i, deps, logger.With(zap.Int("worker_id", i)), hooks)
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines.
// Cancelling ctx or shutting the queue down makes every worker return once
// its current check has finished.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// WaitTimeout is Wait bounded by d. It reports whether all workers returned.
func (p *Pool) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}
