package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/metrics"
	"github.com/notifyhub/changewatch/internal/notify"
	"github.com/notifyhub/changewatch/internal/queue"
	"github.com/notifyhub/changewatch/internal/registry"
)

// Reasons passed to OnDropped.
const (
	DropDeleted  = "deleted"
	DropShutdown = "shutdown"
)

// Worker is a single goroutine that continuously pulls rechecks from the
// queue, claims the watch in the registry, applies per-host rate limiting,
// runs the check and commits its outcome.
type Worker struct {
	id     int
	deps   Deps
	logger *zap.Logger

	// Hooks for metrics, injected by the pool so the worker stays metrics-agnostic.
	onChecked func(outcome string, latency time.Duration)
	onDropped func(reason string)
}

// NewWorker constructs a worker. Nil hooks are no-ops.
func NewWorker(id int, deps Deps, logger *zap.Logger, hooks MetricHooks) *Worker {
	if hooks.OnChecked == nil {
		hooks.OnChecked = func(string, time.Duration) {}
	}
	if hooks.OnDropped == nil {
		hooks.OnDropped = func(string) {}
	}
	return &Worker{
		id: id, deps: deps, logger: logger,
		onChecked: hooks.OnChecked, onDropped: hooks.OnDropped,
	}
}

// Run blocks until ctx is cancelled or the queue shuts down, processing one
// queue item per iteration.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started")
	for {
		item, ok := w.deps.Queue.Dequeue(ctx)
		if !ok {
			w.logger.Info("worker stopping")
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item queue.Item) {
	start := time.Now()
	log := w.logger.With(
		zap.String("watch_id", item.WatchID),
		zap.Int("priority", int(item.Priority)),
	)
	reg := w.deps.Registry

	watch, res := reg.BeginCheck(item.WatchID)
	switch res {
	case registry.NotFound:
		// Deleted between enqueue and processing time; skip silently.
		log.Debug("watch no longer exists")
		w.onDropped(DropDeleted)
		return
	case registry.Busy:
		// Another worker holds this watch. Park the request until it finishes;
		// if it already has, put the request straight back.
		if !reg.DeferRecheck(item) {
			w.requeue(log, item)
		}
		log.Debug("watch busy, recheck deferred")
		return
	}

	// Shutdown may interrupt the wait for a token but never a running fetch.
	if w.deps.Limiter != nil {
		if err := w.deps.Limiter.Wait(ctx, watch.URL); err != nil {
			if deferred := reg.AbortCheck(watch.ID); deferred != nil {
				w.requeue(log, *deferred)
			}
			w.onDropped(DropShutdown)
			return
		}
	}

	checkCtx := context.WithoutCancel(ctx)
	result, checkErr := w.deps.Checker.Check(checkCtx, watch)
	elapsed := time.Since(start)

	deferred, ok := reg.FinishCheck(watch.ID, domain.CheckOutcome{
		Changed:  result.Changed,
		Checksum: result.Checksum,
		Err:      checkErr,
	})
	if !ok {
		log.Debug("watch deleted during check, result discarded")
		w.onDropped(DropDeleted)
		return
	}
	if deferred != nil {
		w.requeue(log, *deferred)
	}

	switch {
	case checkErr != nil:
		w.onChecked(metrics.OutcomeError, elapsed)
		// Recorded in last_error; the next regular interval retries.
		log.Warn("check failed", zap.Error(checkErr), zap.Duration("latency", elapsed))
		return
	case result.Changed:
		w.onChecked(metrics.OutcomeChanged, elapsed)
	default:
		w.onChecked(metrics.OutcomeUnchanged, elapsed)
	}
	log.Info("watch checked", zap.Bool("changed", result.Changed), zap.Duration("latency", elapsed))

	if w.deps.Notifier == nil {
		return
	}
	// Mute may have been toggled while the check ran.
	current, err := reg.Get(watch.ID)
	if err != nil {
		return
	}
	if !notify.ShouldNotify(current, result.Changed, item.SkipIfUnchanged) {
		return
	}
	if err := w.deps.Notifier.Notify(checkCtx, current); err != nil {
		log.Warn("notification failed", zap.Error(err))
	}
}

func (w *Worker) requeue(log *zap.Logger, item queue.Item) {
	if err := w.deps.Queue.Enqueue(item); err != nil {
		if errors.Is(err, domain.ErrQueueClosed) {
			w.onDropped(DropShutdown)
			return
		}
		log.Warn("could not requeue recheck", zap.Error(err))
	}
}
