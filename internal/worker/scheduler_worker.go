package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/queue"
	"github.com/notifyhub/changewatch/internal/registry"
)

// SchedulerWorker periodically asks the registry which watches are due and
// enqueues them at scheduled priority.
//
// Watches already pending are skipped; the queue would coalesce them anyway,
// but skipping keeps the coalesce counter meaningful.
type SchedulerWorker struct {
	reg      *registry.Registry
	q        *queue.RecheckQueue
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewSchedulerWorker(
	reg *registry.Registry,
	q *queue.RecheckQueue,
	interval time.Duration,
	logger *zap.Logger,
) *SchedulerWorker {
	return &SchedulerWorker{reg: reg, q: q, interval: interval, now: time.Now, logger: logger}
}

// Run ticks every interval and enqueues any watches that are now due.
// Stops cleanly when ctx is cancelled or the queue is shut down.
func (sw *SchedulerWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("scheduler worker started", zap.Duration("interval", sw.interval))

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("scheduler worker stopping")
			return
		case <-ticker.C:
			if _, err := sw.Poll(sw.now()); errors.Is(err, domain.ErrQueueClosed) {
				sw.logger.Info("scheduler worker stopping, queue closed")
				return
			}
		}
	}
}

// Poll enqueues every watch due at now and returns how many were enqueued.
func (sw *SchedulerWorker) Poll(now time.Time) (int, error) {
	enqueued := 0
	for _, id := range sw.reg.Due(now) {
		if sw.q.Contains(id) {
			continue
		}
		err := sw.q.Enqueue(queue.Item{
			WatchID:         id,
			Priority:        domain.PriorityScheduled,
			SkipIfUnchanged: true,
		})
		if err != nil {
			return enqueued, err
		}
		enqueued++
	}

	if enqueued > 0 {
		sw.logger.Debug("enqueued due watches", zap.Int("count", enqueued))
	}
	return enqueued, nil
}
