// Package persistence carries registry mutations to durable storage and the
// event broker off the registry's critical path.
package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/events"
	"github.com/notifyhub/changewatch/internal/repository"
)

const opTimeout = 5 * time.Second

// Dispatcher receives watch events from the registry and applies them to
// the repository and publisher on its own goroutine. WatchChanged never
// blocks. When the buffer is full a create, update or check event is dropped
// and counted; the next event for that watch carries its full state. A
// delete is never dropped: it is kept as a tombstone, applied after the
// events buffered ahead of it, and suppresses any save of the same watch.
type Dispatcher struct {
	repo   repository.WatchRepository
	pub    events.Publisher
	ch     chan domain.WatchEvent
	wake   chan struct{}
	logger *zap.Logger

	mu         sync.Mutex
	tombstones map[string]domain.WatchEvent

	// OnDrop, when set, is called for each dropped event.
	OnDrop func(ev domain.WatchEvent)
}

// NewDispatcher creates a dispatcher. repo and pub may each be nil.
func NewDispatcher(repo repository.WatchRepository, pub events.Publisher, buffer int, logger *zap.Logger) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		repo:       repo,
		pub:        pub,
		ch:         make(chan domain.WatchEvent, buffer),
		wake:       make(chan struct{}, 1),
		logger:     logger,
		tombstones: make(map[string]domain.WatchEvent),
	}
}

// WatchChanged implements registry.Observer.
func (d *Dispatcher) WatchChanged(ev domain.WatchEvent) {
	select {
	case d.ch <- ev:
	default:
		if ev.Kind == domain.EventDeleted {
			d.mu.Lock()
			d.tombstones[ev.WatchID] = ev
			d.mu.Unlock()
			d.logger.Warn("persistence buffer full, delete kept as tombstone",
				zap.String("watch_id", ev.WatchID),
				zap.Uint64("revision", ev.Revision),
			)
			select {
			case d.wake <- struct{}{}:
			default:
			}
			return
		}
		d.logger.Warn("persistence buffer full, dropping event",
			zap.String("watch_id", ev.WatchID),
			zap.String("kind", string(ev.Kind)),
			zap.Uint64("revision", ev.Revision),
		)
		if d.OnDrop != nil {
			d.OnDrop(ev)
		}
	}
}

// Run applies events until ctx is cancelled, then drains whatever is still
// buffered before returning.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("persistence dispatcher started", zap.Int("buffer", cap(d.ch)))
	for {
		select {
		case <-ctx.Done():
			d.drain()
			d.logger.Info("persistence dispatcher stopped")
			return
		case ev := <-d.ch:
			d.apply(ctx, ev)
		case <-d.wake:
			d.flush(ctx)
		}
	}
}

func (d *Dispatcher) drain() {
	d.flush(context.Background())
}

// flush applies everything buffered, then the tombstones. Events buffered
// ahead of a tombstone were emitted before the delete, so they go first.
func (d *Dispatcher) flush(ctx context.Context) {
buffered:
	for {
		select {
		case ev := <-d.ch:
			d.apply(ctx, ev)
		default:
			break buffered
		}
	}

	d.mu.Lock()
	pending := d.tombstones
	d.tombstones = make(map[string]domain.WatchEvent)
	d.mu.Unlock()

	for _, ev := range pending {
		d.apply(ctx, ev)
	}
}

func (d *Dispatcher) tombstoned(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tombstones[id]
	return ok
}

func (d *Dispatcher) apply(parent context.Context, ev domain.WatchEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), opTimeout)
	defer cancel()

	log := d.logger.With(
		zap.String("watch_id", ev.WatchID),
		zap.String("kind", string(ev.Kind)),
	)

	if d.repo != nil {
		var err error
		switch {
		case ev.Kind == domain.EventDeleted:
			err = d.repo.Delete(ctx, ev.WatchID)
		case d.tombstoned(ev.WatchID):
			log.Debug("watch deleted, skipping save")
		default:
			err = d.repo.Save(ctx, ev.Watch)
		}
		if err != nil {
			log.Error("failed to persist watch", zap.Error(err))
		}
	}

	if d.pub != nil {
		if err := d.pub.Publish(ctx, ev); err != nil {
			log.Warn("failed to publish watch event", zap.Error(err))
		}
	}
}
