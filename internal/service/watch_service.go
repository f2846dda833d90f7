package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/queue"
	"github.com/notifyhub/changewatch/internal/registry"
	"github.com/notifyhub/changewatch/internal/repository"
	"github.com/notifyhub/changewatch/internal/status"
)

// WatchView is a watch plus its derived scheduling state.
type WatchView struct {
	domain.Watch
	State domain.State `json:"state"`
}

// WatchService coordinates the registry, the recheck queue and the status
// reporter. HTTP handlers depend on this service, not on each other.
type WatchService struct {
	reg      *registry.Registry
	q        *queue.RecheckQueue
	reporter *status.Reporter
	logger   *zap.Logger
}

func NewWatchService(
	reg *registry.Registry,
	q *queue.RecheckQueue,
	reporter *status.Reporter,
	logger *zap.Logger,
) *WatchService {
	return &WatchService{reg: reg, q: q, reporter: reporter, logger: logger}
}

// Hydrate loads stored watches into the registry. Called once at start-up,
// before workers run.
func (s *WatchService) Hydrate(ctx context.Context, repo repository.WatchRepository) (int, error) {
	watches, err := repo.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("load watches: %w", err)
	}
	s.reg.Restore(watches)
	s.logger.Info("watches restored", zap.Int("count", len(watches)))
	return len(watches), nil
}

// Create registers a watch and queues its first check right away.
func (s *WatchService) Create(req domain.CreateWatchRequest) (WatchView, error) {
	id, err := s.reg.Add(req.URL, req.WatchExtras)
	if err != nil {
		return WatchView{}, err
	}
	s.enqueue(id)
	return s.Get(id)
}

func (s *WatchService) Get(id string) (WatchView, error) {
	w, err := s.reg.Get(id)
	if err != nil {
		return WatchView{}, err
	}
	return WatchView{Watch: w, State: w.State(s.q.Contains(id))}, nil
}

// List returns a summary per watch, keyed by id, optionally filtered by tag.
func (s *WatchService) List(tag string) map[string]domain.WatchSummary {
	watches := s.reg.List(tag)
	out := make(map[string]domain.WatchSummary, len(watches))
	for _, w := range watches {
		out[w.ID] = w.Summary()
	}
	return out
}

func (s *WatchService) Update(id string, patch domain.WatchPatch) (WatchView, error) {
	if err := s.reg.Update(id, patch); err != nil {
		return WatchView{}, err
	}
	return s.Get(id)
}

func (s *WatchService) Delete(id string) error {
	return s.reg.Delete(id)
}

func (s *WatchService) SetPaused(id string, paused bool) error {
	if paused {
		return s.reg.Pause(id)
	}
	return s.reg.Unpause(id)
}

func (s *WatchService) SetMuted(id string, muted bool) error {
	if muted {
		return s.reg.Mute(id)
	}
	return s.reg.Unmute(id)
}

// Recheck queues an immediate check of one watch regardless of its interval
// or pause state.
func (s *WatchService) Recheck(id string) error {
	if _, err := s.reg.Get(id); err != nil {
		return err
	}
	return s.q.Enqueue(queue.Item{
		WatchID:         id,
		Priority:        domain.PriorityImmediate,
		SkipIfUnchanged: true,
	})
}

// RecheckAll queues an immediate check of every watch, or of those carrying
// tag, and returns how many were queued.
func (s *WatchService) RecheckAll(tag string) (int, error) {
	n := 0
	for _, id := range s.reg.IDs(tag) {
		err := s.q.Enqueue(queue.Item{
			WatchID:         id,
			Priority:        domain.PriorityImmediate,
			SkipIfUnchanged: true,
		})
		if err != nil {
			return n, err
		}
		n++
	}
	s.logger.Info("recheck queued", zap.String("tag", tag), zap.Int("count", n))
	return n, nil
}

func (s *WatchService) SystemInfo() status.Status {
	return s.reporter.Snapshot()
}

// enqueue is best-effort: after shutdown the watch still exists and the
// scheduler picks it up on the next start.
func (s *WatchService) enqueue(id string) {
	err := s.q.Enqueue(queue.Item{
		WatchID:         id,
		Priority:        domain.PriorityImmediate,
		SkipIfUnchanged: true,
	})
	if err != nil && !errors.Is(err, domain.ErrQueueClosed) {
		s.logger.Error("failed to enqueue new watch", zap.String("watch_id", id), zap.Error(err))
	}
}
