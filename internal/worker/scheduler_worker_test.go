package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/queue"
	"github.com/notifyhub/changewatch/internal/registry"
	"github.com/notifyhub/changewatch/internal/status"
	"github.com/notifyhub/changewatch/internal/worker"
)

func seededRegistry(q *queue.RecheckQueue, now time.Time) *registry.Registry {
	reg := registry.New(registry.Options{DefaultThreshold: time.Hour, Pending: q})
	reg.Restore([]domain.Watch{
		{ID: "fresh", URL: "https://a.example", CreatedAt: now.Add(-48 * time.Hour), LastChecked: now.Add(-10 * time.Minute)},
		{ID: "stale", URL: "https://b.example", CreatedAt: now.Add(-48 * time.Hour), LastChecked: now.Add(-2 * time.Hour)},
		{ID: "never", URL: "https://c.example", CreatedAt: now.Add(-time.Minute)},
		{ID: "paused", URL: "https://d.example", CreatedAt: now.Add(-48 * time.Hour), Paused: true},
		{ID: "custom", URL: "https://e.example", CreatedAt: now.Add(-48 * time.Hour), LastChecked: now.Add(-2 * time.Minute), CheckIntervalSeconds: 60},
	})
	return reg
}

func TestSchedulerWorker_PollEnqueuesDueWatches(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	q := queue.New()
	reg := seededRegistry(q, now)
	sw := worker.NewSchedulerWorker(reg, q, time.Second, zap.NewNop())

	n, err := sw.Poll(now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("want 3 due watches, got %d", n)
	}
	for _, it := range q.Pending() {
		if it.Priority != domain.PriorityScheduled || !it.SkipIfUnchanged {
			t.Fatalf("scheduled item has wrong shape: %+v", it)
		}
		if it.WatchID == "fresh" || it.WatchID == "paused" {
			t.Fatalf("%s should not be scheduled", it.WatchID)
		}
	}

	// A second tick finds them already pending.
	n, _ = sw.Poll(now)
	if n != 0 {
		t.Fatalf("want no new items on repeat poll, got %d", n)
	}
	if q.Size() != 3 {
		t.Fatalf("queue must still hold one entry per watch, size=%d", q.Size())
	}
}

func TestSchedulerWorker_PollKeepsExplicitPriority(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	q := queue.New()
	reg := seededRegistry(q, now)
	_ = q.Enqueue(queue.Item{WatchID: "stale", Priority: domain.PriorityImmediate})

	sw := worker.NewSchedulerWorker(reg, q, time.Second, zap.NewNop())
	if _, err := sw.Poll(now); err != nil {
		t.Fatal(err)
	}

	first, ok := q.TryDequeue()
	if !ok || first.WatchID != "stale" || first.Priority != domain.PriorityImmediate {
		t.Fatalf("explicit recheck should stay first and immediate, got %+v", first)
	}
}

func TestSchedulerWorker_StopsWhenQueueClosed(t *testing.T) {
	now := time.Now()
	q := queue.New()
	reg := seededRegistry(q, now)
	q.Shutdown()

	sw := worker.NewSchedulerWorker(reg, q, 10*time.Millisecond, zap.NewNop())
	if _, err := sw.Poll(now); !errors.Is(err, domain.ErrQueueClosed) {
		t.Fatalf("want ErrQueueClosed, got %v", err)
	}

	done := make(chan struct{})
	go func() {
		sw.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler kept running after queue shutdown")
	}
}

func TestAuditWorker_Audit(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	q := queue.New()
	reg := seededRegistry(q, now)
	reporter := status.NewReporter(reg, q, status.Policy{}, now.Add(-time.Minute)).
		WithClock(func() time.Time { return now })

	aw := worker.NewAuditWorker(reporter, "@every 1m", zap.NewNop())
	if err := aw.Validate(); err != nil {
		t.Fatal(err)
	}
	var got status.Status
	aw.OnStatus = func(s status.Status) { got = s }

	snap := aw.Audit()
	if got.WatchCount != 5 || snap.WatchCount != 5 {
		t.Fatalf("want 5 watches, got %d", got.WatchCount)
	}
	// stale (2h > 1h+5m) and paused (never checked, created 48h ago).
	want := []string{"paused", "stale"}
	if len(got.OverdueWatchIDs) != len(want) {
		t.Fatalf("want overdue %v, got %v", want, got.OverdueWatchIDs)
	}
	for i := range want {
		if got.OverdueWatchIDs[i] != want[i] {
			t.Fatalf("want overdue %v, got %v", want, got.OverdueWatchIDs)
		}
	}
}

func TestAuditWorker_InvalidSchedule(t *testing.T) {
	aw := worker.NewAuditWorker(nil, "every minute please", zap.NewNop())
	if err := aw.Validate(); err == nil {
		t.Fatal("expected schedule error")
	}
	if err := aw.Run(context.Background()); err == nil {
		t.Fatal("expected Run to reject the schedule")
	}
}
