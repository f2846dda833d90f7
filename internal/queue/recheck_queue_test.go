package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/queue"
)

func item(id string, p domain.Priority) queue.Item {
	return queue.Item{WatchID: id, Priority: p, SkipIfUnchanged: true}
}

func dequeueIDs(t *testing.T, q *queue.RecheckQueue, n int) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		got, ok := q.Dequeue(ctx)
		if !ok {
			t.Fatalf("dequeue %d: queue returned nothing", i)
		}
		ids = append(ids, got.WatchID)
	}
	return ids
}

func TestRecheckQueue_BasicEnqueueDequeue(t *testing.T) {
	q := queue.New()

	if err := q.Enqueue(item("1", domain.PriorityScheduled)); err != nil {
		t.Fatal(err)
	}

	got, ok := q.Dequeue(context.Background())
	if !ok {
		t.Fatal("expected item, got nothing")
	}
	if got.WatchID != "1" {
		t.Fatalf("expected id=1, got %s", got.WatchID)
	}
	if q.Size() != 0 {
		t.Fatalf("expected empty queue, size=%d", q.Size())
	}
}

// TestRecheckQueue_PriorityThenFIFO enqueues priorities [3,1,1,2] and expects
// both priority-1 items in submission order, then 2, then 3.
func TestRecheckQueue_PriorityThenFIFO(t *testing.T) {
	q := queue.New()
	_ = q.Enqueue(item("p3", 3))
	_ = q.Enqueue(item("p1-first", 1))
	_ = q.Enqueue(item("p1-second", 1))
	_ = q.Enqueue(item("p2", 2))

	got := dequeueIDs(t, q, 4)
	want := []string{"p1-first", "p1-second", "p2", "p3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dequeue order = %v, want %v", got, want)
		}
	}
}

// TestRecheckQueue_CoalesceUpgradesPriorityKeepsPosition enqueues the same
// watch at 5 then 1: one entry results, at priority 1, ordered by its first
// insertion.
func TestRecheckQueue_CoalesceUpgradesPriorityKeepsPosition(t *testing.T) {
	q := queue.New()
	_ = q.Enqueue(item("dup", 5))
	_ = q.Enqueue(item("other", 1))
	_ = q.Enqueue(item("dup", 1))

	if q.Size() != 2 {
		t.Fatalf("expected 2 pending items, got %d", q.Size())
	}

	pending := q.Pending()
	if pending[0].WatchID != "dup" || pending[0].Priority != 1 {
		t.Fatalf("expected dup at priority 1 first, got %+v", pending[0])
	}

	got := dequeueIDs(t, q, 2)
	if got[0] != "dup" || got[1] != "other" {
		t.Fatalf("dequeue order = %v, want [dup other]", got)
	}
}

// TestRecheckQueue_ResubmitDoesNotJumpAhead verifies that re-submitting a
// pending watch at the same or a lower urgency leaves its position alone.
func TestRecheckQueue_ResubmitDoesNotJumpAhead(t *testing.T) {
	q := queue.New()
	_ = q.Enqueue(item("a", 5))
	_ = q.Enqueue(item("b", 5))
	_ = q.Enqueue(item("a", 5))
	_ = q.Enqueue(item("b", 9))
	_ = q.Enqueue(item("a", 7))

	if q.Size() != 2 {
		t.Fatalf("expected 2 pending items, got %d", q.Size())
	}
	pending := q.Pending()
	if pending[0].WatchID != "a" || pending[0].Priority != 5 ||
		pending[1].WatchID != "b" || pending[1].Priority != 5 {
		t.Fatalf("unexpected pending snapshot: %+v", pending)
	}
}

func TestRecheckQueue_CoalesceSkipFlag(t *testing.T) {
	q := queue.New()
	_ = q.Enqueue(queue.Item{WatchID: "w", Priority: 5, SkipIfUnchanged: true})
	_ = q.Enqueue(queue.Item{WatchID: "w", Priority: 5, SkipIfUnchanged: false})

	got, _ := q.Dequeue(context.Background())
	if got.SkipIfUnchanged {
		t.Fatal("expected an unconditional request to clear SkipIfUnchanged")
	}
}

func TestRecheckQueue_OnCoalesceHook(t *testing.T) {
	q := queue.New()
	var coalesced int
	q.OnCoalesce = func(queue.Item) { coalesced++ }

	_ = q.Enqueue(item("w", 5))
	_ = q.Enqueue(item("w", 5))
	_ = q.Enqueue(item("w", 1))

	if coalesced != 2 {
		t.Fatalf("expected 2 coalesced enqueues, got %d", coalesced)
	}
}

func TestRecheckQueue_Remove(t *testing.T) {
	q := queue.New()
	_ = q.Enqueue(item("a", 1))
	_ = q.Enqueue(item("b", 2))
	_ = q.Enqueue(item("c", 3))

	if !q.Remove("b") {
		t.Fatal("expected Remove to find b")
	}
	if q.Remove("b") {
		t.Fatal("expected second Remove to report false")
	}
	if q.Contains("b") {
		t.Fatal("b should no longer be pending")
	}

	got := dequeueIDs(t, q, 2)
	if got[0] != "a" || got[1] != "c" {
		t.Fatalf("dequeue order = %v, want [a c]", got)
	}

	// b can be enqueued again once it is gone.
	if err := q.Enqueue(item("b", 2)); err != nil {
		t.Fatal(err)
	}
	if !q.Contains("b") {
		t.Fatal("expected b to be pending again")
	}
}

func TestRecheckQueue_TryDequeue(t *testing.T) {
	q := queue.New()
	if _, ok := q.TryDequeue(); ok {
		t.Fatal("expected nothing from an empty queue")
	}
	_ = q.Enqueue(item("x", 1))
	got, ok := q.TryDequeue()
	if !ok || got.WatchID != "x" {
		t.Fatalf("expected x, got %+v ok=%v", got, ok)
	}
}

// TestRecheckQueue_ContextCancellation verifies Dequeue returns (_, false)
// when the context is cancelled while blocking.
func TestRecheckQueue_ContextCancellation(t *testing.T) {
	q := queue.New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue(ctx)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected ok=false after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after context cancellation")
	}
}

// TestRecheckQueue_BlockedDequeueWakesOnEnqueue verifies a waiting consumer
// picks up an item pushed after it started waiting.
func TestRecheckQueue_BlockedDequeueWakesOnEnqueue(t *testing.T) {
	q := queue.New()

	got := make(chan queue.Item, 1)
	go func() {
		it, ok := q.Dequeue(context.Background())
		if ok {
			got <- it
		}
	}()

	time.Sleep(20 * time.Millisecond)
	_ = q.Enqueue(item("late", 1))

	select {
	case it := <-got:
		if it.WatchID != "late" {
			t.Fatalf("expected late, got %s", it.WatchID)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Dequeue did not wake on Enqueue")
	}
}

// TestRecheckQueue_Shutdown verifies all blocked consumers unblock and later
// enqueues fail with ErrQueueClosed.
func TestRecheckQueue_Shutdown(t *testing.T) {
	q := queue.New()

	const consumers = 4
	done := make(chan bool, consumers)
	for i := 0; i < consumers; i++ {
		go func() {
			_, ok := q.Dequeue(context.Background())
			done <- ok
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()
	q.Shutdown() // idempotent

	for i := 0; i < consumers; i++ {
		select {
		case ok := <-done:
			if ok {
				t.Fatal("expected ok=false after shutdown")
			}
		case <-time.After(time.Second):
			t.Fatalf("consumer %d still blocked after shutdown", i)
		}
	}

	if err := q.Enqueue(item("x", 1)); !errors.Is(err, domain.ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if !q.Closed() {
		t.Fatal("expected Closed() to report true")
	}
}

func TestRecheckQueue_ShutdownDiscardsPending(t *testing.T) {
	q := queue.New()
	_ = q.Enqueue(item("a", 1))
	_ = q.Enqueue(item("b", 1))

	q.Shutdown()

	if q.Size() != 0 {
		t.Fatalf("expected size 0 after shutdown, got %d", q.Size())
	}
	if _, ok := q.Dequeue(context.Background()); ok {
		t.Fatal("expected no items after shutdown")
	}
}

// TestRecheckQueue_ConcurrentEnqueueDequeue verifies there are no races and
// that coalescing holds when many producers submit overlapping watch ids.
func TestRecheckQueue_ConcurrentEnqueueDequeue(t *testing.T) {
	q := queue.New()

	const producers = 5
	const watches = 100

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for j := 0; j < watches; j++ {
				_ = q.Enqueue(item(fmt.Sprintf("w-%d", j), domain.Priority(p+1)))
			}
		}(i)
	}
	wg.Wait()

	if q.Size() != watches {
		t.Fatalf("expected %d pending watches after coalescing, got %d", watches, q.Size())
	}

	seen := make(map[string]bool, watches)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				it, ok := q.TryDequeue()
				if !ok {
					return
				}
				mu.Lock()
				if seen[it.WatchID] {
					t.Errorf("watch %s dequeued twice", it.WatchID)
				}
				seen[it.WatchID] = true
				mu.Unlock()
				if it.Priority != 1 {
					t.Errorf("watch %s: expected coalesced priority 1, got %d", it.WatchID, it.Priority)
				}
			}
		}()
	}
	consumers.Wait()

	if len(seen) != watches {
		t.Fatalf("received %d/%d watches", len(seen), watches)
	}
}

func TestRecheckQueue_Size(t *testing.T) {
	q := queue.New()

	_ = q.Enqueue(item("h", domain.PriorityImmediate))
	_ = q.Enqueue(item("n1", domain.PriorityScheduled))
	_ = q.Enqueue(item("n2", domain.PriorityScheduled))
	_ = q.Enqueue(item("n2", domain.PriorityImmediate))

	if q.Size() != 3 {
		t.Fatalf("unexpected size: %d", q.Size())
	}
}
