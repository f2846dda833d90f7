package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/notifyhub/changewatch/internal/domain"
)

// RecheckQueue is a priority queue of pending rechecks with at most one entry
// per watch.
//
// Ordering is by (priority, seq): lower priority values first, then first-seen
// order. A duplicate Enqueue for a watch that is already pending is coalesced
// into the existing entry. The entry keeps its original seq, so re-submitting a
// straggler never moves it forward within its tier; it only moves when its
// priority is raised.
//
// Consumers block in Dequeue on a broadcast channel that is closed and replaced
// whenever an item arrives or the queue shuts down, so waiting costs no CPU and
// works with context cancellation.
type RecheckQueue struct {
	mu     sync.Mutex
	items  entryHeap
	byID   map[string]*entry
	seq    uint64
	closed bool
	ready  chan struct{}

	size atomic.Int64

	// OnCoalesce is called (outside the lock) when an Enqueue merged into an
	// existing entry. Optional.
	OnCoalesce func(item Item)
}

func New() *RecheckQueue {
	q := &RecheckQueue{
		byID:  make(map[string]*entry),
		ready: make(chan struct{}),
	}
	heap.Init(&q.items)
	return q
}

// Enqueue adds a recheck for item.WatchID, or merges it into the pending one.
//
// When merging, the pending entry's priority becomes min(existing, new) and
// SkipIfUnchanged becomes the AND of both requests. Returns
// domain.ErrQueueClosed after Shutdown.
func (q *RecheckQueue) Enqueue(item Item) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}

	if e, ok := q.byID[item.WatchID]; ok {
		if item.Priority < e.Priority {
			e.Priority = item.Priority
			heap.Fix(&q.items, e.index)
		}
		e.SkipIfUnchanged = e.SkipIfUnchanged && item.SkipIfUnchanged
		q.mu.Unlock()
		if q.OnCoalesce != nil {
			q.OnCoalesce(item)
		}
		return nil
	}

	q.seq++
	e := &entry{Item: item, seq: q.seq}
	heap.Push(&q.items, e)
	q.byID[item.WatchID] = e
	q.size.Store(int64(len(q.items)))
	q.broadcastLocked()
	q.mu.Unlock()
	return nil
}

// Dequeue removes and returns the most urgent item, blocking until one is
// available. Returns (Item{}, false) once the queue is shut down or ctx is
// cancelled.
func (q *RecheckQueue) Dequeue(ctx context.Context) (Item, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Item{}, false
		}
		if len(q.items) > 0 {
			e := heap.Pop(&q.items).(*entry)
			delete(q.byID, e.WatchID)
			q.size.Store(int64(len(q.items)))
			q.mu.Unlock()
			return e.Item, true
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return Item{}, false
		}
	}
}

// TryDequeue is Dequeue without blocking.
func (q *RecheckQueue) TryDequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.items) == 0 {
		return Item{}, false
	}
	e := heap.Pop(&q.items).(*entry)
	delete(q.byID, e.WatchID)
	q.size.Store(int64(len(q.items)))
	return e.Item, true
}

// Remove drops the pending entry for watchID, if any.
// Used when a watch is deleted before a worker picks it up.
func (q *RecheckQueue) Remove(watchID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byID[watchID]
	if !ok {
		return false
	}
	heap.Remove(&q.items, e.index)
	delete(q.byID, watchID)
	q.size.Store(int64(len(q.items)))
	return true
}

// Contains reports whether watchID has a pending entry.
func (q *RecheckQueue) Contains(watchID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.byID[watchID]
	return ok
}

// Size returns the number of pending items. It never blocks.
func (q *RecheckQueue) Size() int {
	return int(q.size.Load())
}

// Pending returns a snapshot of the pending items in dequeue order.
func (q *RecheckQueue) Pending() []Item {
	q.mu.Lock()
	entries := make(entryHeap, len(q.items))
	copy(entries, q.items)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]Item, len(entries))
	for i, e := range entries {
		out[i] = e.Item
	}
	q.mu.Unlock()
	return out
}

// Shutdown closes the queue. Blocked consumers wake and return false, pending
// items are discarded, and later Enqueue calls fail with domain.ErrQueueClosed.
// Safe to call more than once.
func (q *RecheckQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, e := range q.items {
		delete(q.byID, e.WatchID)
	}
	q.items = nil
	q.size.Store(0)
	q.broadcastLocked()
}

// Closed reports whether Shutdown has been called.
func (q *RecheckQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// broadcastLocked wakes every waiting consumer. Caller holds q.mu.
func (q *RecheckQueue) broadcastLocked() {
	close(q.ready)
	q.ready = make(chan struct{})
}
