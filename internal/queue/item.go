package queue

import "github.com/notifyhub/changewatch/internal/domain"

// Item is the minimal data placed on the queue.
// Workers look the watch up in the registry by WatchID when they dequeue it,
// keeping the queue lightweight and the registry authoritative. The watch may
// have been deleted in the meantime.
type Item struct {
	WatchID         string          `json:"uuid"`
	Priority        domain.Priority `json:"priority"`
	SkipIfUnchanged bool            `json:"skip_when_checksum_same"`
}

// entry is an Item plus its queue bookkeeping.
type entry struct {
	Item
	seq   uint64 // FIFO tie-break, assigned once at first insertion
	index int    // position in the heap, maintained by Swap
}

// entryHeap implements heap.Interface ordered by (priority, seq).
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
