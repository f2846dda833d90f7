// Package status computes operational state on demand from the registry and
// the recheck queue.
package status

import (
	"math"
	"sort"
	"time"

	"github.com/notifyhub/changewatch/internal/domain"
)

// GracePeriod is added to a watch's interval before it counts as overdue.
const GracePeriod = 5 * time.Minute

// WatchSource is the read side of the registry used for reporting.
type WatchSource interface {
	Snapshot() []domain.Watch
	ThresholdOf(w domain.Watch) time.Duration
}

// QueueSizer reports pending rechecks without blocking.
type QueueSizer interface {
	Size() int
}

// Policy decides which watches may be reported as overdue.
//
// A watch that has never been checked is measured from its creation time, so
// a freshly added watch is not overdue until its interval plus GracePeriod
// has passed. A zero last-checked time is not treated as overdue at once.
type Policy struct {
	// ExcludePaused leaves paused watches out of the overdue list.
	ExcludePaused bool
}

// Status is the system snapshot served to operators.
type Status struct {
	QueueSize       int      `json:"queue_size"`
	OverdueWatchIDs []string `json:"overdue_watches"`
	Uptime          float64  `json:"uptime"`
	WatchCount      int      `json:"watch_count"`
}

// Reporter builds Status snapshots.
type Reporter struct {
	watches WatchSource
	queue   QueueSizer
	policy  Policy
	started time.Time
	now     func() time.Time
}

func NewReporter(watches WatchSource, q QueueSizer, policy Policy, started time.Time) *Reporter {
	return &Reporter{watches: watches, queue: q, policy: policy, started: started, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// Snapshot computes the current status. It holds the registry read lock only
// for the copy and never blocks on the queue.
func (r *Reporter) Snapshot() Status {
	now := r.now()
	watches := r.watches.Snapshot()
	return Status{
		QueueSize:       r.queue.Size(),
		OverdueWatchIDs: r.overdue(now, watches),
		Uptime:          math.Round(now.Sub(r.started).Seconds()*100) / 100,
		WatchCount:      len(watches),
	}
}

// Overdue returns the ids of overdue watches at now.
func (r *Reporter) Overdue() []string {
	return r.overdue(r.now(), r.watches.Snapshot())
}

func (r *Reporter) overdue(now time.Time, watches []domain.Watch) []string {
	ids := make([]string, 0)
	for _, w := range watches {
		if r.policy.ExcludePaused && w.Paused {
			continue
		}
		if IsOverdue(now, w.Since(), r.watches.ThresholdOf(w)) {
			ids = append(ids, w.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// IsOverdue reports whether more than threshold plus GracePeriod has passed
// since the reference time.
func IsOverdue(now, since time.Time, threshold time.Duration) bool {
	return now.Sub(since) > threshold+GracePeriod
}
