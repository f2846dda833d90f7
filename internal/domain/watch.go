package domain

import (
	"strings"
	"time"
)

// Priority controls recheck queue ordering. Lower values are dequeued first.
type Priority int

const (
	// PriorityImmediate is used for explicit rechecks and freshly created watches.
	PriorityImmediate Priority = 1
	// PriorityScheduled is used by the interval scheduler.
	PriorityScheduled Priority = 5
)

// State is where a watch sits in the check lifecycle.
//
//	idle -> queued -> checking -> idle
//
// A paused watch reports StatePaused while idle; it can still be queued explicitly.
type State string

const (
	StateIdle     State = "idle"
	StateQueued   State = "queued"
	StateChecking State = "checking"
	StatePaused   State = "paused"
)

// Watch is the core domain entity: a monitored URL plus its check configuration
// and last-known state.
type Watch struct {
	ID    string   `json:"uuid"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
	Tags  []string `json:"tags,omitempty"`
	Proxy string   `json:"proxy,omitempty"`

	Paused bool `json:"paused"`
	Muted  bool `json:"notification_muted"`

	// CheckIntervalSeconds overrides the process-wide default when > 0.
	CheckIntervalSeconds int `json:"check_interval_seconds,omitempty"`

	LastChecked time.Time `json:"last_checked"`
	LastChanged time.Time `json:"last_changed"`
	LastError   string    `json:"last_error"`
	Checksum    string    `json:"previous_md5,omitempty"`

	// Checking is true while a worker holds the watch.
	Checking bool `json:"-"`

	CreatedAt time.Time `json:"date_created"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand out of the registry.
func (w Watch) Clone() Watch {
	if w.Tags != nil {
		w.Tags = append([]string(nil), w.Tags...)
	}
	return w
}

// HasTag reports whether the watch carries tag (case-insensitive).
func (w Watch) HasTag(tag string) bool {
	tag = strings.ToLower(strings.TrimSpace(tag))
	for _, t := range w.Tags {
		if strings.ToLower(t) == tag {
			return true
		}
	}
	return false
}

// State derives the lifecycle state. queued is supplied by the caller because
// pending-ness is owned by the recheck queue, not the watch.
func (w Watch) State(queued bool) State {
	switch {
	case w.Checking:
		return StateChecking
	case queued:
		return StateQueued
	case w.Paused:
		return StatePaused
	}
	return StateIdle
}

// Since returns the reference point for interval decisions: the last check,
// or creation time for a watch that was never checked.
func (w Watch) Since() time.Time {
	if !w.LastChecked.IsZero() {
		return w.LastChecked
	}
	return w.CreatedAt
}

// WatchExtras are the optional fields accepted when a watch is created.
type WatchExtras struct {
	Title                string   `json:"title"`
	Tags                 []string `json:"tags"`
	Proxy                string   `json:"proxy"`
	Paused               bool     `json:"paused"`
	Muted                bool     `json:"notification_muted"`
	CheckIntervalSeconds int      `json:"check_interval_seconds"`
}

// CreateWatchRequest is the inbound payload for a new watch.
type CreateWatchRequest struct {
	URL string `json:"url"`
	WatchExtras
}

// WatchSummary is the concise listing shape.
type WatchSummary struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	LastChecked time.Time `json:"last_checked"`
	LastChanged time.Time `json:"last_changed"`
	LastError   string    `json:"last_error"`
}

// Summary returns the listing shape of w.
func (w Watch) Summary() WatchSummary {
	return WatchSummary{
		URL:         w.URL,
		Title:       w.Title,
		LastChecked: w.LastChecked,
		LastChanged: w.LastChanged,
		LastError:   w.LastError,
	}
}
