package domain

import "time"

// CheckResult is what the fetch/diff collaborator reports for one check.
type CheckResult struct {
	Changed  bool
	Checksum string
}

// CheckOutcome is committed back to the registry when a worker finishes.
type CheckOutcome struct {
	CheckedAt time.Time
	Changed   bool
	Checksum  string
	Err       error
}

// EventKind names a watch mutation reported to the persistence collaborator.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventChecked EventKind = "checked"
	EventDeleted EventKind = "deleted"
)

// WatchEvent describes one registry mutation. Watch holds the state after the
// mutation (before it, for deletes).
type WatchEvent struct {
	Kind     EventKind `json:"kind"`
	WatchID  string    `json:"watch_id"`
	Watch    Watch     `json:"watch"`
	Revision uint64    `json:"revision"`
	At       time.Time `json:"at"`
}
