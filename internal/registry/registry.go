// Package registry holds the in-memory set of watches and is the source of
// truth for scheduling decisions.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/changewatch/internal/domain"
	"github.com/notifyhub/changewatch/internal/queue"
)

// PendingRemover drops a watch's pending recheck. Implemented by *queue.RecheckQueue.
type PendingRemover interface {
	Remove(watchID string) bool
}

// ProxyList is the set of proxy names a watch may select.
type ProxyList interface {
	Has(name string) bool
	Names() []string
}

// Observer is informed of every committed mutation. Calls are made with the
// registry write lock held, so they arrive in revision order; they must not
// block or call back into the registry.
type Observer interface {
	WatchChanged(ev domain.WatchEvent)
}

// BeginResult is the outcome of BeginCheck.
type BeginResult int

const (
	Started BeginResult = iota
	NotFound
	Busy
)

func (r BeginResult) String() string {
	switch r {
	case Started:
		return "started"
	case NotFound:
		return "not_found"
	case Busy:
		return "busy"
	}
	return "unknown"
}

// Options configures a Registry. Zero values are usable: no proxies, no
// pending remover, no observer and the wall clock.
type Options struct {
	DefaultThreshold time.Duration
	Proxies          ProxyList
	Pending          PendingRemover
	Observer         Observer
	Now              func() time.Time
}

// Registry maps watch id to watch. A single RWMutex guards the map: readers
// get copies, writers replace fields under the write lock, so no reader ever
// observes a half-applied update.
type Registry struct {
	mu       sync.RWMutex
	watches  map[string]*domain.Watch
	deferred map[string]queue.Item
	revision uint64

	defaultThreshold time.Duration
	proxies          ProxyList
	pending          PendingRemover
	observer         Observer
	now              func() time.Time
}

// DefaultThreshold is used when neither Options nor a watch set an interval.
const DefaultThreshold = 3 * time.Hour

func New(opts Options) *Registry {
	if opts.DefaultThreshold <= 0 {
		opts.DefaultThreshold = DefaultThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		watches:          make(map[string]*domain.Watch),
		deferred:         make(map[string]queue.Item),
		defaultThreshold: opts.DefaultThreshold,
		proxies:          opts.Proxies,
		pending:          opts.Pending,
		observer:         opts.Observer,
		now:              opts.Now,
	}
}

// Add validates and registers a new watch, returning its id.
func (r *Registry) Add(rawURL string, extras domain.WatchExtras) (string, error) {
	req := domain.CreateWatchRequest{URL: rawURL, WatchExtras: extras}
	if err := req.Validate(); err != nil {
		return "", err
	}
	if err := r.checkProxy(extras.Proxy); err != nil {
		return "", err
	}

	now := r.now().UTC()
	w := &domain.Watch{
		ID:                   uuid.New().String(),
		URL:                  strings.TrimSpace(rawURL),
		Title:                extras.Title,
		Tags:                 domain.NormalizeTags(extras.Tags),
		Proxy:                extras.Proxy,
		Paused:               extras.Paused,
		Muted:                extras.Muted,
		CheckIntervalSeconds: extras.CheckIntervalSeconds,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	r.mu.Lock()
	r.watches[w.ID] = w
	r.emitLocked(domain.EventCreated, w)
	r.mu.Unlock()
	return w.ID, nil
}

// Restore loads previously persisted watches without emitting events.
// Existing entries with the same id are replaced.
func (r *Registry) Restore(watches []domain.Watch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range watches {
		c := w.Clone()
		c.Checking = false
		r.watches[c.ID] = &c
	}
	r.revision++
}

// Get returns a copy of the watch.
func (r *Registry) Get(id string) (domain.Watch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.watches[id]
	if !ok {
		return domain.Watch{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return w.Clone(), nil
}

// Update applies a partial update. The patch is validated first; a new proxy
// must be in the proxy list.
func (r *Registry) Update(id string, patch domain.WatchPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if patch.Proxy != nil {
		if err := r.checkProxy(*patch.Proxy); err != nil {
			return err
		}
	}

	r.mu.Lock()
	w, ok := r.watches[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if patch.Empty() {
		r.mu.Unlock()
		return nil
	}
	patch.Apply(w)
	w.UpdatedAt = r.now().UTC()
	r.emitLocked(domain.EventUpdated, w)
	r.mu.Unlock()
	return nil
}

// Delete removes the watch and its pending recheck, if any. A check already in
// flight finishes and is then discarded by FinishCheck.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	w, ok := r.watches[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	delete(r.watches, id)
	delete(r.deferred, id)
	if r.pending != nil {
		r.pending.Remove(id)
	}
	r.emitLocked(domain.EventDeleted, w)
	r.mu.Unlock()
	return nil
}

// Pause stops automatic scheduling of the watch. Pausing a paused watch is a
// no-op; ErrNotFound if the watch does not exist.
func (r *Registry) Pause(id string) error {
	return r.setFlag(id, func(w *domain.Watch) *bool { return &w.Paused }, true)
}

// Unpause resumes automatic scheduling. Idempotent; ErrNotFound if absent.
func (r *Registry) Unpause(id string) error {
	return r.setFlag(id, func(w *domain.Watch) *bool { return &w.Paused }, false)
}

// Mute suppresses change notifications. Idempotent; ErrNotFound if absent.
func (r *Registry) Mute(id string) error {
	return r.setFlag(id, func(w *domain.Watch) *bool { return &w.Muted }, true)
}

// Unmute re-enables change notifications. Idempotent; ErrNotFound if absent.
func (r *Registry) Unmute(id string) error {
	return r.setFlag(id, func(w *domain.Watch) *bool { return &w.Muted }, false)
}

// setFlag is the idempotent toggle behind pause/mute: a no-op when the flag is
// already in the target state.
func (r *Registry) setFlag(id string, field func(*domain.Watch) *bool, v bool) error {
	r.mu.Lock()
	w, ok := r.watches[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	f := field(w)
	if *f == v {
		r.mu.Unlock()
		return nil
	}
	*f = v
	w.UpdatedAt = r.now().UTC()
	r.emitLocked(domain.EventUpdated, w)
	r.mu.Unlock()
	return nil
}

// Threshold returns the recheck interval for the watch.
func (r *Registry) Threshold(id string) (time.Duration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.watches[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return r.thresholdOf(w), nil
}

// ThresholdOf is Threshold for a watch value already in hand.
func (r *Registry) ThresholdOf(w domain.Watch) time.Duration {
	return r.thresholdOf(&w)
}

func (r *Registry) thresholdOf(w *domain.Watch) time.Duration {
	if w.CheckIntervalSeconds > 0 {
		return time.Duration(w.CheckIntervalSeconds) * time.Second
	}
	return r.defaultThreshold
}

// DefaultThreshold returns the process-wide interval.
func (r *Registry) DefaultThreshold() time.Duration { return r.defaultThreshold }

// List returns copies of all watches, optionally limited to a tag, ordered by
// creation time.
func (r *Registry) List(tag string) []domain.Watch {
	r.mu.RLock()
	out := make([]domain.Watch, 0, len(r.watches))
	for _, w := range r.watches {
		if tag != "" && !w.HasTag(tag) {
			continue
		}
		out = append(out, w.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDs returns the ids of all watches, optionally limited to a tag.
func (r *Registry) IDs(tag string) []string {
	watches := r.List(tag)
	ids := make([]string, len(watches))
	for i, w := range watches {
		ids[i] = w.ID
	}
	return ids
}

// Snapshot returns copies of every watch, unordered. The read lock is held
// only for the copy.
func (r *Registry) Snapshot() []domain.Watch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Watch, 0, len(r.watches))
	for _, w := range r.watches {
		out = append(out, w.Clone())
	}
	return out
}

// Due returns the ids of watches eligible for automatic scheduling at now:
// not paused, not being checked, and at least one interval since the last
// check. Never-checked watches are always due. The most stale come first.
func (r *Registry) Due(now time.Time) []string {
	type due struct {
		id    string
		since time.Time
	}
	r.mu.RLock()
	var list []due
	for id, w := range r.watches {
		if w.Paused || w.Checking {
			continue
		}
		if w.LastChecked.IsZero() || now.Sub(w.LastChecked) >= r.thresholdOf(w) {
			list = append(list, due{id: id, since: w.LastChecked})
		}
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if !list[i].since.Equal(list[j].since) {
			return list[i].since.Before(list[j].since)
		}
		return list[i].id < list[j].id
	})
	ids := make([]string, len(list))
	for i, d := range list {
		ids[i] = d.id
	}
	return ids
}

// Len returns the number of watches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.watches)
}

// Revision increases on every mutation.
func (r *Registry) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// BeginCheck marks the watch as being checked and returns a copy of it.
// Busy means another worker holds it; NotFound means it was deleted.
func (r *Registry) BeginCheck(id string) (domain.Watch, BeginResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[id]
	if !ok {
		return domain.Watch{}, NotFound
	}
	if w.Checking {
		return domain.Watch{}, Busy
	}
	w.Checking = true
	return w.Clone(), Started
}

// DeferRecheck parks item until the in-flight check of the same watch
// finishes. Repeated deferrals coalesce like queue entries do. Returns false
// when the watch no longer exists or is not being checked.
func (r *Registry) DeferRecheck(item queue.Item) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[item.WatchID]
	if !ok || !w.Checking {
		return false
	}
	if prev, ok := r.deferred[item.WatchID]; ok {
		if prev.Priority < item.Priority {
			item.Priority = prev.Priority
		}
		item.SkipIfUnchanged = item.SkipIfUnchanged && prev.SkipIfUnchanged
	}
	r.deferred[item.WatchID] = item
	return true
}

// FinishCheck commits a check outcome and returns the watch to idle.
// It returns any recheck deferred while the check ran. ok is false when the
// watch was deleted mid-flight, in which case the outcome is dropped.
func (r *Registry) FinishCheck(id string, out domain.CheckOutcome) (deferred *queue.Item, ok bool) {
	r.mu.Lock()
	w, exists := r.watches[id]
	if !exists {
		r.mu.Unlock()
		return nil, false
	}
	if out.CheckedAt.IsZero() {
		out.CheckedAt = r.now().UTC()
	}
	w.Checking = false
	w.LastChecked = out.CheckedAt
	if out.Err != nil {
		w.LastError = out.Err.Error()
	} else {
		w.LastError = ""
		if out.Changed {
			w.LastChanged = out.CheckedAt
		}
		if out.Checksum != "" {
			w.Checksum = out.Checksum
		}
	}
	if item, ok := r.deferred[id]; ok {
		delete(r.deferred, id)
		deferred = &item
	}
	r.emitLocked(domain.EventChecked, w)
	r.mu.Unlock()
	return deferred, true
}

// AbortCheck returns a watch to idle without recording a result, for a
// check that never reached the network. Any deferred recheck is returned
// so the caller can requeue it.
func (r *Registry) AbortCheck(id string) *queue.Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.watches[id]; ok {
		w.Checking = false
	}
	item, ok := r.deferred[id]
	if !ok {
		return nil
	}
	delete(r.deferred, id)
	return &item
}

func (r *Registry) checkProxy(name string) error {
	if name == "" {
		return nil
	}
	if r.proxies != nil && r.proxies.Has(name) {
		return nil
	}
	var names []string
	if r.proxies != nil {
		names = r.proxies.Names()
	}
	return fmt.Errorf("%w %q, currently supported proxies are '%s'",
		domain.ErrInvalidProxy, name, strings.Join(names, ", "))
}

// emitLocked bumps the revision and hands the event to the observer.
// Caller holds the write lock.
func (r *Registry) emitLocked(kind domain.EventKind, w *domain.Watch) {
	r.revision++
	if r.observer == nil {
		return
	}
	r.observer.WatchChanged(domain.WatchEvent{
		Kind:     kind,
		WatchID:  w.ID,
		Watch:    w.Clone(),
		Revision: r.revision,
		At:       r.now().UTC(),
	})
}
