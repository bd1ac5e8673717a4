// Package registry holds the live, in-memory index from event name to the
// ordered set of subscribed callback endpoints.
//
// Each name owns its own list guarded by its own mutex. Readers get an
// immutable copy, so a snapshot handed to delivery never observes a later
// mutation and never holds a lock while delivery runs.
package registry

import (
	"sort"
	"sync"

	"github.com/alfredjeanlab/msgbus/internal/model"
)

// Registry is the authoritative in-memory subscription index.
type Registry struct {
	mu    sync.RWMutex
	names map[string]*entry
}

// entry is the subscriber list for one event name. subs is replaced, never
// modified in place, so slices handed out under the read lock stay valid.
// An entry whose list empties is dropped from the map and marked dead; a
// writer that finds it dead starts over with a fresh entry.
type entry struct {
	mu   sync.RWMutex
	subs []model.Subscription
	dead bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{names: make(map[string]*entry)}
}

// entryFor returns the entry for name, creating it when create is true.
func (r *Registry) entryFor(name string, create bool) *entry {
	r.mu.RLock()
	e := r.names[name]
	r.mu.RUnlock()
	if e != nil || !create {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e = r.names[name]; e == nil {
		e = &entry{}
		r.names[name] = e
	}
	return e
}

// lockEntry returns the live entry for name with its write lock held,
// creating it if needed.
func (r *Registry) lockEntry(name string) *entry {
	for {
		e := r.entryFor(name, true)
		e.mu.Lock()
		if !e.dead {
			return e
		}
		e.mu.Unlock()
	}
}

// dropIfEmpty removes e from the map once it holds no subscribers. The
// caller holds e.mu; r.mu is never held while taking an entry lock.
func (r *Registry) dropIfEmpty(name string, e *entry) {
	if len(e.subs) > 0 {
		return
	}
	r.mu.Lock()
	if r.names[name] == e {
		delete(r.names, name)
	}
	r.mu.Unlock()
	e.dead = true
}

// Load replays stored subscriptions into the registry. It is meant to run
// once at startup, before any Subscribe or Snapshot call. Duplicate pairs are
// collapsed.
func (r *Registry) Load(subs []*model.Subscription) int {
	loaded := 0
	for _, s := range subs {
		if s == nil || s.Name == "" || s.CallbackEndpoint == "" {
			continue
		}
		e := r.lockEntry(s.Name)
		if indexOf(e.subs, s.CallbackEndpoint) < 0 {
			e.subs = appendCopy(e.subs, *s)
			loaded++
		}
		e.mu.Unlock()
	}
	return loaded
}

// Subscribe adds the pair if absent. persist, when non-nil, runs under the
// name's lock before the in-memory list changes and only when the pair is
// absent; if it fails the registry is left untouched and the error returned.
// count is the number of subscribers for the name after the call.
func (r *Registry) Subscribe(sub model.Subscription, persist func() error) (created bool, count int, err error) {
	e := r.lockEntry(sub.Name)
	defer e.mu.Unlock()

	if indexOf(e.subs, sub.CallbackEndpoint) >= 0 {
		return false, len(e.subs), nil
	}
	if persist != nil {
		if err := persist(); err != nil {
			r.dropIfEmpty(sub.Name, e)
			return false, len(e.subs), err
		}
	}
	e.subs = appendCopy(e.subs, sub)
	return true, len(e.subs), nil
}

// Unsubscribe removes the exact pair if present. persist, when non-nil, runs
// under the name's lock only when the pair is present; if it fails the
// registry is left untouched.
func (r *Registry) Unsubscribe(name, endpoint string, persist func() error) (removed bool, err error) {
	e := r.entryFor(name, false)
	if e == nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	i := indexOf(e.subs, endpoint)
	if i < 0 {
		return false, nil
	}
	if persist != nil {
		if err := persist(); err != nil {
			return false, err
		}
	}
	next := make([]model.Subscription, 0, len(e.subs)-1)
	next = append(next, e.subs[:i]...)
	next = append(next, e.subs[i+1:]...)
	e.subs = next
	r.dropIfEmpty(name, e)
	return true, nil
}

// Snapshot returns the endpoints subscribed to name, in subscription order.
// The returned slice is owned by the caller. An unknown name yields an empty,
// non-nil slice.
func (r *Registry) Snapshot(name string) []string {
	e := r.entryFor(name, false)
	if e == nil {
		return []string{}
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]string, len(e.subs))
	for i, s := range e.subs {
		out[i] = s.CallbackEndpoint
	}
	return out
}

// Subscriptions returns the subscriptions for name, or for every name when
// name is empty. Names are sorted; within a name, subscription order is kept.
func (r *Registry) Subscriptions(name string) []model.Subscription {
	if name != "" {
		e := r.entryFor(name, false)
		if e == nil {
			return []model.Subscription{}
		}
		e.mu.RLock()
		defer e.mu.RUnlock()
		return append([]model.Subscription{}, e.subs...)
	}

	out := []model.Subscription{}
	for _, n := range r.sortedNames() {
		e := r.entryFor(n, false)
		if e == nil {
			continue
		}
		e.mu.RLock()
		out = append(out, e.subs...)
		e.mu.RUnlock()
	}
	return out
}

// Count returns the number of subscribers for name.
func (r *Registry) Count(name string) int {
	e := r.entryFor(name, false)
	if e == nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}

// TotalSubscribers returns the number of (name, endpoint) pairs.
func (r *Registry) TotalSubscribers() int {
	total := 0
	for _, e := range r.entries() {
		e.mu.RLock()
		total += len(e.subs)
		e.mu.RUnlock()
	}
	return total
}

// DistinctNames returns how many event names have at least one subscriber.
func (r *Registry) DistinctNames() int {
	n := 0
	for _, e := range r.entries() {
		e.mu.RLock()
		if len(e.subs) > 0 {
			n++
		}
		e.mu.RUnlock()
	}
	return n
}

func (r *Registry) entries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entry, 0, len(r.names))
	for _, e := range r.names {
		out = append(out, e)
	}
	return out
}

func (r *Registry) sortedNames() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.names))
	for n := range r.names {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

func indexOf(subs []model.Subscription, endpoint string) int {
	for i, s := range subs {
		if s.CallbackEndpoint == endpoint {
			return i
		}
	}
	return -1
}

// appendCopy returns a new slice holding subs followed by s.
func appendCopy(subs []model.Subscription, s model.Subscription) []model.Subscription {
	next := make([]model.Subscription, len(subs), len(subs)+1)
	copy(next, subs)
	return append(next, s)
}
