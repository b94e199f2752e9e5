package store

import (
	"sort"
	"sync"
)

// Event reasons.
const (
	ReasonSession   = "session"
	ReasonZones     = "zones"
	ReasonStale     = "stale"
	ReasonRefreshed = "refreshed"
	ReasonRemoved   = "removed"
	ReasonStaged    = "staged"
	ReasonEdited    = "edited"
	ReasonCommitted = "committed"
	ReasonDeleted   = "deleted"
	ReasonFailed    = "failed"
	ReasonConflict  = "conflict"
	ReasonResolved  = "resolved"
	ReasonDiscarded = "discarded"
	ReasonCoalesced = "coalesced"
)

// ScopeKind distinguishes account and zone scopes.
type ScopeKind int

const (
	// ScopeAccount covers the zone list and session state of an account.
	ScopeAccount ScopeKind = iota
	// ScopeZone covers the records of one zone.
	ScopeZone
)

// Scope is what a subscriber is interested in.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// AccountScope returns the scope of an account's zone list and session.
func AccountScope(accountID string) Scope { return Scope{Kind: ScopeAccount, ID: accountID} }

// ZoneScope returns the scope of a zone's records.
func ZoneScope(zoneID string) Scope { return Scope{Kind: ScopeZone, ID: zoneID} }

// Event notifies a subscriber of a change in its scope.
type Event struct {
	Scope   Scope
	Version uint64
	// Keys lists the affected record keys; empty means the whole scope.
	Keys   []string
	Reason string
}

// Subscription delivers events for one scope. Events are coalesced when
// the subscriber falls behind, so a slow reader sees the latest version
// rather than every intermediate one.
type Subscription struct {
	C <-chan Event

	ch    chan Event
	done  chan struct{}
	scope Scope
	reg   *registry
	once  sync.Once
}

// Scope returns the subscribed scope.
func (sub *Subscription) Scope() Scope { return sub.scope }

// Done is closed when the subscription is closed.
func (sub *Subscription) Done() <-chan struct{} { return sub.done }

// Close unregisters the subscription. C is not closed.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.reg.remove(sub)
		close(sub.done)
	})
}

type registry struct {
	mu   sync.Mutex
	subs map[Scope]map[*Subscription]struct{}
}

func newRegistry() *registry {
	return &registry{subs: make(map[Scope]map[*Subscription]struct{})}
}

// Subscribe registers interest in scope.
func (s *Store) Subscribe(scope Scope) *Subscription {
	ch := make(chan Event, 1)
	sub := &Subscription{C: ch, ch: ch, done: make(chan struct{}), scope: scope, reg: s.subs}
	s.subs.add(sub)
	return sub
}

// SubscribedZones returns the ids of zones that have at least one subscriber.
func (s *Store) SubscribedZones() []string {
	return s.subs.zones()
}

func (r *registry) add(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[sub.scope]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[sub.scope] = set
	}
	set[sub] = struct{}{}
}

func (r *registry) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.subs[sub.scope]
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, sub.scope)
	}
}

func (r *registry) zones() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for scope := range r.subs {
		if scope.Kind == ScopeZone {
			ids = append(ids, scope.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// notify delivers ev without blocking. Callers hold the store lock, which
// serializes notifications.
func (r *registry) notify(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sub := range r.subs[ev.Scope] {
		deliver(sub.ch, ev)
	}
}

func deliver(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	// Full: merge with the pending event and replace it.
	select {
	case old := <-ch:
		ev = coalesce(old, ev)
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

func coalesce(old, ev Event) Event {
	merged := Event{Scope: ev.Scope, Version: ev.Version, Reason: ReasonCoalesced}
	if old.Version > merged.Version {
		merged.Version = old.Version
	}
	if len(old.Keys) == 0 || len(ev.Keys) == 0 {
		return merged
	}
	seen := make(map[string]bool, len(old.Keys)+len(ev.Keys))
	for _, k := range append(append([]string{}, old.Keys...), ev.Keys...) {
		if !seen[k] {
			seen[k] = true
			merged.Keys = append(merged.Keys, k)
		}
	}
	return merged
}
