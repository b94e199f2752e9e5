// Package store holds the in-memory mirror of the active account's zones and
// records.
//
// Records are addressed by stable keys. A record fetched from the provider
// is keyed by its remote id; a locally staged draft gets a "local-" key that
// survives its creation remotely. Each zone's record set is replaced as a
// unit on refresh and carries a version that increases on every change.
// Readers always receive copies.
package store

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/internal/metrics"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Entry is a cached record together with its synchronization state.
type Entry struct {
	Key string `json:"key"`

	// Record is the local view, including uncommitted edits.
	Record model.Record `json:"record"`

	// Basis is the last known remote value the local view was built on.
	// It is nil for records that do not exist remotely yet.
	Basis *model.Record `json:"basis,omitempty"`

	State model.RecordState `json:"state"`

	// Remote is the diverging remote value of a conflicting record.
	Remote *model.Record `json:"remote,omitempty"`

	// RemoteGone marks a conflict caused by a remote deletion.
	RemoteGone bool `json:"remote_gone,omitempty"`

	// LastError describes the most recent failed commit.
	LastError string     `json:"last_error,omitempty"`
	ErrorKind model.Kind `json:"error_kind,omitempty"`

	// Rev increases with every local edit.
	Rev uint64 `json:"rev"`
}

func (e Entry) clone() Entry {
	if e.Basis != nil {
		b := *e.Basis
		e.Basis = &b
	}
	if e.Remote != nil {
		r := *e.Remote
		e.Remote = &r
	}
	return e
}

// Canonical returns the latest remote value known for the entry, if any.
func (e Entry) Canonical() (model.Record, bool) {
	switch {
	case e.State == model.StateConflict && e.Remote != nil:
		return *e.Remote, true
	case e.State == model.StateConflict && e.RemoteGone:
		return model.Record{}, false
	case e.Basis != nil:
		return *e.Basis, true
	}
	return model.Record{}, false
}

// ConflictError builds the error describing a conflicting entry.
func (e Entry) ConflictError() *model.ConflictError {
	ce := &model.ConflictError{Key: e.Key, Local: e.Record}
	if e.Remote != nil {
		r := *e.Remote
		ce.Remote = &r
	}
	return ce
}

// Cursor is the freshness bookkeeping of a zone or zone list.
type Cursor struct {
	FetchedAt time.Time  `json:"fetched_at"`
	Stale     bool       `json:"stale"`
	LastError string     `json:"last_error,omitempty"`
	ErrorKind model.Kind `json:"error_kind,omitempty"`
}

// Fresh reports whether the cursor is usable without a refresh.
func (c Cursor) Fresh(now time.Time, staleAfter time.Duration) bool {
	if c.FetchedAt.IsZero() || c.Stale {
		return false
	}
	return now.Sub(c.FetchedAt) < staleAfter
}

// Snapshot is a consistent copy of one zone's records.
type Snapshot struct {
	Zone    model.Zone
	Version uint64
	Cursor  Cursor
	Entries []Entry
}

// Find returns the entry with key.
func (s Snapshot) Find(key string) (Entry, bool) {
	for _, e := range s.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Records returns the local view of every entry.
func (s Snapshot) Records() []model.Record {
	out := make([]model.Record, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, e.Record)
	}
	return out
}

// Canonical returns the latest fetched remote value of every entry that
// has one.
func (s Snapshot) Canonical() []model.Record {
	out := make([]model.Record, 0, len(s.Entries))
	for _, e := range s.Entries {
		if r, ok := e.Canonical(); ok {
			out = append(out, r)
		}
	}
	return out
}

// Pending returns the entries with uncommitted local changes.
func (s Snapshot) Pending() []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.State.Pending() {
			out = append(out, e)
		}
	}
	return out
}

// ZoneList is a copy of an account's zone list.
type ZoneList struct {
	AccountID string
	Version   uint64
	Cursor    Cursor
	Zones     []model.Zone
}

type zoneData struct {
	zone     model.Zone
	version  uint64
	cursor   Cursor
	loaded   bool
	order    []string
	entries  map[string]*Entry
	byRemote map[string]string
}

func newZoneData(zone model.Zone) *zoneData {
	return &zoneData{
		zone:     zone,
		entries:  make(map[string]*Entry),
		byRemote: make(map[string]string),
	}
}

type zoneList struct {
	version uint64
	cursor  Cursor
	loaded  bool
	zones   []model.Zone
}

// Store is the shared cache. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	account *model.Account
	lists   map[string]*zoneList
	zones   map[string]*zoneData
	keyZone map[string]string

	subs   *registry
	logger *slog.Logger
	now    func() time.Time
	newKey func() string
}

// Option is a functional option for configuring the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for cursors.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		lists:   make(map[string]*zoneList),
		zones:   make(map[string]*zoneData),
		keyZone: make(map[string]string),
		subs:    newRegistry(),
		logger:  slog.Default(),
		now:     time.Now,
		newKey:  newLocalKey,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAccount activates acct. Switching to a different account drops all
// cached data of the previous one.
func (s *Store) SetAccount(acct model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account != nil && s.account.ID != acct.ID {
		s.logger.Info("switching account, dropping cache",
			slog.String("from", s.account.ID),
			slog.String("to", acct.ID),
		)
		s.lists = make(map[string]*zoneList)
		s.zones = make(map[string]*zoneData)
		s.keyZone = make(map[string]string)
		s.updatePendingLocked()
	}
	acct.Active = true
	s.account = &acct
	s.subs.notify(Event{Scope: AccountScope(acct.ID), Reason: ReasonSession})
}

// Account returns the current account. ok is false when no account has been
// resolved.
func (s *Store) Account() (model.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.account == nil {
		return model.Account{}, false
	}
	return *s.account, true
}

// EndSession clears the active-session flag after the credential was rejected.
func (s *Store) EndSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil || !s.account.Active {
		return
	}
	s.account.Active = false
	s.logger.Warn("session ended", slog.String("account", s.account.ID))
	s.subs.notify(Event{Scope: AccountScope(s.account.ID), Reason: ReasonSession})
	// Record screens only watch their zone and must see the session end too.
	for _, zoneID := range s.subs.zones() {
		s.subs.notify(Event{Scope: ZoneScope(zoneID), Reason: ReasonSession})
	}
}

// Logout forgets the account and all cached data.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var id string
	if s.account != nil {
		id = s.account.ID
	}
	s.account = nil
	s.lists = make(map[string]*zoneList)
	s.zones = make(map[string]*zoneData)
	s.keyZone = make(map[string]string)
	s.updatePendingLocked()
	if id != "" {
		s.subs.notify(Event{Scope: AccountScope(id), Reason: ReasonSession})
	}
}

// PutZones replaces the zone list of an account. Cached records of zones
// that disappeared are dropped.
func (s *Store) PutZones(accountID string, zones []model.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.lists[accountID]
	if !ok {
		list = &zoneList{}
		s.lists[accountID] = list
	}
	present := make(map[string]bool, len(zones))
	copied := make([]model.Zone, len(zones))
	for i, z := range zones {
		if z.AccountID == "" {
			z.AccountID = accountID
		}
		copied[i] = z
		present[z.ID] = true
		if zd, ok := s.zones[z.ID]; ok {
			zd.zone = z
		}
	}
	for id, zd := range s.zones {
		if zd.zone.AccountID == accountID && !present[id] {
			s.dropZoneLocked(id)
		}
	}
	list.zones = copied
	list.loaded = true
	list.version++
	list.cursor = Cursor{FetchedAt: s.now()}
	s.updatePendingLocked()
	s.subs.notify(Event{Scope: AccountScope(accountID), Version: list.version, Reason: ReasonZones})
}

func (s *Store) dropZoneLocked(zoneID string) {
	zd, ok := s.zones[zoneID]
	if !ok {
		return
	}
	for key := range zd.entries {
		delete(s.keyZone, key)
	}
	delete(s.zones, zoneID)
	s.subs.notify(Event{Scope: ZoneScope(zoneID), Version: zd.version + 1, Reason: ReasonRemoved})
}

// Zones returns the cached zone list of an account.
func (s *Store) Zones(accountID string) (ZoneList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.lists[accountID]
	if !ok || !list.loaded {
		return ZoneList{AccountID: accountID}, false
	}
	zones := make([]model.Zone, len(list.zones))
	copy(zones, list.zones)
	return ZoneList{AccountID: accountID, Version: list.version, Cursor: list.cursor, Zones: zones}, true
}

// Zone finds a zone by id or name in any cached zone list.
func (s *Store) Zone(ref string) (model.Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.zoneLocked(ref)
}

func (s *Store) zoneLocked(ref string) (model.Zone, bool) {
	if zd, ok := s.zones[ref]; ok {
		return zd.zone, true
	}
	ref = strings.TrimSuffix(ref, ".")
	for _, list := range s.lists {
		for _, z := range list.zones {
			if z.ID == ref || strings.EqualFold(z.Name, ref) {
				return z, true
			}
		}
	}
	return model.Zone{}, false
}

// MarkZonesStale flags the zone list of an account as needing a refresh.
func (s *Store) MarkZonesStale(accountID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[accountID]
	if !ok {
		list = &zoneList{}
		s.lists[accountID] = list
	}
	list.cursor.Stale = true
	list.cursor.LastError, list.cursor.ErrorKind = errorText(err)
	list.version++
	s.subs.notify(Event{Scope: AccountScope(accountID), Version: list.version, Reason: ReasonStale})
}

// Get returns a snapshot of the zone's records. ok is false when the zone's
// records have never been loaded.
func (s *Store) Get(zoneID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zd, ok := s.zones[zoneID]
	if !ok {
		return Snapshot{}, false
	}
	return zd.snapshot(), zd.loaded
}

func (zd *zoneData) snapshot() Snapshot {
	snap := Snapshot{
		Zone:    zd.zone,
		Version: zd.version,
		Cursor:  zd.cursor,
		Entries: make([]Entry, 0, len(zd.order)),
	}
	for _, key := range zd.order {
		snap.Entries = append(snap.Entries, zd.entries[key].clone())
	}
	return snap
}

// Lookup returns the entry for key and the zone it belongs to.
func (s *Store) Lookup(key string) (Entry, model.Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zd, e, ok := s.entryLocked(key)
	if !ok {
		return Entry{}, model.Zone{}, false
	}
	return e.clone(), zd.zone, true
}

// KeyFor resolves a record reference (store key or remote id) within a zone.
func (s *Store) KeyFor(zoneID, ref string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	zd, ok := s.zones[zoneID]
	if !ok {
		return "", false
	}
	if _, ok := zd.entries[ref]; ok {
		return ref, true
	}
	key, ok := zd.byRemote[ref]
	return key, ok
}

func (s *Store) entryLocked(key string) (*zoneData, *Entry, bool) {
	zoneID, ok := s.keyZone[key]
	if !ok {
		return nil, nil, false
	}
	zd, ok := s.zones[zoneID]
	if !ok {
		return nil, nil, false
	}
	e, ok := zd.entries[key]
	return zd, e, ok
}

// Invalidate marks the zone's cursor stale so the next read refreshes it.
// Cached records stay readable.
func (s *Store) Invalidate(zoneID string) {
	s.MarkStale(zoneID, nil)
}

// MarkStale flags the zone as needing a refresh and records err.
func (s *Store) MarkStale(zoneID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, ok := s.zones[zoneID]
	if !ok {
		return
	}
	zd.cursor.Stale = true
	zd.cursor.LastError, zd.cursor.ErrorKind = errorText(err)
	zd.version++
	s.subs.notify(Event{Scope: ZoneScope(zoneID), Version: zd.version, Reason: ReasonStale})
}

// ZoneIDs returns the ids of zones with cached records, sorted.
func (s *Store) ZoneIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.zones))
	for id := range s.zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ensureZoneLocked returns the zone's record data, creating an unloaded
// placeholder for a zone known from a zone list.
func (s *Store) ensureZoneLocked(zoneID string) (*zoneData, error) {
	if zd, ok := s.zones[zoneID]; ok {
		return zd, nil
	}
	zone, ok := s.zoneLocked(zoneID)
	if !ok {
		return nil, model.NewError(model.KindNotFound, "lookup", "zone "+zoneID, nil)
	}
	zd := newZoneData(zone)
	s.zones[zone.ID] = zd
	return zd, nil
}

func (s *Store) updatePendingLocked() {
	n := 0
	for _, zd := range s.zones {
		for _, e := range zd.entries {
			if e.State.Pending() {
				n++
			}
		}
	}
	metrics.PendingRecords.Set(float64(n))
}

func errorText(err error) (string, model.Kind) {
	if err == nil {
		return "", ""
	}
	return err.Error(), model.KindOf(err)
}

func recordRef(key string) string {
	return fmt.Sprintf("record %s", key)
}
