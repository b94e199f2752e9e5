package store

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// LocalKeyPrefix prefixes keys of records staged locally.
const LocalKeyPrefix = "local-"

func newLocalKey() string {
	return LocalKeyPrefix + uuid.NewString()
}

// RefreshReport summarizes what a PutRecords call changed.
type RefreshReport struct {
	Version      uint64
	Added        int
	Updated      int
	Removed      int
	Preserved    int
	Conflicts    int
	ConflictKeys []string
}

// PutRecords replaces the zone's canonical record set with a fresh fetch.
//
// The new set is built aside and swapped in under the write lock, so readers
// see either the old or the new set. Entries with local changes are carried
// over: an entry whose basis still matches the fetched value keeps its edit;
// one whose basis diverged, or whose record vanished remotely, becomes a
// conflict holding both sides.
func (s *Store) PutRecords(zone model.Zone, records []model.Record) RefreshReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.zones[zone.ID]
	if !ok {
		old = newZoneData(zone)
	}
	next := newZoneData(zone)
	next.version = old.version + 1
	next.loaded = true
	next.cursor = Cursor{FetchedAt: s.now()}

	var report RefreshReport
	matched := make(map[string]bool, len(records))

	add := func(e *Entry) {
		next.entries[e.Key] = e
		next.order = append(next.order, e.Key)
		if id := e.Record.ID; id != "" {
			next.byRemote[id] = e.Key
		}
		if e.Remote != nil && e.Remote.ID != "" {
			next.byRemote[e.Remote.ID] = e.Key
		}
	}

	for _, r := range records {
		r.ZoneID = zone.ID
		remote := r
		key, ok := old.byRemote[r.ID]
		if !ok {
			key = r.ID
		}
		if matched[key] {
			s.logger.Warn("provider returned duplicate record id",
				slog.String("zone", zone.Name),
				slog.String("id", r.ID),
			)
			continue
		}
		matched[key] = true

		prev, ok := old.entries[key]
		if !ok {
			add(&Entry{Key: key, Record: remote, Basis: &remote, State: model.StateClean})
			report.Added++
			continue
		}

		e := prev.clone()
		switch prev.State {
		case model.StateClean:
			if !prev.Record.SameContent(remote) {
				report.Updated++
			}
			e = Entry{Key: key, Record: remote, Basis: &remote, State: model.StateClean, Rev: prev.Rev}
		case model.StateDirty, model.StatePendingDelete:
			if prev.Basis != nil && prev.Basis.SameContent(remote) {
				e.Basis = &remote
				report.Preserved++
			} else {
				e.State = model.StateConflict
				e.Remote = &remote
				e.RemoteGone = false
				report.Conflicts++
				report.ConflictKeys = append(report.ConflictKeys, key)
			}
		case model.StatePendingCreate:
			// Created remotely while the commit response is still
			// outstanding. The commit outcome settles it.
			report.Preserved++
		case model.StateConflict:
			e.Remote = &remote
			e.RemoteGone = false
			report.Conflicts++
			report.ConflictKeys = append(report.ConflictKeys, key)
		}
		add(&e)
	}

	for _, key := range old.order {
		if matched[key] {
			continue
		}
		prev := old.entries[key]
		switch prev.State {
		case model.StateClean, model.StatePendingDelete:
			report.Removed++
		case model.StatePendingCreate:
			e := prev.clone()
			add(&e)
			report.Preserved++
		case model.StateDirty, model.StateConflict:
			e := prev.clone()
			e.State = model.StateConflict
			e.Remote = nil
			e.RemoteGone = true
			add(&e)
			report.Conflicts++
			report.ConflictKeys = append(report.ConflictKeys, key)
		}
	}

	for key := range old.entries {
		delete(s.keyZone, key)
	}
	for key := range next.entries {
		s.keyZone[key] = zone.ID
	}
	s.zones[zone.ID] = next
	report.Version = next.version
	s.updatePendingLocked()
	s.subs.notify(Event{Scope: ZoneScope(zone.ID), Version: next.version, Reason: ReasonRefreshed})
	return report
}

// StageCreate adds a draft to the zone in state pending-create.
func (s *Store) StageCreate(zoneID string, draft model.Draft) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, err := s.ensureZoneLocked(zoneID)
	if err != nil {
		return Entry{}, err
	}
	rec := draft.Record(zd.zone.ID)
	e := &Entry{Key: s.newKey(), Record: rec, State: model.StatePendingCreate, Rev: 1}
	zd.entries[e.Key] = e
	zd.order = append(zd.order, e.Key)
	s.keyZone[e.Key] = zd.zone.ID
	return s.changedLocked(zd, e, ReasonStaged), nil
}

// MarkDirty applies patch to the local view of key.
func (s *Store) MarkDirty(key string, patch model.Patch) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, e, ok := s.entryLocked(key)
	if !ok {
		return Entry{}, model.NewError(model.KindNotFound, "edit", recordRef(key), nil)
	}
	switch e.State {
	case model.StateConflict:
		return Entry{}, e.ConflictError()
	case model.StatePendingDelete:
		return Entry{}, model.Validationf(recordRef(key), "record is pending deletion")
	}
	if e.Record.System {
		return Entry{}, model.Validationf(recordRef(key), "system records are read-only")
	}

	e.Record = patch.Apply(e.Record)
	e.Rev++
	e.LastError, e.ErrorKind = "", ""
	if e.State != model.StatePendingCreate {
		e.State = model.StateDirty
		if e.Basis != nil && e.Basis.SameContent(e.Record) {
			e.State = model.StateClean
		}
	}
	return s.changedLocked(zd, e, ReasonEdited), nil
}

// MarkPendingDelete stages the deletion of key.
func (s *Store) MarkPendingDelete(key string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, e, ok := s.entryLocked(key)
	if !ok {
		return Entry{}, model.NewError(model.KindNotFound, "delete", recordRef(key), nil)
	}
	switch {
	case e.State == model.StateConflict:
		return Entry{}, e.ConflictError()
	case e.State == model.StatePendingCreate && e.Record.ID == "":
		return Entry{}, model.Validationf(recordRef(key), "record has not been created yet")
	case e.Record.System:
		return Entry{}, model.Validationf(recordRef(key), "system records are read-only")
	}
	e.State = model.StatePendingDelete
	e.Rev++
	e.LastError, e.ErrorKind = "", ""
	return s.changedLocked(zd, e, ReasonEdited), nil
}

// MarkCommitted records a successful create or update. canonical is the
// provider's value and rev the local revision that was sent. If the record
// was edited again meanwhile, the newer edit is kept and stays dirty on top
// of canonical.
func (s *Store) MarkCommitted(key string, canonical model.Record, rev uint64) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, e, ok := s.entryLocked(key)
	if !ok {
		zoneID := canonical.ZoneID
		var err error
		if zd, err = s.ensureZoneLocked(zoneID); err != nil {
			return Entry{}, err
		}
		e = &Entry{Key: key}
		zd.entries[key] = e
		zd.order = append(zd.order, key)
		s.keyZone[key] = zd.zone.ID
	}
	canonical.ZoneID = zd.zone.ID

	// A refresh may already hold the created record under its remote id.
	if other, ok := zd.byRemote[canonical.ID]; ok && other != key {
		s.removeLocked(zd, other)
	}

	basis := canonical
	e.Basis = &basis
	e.Remote, e.RemoteGone = nil, false
	e.LastError, e.ErrorKind = "", ""
	if e.Rev == rev || e.State == model.StateClean {
		e.Record = canonical
		e.State = model.StateClean
	} else {
		e.Record.ID = canonical.ID
		e.Record.ZoneID = canonical.ZoneID
		// The committed value is the new basis, so a conflict flagged
		// against the previous one no longer applies.
		if e.State == model.StatePendingCreate || e.State == model.StateConflict {
			e.State = model.StateDirty
		}
	}
	zd.byRemote[canonical.ID] = key
	return s.changedLocked(zd, e, ReasonCommitted), nil
}

// MarkDeleted removes key after a successful remote delete.
func (s *Store) MarkDeleted(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, _, ok := s.entryLocked(key)
	if !ok {
		return
	}
	s.removeLocked(zd, key)
	zd.version++
	s.updatePendingLocked()
	s.subs.notify(Event{Scope: ZoneScope(zd.zone.ID), Version: zd.version, Keys: []string{key}, Reason: ReasonDeleted})
}

// MarkFailed attaches err to key. The entry keeps its state and local edit.
func (s *Store) MarkFailed(key string, err error) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, e, ok := s.entryLocked(key)
	if !ok {
		return Entry{}, model.NewError(model.KindNotFound, "commit", recordRef(key), nil)
	}
	e.LastError, e.ErrorKind = errorText(err)
	return s.changedLocked(zd, e, ReasonFailed), nil
}

// MarkConflict flags key as conflicting with remote. A nil remote means the
// record no longer exists remotely.
func (s *Store) MarkConflict(key string, remote *model.Record) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, e, ok := s.entryLocked(key)
	if !ok {
		return Entry{}, model.NewError(model.KindNotFound, "conflict", recordRef(key), nil)
	}
	e.State = model.StateConflict
	if remote != nil {
		r := *remote
		e.Remote, e.RemoteGone = &r, false
	} else {
		e.Remote, e.RemoteGone = nil, true
	}
	return s.changedLocked(zd, e, ReasonConflict), nil
}

// Resolution is the caller's choice for a conflicting record.
type Resolution int

const (
	// KeepLocal re-stages the local edit on top of the remote value.
	KeepLocal Resolution = iota
	// KeepRemote discards the local edit.
	KeepRemote
	// Merge stages a caller-supplied patch on top of the remote value.
	Merge
)

func (r Resolution) String() string {
	switch r {
	case KeepLocal:
		return "keep-local"
	case KeepRemote:
		return "keep-remote"
	case Merge:
		return "merge"
	}
	return fmt.Sprintf("resolution(%d)", int(r))
}

// ParseResolution parses the String form of a resolution.
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "keep-local", "local":
		return KeepLocal, nil
	case "keep-remote", "remote":
		return KeepRemote, nil
	case "merge":
		return Merge, nil
	}
	return 0, fmt.Errorf("unknown resolution %q (want keep-local, keep-remote or merge)", s)
}

// ResolveConflict settles a conflicting entry. patch is only used by Merge.
// The returned entry is nil-keyed when the resolution removed it.
func (s *Store) ResolveConflict(key string, res Resolution, patch model.Patch) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, e, ok := s.entryLocked(key)
	if !ok {
		return Entry{}, model.NewError(model.KindNotFound, "resolve", recordRef(key), nil)
	}
	if e.State != model.StateConflict || (e.Remote == nil && !e.RemoteGone) {
		return Entry{}, model.Validationf(recordRef(key), "record is not in conflict")
	}

	if e.RemoteGone {
		switch res {
		case KeepRemote:
			s.removeLocked(zd, key)
			zd.version++
			s.updatePendingLocked()
			s.subs.notify(Event{Scope: ZoneScope(zd.zone.ID), Version: zd.version, Keys: []string{key}, Reason: ReasonResolved})
			return Entry{}, nil
		case Merge:
			e.Record = patch.Apply(e.Record)
		}
		// Recreate: the remote record is gone, so the edit becomes a draft.
		if e.Record.ID != "" {
			delete(zd.byRemote, e.Record.ID)
		}
		e.Record.ID = ""
		e.Basis = nil
		e.State = model.StatePendingCreate
	} else {
		remote := *e.Remote
		switch res {
		case KeepLocal:
			e.Record.ID = remote.ID
		case KeepRemote:
			e.Record = remote
		case Merge:
			e.Record = patch.Apply(remote)
		}
		e.Basis = &remote
		e.State = model.StateDirty
		if remote.SameContent(e.Record) {
			e.State = model.StateClean
		}
	}
	e.Remote, e.RemoteGone = nil, false
	e.LastError, e.ErrorKind = "", ""
	e.Rev++
	return s.changedLocked(zd, e, ReasonResolved), nil
}

// Discard drops the local change of key: drafts are removed, edits and
// staged deletes revert to the basis, conflicts take the remote value.
func (s *Store) Discard(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	zd, e, ok := s.entryLocked(key)
	if !ok {
		return model.NewError(model.KindNotFound, "discard", recordRef(key), nil)
	}
	switch {
	case e.State == model.StatePendingCreate && e.Record.ID == "",
		e.State == model.StateConflict && e.RemoteGone:
		s.removeLocked(zd, key)
		zd.version++
		s.updatePendingLocked()
		s.subs.notify(Event{Scope: ZoneScope(zd.zone.ID), Version: zd.version, Keys: []string{key}, Reason: ReasonDiscarded})
		return nil
	case e.State == model.StateConflict && e.Remote != nil:
		remote := *e.Remote
		e.Record, e.Basis = remote, &remote
	case e.Basis != nil:
		e.Record = *e.Basis
	}
	e.State = model.StateClean
	e.Remote, e.RemoteGone = nil, false
	e.LastError, e.ErrorKind = "", ""
	e.Rev++
	s.changedLocked(zd, e, ReasonDiscarded)
	return nil
}

// removeLocked drops key from zd without notifying.
func (s *Store) removeLocked(zd *zoneData, key string) {
	if _, ok := zd.entries[key]; !ok {
		return
	}
	delete(zd.entries, key)
	delete(s.keyZone, key)
	for id, k := range zd.byRemote {
		if k == key {
			delete(zd.byRemote, id)
		}
	}
	for i, k := range zd.order {
		if k == key {
			zd.order = append(zd.order[:i:i], zd.order[i+1:]...)
			break
		}
	}
}

// changedLocked bumps the zone version, notifies subscribers and returns a
// copy of e.
func (s *Store) changedLocked(zd *zoneData, e *Entry, reason string) Entry {
	zd.version++
	s.updatePendingLocked()
	s.subs.notify(Event{Scope: ZoneScope(zd.zone.ID), Version: zd.version, Keys: []string{e.Key}, Reason: reason})
	return e.clone()
}
