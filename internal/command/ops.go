package command

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// CreateRecord validates draft, stages it as pending-create and commits it.
// On a commit failure the draft stays staged with the error attached and
// the error is returned alongside the entry.
func (c *Core) CreateRecord(ctx context.Context, zoneID string, draft model.Draft) (store.Entry, error) {
	entry, err := c.StageCreate(zoneID, draft)
	if err != nil {
		return store.Entry{}, err
	}
	unlock := c.locks.Lock(entry.Key)
	defer unlock()
	return c.createLocked(ctx, entry.Key)
}

// CreateRecords stages every draft and commits them concurrently. Drafts
// that fail validation are not staged. The returned entries are in draft
// order; entries of drafts that failed validation are empty.
func (c *Core) CreateRecords(ctx context.Context, zoneID string, drafts []model.Draft) ([]store.Entry, error) {
	entries := make([]store.Entry, len(drafts))
	errs := make([]error, len(drafts))
	for i, d := range drafts {
		entries[i], errs[i] = c.StageCreate(zoneID, d)
	}

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(c.workers)
	for i := range drafts {
		if errs[i] != nil {
			continue
		}
		g.Go(func() error {
			unlock := c.locks.Lock(entries[i].Key)
			defer unlock()
			entries[i], errs[i] = c.createLocked(gctx, entries[i].Key)
			return nil
		})
	}
	_ = g.Wait()
	return entries, errors.Join(errs...)
}

// StageCreate validates draft and adds it to the store without committing.
func (c *Core) StageCreate(zoneID string, draft model.Draft) (store.Entry, error) {
	zone, snap, err := c.zone(zoneID)
	if err != nil {
		return store.Entry{}, err
	}
	draft.Name = model.NormalizeName(draft.Name, zone.Name)
	if err := ValidateDraft(zone, draft, snap.Entries); err != nil {
		return store.Entry{}, err
	}
	return c.store.StageCreate(zone.ID, draft)
}

// UpdateRecord validates patch against the record, applies it locally and
// commits it. Commits of the same record are serialized: a second update
// starts from the outcome of the first.
func (c *Core) UpdateRecord(ctx context.Context, key string, patch model.Patch) (store.Entry, error) {
	unlock := c.locks.Lock(key)
	defer unlock()

	entry, zone, err := c.lookup(key)
	if err != nil {
		return store.Entry{}, err
	}
	switch {
	case entry.State == model.StateConflict:
		return entry, entry.ConflictError()
	case entry.State == model.StatePendingDelete:
		return entry, model.Validationf(recordResource(zone, entry.Record), "record is pending deletion")
	case entry.Record.System:
		return entry, model.Validationf(recordResource(zone, entry.Record), "system records are read-only")
	}
	if patch.Name != nil {
		name := model.NormalizeName(*patch.Name, zone.Name)
		patch.Name = &name
	}
	if err := c.validateAgainstZone(zone, patch.Apply(entry.Record), key); err != nil {
		return entry, err
	}

	entry, err = c.store.MarkDirty(key, patch)
	if err != nil {
		return entry, err
	}
	switch entry.State {
	case model.StateClean:
		return entry, nil
	case model.StatePendingCreate:
		return c.createLocked(ctx, key)
	}
	return c.updateLocked(ctx, key)
}

// DeleteRecord deletes the record remotely and drops it from the store.
// A draft that was never committed is discarded without a network call. A
// delete issued while the record's create is in flight waits for it and
// then deletes the created record. NotFound from the provider counts as
// success.
func (c *Core) DeleteRecord(ctx context.Context, key string) error {
	unlock := c.locks.Lock(key)
	defer unlock()

	entry, _, ok := c.store.Lookup(key)
	if !ok {
		return nil
	}
	switch {
	case entry.State == model.StatePendingCreate && entry.Record.ID == "":
		return c.store.Discard(key)
	case entry.State == model.StateConflict:
		return entry.ConflictError()
	}
	if entry.State != model.StatePendingDelete {
		if _, err := c.store.MarkPendingDelete(key); err != nil {
			return err
		}
	}
	_, err := c.deleteLocked(ctx, key)
	return err
}

// Retry commits the pending change of key again.
func (c *Core) Retry(ctx context.Context, key string) (store.Entry, error) {
	unlock := c.locks.Lock(key)
	defer unlock()
	return c.settleLocked(ctx, key)
}

// Discard drops the local change of key.
func (c *Core) Discard(key string) error {
	unlock := c.locks.Lock(key)
	defer unlock()
	return c.store.Discard(key)
}

// Resolve settles a conflict with the chosen resolution and commits the
// result when a remote change is still needed. patch is only used by Merge
// and is applied on top of the remote value.
func (c *Core) Resolve(ctx context.Context, key string, res store.Resolution, patch model.Patch) (store.Entry, error) {
	unlock := c.locks.Lock(key)
	defer unlock()

	entry, zone, err := c.lookup(key)
	if err != nil {
		return store.Entry{}, err
	}
	if entry.State != model.StateConflict {
		return entry, model.Validationf(recordResource(zone, entry.Record), "record is not in conflict")
	}
	if res == store.Merge {
		base := entry.Record
		if entry.Remote != nil {
			base = *entry.Remote
		}
		if err := c.validateAgainstZone(zone, patch.Apply(base), key); err != nil {
			return entry, err
		}
	}

	entry, err = c.store.ResolveConflict(key, res, patch)
	if err != nil || entry.Key == "" {
		return entry, err
	}
	return c.settleLocked(ctx, key)
}

// settleLocked commits whatever change key still carries.
func (c *Core) settleLocked(ctx context.Context, key string) (store.Entry, error) {
	entry, _, err := c.lookup(key)
	if err != nil {
		return store.Entry{}, err
	}
	switch entry.State {
	case model.StatePendingCreate:
		return c.createLocked(ctx, key)
	case model.StateDirty:
		return c.updateLocked(ctx, key)
	case model.StatePendingDelete:
		return c.deleteLocked(ctx, key)
	case model.StateConflict:
		return entry, entry.ConflictError()
	}
	return entry, nil
}

func (c *Core) createLocked(ctx context.Context, key string) (store.Entry, error) {
	entry, zone, err := c.lookup(key)
	if err != nil {
		return store.Entry{}, err
	}
	if entry.State != model.StatePendingCreate {
		return entry, nil
	}

	draft := draftOf(entry.Record)
	var created model.Record
	err = c.commit(ctx, recordResource(zone, entry.Record), func(ctx context.Context) error {
		var err error
		created, err = c.gw.CreateRecord(ctx, zone, draft)
		return err
	})
	return c.engine.ApplyOutcome(syncer.Outcome{Op: syncer.OpCreate, Key: key, Rev: entry.Rev, Record: created, Err: err})
}

func (c *Core) updateLocked(ctx context.Context, key string) (store.Entry, error) {
	entry, zone, err := c.lookup(key)
	if err != nil {
		return store.Entry{}, err
	}
	if entry.State != model.StateDirty {
		return entry, nil
	}

	patch := fullPatch(entry.Record)
	if entry.Basis != nil {
		patch = model.Diff(*entry.Basis, entry.Record)
	}
	var updated model.Record
	err = c.commit(ctx, recordResource(zone, entry.Record), func(ctx context.Context) error {
		var err error
		updated, err = c.gw.UpdateRecord(ctx, zone, entry.Record.ID, patch)
		return err
	})
	return c.engine.ApplyOutcome(syncer.Outcome{Op: syncer.OpUpdate, Key: key, Rev: entry.Rev, Record: updated, Err: err})
}

func (c *Core) deleteLocked(ctx context.Context, key string) (store.Entry, error) {
	entry, zone, err := c.lookup(key)
	if err != nil {
		return store.Entry{}, err
	}
	err = c.commit(ctx, recordResource(zone, entry.Record), func(ctx context.Context) error {
		return c.gw.DeleteRecord(ctx, zone, entry.Record.ID)
	})
	return c.engine.ApplyOutcome(syncer.Outcome{Op: syncer.OpDelete, Key: key, Rev: entry.Rev, Err: err})
}

func (c *Core) validateAgainstZone(zone model.Zone, r model.Record, key string) error {
	snap, _ := c.store.Get(zone.ID)
	return ValidateRecord(zone, r, key, snap.Entries)
}

func (c *Core) zone(zoneID string) (model.Zone, store.Snapshot, error) {
	zone, ok := c.store.Zone(zoneID)
	if !ok {
		return model.Zone{}, store.Snapshot{}, model.NewError(model.KindNotFound, "lookup", "zone "+zoneID, nil)
	}
	snap, _ := c.store.Get(zone.ID)
	return zone, snap, nil
}

func (c *Core) lookup(key string) (store.Entry, model.Zone, error) {
	entry, zone, ok := c.store.Lookup(key)
	if !ok {
		return store.Entry{}, model.Zone{}, model.NewError(model.KindNotFound, "lookup", "record "+key, nil)
	}
	return entry, zone, nil
}

func recordResource(zone model.Zone, r model.Record) string {
	return "record " + string(r.Type) + " " + r.FQDN(zone.Name)
}

func draftOf(r model.Record) model.Draft {
	d := model.Draft{Name: r.Name, Type: r.Type, Content: r.Content, TTL: r.TTL}
	if r.Type.UsesPriority() {
		d.Priority = model.Int(r.Priority)
	}
	return d
}

func fullPatch(r model.Record) model.Patch {
	p := model.Patch{
		Name:    model.String(r.Name),
		Content: model.String(r.Content),
		TTL:     model.Int(r.TTL),
	}
	if r.Type.UsesPriority() {
		p.Priority = model.Int(r.Priority)
	}
	return p
}
