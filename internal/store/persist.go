package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/afero"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

const snapshotFormat = 1

type persistedZone struct {
	Zone      model.Zone `json:"zone"`
	FetchedAt time.Time  `json:"fetched_at"`
	Entries   []Entry    `json:"entries"`
}

type persistedState struct {
	Format         int             `json:"format"`
	SavedAt        time.Time       `json:"saved_at"`
	AccountID      string          `json:"account_id"`
	ZonesFetchedAt time.Time       `json:"zones_fetched_at"`
	Zones          []model.Zone    `json:"zones"`
	Records        []persistedZone `json:"records"`
}

// CachePath returns the snapshot path for an account inside dir.
func CachePath(dir, accountID string) string {
	return filepath.Join(dir, accountID+".json")
}

// Save writes the account's cached zones and records, including pending
// local changes, to path. The file is replaced atomically.
func (s *Store) Save(fs afero.Fs, path, accountID string) error {
	s.mu.RLock()
	state := persistedState{Format: snapshotFormat, SavedAt: s.now().UTC(), AccountID: accountID}
	if list, ok := s.lists[accountID]; ok && list.loaded {
		state.ZonesFetchedAt = list.cursor.FetchedAt
		state.Zones = append(state.Zones, list.zones...)
	}
	for _, id := range sortedKeys(s.zones) {
		zd := s.zones[id]
		if zd.zone.AccountID != accountID || !zd.loaded {
			continue
		}
		snap := zd.snapshot()
		state.Records = append(state.Records, persistedZone{Zone: zd.zone, FetchedAt: zd.cursor.FetchedAt, Entries: snap.Entries})
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	tmp, err := afero.TempFile(fs, dir, ".cache-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = fs.Remove(tmpName)
		return fmt.Errorf("writing cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("closing cache: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		_ = fs.Remove(tmpName)
		return fmt.Errorf("replacing cache: %w", err)
	}
	return nil
}

// Load restores a snapshot written by Save. A missing file is a cold start
// and returns (false, nil). Restored cursors are stale, so reads refresh
// before trusting the data.
func (s *Store) Load(fs afero.Fs, path, accountID string) (bool, error) {
	data, err := afero.ReadFile(fs, path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading cache: %w", err)
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		return false, fmt.Errorf("parsing cache %s: %w", path, err)
	}
	if state.Format != snapshotFormat {
		return false, fmt.Errorf("cache %s has unsupported format %d", path, state.Format)
	}
	if state.AccountID != accountID {
		return false, fmt.Errorf("cache %s belongs to account %s", path, state.AccountID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if state.Zones != nil {
		s.lists[accountID] = &zoneList{
			version: 1,
			loaded:  true,
			zones:   state.Zones,
			cursor:  Cursor{FetchedAt: state.ZonesFetchedAt, Stale: true},
		}
	}
	for _, pz := range state.Records {
		if _, exists := s.zones[pz.Zone.ID]; exists {
			continue
		}
		zd := newZoneData(pz.Zone)
		zd.version = 1
		zd.loaded = true
		zd.cursor = Cursor{FetchedAt: pz.FetchedAt, Stale: true}
		for _, e := range pz.Entries {
			if e.Key == "" {
				continue
			}
			zd.entries[e.Key] = &e
			zd.order = append(zd.order, e.Key)
			if e.Record.ID != "" {
				zd.byRemote[e.Record.ID] = e.Key
			}
			if e.Remote != nil && e.Remote.ID != "" {
				zd.byRemote[e.Remote.ID] = e.Key
			}
			s.keyZone[e.Key] = zd.zone.ID
		}
		s.zones[zd.zone.ID] = zd
	}
	s.updatePendingLocked()
	s.subs.notify(Event{Scope: AccountScope(accountID), Reason: ReasonZones})
	return true, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
