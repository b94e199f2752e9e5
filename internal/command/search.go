package command

import (
	"iter"
	"strings"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Predicate selects records.
type Predicate func(model.Record) bool

// All matches every record.
func All() Predicate {
	return func(model.Record) bool { return true }
}

// ByType matches records of type t.
func ByType(t model.RecordType) Predicate {
	return func(r model.Record) bool { return r.Type == t }
}

// ByName matches records whose name contains name, case-insensitively.
// "@" matches the apex.
func ByName(name string) Predicate {
	name = strings.ToLower(strings.TrimSpace(name))
	return func(r model.Record) bool {
		if name == "@" {
			return r.Name == ""
		}
		return strings.Contains(strings.ToLower(r.Name), name)
	}
}

// ContentContains matches records whose content contains s, case-insensitively.
func ContentContains(s string) Predicate {
	s = strings.ToLower(s)
	return func(r model.Record) bool {
		return strings.Contains(strings.ToLower(r.Content), s)
	}
}

// Match is the free-text filter of the record list: every word must match
// the name, type or content of the record.
func Match(text string) Predicate {
	words := strings.Fields(strings.ToLower(text))
	return func(r model.Record) bool {
		hay := strings.ToLower(r.DisplayName() + " " + string(r.Type) + " " + r.Content)
		for _, w := range words {
			if !strings.Contains(hay, w) {
				return false
			}
		}
		return true
	}
}

// And matches records selected by every predicate.
func And(ps ...Predicate) Predicate {
	return func(r model.Record) bool {
		for _, p := range ps {
			if p != nil && !p(r) {
				return false
			}
		}
		return true
	}
}

// Search returns the records of the zone matching p, keyed by store key.
// The sequence reads a fresh snapshot each time it is ranged over, so it
// can be restarted, and never blocks on the network.
func (c *Core) Search(zoneID string, p Predicate) iter.Seq2[string, model.Record] {
	if p == nil {
		p = All()
	}
	return func(yield func(string, model.Record) bool) {
		snap, ok := c.store.Get(zoneID)
		if !ok {
			return
		}
		for _, e := range snap.Entries {
			if !p(e.Record) {
				continue
			}
			if !yield(e.Key, e.Record) {
				return
			}
		}
	}
}
