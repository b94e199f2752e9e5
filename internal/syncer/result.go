package syncer

import (
	"fmt"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Result holds the outcome of one zone refresh.
type Result struct {
	// Zone is the refreshed zone.
	Zone model.Zone

	// StartTime is when the fetch started.
	StartTime time.Time

	// EndTime is when the new set was swapped in.
	EndTime time.Time

	// Fetched is the number of records returned by the provider.
	Fetched int

	// Report is what the swap-in changed in the cache.
	Report store.RefreshReport

	// Shared is true when this caller joined a refresh already in flight.
	Shared bool
}

func newResult(zone model.Zone, now time.Time) *Result {
	return &Result{Zone: zone, StartTime: now}
}

// Duration returns how long the refresh took.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// HasConflicts reports whether any record is in conflict after the refresh.
func (r *Result) HasConflicts() bool {
	return r.Report.Conflicts > 0
}

// Summary returns a human-readable summary of the refresh.
func (r *Result) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Refreshed %s in %s\n", r.Zone.Name, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "  Records fetched: %d\n", r.Fetched)
	fmt.Fprintf(&sb, "  Added: %d\n", r.Report.Added)
	fmt.Fprintf(&sb, "  Updated: %d\n", r.Report.Updated)
	fmt.Fprintf(&sb, "  Removed: %d\n", r.Report.Removed)
	fmt.Fprintf(&sb, "  Local changes kept: %d\n", r.Report.Preserved)
	if r.HasConflicts() {
		fmt.Fprintf(&sb, "  Conflicts: %d\n", r.Report.Conflicts)
		for _, key := range r.Report.ConflictKeys {
			fmt.Fprintf(&sb, "    - %s\n", key)
		}
	}
	return sb.String()
}
