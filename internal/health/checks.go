package health

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
)

// Errors reported by SessionChecker.
var (
	ErrNoSession    = errors.New("no account resolved yet")
	ErrSessionEnded = errors.New("session ended: credentials rejected")
)

// SessionChecker reports ready while the store holds an active account.
func SessionChecker(st *store.Store) HealthChecker {
	return func(context.Context) error {
		acct, ok := st.Account()
		switch {
		case !ok:
			return ErrNoSession
		case !acct.Active:
			return ErrSessionEnded
		}
		return nil
	}
}

// StaleCacheChecker reports degraded while any loaded zone is served from
// a cache whose last refresh failed.
func StaleCacheChecker(st *store.Store) DegradedChecker {
	return func(context.Context) (bool, string) {
		var stale []string
		for _, id := range st.ZoneIDs() {
			snap, ok := st.Get(id)
			if ok && snap.Cursor.Stale {
				stale = append(stale, snap.Zone.Name)
			}
		}
		if len(stale) == 0 {
			return false, ""
		}
		sort.Strings(stale)
		return true, fmt.Sprintf("stale zones: %s", strings.Join(stale, ", "))
	}
}
