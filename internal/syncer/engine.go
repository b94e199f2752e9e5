// Package syncer keeps the store in step with the provider: it decides when
// cached data is too old to serve, refreshes zones, and applies the outcome
// of remote commits to the store.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"gitlab.bluewillows.net/root/zonedeck/internal/metrics"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Gateway is the subset of the API gateway the engine reads through.
type Gateway interface {
	Whoami(ctx context.Context) (model.Account, error)
	ListZones(ctx context.Context, accountID string) ([]model.Zone, error)
	ListRecords(ctx context.Context, zone model.Zone) ([]model.Record, error)
}

// Config holds engine configuration.
type Config struct {
	// StaleAfter is how long fetched data is served without a refresh.
	// Default: 30 seconds
	StaleAfter time.Duration

	// FetchTimeout bounds a refresh that no caller is waiting for anymore.
	// Default: 2 minutes
	FetchTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfter:   30 * time.Second,
		FetchTimeout: 2 * time.Minute,
	}
}

// Engine coordinates reads between the store and the gateway.
type Engine struct {
	gw     Gateway
	store  *store.Store
	config Config
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group
}

// Option is a functional option for configuring the Engine.
type Option func(*Engine)

// WithConfig sets the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		if cfg.StaleAfter > 0 {
			e.config.StaleAfter = cfg.StaleAfter
		}
		if cfg.FetchTimeout > 0 {
			e.config.FetchTimeout = cfg.FetchTimeout
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock sets the time source used for freshness decisions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates a sync engine.
func New(gw Gateway, st *store.Store, opts ...Option) *Engine {
	e := &Engine{
		gw:     gw,
		store:  st,
		config: DefaultConfig(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store returns the store the engine writes to.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Account returns the active account, resolving it through the gateway when
// no active session exists.
func (e *Engine) Account(ctx context.Context) (model.Account, error) {
	if acct, ok := e.store.Account(); ok && acct.Active {
		return acct, nil
	}
	v, err := e.wait(ctx, "whoami", "account", func(fetchCtx context.Context) (any, error) {
		return e.gw.Whoami(fetchCtx)
	})
	if err != nil {
		e.handleFailure(err)
		return model.Account{}, err
	}
	acct := v.(model.Account)
	e.store.SetAccount(acct)
	e.logger.Debug("account resolved", slog.String("account", acct.ID))
	acct.Active = true
	return acct, nil
}

// Zones returns the zone list of the account, fetching it when the cached
// list is missing, stale or force is set. On failure the cached list, if
// any, is returned together with the error.
func (e *Engine) Zones(ctx context.Context, accountID string, force bool) ([]model.Zone, error) {
	list, ok := e.store.Zones(accountID)
	if ok && !force && list.Cursor.Fresh(e.now(), e.config.StaleAfter) {
		return list.Zones, nil
	}

	v, err := e.wait(ctx, "zones:"+accountID, "account "+accountID, func(fetchCtx context.Context) (any, error) {
		zones, err := e.gw.ListZones(fetchCtx, accountID)
		if err != nil {
			return nil, err
		}
		e.store.PutZones(accountID, zones)
		return zones, nil
	})
	if err != nil {
		if !model.IsUnauthorized(err) {
			e.store.MarkZonesStale(accountID, err)
		}
		e.handleFailure(err)
		cached, _ := e.store.Zones(accountID)
		return cached.Zones, err
	}
	zones := v.([]model.Zone)
	out := make([]model.Zone, len(zones))
	copy(out, zones)
	return out, nil
}

// ResolveZone finds a zone by name or id, loading the zone list if needed.
func (e *Engine) ResolveZone(ctx context.Context, accountID, ref string) (model.Zone, error) {
	if z, ok := e.store.Zone(ref); ok {
		return z, nil
	}
	zones, err := e.Zones(ctx, accountID, true)
	if err != nil {
		return model.Zone{}, err
	}
	ref = strings.TrimSuffix(ref, ".")
	for _, z := range zones {
		if z.ID == ref || strings.EqualFold(z.Name, ref) {
			return z, nil
		}
	}
	return model.Zone{}, model.NewError(model.KindNotFound, "lookup", "zone "+ref, fmt.Errorf("no such zone in account %s", accountID))
}

// EnsureFresh returns the zone's records, refreshing first when the cursor
// is missing, stale or older than StaleAfter. When the refresh fails the
// previous snapshot (possibly empty) is returned along with the error.
func (e *Engine) EnsureFresh(ctx context.Context, zone model.Zone) (store.Snapshot, error) {
	snap, ok := e.store.Get(zone.ID)
	if ok && snap.Cursor.Fresh(e.now(), e.config.StaleAfter) {
		return snap, nil
	}
	if _, err := e.Refresh(ctx, zone); err != nil {
		snap, _ = e.store.Get(zone.ID)
		return snap, err
	}
	snap, _ = e.store.Get(zone.ID)
	return snap, nil
}

// Refresh fetches the zone's records and swaps them into the store.
// Concurrent refreshes of the same zone share one fetch. Cancelling ctx
// stops waiting but lets the fetch complete and update the store.
func (e *Engine) Refresh(ctx context.Context, zone model.Zone) (*Result, error) {
	v, shared, err := e.waitShared(ctx, "zone:"+zone.ID, "zone "+zone.Name, func(fetchCtx context.Context) (any, error) {
		return e.refresh(fetchCtx, zone)
	})
	if err != nil {
		return nil, err
	}
	r := *v.(*Result)
	r.Shared = shared
	return &r, nil
}

func (e *Engine) refresh(ctx context.Context, zone model.Zone) (*Result, error) {
	result := newResult(zone, e.now())
	records, err := e.gw.ListRecords(ctx, zone)
	if err != nil {
		metrics.Refreshes.WithLabelValues("error").Inc()
		if !model.IsUnauthorized(err) {
			e.store.MarkStale(zone.ID, err)
		}
		if model.IsNotFound(err) {
			e.store.MarkZonesStale(zone.AccountID, err)
		}
		e.handleFailure(err)
		e.logger.Warn("zone refresh failed",
			slog.String("zone", zone.Name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	result.Fetched = len(records)
	result.Report = e.store.PutRecords(zone, records)
	result.EndTime = e.now()

	metrics.Refreshes.WithLabelValues("ok").Inc()
	if result.Report.Conflicts > 0 {
		metrics.Conflicts.Add(float64(result.Report.Conflicts))
	}
	e.logger.Debug("zone refreshed",
		slog.String("zone", zone.Name),
		slog.Int("records", result.Fetched),
		slog.Int("conflicts", result.Report.Conflicts),
		slog.Duration("duration", result.Duration()),
	)
	return result, nil
}

// handleFailure ends the session when the credential was rejected.
func (e *Engine) handleFailure(err error) {
	if model.IsUnauthorized(err) {
		e.store.EndSession()
	}
}

func (e *Engine) wait(ctx context.Context, key, resource string, fn func(context.Context) (any, error)) (any, error) {
	v, _, err := e.waitShared(ctx, key, resource, fn)
	return v, err
}

// waitShared runs fn once per key under a context detached from the caller,
// and waits for it or for ctx.
func (e *Engine) waitShared(ctx context.Context, key, resource string, fn func(context.Context) (any, error)) (any, bool, error) {
	ch := e.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.FetchTimeout)
		defer cancel()
		return fn(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return nil, false, model.NewError(model.KindTransient, "refresh", resource, ctx.Err())
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}
