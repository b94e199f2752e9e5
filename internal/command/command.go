// Package command is the single mutation layer shared by the CLI and the
// interactive UI. Every change is validated locally, written to the store
// optimistically, committed through the gateway and then settled in the
// store by the sync engine.
package command

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// DefaultWorkers is the default number of concurrent remote commits.
const DefaultWorkers = 4

// DefaultCommitTimeout bounds a single remote commit including retries.
const DefaultCommitTimeout = 2 * time.Minute

// Gateway is the subset of the API gateway used for commits.
type Gateway interface {
	CreateRecord(ctx context.Context, zone model.Zone, draft model.Draft) (model.Record, error)
	UpdateRecord(ctx context.Context, zone model.Zone, id string, patch model.Patch) (model.Record, error)
	DeleteRecord(ctx context.Context, zone model.Zone, id string) error
}

// Core executes record mutations.
type Core struct {
	gw            Gateway
	engine        *syncer.Engine
	store         *store.Store
	logger        *slog.Logger
	workers       int
	commitTimeout time.Duration

	locks *keyLocks
	sem   *semaphore.Weighted
	wg    sync.WaitGroup
}

// Option is a functional option for configuring the Core.
type Option func(*Core)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWorkers sets how many commits may be in flight at once.
func WithWorkers(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithCommitTimeout bounds each remote commit.
func WithCommitTimeout(d time.Duration) Option {
	return func(c *Core) {
		if d > 0 {
			c.commitTimeout = d
		}
	}
}

// New creates a command core committing through gw and settling outcomes
// through engine.
func New(gw Gateway, engine *syncer.Engine, opts ...Option) *Core {
	c := &Core{
		gw:            gw,
		engine:        engine,
		store:         engine.Store(),
		logger:        slog.Default(),
		workers:       DefaultWorkers,
		commitTimeout: DefaultCommitTimeout,
		locks:         newKeyLocks(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sem = semaphore.NewWeighted(int64(c.workers))
	return c
}

// Store returns the store mutations are written to.
func (c *Core) Store() *store.Store {
	return c.store
}

// Wait blocks until every submitted operation has finished.
func (c *Core) Wait() {
	c.wg.Wait()
}

// commit runs fn holding a worker slot. The call is detached from ctx so
// that a caller going away never abandons a half-finished write; ctx only
// bounds the wait for the slot.
func (c *Core) commit(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return model.NewError(model.KindTransient, "commit", resource, err)
	}
	defer c.sem.Release(1)

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.commitTimeout)
	defer cancel()
	return fn(commitCtx)
}
