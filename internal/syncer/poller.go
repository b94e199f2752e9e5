package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// ErrPollerRunning is returned when Start is called on a running poller.
var ErrPollerRunning = errors.New("poller already running")

// PollerConfig holds background refresh configuration.
type PollerConfig struct {
	// Interval is how often watched zones are checked.
	// Default: 15 seconds
	Interval time.Duration

	// DebounceInterval groups rapid Trigger calls into one poll.
	// Default: 250 milliseconds
	DebounceInterval time.Duration
}

// DefaultPollerConfig returns a PollerConfig with sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:         15 * time.Second,
		DebounceInterval: 250 * time.Millisecond,
	}
}

// RefreshFunc is called after each background refresh attempt.
type RefreshFunc func(zone model.Zone, result *Result, err error)

// Poller refreshes zones that have subscribers once their data goes stale.
type Poller struct {
	engine    *Engine
	config    PollerConfig
	logger    *slog.Logger
	onRefresh RefreshFunc

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	wake     chan struct{}
	debounce *time.Timer
}

// PollerOption is a functional option for configuring the Poller.
type PollerOption func(*Poller)

// WithPollerConfig sets the poller configuration.
func WithPollerConfig(cfg PollerConfig) PollerOption {
	return func(p *Poller) {
		if cfg.Interval > 0 {
			p.config.Interval = cfg.Interval
		}
		if cfg.DebounceInterval > 0 {
			p.config.DebounceInterval = cfg.DebounceInterval
		}
	}
}

// WithPollerLogger sets a custom logger.
func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithOnRefresh registers a callback for background refresh results.
func WithOnRefresh(fn RefreshFunc) PollerOption {
	return func(p *Poller) {
		p.onRefresh = fn
	}
}

// NewPoller creates a poller driven by engine.
func NewPoller(engine *Engine, opts ...PollerOption) *Poller {
	p := &Poller{
		engine: engine,
		config: DefaultPollerConfig(),
		logger: engine.logger,
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling in the background. It returns immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrPollerRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	p.logger.Debug("starting poller",
		slog.Duration("interval", p.config.Interval),
	)
	go p.loop(ctx, p.done)
	return nil
}

// Stop stops polling and waits for an in-progress poll to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	if p.debounce != nil {
		p.debounce.Stop()
		p.debounce = nil
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Debug("poller stopped")
}

// IsRunning returns true if the poller is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Trigger schedules a poll after the debounce interval. Calls within the
// interval are merged.
func (p *Poller) Trigger() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.config.DebounceInterval, p.wakeUp)
}

// wakeUp schedules a poll immediately, bypassing debounce.
func (p *Poller) wakeUp() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}
		p.Poll(ctx)
	}
}

// Poll refreshes every watched zone whose data is stale. It returns the
// number of zones refreshed successfully.
func (p *Poller) Poll(ctx context.Context) int {
	st := p.engine.store
	if acct, ok := st.Account(); ok && !acct.Active {
		return 0
	}
	refreshed := 0
	now := p.engine.now()
	for _, zoneID := range st.SubscribedZones() {
		if ctx.Err() != nil {
			break
		}
		zone, ok := st.Zone(zoneID)
		if !ok {
			continue
		}
		if snap, loaded := st.Get(zoneID); loaded && snap.Cursor.Fresh(now, p.engine.config.StaleAfter) {
			continue
		}
		result, err := p.engine.Refresh(ctx, zone)
		if err == nil {
			refreshed++
		} else if ctx.Err() == nil {
			p.logger.Debug("background refresh failed",
				slog.String("zone", zone.Name),
				slog.String("error", err.Error()),
			)
		}
		if p.onRefresh != nil && ctx.Err() == nil {
			p.onRefresh(zone, result, err)
		}
		if model.IsUnauthorized(err) {
			break
		}
	}
	return refreshed
}

// Watch subscribes to zoneID so the poller keeps it fresh. Close the
// returned subscription to stop watching.
func (p *Poller) Watch(zoneID string) *store.Subscription {
	sub := p.engine.store.Subscribe(store.ZoneScope(zoneID))
	p.wakeUp()
	return sub
}
