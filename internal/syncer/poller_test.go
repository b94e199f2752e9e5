package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

func TestPollRefreshesWatchedStaleZones(t *testing.T) {
	f := newFixture(t)
	watched := f.zone(t, "driftwood.io")
	other := f.zone(t, "emberlane.net")

	var mu sync.Mutex
	var seen []string
	p := NewPoller(f.engine, WithOnRefresh(func(zone model.Zone, result *Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			seen = append(seen, zone.Name)
		}
	}))
	sub := p.Watch(watched.ID)
	defer sub.Close()

	if got := p.Poll(context.Background()); got != 1 {
		t.Fatalf("expected 1 zone refreshed, got %d", got)
	}
	if _, ok := f.store.Get(watched.ID); !ok {
		t.Error("expected watched zone to be loaded")
	}
	if _, ok := f.store.Get(other.ID); ok {
		t.Error("expected unwatched zone to stay unloaded")
	}

	if got := p.Poll(context.Background()); got != 0 {
		t.Errorf("expected fresh zone to be skipped, got %d refreshes", got)
	}

	f.clock.Advance(time.Minute)
	if got := p.Poll(context.Background()); got != 1 {
		t.Errorf("expected stale zone to be refreshed, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "driftwood.io" {
		t.Errorf("unexpected refresh callbacks %v", seen)
	}
}

func TestPollSkipsEndedSession(t *testing.T) {
	f := newFixture(t)
	zone := f.zone(t, "driftwood.io")
	f.store.SetAccount(model.Account{ID: demoAccount})
	f.store.EndSession()

	p := NewPoller(f.engine)
	sub := p.Watch(zone.ID)
	defer sub.Close()
	if got := p.Poll(context.Background()); got != 0 {
		t.Errorf("expected no refresh without a session, got %d", got)
	}
}

func TestPollerStartStop(t *testing.T) {
	f := newFixture(t)
	zone := f.zone(t, "driftwood.io")

	refreshed := make(chan string, 4)
	p := NewPoller(f.engine,
		WithPollerConfig(PollerConfig{Interval: time.Hour, DebounceInterval: 5 * time.Millisecond}),
		WithOnRefresh(func(zone model.Zone, result *Result, err error) {
			refreshed <- zone.Name
		}),
	)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !p.IsRunning() {
		t.Error("expected poller to be running")
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrPollerRunning) {
		t.Errorf("expected ErrPollerRunning, got %v", err)
	}

	sub := p.Watch(zone.ID)
	defer sub.Close()
	select {
	case name := <-refreshed:
		if name != "driftwood.io" {
			t.Errorf("expected driftwood.io, got %s", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watched zone was not refreshed")
	}

	p.Stop()
	if p.IsRunning() {
		t.Error("expected poller to be stopped")
	}
	// Stopping twice is a no-op.
	p.Stop()
}

func TestPollerTriggerDebounces(t *testing.T) {
	f := newFixture(t)
	zone := f.zone(t, "driftwood.io")

	refreshed := make(chan struct{}, 8)
	p := NewPoller(f.engine,
		WithPollerConfig(PollerConfig{Interval: time.Hour, DebounceInterval: 20 * time.Millisecond}),
		WithOnRefresh(func(model.Zone, *Result, error) { refreshed <- struct{}{} }),
	)
	sub := f.store.Subscribe(store.ZoneScope(zone.ID))
	defer sub.Close()

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop()

	for i := 0; i < 5; i++ {
		p.Trigger()
	}
	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected one refresh after debounce")
	}
	select {
	case <-refreshed:
		t.Error("expected debounced triggers to produce a single refresh")
	case <-time.After(100 * time.Millisecond):
	}
}
