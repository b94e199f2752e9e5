package view

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/pkg/dnsapi"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
	"gitlab.bluewillows.net/root/zonedeck/providers/demo"
)

const testZone = "driftwood.io"

// driver applies events one at a time and runs commands concurrently,
// the way the terminal program does.
type driver struct {
	m      *Machine
	render func(Snapshot)
	events chan Event
}

func (d *driver) send(ctx context.Context, ev Event) {
	select {
	case d.events <- ev:
	case <-ctx.Done():
	}
}

func (d *driver) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		d.m.Close()
	}()
	launch := func(cmds []Cmd) {
		for _, cmd := range cmds {
			if cmd == nil {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ev := cmd(ctx); ev != nil {
					d.send(ctx, ev)
				}
			}()
		}
	}

	launch(d.m.Init())
	d.render(d.m.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.events:
			launch(d.m.Update(ev))
			d.render(d.m.Snapshot())
			if d.m.Screen() == ScreenQuit {
				return nil
			}
		}
	}
}

// harness runs a Machine against the demo provider and records every
// rendered snapshot.
type harness struct {
	t      *testing.T
	server *demo.Server
	gw     *dnsapi.Gateway
	store  *store.Store
	poller *syncer.Poller
	drv    *driver
	ctx    context.Context

	mu    sync.Mutex
	snap  Snapshot
	saved []string
	done  chan error
}

func newHarness(t *testing.T, server *demo.Server, token string) *harness {
	t.Helper()
	gw := demo.NewGateway(server, token, dnsapi.WithRetryPolicy(dnsapi.RetryPolicy{
		MaxRetries: 1, CreateRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond,
	}))
	st := store.New()
	engine := syncer.New(gw, st)
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{t: t, server: server, gw: gw, store: st, ctx: ctx, done: make(chan error, 1)}
	h.poller = syncer.NewPoller(engine, syncer.WithOnRefresh(func(zone model.Zone, result *syncer.Result, err error) {
		h.send(BackgroundRefresh{ZoneID: zone.ID, Result: result, Err: err})
	}))
	svc := &Services{
		Engine: engine,
		Core:   command.New(gw, engine),
		Tokens: gw,
		Poller: h.poller,
		SaveToken: func(token string) error {
			h.mu.Lock()
			h.saved = append(h.saved, token)
			h.mu.Unlock()
			return nil
		},
	}
	h.drv = &driver{
		m:      NewMachine(svc),
		events: make(chan Event, 64),
		render: func(s Snapshot) {
			h.mu.Lock()
			h.snap = s
			h.mu.Unlock()
		},
	}

	go func() { h.done <- h.drv.run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Error("machine did not stop")
		}
		svc.Core.Wait()
	})
	return h
}

func (h *harness) send(evs ...Event) {
	for _, ev := range evs {
		h.drv.send(h.ctx, ev)
	}
}

func (h *harness) current() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snap
}

// waitFor blocks until cond holds for the latest snapshot.
func (h *harness) waitFor(what string, cond func(Snapshot) bool) Snapshot {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s := h.current(); cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	s := h.current()
	h.t.Fatalf("timed out waiting for %s; screen %s, status %q, %d rows", what, s.Screen, s.Status, len(s.Rows))
	return s
}

func (h *harness) signedIn() Snapshot {
	h.t.Helper()
	return h.waitFor("account", func(s Snapshot) bool {
		return s.Screen == ScreenAccountList && !s.Loading && len(s.Rows) == 1
	})
}

// openZone navigates from the account list to the records of zone.
func (h *harness) openZone(zone string) Snapshot {
	h.t.Helper()
	h.signedIn()
	h.send(Select{})
	s := h.waitFor("zones", func(s Snapshot) bool {
		return s.Screen == ScreenZoneList && !s.Loading && len(s.Rows) > 0
	})
	idx := -1
	for i, row := range s.Rows {
		if row.Columns[0] == zone {
			idx = i
		}
	}
	if idx < 0 {
		h.t.Fatalf("zone %s not listed", zone)
	}
	for i := s.Cursor; i < idx; i++ {
		h.send(Down{})
	}
	h.send(Select{})
	return h.waitFor("records", func(s Snapshot) bool {
		return s.Screen == ScreenRecordList && !s.Loading && len(s.Rows) > 0
	})
}

func TestEmptyAccountShowsEmptyZoneList(t *testing.T) {
	h := newHarness(t, demo.NewServer(demo.WithoutSeed()), "demo")

	acct := h.signedIn()
	if acct.Rows[0].Key != "424242" {
		t.Errorf("expected account 424242, got %s", acct.Rows[0].Key)
	}

	h.send(Select{})
	s := h.waitFor("zone list", func(s Snapshot) bool {
		return s.Screen == ScreenZoneList && !s.Loading
	})
	if len(s.Rows) != 0 {
		t.Errorf("expected no zones, got %d", len(s.Rows))
	}
	if s.Status != "" {
		t.Errorf("expected no error, got %q", s.Status)
	}

	h.send(Back{})
	h.waitFor("account list", func(s Snapshot) bool { return s.Screen == ScreenAccountList })
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	h := newHarness(t, demo.NewServer(), "demo")
	h.openZone(testZone)
	before := len(h.server.Records(testZone))

	h.send(Search{Text: "_acme"})
	h.waitFor("filtered rows", func(s Snapshot) bool { return s.Filter == "_acme" && len(s.Rows) == 1 })

	h.send(Delete{})
	s := h.waitFor("prompt", func(s Snapshot) bool { return s.Screen == ScreenConfirm })
	if !strings.Contains(s.Prompt, "Delete") {
		t.Errorf("expected a delete prompt, got %q", s.Prompt)
	}
	if s.Under != ScreenRecordList {
		t.Errorf("expected prompt over the record list, got %s", s.Under)
	}

	h.send(Cancel{})
	h.waitFor("record list", func(s Snapshot) bool { return s.Screen == ScreenRecordList && len(s.Rows) == 1 })
	if got := len(h.server.Records(testZone)); got != before {
		t.Fatalf("expected nothing deleted after cancel, got %d records", got)
	}

	h.send(Delete{}, Confirm{})
	h.waitFor("row removed", func(s Snapshot) bool { return s.Screen == ScreenRecordList && len(s.Rows) == 0 })
	if got := len(h.server.Records(testZone)); got != before-1 {
		t.Errorf("expected %d remote records, got %d", before-1, got)
	}
}

func TestSystemRecordCannotBeDeleted(t *testing.T) {
	h := newHarness(t, demo.NewServer(), "demo")
	h.openZone(testZone)

	h.send(Search{Text: "ns1.dnsimple"}, Delete{})
	s := h.waitFor("status", func(s Snapshot) bool { return s.Status != "" })
	if s.Screen != ScreenRecordList {
		t.Errorf("expected to stay on the record list, got %s", s.Screen)
	}
	if !strings.Contains(s.Status, "cannot be deleted") {
		t.Errorf("expected a refusal, got %q", s.Status)
	}
}

func TestBackWithUnsavedEditsConfirms(t *testing.T) {
	h := newHarness(t, demo.NewServer(), "demo")
	h.openZone(testZone)

	h.send(Search{Text: "203.0.113"}, Edit{})
	h.waitFor("editor", func(s Snapshot) bool { return s.Screen == ScreenRecordEditor && s.Editor != nil })

	h.send(SetField{Field: FieldContent, Value: "198.51.100.7"}, Back{})
	h.waitFor("prompt", func(s Snapshot) bool { return s.Screen == ScreenConfirm })

	h.send(Cancel{})
	s := h.waitFor("editor", func(s Snapshot) bool { return s.Screen == ScreenRecordEditor })
	if got := s.Editor.Fields[2].Value; got != "198.51.100.7" {
		t.Errorf("expected the edit to survive, got %q", got)
	}

	h.send(Back{}, Confirm{})
	s = h.waitFor("record list", func(s Snapshot) bool { return s.Screen == ScreenRecordList })
	if s.Rows[0].State != model.StateClean {
		t.Errorf("expected the record untouched, got %s", s.Rows[0].State)
	}
	if s.Rows[0].Columns[2] != "203.0.113.13" {
		t.Errorf("expected original content, got %s", s.Rows[0].Columns[2])
	}
}

func TestSaveShowsErrorInline(t *testing.T) {
	h := newHarness(t, demo.NewServer(), "demo")
	h.openZone(testZone)

	h.send(Search{Text: "203.0.113"}, Edit{}, SetField{Field: FieldContent, Value: "not-an-address"}, Save{})
	s := h.waitFor("inline error", func(s Snapshot) bool {
		return s.Screen == ScreenRecordEditor && s.Editor != nil && s.Editor.Err != ""
	})
	if !strings.HasPrefix(s.Editor.Err, "validation") {
		t.Errorf("expected a validation error, got %q", s.Editor.Err)
	}

	h.send(SetField{Field: FieldContent, Value: "198.51.100.7"}, Save{})
	s = h.waitFor("saved", func(s Snapshot) bool { return s.Screen == ScreenRecordList && !strings.HasPrefix(s.Status, "validation") && s.Status != "" })
	if !strings.HasPrefix(s.Status, "saved") {
		t.Errorf("expected a saved status, got %q", s.Status)
	}
	found := false
	for _, r := range h.server.Records(testZone) {
		if r.Type == "A" && r.Content == "198.51.100.7" {
			found = true
		}
	}
	if !found {
		t.Error("expected the provider to hold the new content")
	}
}

func TestProviderRejectionKeepsEditor(t *testing.T) {
	server := demo.NewServer()
	h := newHarness(t, server, "demo")
	h.openZone(testZone)

	server.InjectFault(demo.Fault{Method: http.MethodPatch, Path: "/records/", Status: http.StatusInternalServerError})
	h.send(Search{Text: "203.0.113"}, Edit{}, SetField{Field: FieldContent, Value: "198.51.100.8"}, Save{})
	s := h.waitFor("inline error", func(s Snapshot) bool {
		return s.Screen == ScreenRecordEditor && s.Editor != nil && s.Editor.Err != "" && !s.Editor.Saving
	})
	if !strings.HasPrefix(s.Editor.Err, "transient") {
		t.Errorf("expected a transient error, got %q", s.Editor.Err)
	}

	server.ClearFaults()
	h.send(Save{})
	h.waitFor("saved", func(s Snapshot) bool { return s.Screen == ScreenRecordList && strings.HasPrefix(s.Status, "saved") })
}

func TestUnauthorizedOpensLoginPrompt(t *testing.T) {
	h := newHarness(t, demo.NewServer(demo.WithToken("good-token")), "stale-token")

	s := h.waitFor("login prompt", func(s Snapshot) bool { return s.Screen == ScreenAuthPrompt })
	if s.Auth == nil {
		t.Fatal("expected a login form")
	}

	h.send(SetField{Field: "token", Value: "wrong"}, Save{})
	s = h.waitFor("login error", func(s Snapshot) bool { return s.Auth != nil && s.Auth.Err != "" && !s.Auth.Saving })
	if !strings.HasPrefix(s.Auth.Err, "unauthorized") {
		t.Errorf("expected unauthorized, got %q", s.Auth.Err)
	}
	if s.Auth.Fields[0].Value != "*****" {
		t.Errorf("expected the token to be masked, got %q", s.Auth.Fields[0].Value)
	}

	h.send(SetField{Field: "token", Value: "good-token"}, Save{})
	h.signedIn()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.saved) != 1 || h.saved[0] != "good-token" {
		t.Errorf("expected the accepted token to be saved, got %v", h.saved)
	}
}

func TestRemoteChangeUpdatesOpenList(t *testing.T) {
	server := demo.NewServer()
	h := newHarness(t, server, "demo")
	h.openZone(testZone)

	for _, r := range server.Records(testZone) {
		if r.Type == "A" {
			server.SetRecordContent(testZone, r.ID, "198.51.100.99")
		}
	}
	h.send(Search{Text: "198.51.100.99"})
	h.waitFor("filter", func(s Snapshot) bool { return s.Filter != "" && len(s.Rows) == 0 })

	h.send(Refresh{})
	h.waitFor("refreshed row", func(s Snapshot) bool { return !s.Loading && len(s.Rows) == 1 })
}

func TestQuitConfirmsDirtyEditor(t *testing.T) {
	h := newHarness(t, demo.NewServer(), "demo")
	h.openZone(testZone)

	h.send(Search{Text: "203.0.113"}, Edit{}, SetField{Field: FieldTTL, Value: "120"}, Quit{})
	h.waitFor("prompt", func(s Snapshot) bool { return s.Screen == ScreenConfirm })

	h.send(Confirm{})
	select {
	case err := <-h.done:
		if err != nil {
			t.Errorf("expected a clean exit, got %v", err)
		}
		h.done <- err
	case <-time.After(5 * time.Second):
		t.Fatal("machine did not quit")
	}
	if s := h.current(); s.Screen != ScreenQuit {
		t.Errorf("expected quit screen, got %s", s.Screen)
	}
}

func TestBackgroundUnauthorizedOpensLoginPrompt(t *testing.T) {
	server := demo.NewServer()
	h := newHarness(t, server, "demo")
	s := h.openZone(testZone)

	h.store.MarkStale(s.Zone.ID, nil)
	server.InjectFault(demo.Fault{Status: http.StatusUnauthorized})
	if n := h.poller.Poll(context.Background()); n != 0 {
		t.Errorf("expected no zone refreshed, got %d", n)
	}

	s = h.waitFor("login prompt", func(s Snapshot) bool { return s.Screen == ScreenAuthPrompt })
	if s.Auth == nil {
		t.Fatal("expected a login form")
	}
	if s.Under != ScreenRecordList {
		t.Errorf("expected the prompt over the record list, got %s", s.Under)
	}

	server.ClearFaults()
	h.send(SetField{Field: "token", Value: "demo"}, Save{})
	h.waitFor("records again", func(s Snapshot) bool {
		return s.Screen == ScreenRecordList && !s.Loading && len(s.Rows) > 0
	})
}

func TestSessionEndWhileOnZoneList(t *testing.T) {
	h := newHarness(t, demo.NewServer(), "demo")
	h.signedIn()
	h.send(Select{})
	h.waitFor("zones", func(s Snapshot) bool { return s.Screen == ScreenZoneList && !s.Loading })

	h.store.EndSession()
	h.waitFor("login prompt", func(s Snapshot) bool { return s.Screen == ScreenAuthPrompt })
}

