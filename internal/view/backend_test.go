package view

import (
	"context"
	"strconv"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/pkg/dnsapi"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
	"gitlab.bluewillows.net/root/zonedeck/providers/demo"
)

func newServices(t *testing.T, server *demo.Server) *Services {
	t.Helper()
	gw := demo.NewGateway(server, "demo", dnsapi.WithRetryPolicy(dnsapi.RetryPolicy{
		MaxRetries: 1, CreateRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond,
	}))
	engine := syncer.New(gw, store.New())
	svc := &Services{
		Engine: engine,
		Core:   command.New(gw, engine),
		Tokens: gw,
		Poller: syncer.NewPoller(engine),
	}
	t.Cleanup(svc.Core.Wait)
	return svc
}

func loadZone(t *testing.T, svc *Services, name string) store.Snapshot {
	t.Helper()
	ctx := context.Background()
	acct, err := svc.Account(ctx)
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	zones, err := svc.Zones(ctx, acct.ID, false)
	if err != nil {
		t.Fatalf("Zones() error = %v", err)
	}
	for _, z := range zones {
		if z.Name == name {
			snap, err := svc.EnsureFresh(ctx, z)
			if err != nil {
				t.Fatalf("EnsureFresh() error = %v", err)
			}
			return snap
		}
	}
	t.Fatalf("zone %s not listed", name)
	return store.Snapshot{}
}

func TestSubmitNotFoundMarksZoneStale(t *testing.T) {
	server := demo.NewServer()
	svc := newServices(t, server)
	snap := loadZone(t, svc, testZone)

	var target store.Entry
	for _, e := range snap.Entries {
		if e.Record.Type == model.RecordTypeA {
			target = e
		}
	}
	if target.Key == "" {
		t.Fatal("expected an A record in the seed")
	}
	id, _ := strconv.ParseInt(target.Record.ID, 10, 64)
	server.RemoveRecord(testZone, id)

	content := "198.51.100.44"
	out := <-svc.Submit(context.Background(), command.Request{
		Kind:  command.KindUpdate,
		Key:   target.Key,
		Patch: model.Patch{Content: &content},
	})
	if !model.IsNotFound(out.Err) {
		t.Fatalf("expected not found, got %v", out.Err)
	}

	after, ok := svc.Store().Get(snap.Zone.ID)
	if !ok {
		t.Fatal("expected the zone to stay cached")
	}
	if !after.Cursor.Stale {
		t.Error("expected the zone to be marked stale")
	}
}

func TestSubmitSuccessLeavesZoneFresh(t *testing.T) {
	svc := newServices(t, demo.NewServer())
	snap := loadZone(t, svc, testZone)

	var target store.Entry
	for _, e := range snap.Entries {
		if e.Record.Type == model.RecordTypeA {
			target = e
		}
	}
	content := "198.51.100.45"
	out := <-svc.Submit(context.Background(), command.Request{
		Kind:  command.KindUpdate,
		Key:   target.Key,
		Patch: model.Patch{Content: &content},
	})
	if out.Err != nil {
		t.Fatalf("expected success, got %v", out.Err)
	}
	after, _ := svc.Store().Get(snap.Zone.ID)
	if after.Cursor.Stale {
		t.Error("expected the zone to stay fresh")
	}
}

func TestWatchZoneGoesThroughPoller(t *testing.T) {
	svc := newServices(t, demo.NewServer())
	snap := loadZone(t, svc, testZone)

	sub := svc.Watch(store.ZoneScope(snap.Zone.ID))
	defer sub.Close()
	found := false
	for _, id := range svc.Store().SubscribedZones() {
		if id == snap.Zone.ID {
			found = true
		}
	}
	if !found {
		t.Error("expected the zone to be watched")
	}
}
