package demo

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/pkg/dnsapi"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

func fastRetries() dnsapi.Option {
	return dnsapi.WithRetryPolicy(dnsapi.RetryPolicy{MaxRetries: 3, CreateRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
}

func demoZone(t *testing.T, g *dnsapi.Gateway, name string) model.Zone {
	t.Helper()
	zones, err := g.ListZones(context.Background(), strconv.FormatInt(AccountID, 10))
	if err != nil {
		t.Fatalf("ListZones() error = %v", err)
	}
	for _, z := range zones {
		if z.Name == name {
			return z
		}
	}
	t.Fatalf("zone %s not found", name)
	return model.Zone{}
}

func TestSeededZonesAndRecords(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo")

	acct, err := g.Whoami(context.Background())
	if err != nil {
		t.Fatalf("Whoami() error = %v", err)
	}
	if acct.ID != strconv.FormatInt(AccountID, 10) {
		t.Errorf("expected demo account, got %s", acct.ID)
	}

	zones, err := g.ListZones(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("ListZones() error = %v", err)
	}
	if len(zones) != len(SeedZones) {
		t.Fatalf("expected %d zones, got %d", len(SeedZones), len(zones))
	}

	records, err := g.ListRecords(context.Background(), zones[0])
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("expected 6 records, got %d", len(records))
	}
	if !records[0].System {
		t.Error("expected NS record to be a system record")
	}
	var mx *model.Record
	for i := range records {
		if records[i].Type == model.RecordTypeMX {
			mx = &records[i]
		}
	}
	if mx == nil || mx.Priority != 10 {
		t.Errorf("expected MX with priority 10, got %+v", mx)
	}
}

func TestPaginationAcrossManyZones(t *testing.T) {
	s := NewServer(WithoutSeed())
	for i := 0; i < 250; i++ {
		s.AddZone("zone" + strconv.Itoa(i) + ".example")
	}
	g := NewGateway(s, "demo")

	zones, err := g.ListZones(context.Background(), strconv.FormatInt(AccountID, 10))
	if err != nil {
		t.Fatalf("ListZones() error = %v", err)
	}
	if len(zones) != 250 {
		t.Errorf("expected 250 zones, got %d", len(zones))
	}
	if got := s.Calls(http.MethodGet); got != 3 {
		t.Errorf("expected 3 page requests, got %d", got)
	}
}

func TestCRUD(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo")
	zone := demoZone(t, g, "driftwood.io")
	ctx := context.Background()

	created, err := g.CreateRecord(ctx, zone, model.Draft{Name: "api", Type: model.RecordTypeA, Content: "198.51.100.7", TTL: 120})
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if created.ID == "" || created.TTL != 120 {
		t.Errorf("unexpected created record %+v", created)
	}

	updated, err := g.UpdateRecord(ctx, zone, created.ID, model.Patch{Content: model.String("198.51.100.8")})
	if err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	if updated.Content != "198.51.100.8" || updated.Name != "api" {
		t.Errorf("unexpected updated record %+v", updated)
	}

	if err := g.DeleteRecord(ctx, zone, created.ID); err != nil {
		t.Fatalf("DeleteRecord() error = %v", err)
	}
	err = g.DeleteRecord(ctx, zone, created.ID)
	if !model.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestDuplicateCreateIsConflict(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo")
	zone := demoZone(t, g, "driftwood.io")

	_, err := g.CreateRecord(context.Background(), zone, model.Draft{Name: "www", Type: model.RecordTypeCNAME, Content: "driftwood.io"})
	if !model.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestPriorityOutOfRangeRejected(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo")
	zone := demoZone(t, g, "driftwood.io")

	_, err := g.CreateRecord(context.Background(), zone, model.Draft{Type: model.RecordTypeMX, Content: "mx2.driftwood.io", Priority: model.Int(70000)})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "priority") {
		t.Errorf("expected priority in message, got %v", err)
	}
}

func TestMXPriorityZeroRoundTrips(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo")
	zone := demoZone(t, g, "driftwood.io")
	ctx := context.Background()

	var mx model.Record
	records, err := g.ListRecords(ctx, zone)
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	for _, r := range records {
		if r.Type == model.RecordTypeMX {
			mx = r
		}
	}
	updated, err := g.UpdateRecord(ctx, zone, mx.ID, model.Patch{Priority: model.Int(0)})
	if err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	if updated.Priority != 0 {
		t.Errorf("expected priority 0, got %d", updated.Priority)
	}
}

func TestUnauthorized(t *testing.T) {
	s := NewServer(WithToken("right"))
	g := NewGateway(s, "wrong")

	_, err := g.Whoami(context.Background())
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("expected unauthorized, got %v", err)
	}
}

func TestFaultInjection(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo", fastRetries())
	zone := demoZone(t, g, "driftwood.io")

	s.InjectFault(Fault{Method: http.MethodPost, Path: "/records", Status: http.StatusGatewayTimeout, Times: 2})
	before := len(s.Records("driftwood.io"))

	rec, err := g.CreateRecord(context.Background(), zone, model.Draft{Name: "cdn", Type: model.RecordTypeCNAME, Content: "edge.example.net"})
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if got := len(s.Records("driftwood.io")); got != before+1 {
		t.Errorf("expected exactly one new record, got %d", got-before)
	}
	if rec.ID == "" {
		t.Error("expected remote id")
	}
}

func TestAppliedFaultIsAdopted(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo", fastRetries())
	zone := demoZone(t, g, "driftwood.io")

	s.InjectFault(Fault{Method: http.MethodPost, Path: "/records", Status: http.StatusGatewayTimeout, Times: 1, Apply: true})
	before := len(s.Records("driftwood.io"))

	if _, err := g.CreateRecord(context.Background(), zone, model.Draft{Name: "cdn", Type: model.RecordTypeCNAME, Content: "edge.example.net"}); err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if got := len(s.Records("driftwood.io")); got != before+1 {
		t.Errorf("expected exactly one new record, got %d", got-before)
	}
	if got := s.Calls(http.MethodPost); got != 1 {
		t.Errorf("expected one POST, got %d", got)
	}
}

func TestZoneFileAndDistribution(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo")
	zone := demoZone(t, g, "driftwood.io")
	ctx := context.Background()

	text, err := g.ZoneFile(ctx, zone)
	if err != nil {
		t.Fatalf("ZoneFile() error = %v", err)
	}
	if !strings.HasPrefix(text, "$ORIGIN driftwood.io.") {
		t.Errorf("unexpected zone file %q", text)
	}

	if err := g.SetZoneActive(ctx, zone, false); err != nil {
		t.Fatalf("SetZoneActive() error = %v", err)
	}
	ok, err := g.ZoneDistribution(ctx, zone)
	if err != nil {
		t.Fatalf("ZoneDistribution() error = %v", err)
	}
	if ok {
		t.Error("expected inactive zone to report undistributed")
	}
}

func TestDomains(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo")
	ctx := context.Background()
	acct := strconv.FormatInt(AccountID, 10)

	domains, err := g.ListDomains(ctx, acct, "")
	if err != nil {
		t.Fatalf("ListDomains() error = %v", err)
	}
	if len(domains) != len(SeedZones) {
		t.Fatalf("expected %d domains, got %d", len(SeedZones), len(domains))
	}
	registered, hosted := 0, 0
	for _, d := range domains {
		switch d.State {
		case "registered":
			registered++
			if d.ExpiresAt == nil {
				t.Errorf("expected %s to carry an expiry", d.Name)
			}
		case "hosted":
			hosted++
			if d.ExpiresAt != nil {
				t.Errorf("expected %s to have no expiry", d.Name)
			}
		}
	}
	if registered == 0 || hosted == 0 {
		t.Errorf("expected both registered and hosted domains, got %d and %d", registered, hosted)
	}

	filtered, err := g.ListDomains(ctx, acct, "drift")
	if err != nil {
		t.Fatalf("ListDomains() error = %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "driftwood.io" {
		t.Errorf("expected only driftwood.io, got %+v", filtered)
	}

	d, err := g.Domain(ctx, acct, "driftwood.io")
	if err != nil {
		t.Fatalf("Domain() error = %v", err)
	}
	if d.Name != "driftwood.io" || d.AccountID != acct {
		t.Errorf("unexpected domain %+v", d)
	}
	if _, err := g.Domain(ctx, acct, "nope.example"); !model.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestCreateAndDeleteDomain(t *testing.T) {
	s := NewServer()
	g := NewGateway(s, "demo")
	ctx := context.Background()
	acct := strconv.FormatInt(AccountID, 10)

	d, err := g.CreateDomain(ctx, acct, "Newleaf.example.")
	if err != nil {
		t.Fatalf("CreateDomain() error = %v", err)
	}
	if d.Name != "newleaf.example" || d.State != "hosted" || d.ExpiresAt != nil {
		t.Errorf("unexpected domain %+v", d)
	}
	zone := demoZone(t, g, "newleaf.example")
	records, err := g.ListRecords(ctx, zone)
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected an empty zone, got %d records", len(records))
	}

	if _, err := g.CreateDomain(ctx, acct, "newleaf.example"); !model.IsConflict(err) {
		t.Errorf("expected conflict for a duplicate, got %v", err)
	}
	if _, err := g.CreateDomain(ctx, acct, "not a name"); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	if err := g.DeleteDomain(ctx, acct, "newleaf.example"); err != nil {
		t.Fatalf("DeleteDomain() error = %v", err)
	}
	if _, err := g.Domain(ctx, acct, "newleaf.example"); !model.IsNotFound(err) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := g.DeleteDomain(ctx, acct, "newleaf.example"); !model.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}
