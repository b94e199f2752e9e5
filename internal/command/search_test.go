package command

import (
	"testing"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

func searchCore(t *testing.T) (*Core, string) {
	t.Helper()
	st := store.New()
	zone := model.Zone{ID: "z1", AccountID: "1", Name: "example.com"}
	st.PutRecords(zone, []model.Record{
		{ID: "1", Name: "", Type: model.RecordTypeA, Content: "192.0.2.1", TTL: 3600},
		{ID: "2", Name: "www", Type: model.RecordTypeCNAME, Content: "example.com", TTL: 3600},
		{ID: "3", Name: "", Type: model.RecordTypeMX, Content: "mail.example.com", TTL: 3600, Priority: 10},
		{ID: "4", Name: "mail", Type: model.RecordTypeA, Content: "192.0.2.25", TTL: 3600},
		{ID: "5", Name: "", Type: model.RecordTypeTXT, Content: "v=spf1 mx -all", TTL: 3600},
	})
	return New(nil, syncer.New(nil, st)), zone.ID
}

func collect(c *Core, zoneID string, p Predicate) []string {
	var ids []string
	for _, r := range c.Search(zoneID, p) {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestSearchPredicates(t *testing.T) {
	c, zoneID := searchCore(t)
	tests := []struct {
		name string
		p    Predicate
		want []string
	}{
		{"all", nil, []string{"1", "2", "3", "4", "5"}},
		{"by type", ByType(model.RecordTypeA), []string{"1", "4"}},
		{"by name apex", ByName("@"), []string{"1", "3", "5"}},
		{"by name", ByName("MAIL"), []string{"4"}},
		{"content", ContentContains("mail."), []string{"3"}},
		{"and", And(ByType(model.RecordTypeA), ContentContains("192.0.2.2")), []string{"4"}},
		{"match words", Match("mx mail"), []string{"3"}},
		{"match apex marker", Match("@ txt"), []string{"5"}},
		{"no match", Match("nothing-here"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(c, zoneID, tt.p)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestSearchIsRestartable(t *testing.T) {
	c, zoneID := searchCore(t)
	seq := c.Search(zoneID, ByType(model.RecordTypeA))

	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected early stop after 1, got %d", n)
	}

	n = 0
	for range seq {
		n++
	}
	if n != 2 {
		t.Errorf("expected restart to yield 2, got %d", n)
	}

	if _, err := c.Store().StageCreate(zoneID, model.Draft{Name: "new", Type: model.RecordTypeA, Content: "192.0.2.50"}); err != nil {
		t.Fatalf("StageCreate() error = %v", err)
	}
	n = 0
	for range seq {
		n++
	}
	if n != 3 {
		t.Errorf("expected a new range to see the staged draft, got %d", n)
	}
}

func TestSearchUnknownZone(t *testing.T) {
	c, _ := searchCore(t)
	if got := collect(c, "missing", nil); len(got) != 0 {
		t.Errorf("expected empty sequence, got %v", got)
	}
}
