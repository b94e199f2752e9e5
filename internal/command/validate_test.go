package command

import (
	"testing"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

func TestValidateDraft(t *testing.T) {
	zone := model.Zone{ID: "z1", Name: "example.com"}
	siblings := []store.Entry{
		{Key: "1", Record: model.Record{ID: "1", Name: "www", Type: model.RecordTypeCNAME, Content: "example.com", TTL: 3600}},
		{Key: "2", Record: model.Record{ID: "2", Name: "", Type: model.RecordTypeA, Content: "192.0.2.1", TTL: 3600}},
		{Key: "3", Record: model.Record{ID: "3", Name: "old", Type: model.RecordTypeA, Content: "192.0.2.9", TTL: 3600}, State: model.StatePendingDelete},
	}

	tests := []struct {
		name  string
		draft model.Draft
		want  model.Kind
	}{
		{"valid A", model.Draft{Name: "api", Type: model.RecordTypeA, Content: "192.0.2.5"}, ""},
		{"MX without priority", model.Draft{Type: model.RecordTypeMX, Content: "mail.example.com"}, model.KindValidation},
		{"MX with priority", model.Draft{Type: model.RecordTypeMX, Content: "mail.example.com", Priority: model.Int(10)}, ""},
		{"MX pointing at IP", model.Draft{Type: model.RecordTypeMX, Content: "192.0.2.1", Priority: model.Int(10)}, model.KindValidation},
		{"SRV without priority", model.Draft{Name: "_sip._tcp", Type: model.RecordTypeSRV, Content: "5 5060 sip.example.com"}, model.KindValidation},
		{"CNAME at apex", model.Draft{Type: model.RecordTypeCNAME, Content: "other.example.net"}, model.KindValidation},
		{"CNAME next to other records", model.Draft{Name: "www", Type: model.RecordTypeA, Content: "192.0.2.2"}, model.KindValidation},
		{"CNAME replacing pending delete", model.Draft{Name: "old", Type: model.RecordTypeCNAME, Content: "new.example.net"}, ""},
		{"duplicate", model.Draft{Type: model.RecordTypeA, Content: "192.0.2.1", TTL: 3600}, model.KindConflict},
		{"empty content", model.Draft{Name: "x", Type: model.RecordTypeTXT}, model.KindValidation},
		{"negative TTL", model.Draft{Name: "x", Type: model.RecordTypeA, Content: "192.0.2.3", TTL: -5}, model.KindValidation},
		{"unknown type", model.Draft{Name: "x", Type: "BOGUS", Content: "1"}, model.KindValidation},
		{"SOA", model.Draft{Type: model.RecordTypeSOA, Content: "ns1 admin 1 2 3 4 5"}, model.KindValidation},
		{"ALIAS host", model.Draft{Type: model.RecordTypeALIAS, Content: "lb.example.net"}, ""},
		{"ALIAS IP", model.Draft{Type: model.RecordTypeALIAS, Content: "192.0.2.1"}, model.KindValidation},
		{"long unquoted TXT", model.Draft{Name: "dkim", Type: model.RecordTypeTXT, Content: longText(400)}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDraft(zone, tt.draft, siblings)
			if got := model.KindOf(err); got != tt.want {
				t.Errorf("expected kind %q, got %q (%v)", tt.want, got, err)
			}
		})
	}
}

func longText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'k'
	}
	return string(b)
}
