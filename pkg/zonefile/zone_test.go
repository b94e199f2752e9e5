package zonefile

import (
	"bytes"
	"strings"
	"testing"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

func TestExportThenParse(t *testing.T) {
	records := []model.Record{
		{ID: "1", Name: "", Type: model.RecordTypeNS, Content: "ns1.dnsimple.com", TTL: 3600, System: true},
		{ID: "2", Name: "", Type: model.RecordTypeA, Content: "203.0.113.10", TTL: 3600},
		{ID: "3", Name: "www", Type: model.RecordTypeCNAME, Content: "example.com", TTL: 3600},
		{ID: "4", Name: "", Type: model.RecordTypeMX, Content: "mail.example.com", TTL: 3600, Priority: 10},
		{ID: "5", Name: "", Type: model.RecordTypeALIAS, Content: "lb.example.net", TTL: 60},
	}

	var buf bytes.Buffer
	if err := Export(&buf, "example.com", records); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "$ORIGIN example.com.\n") {
		t.Errorf("expected $ORIGIN header, got:\n%s", out)
	}
	if !strings.Contains(out, "; example.com. 60 IN ALIAS lb.example.net") {
		t.Errorf("expected ALIAS to be exported as a comment, got:\n%s", out)
	}

	result, err := Parse(strings.NewReader(out), "example.com", "export")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	// Apex NS is skipped, ALIAS is a comment.
	if len(result.Drafts) != 3 {
		t.Fatalf("expected 3 drafts, got %d: %+v", len(result.Drafts), result.Drafts)
	}
	if len(result.Skipped) != 1 {
		t.Errorf("expected 1 skipped record, got %v", result.Skipped)
	}
	if result.Drafts[2].Type != model.RecordTypeMX || result.Drafts[2].Priority == nil || *result.Drafts[2].Priority != 10 {
		t.Errorf("unexpected MX draft %+v", result.Drafts[2])
	}
}

func TestParseDefaultsAndErrors(t *testing.T) {
	src := `$ORIGIN example.com.
@   IN SOA ns1.example.com. admin.example.com. 1 7200 3600 1209600 3600
api IN A 192.0.2.7
`
	result, err := Parse(strings.NewReader(src), "example.com", "test.zone")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(result.Drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(result.Drafts))
	}
	if result.Drafts[0].TTL != DefaultTTL || result.Drafts[0].Name != "api" {
		t.Errorf("unexpected draft %+v", result.Drafts[0])
	}

	_, err = Parse(strings.NewReader("api IN A not-an-ip\n"), "example.com", "bad.zone")
	if err == nil {
		t.Error("expected parse error")
	}
}
