package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		zone string
		want string
	}{
		{"@", "example.com", ""},
		{"example.com.", "example.com", ""},
		{"www", "example.com", "www"},
		{"www.example.com", "example.com", "www"},
		{"WWW.Example.com.", "example.com", "WWW"},
		{"  mail  ", "example.com", "mail"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.name, tt.zone); got != tt.want {
			t.Errorf("NormalizeName(%q, %q) = %q, want %q", tt.name, tt.zone, got, tt.want)
		}
	}
}

func TestPatchApplyAndDiff(t *testing.T) {
	base := Record{ID: "1", Name: "www", Type: RecordTypeA, Content: "192.0.2.1", TTL: 300}
	p := Patch{Content: String("192.0.2.2"), TTL: Int(600)}

	got := p.Apply(base)
	if got.Content != "192.0.2.2" || got.TTL != 600 || got.Name != "www" {
		t.Errorf("unexpected result: %+v", got)
	}

	d := Diff(base, got)
	if d.Name != nil || d.Priority != nil {
		t.Errorf("expected only content and ttl in diff, got %+v", d)
	}
	if d.Content == nil || *d.Content != "192.0.2.2" {
		t.Errorf("expected content diff")
	}
	if !d.Apply(base).SameContent(got) {
		t.Error("diff applied to base should equal target")
	}
	if !(Patch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
}

func TestPatchMerge(t *testing.T) {
	a := Patch{Content: String("a"), TTL: Int(60)}
	b := Patch{Content: String("b")}
	m := a.Merge(b)
	if *m.Content != "b" || *m.TTL != 60 {
		t.Errorf("unexpected merge: content=%s ttl=%d", *m.Content, *m.TTL)
	}
}

func TestRecordFQDN(t *testing.T) {
	r := Record{Name: ""}
	if got := r.FQDN("example.com"); got != "example.com." {
		t.Errorf("expected apex fqdn, got %s", got)
	}
	r.Name = "www"
	if got := r.FQDN("example.com."); got != "www.example.com." {
		t.Errorf("expected www.example.com., got %s", got)
	}
	if r.DisplayName() != "www" || (Record{}).DisplayName() != "@" {
		t.Error("unexpected display names")
	}
}

func TestParseRecordType(t *testing.T) {
	if typ, err := ParseRecordType(" mx "); err != nil || typ != RecordTypeMX {
		t.Errorf("expected MX, got %s (%v)", typ, err)
	}
	if _, err := ParseRecordType("BOGUS"); err == nil {
		t.Error("expected error for unknown type")
	}
	if !RecordTypeSRV.UsesPriority() || RecordTypeA.UsesPriority() {
		t.Error("unexpected UsesPriority")
	}
}

func TestErrorKinds(t *testing.T) {
	err := NewError(KindNotFound, "delete", "record 42", nil)
	wrapped := fmt.Errorf("deleting: %w", err)

	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("expected errors.Is to match ErrNotFound")
	}
	if errors.Is(wrapped, ErrTransient) {
		t.Error("did not expect ErrTransient match")
	}
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("expected not_found, got %s", KindOf(wrapped))
	}
	if err.Error() != "not_found: record 42: not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestConflictError(t *testing.T) {
	remote := Record{ID: "7", Type: RecordTypeA, Content: "192.0.2.9"}
	err := fmt.Errorf("commit: %w", &ConflictError{Key: "7", Local: Record{ID: "7", Type: RecordTypeA, Content: "192.0.2.5"}, Remote: &remote})

	if !IsConflict(err) {
		t.Error("expected conflict")
	}
	if KindOf(err) != KindConflict {
		t.Errorf("expected conflict kind, got %s", KindOf(err))
	}
	var ce *ConflictError
	if !errors.As(err, &ce) || ce.Remote.Content != "192.0.2.9" {
		t.Error("expected both sides attached")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewError(KindTransient, "list", "", nil)) {
		t.Error("transient should be retryable")
	}
	if IsRetryable(Validationf("x", "bad")) {
		t.Error("validation should not be retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
}
