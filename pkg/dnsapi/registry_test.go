package dnsapi

import (
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("test", func(cfg AdapterConfig) (Adapter, error) {
		return &testAdapter{base: cfg.BaseURL}, nil
	})
	r.Register("broken", func(AdapterConfig) (Adapter, error) {
		return nil, errors.New("boom")
	})

	a, err := r.Create("test", AdapterConfig{BaseURL: "http://localhost"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.BaseURL() != "http://localhost" {
		t.Errorf("expected base url to be passed through, got %s", a.BaseURL())
	}

	if _, err := r.Create("missing", AdapterConfig{}); err == nil {
		t.Error("expected error for unknown type")
	}
	if _, err := r.Create("broken", AdapterConfig{}); err == nil {
		t.Error("expected factory error")
	}

	types := r.Types()
	if len(types) != 2 || types[0] != "broken" || types[1] != "test" {
		t.Errorf("expected sorted types, got %v", types)
	}
}
