package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

func ready(t *testing.T, s *Server) (int, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w.Code, resp
}

func TestHealthReportsVersion(t *testing.T) {
	s := New("127.0.0.1:0", WithVersion("1.2.3"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
	if resp.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", resp.Version)
	}
}

func TestReadyFollowsSession(t *testing.T) {
	st := store.New()
	s := New("127.0.0.1:0")
	s.RegisterChecker("session", SessionChecker(st))

	code, resp := ready(t, s)
	if code != http.StatusServiceUnavailable || resp.Status != StatusNotReady {
		t.Errorf("expected not ready before login, got %d %s", code, resp.Status)
	}
	if resp.Checks[0].Detail != ErrNoSession.Error() {
		t.Errorf("expected %q, got %q", ErrNoSession, resp.Checks[0].Detail)
	}

	st.SetAccount(model.Account{ID: "424242", Active: true})
	if code, resp = ready(t, s); code != http.StatusOK || resp.Status != StatusReady {
		t.Errorf("expected ready with a session, got %d %s", code, resp.Status)
	}

	st.EndSession()
	code, resp = ready(t, s)
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after the session ended, got %d", code)
	}
	if resp.Checks[0].Detail != ErrSessionEnded.Error() {
		t.Errorf("expected %q, got %q", ErrSessionEnded, resp.Checks[0].Detail)
	}
}

func TestReadyDegradedOnStaleZone(t *testing.T) {
	st := store.New()
	st.SetAccount(model.Account{ID: "1", Active: true})
	zone := model.Zone{ID: "z1", AccountID: "1", Name: "driftwood.io", Status: model.ZoneActive}
	st.PutZones("1", []model.Zone{zone})
	st.PutRecords(zone, []model.Record{{ID: "r1", ZoneID: "z1", Type: model.RecordTypeA, Content: "192.0.2.1", TTL: 300}})

	s := New("127.0.0.1:0")
	s.RegisterChecker("session", SessionChecker(st))
	s.RegisterDegradedChecker("cache", StaleCacheChecker(st))

	if _, resp := ready(t, s); resp.Status != StatusReady {
		t.Errorf("expected ready with a fresh cache, got %s", resp.Status)
	}

	st.MarkStale("z1", errors.New("timeout"))
	code, resp := ready(t, s)
	if code != http.StatusOK || resp.Status != StatusDegraded {
		t.Fatalf("expected degraded 200, got %d %s", code, resp.Status)
	}
	cache := resp.Checks[1]
	if cache.Name != "cache" || cache.State != StateDegraded {
		t.Fatalf("expected degraded cache check, got %+v", cache)
	}
	if !strings.Contains(cache.Detail, "driftwood.io") {
		t.Errorf("expected the stale zone named, got %q", cache.Detail)
	}
	if resp.Checks[0].State != StateOK {
		t.Errorf("expected session ok, got %s", resp.Checks[0].State)
	}
}

func TestRegisterReplacesByName(t *testing.T) {
	s := New("127.0.0.1:0")
	s.RegisterChecker("session", func(context.Context) error { return errors.New("down") })
	s.RegisterChecker("session", func(context.Context) error { return nil })

	resp := s.Evaluate(context.Background())
	if len(resp.Checks) != 1 {
		t.Fatalf("expected 1 check, got %d", len(resp.Checks))
	}
	if resp.Status != StatusReady {
		t.Errorf("expected ready after replacement, got %s", resp.Status)
	}
}

func TestFailedCheckWinsOverDegraded(t *testing.T) {
	s := New("127.0.0.1:0")
	s.RegisterDegradedChecker("cache", func(context.Context) (bool, string) { return true, "stale" })
	s.RegisterChecker("session", func(context.Context) error { return ErrNoSession })

	if resp := s.Evaluate(context.Background()); resp.Status != StatusNotReady {
		t.Errorf("expected not_ready, got %s", resp.Status)
	}
}

func TestReadyTimesOutSlowCheck(t *testing.T) {
	s := New("127.0.0.1:0", WithTimeout(50*time.Millisecond))
	s.RegisterChecker("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
			return nil
		}
	})

	if code, resp := ready(t, s); code != http.StatusServiceUnavailable || resp.Status != StatusNotReady {
		t.Errorf("expected not ready on timeout, got %d %s", code, resp.Status)
	}
}

func TestServerStartServesMetrics(t *testing.T) {
	s := New("127.0.0.1:0")
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = s.Shutdown(context.Background()) }()

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestServerStartReportsBindError(t *testing.T) {
	s := New("256.0.0.1:bad")
	if err := s.Start(); err == nil {
		t.Error("expected a bind error")
	}
}
