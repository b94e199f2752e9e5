package dnsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// testAdapter speaks a tiny JSON API: lists are {"data":[...],"next":"..."}.
type testAdapter struct {
	base string
}

type testRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	TTL      int    `json:"ttl"`
	Priority int    `json:"priority"`
}

func (a *testAdapter) Name() string    { return "test" }
func (a *testAdapter) BaseURL() string { return a.base }
func (a *testAdapter) Authorize(h http.Header, token string) {
	h.Set("Authorization", "Bearer "+token)
}
func (a *testAdapter) Whoami() Call { return Call{Method: http.MethodGet, Path: "/whoami"} }
func (a *testAdapter) DecodeWhoami(body []byte) (model.Account, error) {
	var acct model.Account
	err := json.Unmarshal(body, &acct)
	return acct, err
}
func (a *testAdapter) ListZones(accountID, cursor string) Call {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return Call{Method: http.MethodGet, Path: "/" + accountID + "/zones", Query: q}
}
func (a *testAdapter) DecodeZones(accountID string, body []byte) ([]model.Zone, string, error) {
	var page struct {
		Data []model.Zone `json:"data"`
		Next string       `json:"next"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", err
	}
	return page.Data, page.Next, nil
}
func (a *testAdapter) ListRecords(zone model.Zone, cursor string) Call {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return Call{Method: http.MethodGet, Path: "/zones/" + zone.Name + "/records", Query: q}
}
func (a *testAdapter) DecodeRecords(zone model.Zone, body []byte) ([]model.Record, string, error) {
	var page struct {
		Data []testRecord `json:"data"`
		Next string       `json:"next"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, "", err
	}
	out := make([]model.Record, 0, len(page.Data))
	for _, r := range page.Data {
		out = append(out, toModel(zone, r))
	}
	return out, page.Next, nil
}
func (a *testAdapter) CreateRecord(zone model.Zone, d model.Draft) Call {
	r := testRecord{Name: d.Name, Type: string(d.Type), Content: d.Content, TTL: d.TTL}
	if d.Priority != nil {
		r.Priority = *d.Priority
	}
	return Call{Method: http.MethodPost, Path: "/zones/" + zone.Name + "/records", Body: r}
}
func (a *testAdapter) UpdateRecord(zone model.Zone, id string, p model.Patch) Call {
	return Call{Method: http.MethodPatch, Path: "/zones/" + zone.Name + "/records/" + id, Body: p}
}
func (a *testAdapter) DecodeRecord(zone model.Zone, body []byte) (model.Record, error) {
	var r testRecord
	if err := json.Unmarshal(body, &r); err != nil {
		return model.Record{}, err
	}
	return toModel(zone, r), nil
}
func (a *testAdapter) DeleteRecord(zone model.Zone, id string) Call {
	return Call{Method: http.MethodDelete, Path: "/zones/" + zone.Name + "/records/" + id}
}
func (a *testAdapter) ErrorDetail(status int, body []byte) (model.Kind, string) {
	var e struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	_ = json.Unmarshal(body, &e)
	if e.Code == "duplicate" {
		return model.KindConflict, e.Message
	}
	return "", e.Message
}
func (a *testAdapter) RateLimitReset(h http.Header, now time.Time) (time.Duration, bool) {
	v := h.Get("X-Test-Reset")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return time.Unix(secs, 0).Sub(now), true
}

func toModel(zone model.Zone, r testRecord) model.Record {
	return model.Record{
		ID: r.ID, ZoneID: zone.ID, Name: r.Name, Type: model.RecordType(r.Type),
		Content: r.Content, TTL: r.TTL, Priority: r.Priority,
	}
}

// sleepRecorder replaces real sleeping in tests.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestGateway(t *testing.T, handler http.Handler) (*Gateway, *sleepRecorder) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	rec := &sleepRecorder{}
	g := New(&testAdapter{base: srv.URL}, "secret",
		WithHTTPClient(srv.Client()),
		WithRateLimit(0, 0),
		WithRetryPolicy(RetryPolicy{MaxRetries: 3, CreateRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 40 * time.Second}),
	)
	g.sleep = rec.sleep
	return g, rec
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListZonesAssemblesAllPages(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		switch r.URL.Query().Get("cursor") {
		case "":
			writeJSON(w, 200, map[string]any{"data": []model.Zone{{ID: "1", Name: "a.com"}}, "next": "p2"})
		case "p2":
			writeJSON(w, 200, map[string]any{"data": []model.Zone{{ID: "2", Name: "b.com"}}, "next": "p3"})
		default:
			writeJSON(w, 200, map[string]any{"data": []model.Zone{{ID: "3", Name: "c.com"}}})
		}
	}))

	zones, err := g.ListZones(context.Background(), "acct")
	if err != nil {
		t.Fatalf("ListZones() error = %v", err)
	}
	if len(zones) != 3 {
		t.Fatalf("expected 3 zones, got %d", len(zones))
	}
	for i, want := range []string{"a.com", "b.com", "c.com"} {
		if zones[i].Name != want {
			t.Errorf("zone %d: expected %s, got %s", i, want, zones[i].Name)
		}
	}
}

func TestListZonesEmpty(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"data": []model.Zone{}})
	}))

	zones, err := g.ListZones(context.Background(), "acct")
	if err != nil {
		t.Fatalf("ListZones() error = %v", err)
	}
	if len(zones) != 0 {
		t.Errorf("expected no zones, got %d", len(zones))
	}
}

func TestPageFailureFailsWholeCall(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, 200, map[string]any{"data": []testRecord{{ID: "1", Type: "A"}}, "next": "p2"})
			return
		}
		writeJSON(w, 503, map[string]string{"message": "maintenance"})
	}))

	records, err := g.ListRecords(context.Background(), model.Zone{ID: "z", Name: "example.com"})
	if err == nil {
		t.Fatal("expected error")
	}
	if records != nil {
		t.Errorf("expected no partial result, got %d records", len(records))
	}
	if model.KindOf(err) != model.KindTransient {
		t.Errorf("expected transient, got %s", model.KindOf(err))
	}
}

func TestRepeatedCursorIsRejected(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"data": []model.Zone{{ID: "1"}}, "next": "same"})
	}))

	if _, err := g.ListZones(context.Background(), "acct"); err == nil {
		t.Fatal("expected error for looping cursor")
	}
}

func TestRateLimitHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	g, rec := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			writeJSON(w, 429, map[string]string{"message": "slow down"})
			return
		}
		writeJSON(w, 200, model.Account{ID: "1", Name: "Ops"})
	}))

	acct, err := g.Whoami(context.Background())
	if err != nil {
		t.Fatalf("Whoami() error = %v", err)
	}
	if acct.ID != "1" {
		t.Errorf("expected account 1, got %s", acct.ID)
	}
	if len(rec.waits) != 1 || rec.waits[0] != 7*time.Second {
		t.Errorf("expected one 7s wait, got %v", rec.waits)
	}
}

func TestRateLimitUsesAdapterResetHeader(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var calls atomic.Int32
	g, rec := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-Test-Reset", strconv.FormatInt(now.Add(12*time.Second).Unix(), 10))
			w.WriteHeader(429)
			return
		}
		writeJSON(w, 200, model.Account{ID: "1"})
	}))
	g.now = func() time.Time { return now }

	if _, err := g.Whoami(context.Background()); err != nil {
		t.Fatalf("Whoami() error = %v", err)
	}
	if len(rec.waits) != 1 || rec.waits[0] != 12*time.Second {
		t.Errorf("expected one 12s wait, got %v", rec.waits)
	}
}

func TestRateLimitWaitIsCapped(t *testing.T) {
	var calls atomic.Int32
	g, rec := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(429)
			return
		}
		writeJSON(w, 200, model.Account{ID: "1"})
	}))

	if _, err := g.Whoami(context.Background()); err != nil {
		t.Fatalf("Whoami() error = %v", err)
	}
	if len(rec.waits) != 1 || rec.waits[0] != 40*time.Second {
		t.Errorf("expected wait capped at 40s, got %v", rec.waits)
	}
}

func TestRateLimitBudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(429)
	}))

	_, err := g.Whoami(context.Background())
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("expected 4 attempts (1 + 3 retries), got %d", got)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   model.Kind
	}{
		{400, `{"message":"bad"}`, model.KindValidation},
		{401, ``, model.KindUnauthorized},
		{403, ``, model.KindUnauthorized},
		{404, ``, model.KindNotFound},
		{422, `{"message":"invalid content"}`, model.KindValidation},
		{400, `{"message":"exists","code":"duplicate"}`, model.KindConflict},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			var calls atomic.Int32
			g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			err := g.DeleteRecord(context.Background(), model.Zone{Name: "example.com"}, "9")
			if got := model.KindOf(err); got != tt.want {
				t.Errorf("expected %s, got %s (%v)", tt.want, got, err)
			}
			if calls.Load() != 1 {
				t.Errorf("expected no retries for %d, got %d calls", tt.status, calls.Load())
			}
		})
	}
}

func TestUpdateRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	g, rec := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(502)
			return
		}
		writeJSON(w, 200, testRecord{ID: "5", Name: "www", Type: "A", Content: "10.0.0.2", TTL: 60})
	}))

	got, err := g.UpdateRecord(context.Background(), model.Zone{ID: "z", Name: "example.com"}, "5",
		model.Patch{Content: model.String("10.0.0.2")})
	if err != nil {
		t.Fatalf("UpdateRecord() error = %v", err)
	}
	if got.Content != "10.0.0.2" {
		t.Errorf("expected updated content, got %s", got.Content)
	}
	if len(rec.waits) != 2 {
		t.Errorf("expected 2 backoff waits, got %d", len(rec.waits))
	}
}

// recordServer is a fake zone whose create endpoint can be scripted to fail.
type recordServer struct {
	mu      sync.Mutex
	records []testRecord
	posts   int
	// failPost decides, per POST attempt (1-based), whether to fail and
	// whether the record is stored before failing.
	failPost  func(n int) (fail, stored bool)
	failLists bool
}

func (s *recordServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		if s.failLists {
			w.WriteHeader(500)
			return
		}
		writeJSON(w, 200, map[string]any{"data": s.records})
	case http.MethodPost:
		s.posts++
		var in testRecord
		_ = json.NewDecoder(r.Body).Decode(&in)
		fail, stored := false, false
		if s.failPost != nil {
			fail, stored = s.failPost(s.posts)
		}
		if !fail || stored {
			in.ID = strconv.Itoa(100 + len(s.records))
			s.records = append(s.records, in)
		}
		if fail {
			w.WriteHeader(http.StatusGatewayTimeout)
			return
		}
		writeJSON(w, 201, in)
	}
}

func TestCreateTimesOutTwiceThenSucceeds(t *testing.T) {
	srv := &recordServer{failPost: func(n int) (bool, bool) { return n <= 2, false }}
	g, _ := newTestGateway(t, srv)

	rec, err := g.CreateRecord(context.Background(), model.Zone{ID: "z", Name: "example.com"},
		model.Draft{Name: "www", Type: model.RecordTypeA, Content: "10.0.0.1", TTL: 300})
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if rec.ID == "" {
		t.Error("expected remote id")
	}
	if len(srv.records) != 1 {
		t.Errorf("expected exactly one remote record, got %d", len(srv.records))
	}
	if srv.posts != 3 {
		t.Errorf("expected 3 POSTs, got %d", srv.posts)
	}
}

func TestCreateAdoptsRecordWhenResponseLost(t *testing.T) {
	srv := &recordServer{failPost: func(n int) (bool, bool) { return n == 1, true }}
	g, _ := newTestGateway(t, srv)

	prio := 10
	rec, err := g.CreateRecord(context.Background(), model.Zone{ID: "z", Name: "example.com"},
		model.Draft{Name: "", Type: model.RecordTypeMX, Content: "mx.example.com", Priority: &prio})
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}
	if srv.posts != 1 {
		t.Errorf("expected a single POST, got %d", srv.posts)
	}
	if len(srv.records) != 1 {
		t.Errorf("expected one remote record, got %d", len(srv.records))
	}
	if rec.ID != srv.records[0].ID {
		t.Errorf("expected adopted id %s, got %s", srv.records[0].ID, rec.ID)
	}
}

func TestCreateBlindRetryLimit(t *testing.T) {
	srv := &recordServer{failPost: func(int) (bool, bool) { return true, false }, failLists: true}
	g, _ := newTestGateway(t, srv)

	_, err := g.CreateRecord(context.Background(), model.Zone{ID: "z", Name: "example.com"},
		model.Draft{Name: "www", Type: model.RecordTypeA, Content: "10.0.0.1"})
	if !errors.Is(err, model.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if srv.posts != 2 {
		t.Errorf("expected 2 POSTs (one blind retry), got %d", srv.posts)
	}
}

func TestCreateRetryBudgetIndependentOfMaxRetries(t *testing.T) {
	srv := &recordServer{failPost: func(int) (bool, bool) { return true, false }}
	g, _ := newTestGateway(t, srv)
	g.policy = RetryPolicy{MaxRetries: 5, CreateRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	_, err := g.CreateRecord(context.Background(), model.Zone{ID: "z", Name: "example.com"},
		model.Draft{Name: "www", Type: model.RecordTypeA, Content: "10.0.0.1"})
	if !errors.Is(err, model.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if srv.posts != 3 {
		t.Errorf("expected 3 POSTs, got %d", srv.posts)
	}
	if len(srv.records) != 0 {
		t.Errorf("expected no remote record, got %d", len(srv.records))
	}
}

func TestCreateValidationNotRetried(t *testing.T) {
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 422, map[string]string{"message": "content is invalid"})
	}))

	_, err := g.CreateRecord(context.Background(), model.Zone{Name: "example.com"},
		model.Draft{Name: "www", Type: model.RecordTypeA, Content: "nope"})
	if !model.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestContextCancelStopsRetries(t *testing.T) {
	var calls atomic.Int32
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(503)
	}))
	ctx, cancel := context.WithCancel(context.Background())
	g.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := g.DeleteRecord(ctx, model.Zone{Name: "example.com"}, "1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestUnsupportedOperation(t *testing.T) {
	g, _ := newTestGateway(t, http.NotFoundHandler())

	_, err := g.ZoneFile(context.Background(), model.Zone{Name: "example.com"})
	if !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := g.SetZoneActive(context.Background(), model.Zone{Name: "example.com"}, true); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := g.ListDomains(context.Background(), "1", ""); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := g.Domain(context.Background(), "1", "example.com"); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if _, err := g.CreateDomain(context.Background(), "1", "example.com"); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := g.DeleteDomain(context.Background(), "1", "example.com"); !model.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSetToken(t *testing.T) {
	var seen atomic.Value
	g, _ := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		writeJSON(w, 200, model.Account{ID: "1"})
	}))
	g.SetToken("rotated")

	if _, err := g.Whoami(context.Background()); err != nil {
		t.Fatalf("Whoami() error = %v", err)
	}
	if got := seen.Load(); got != "Bearer rotated" {
		t.Errorf("expected rotated token, got %v", got)
	}
}
