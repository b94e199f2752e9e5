// Package demo provides an in-process fake of the DNSimple v2 API.
//
// The server backs --demo mode and is used by tests to exercise the real
// gateway and adapter code paths without network access. Faults can be
// injected per route to simulate timeouts, rate limiting and server errors.
package demo

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	sdk "github.com/dnsimple/dnsimple-go/dnsimple"

	"gitlab.bluewillows.net/root/zonedeck/pkg/dnsapi"
	"gitlab.bluewillows.net/root/zonedeck/pkg/httputil"
	"gitlab.bluewillows.net/root/zonedeck/providers/dnsimple"
)

// BaseURL is the API root the demo server answers on.
const BaseURL = "http://demo.zonedeck.invalid/v2"

const (
	defaultPerPage = 30
	maxPerPage     = 100
)

// Fault makes matching requests fail.
type Fault struct {
	// Method matches the HTTP method. Empty matches any method.
	Method string
	// Path is matched as a substring of the request path.
	Path string
	// Status is the response status to return.
	Status int
	// Header is added to the failing response.
	Header http.Header
	// Times is how many matching requests fail. Zero means every request.
	Times int
	// Apply lets the request take effect before the failure is returned,
	// simulating a lost response.
	Apply bool
}

type zoneState struct {
	zone    sdk.Zone
	domain  sdk.Domain
	records []sdk.ZoneRecord
}

// Server is a fake DNSimple API.
type Server struct {
	mu       sync.Mutex
	account  sdk.Account
	zones    map[string]*zoneState
	nextID   int64
	nextZone int64
	faults   []*Fault
	calls    map[string]int
	token    string
	logger   *slog.Logger
	mux      *http.ServeMux
	now      func() time.Time
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithToken requires requests to carry this bearer token. By default any
// non-empty token is accepted.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// WithoutSeed starts the server with an account but no zones.
func WithoutSeed() Option {
	return func(s *Server) {
		s.zones = make(map[string]*zoneState)
	}
}

// NewServer creates a demo server seeded with sample zones.
func NewServer(opts ...Option) *Server {
	s := &Server{
		account:  sdk.Account{ID: AccountID, Email: "demo@zonedeck.invalid", PlanIdentifier: "professional"},
		nextID:   8800000,
		nextZone: 972300,
		calls:    make(map[string]int),
		logger:   slog.Default(),
		now:      time.Now,
	}
	s.seed()
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Transport returns a round tripper that serves requests in process.
func (s *Server) Transport() http.RoundTripper {
	return httputil.HandlerTransport{Handler: s}
}

// InjectFault registers a fault. Faults are matched in registration order.
func (s *Server) InjectFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc := f
	s.faults = append(s.faults, &fc)
}

// ClearFaults removes all faults.
func (s *Server) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// Calls returns how many requests with method reached the server. An empty
// method counts every request.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if method == "" {
		n := 0
		for _, c := range s.calls {
			n += c
		}
		return n
	}
	return s.calls[method]
}

// AddZone adds an empty zone and returns its id.
func (s *Server) AddZone(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addZoneLocked(name, true).zone.ID
}

// Records returns a copy of the zone's records.
func (s *Server) Records(zone string) []sdk.ZoneRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zones[zone]
	if !ok {
		return nil
	}
	out := make([]sdk.ZoneRecord, len(zs.records))
	copy(out, zs.records)
	return out
}

// SetRecordContent changes a record out of band, as another client would.
func (s *Server) SetRecordContent(zone string, id int64, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zones[zone]
	if !ok {
		return false
	}
	for i := range zs.records {
		if zs.records[i].ID == id {
			zs.records[i].Content = content
			zs.records[i].UpdatedAt = s.stamp()
			return true
		}
	}
	return false
}

// RemoveRecord deletes a record out of band.
func (s *Server) RemoveRecord(zone string, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(zone, id)
}

func (s *Server) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/whoami", s.handleWhoami)
	mux.HandleFunc("GET /v2/{account}/domains", s.handleListDomains)
	mux.HandleFunc("POST /v2/{account}/domains", s.handleCreateDomain)
	mux.HandleFunc("GET /v2/{account}/domains/{domain}", s.handleGetDomain)
	mux.HandleFunc("DELETE /v2/{account}/domains/{domain}", s.handleDeleteDomain)
	mux.HandleFunc("GET /v2/{account}/zones", s.handleListZones)
	mux.HandleFunc("GET /v2/{account}/zones/{zone}", s.handleGetZone)
	mux.HandleFunc("GET /v2/{account}/zones/{zone}/file", s.handleZoneFile)
	mux.HandleFunc("GET /v2/{account}/zones/{zone}/distribution", s.handleZoneDistribution)
	mux.HandleFunc("PUT /v2/{account}/zones/{zone}/activation", s.handleActivation(true))
	mux.HandleFunc("DELETE /v2/{account}/zones/{zone}/activation", s.handleActivation(false))
	mux.HandleFunc("GET /v2/{account}/zones/{zone}/records", s.handleListRecords)
	mux.HandleFunc("POST /v2/{account}/zones/{zone}/records", s.handleCreateRecord)
	mux.HandleFunc("GET /v2/{account}/zones/{zone}/records/{id}", s.handleGetRecord)
	mux.HandleFunc("PATCH /v2/{account}/zones/{zone}/records/{id}", s.handleUpdateRecord)
	mux.HandleFunc("DELETE /v2/{account}/zones/{zone}/records/{id}", s.handleDeleteRecord)
	mux.HandleFunc("GET /v2/{account}/zones/{zone}/records/{id}/distribution", s.handleRecordDistribution)
	s.mux = mux
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.calls[r.Method]++
	fault := s.matchFault(r)
	s.mu.Unlock()

	s.logger.Debug("demo request",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	auth := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if auth == "" || (s.token != "" && auth != s.token) {
		writeError(w, http.StatusUnauthorized, "Authentication failed", nil)
		return
	}

	if fault == nil {
		s.mux.ServeHTTP(w, r)
		return
	}
	if fault.Apply {
		s.mux.ServeHTTP(discardWriter{header: http.Header{}}, r)
	}
	for k, vs := range fault.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	writeError(w, fault.Status, http.StatusText(fault.Status), nil)
}

// matchFault returns the first active fault matching r. Caller holds mu.
func (s *Server) matchFault(r *http.Request) *Fault {
	for i, f := range s.faults {
		if f.Method != "" && f.Method != r.Method {
			continue
		}
		if !strings.Contains(r.URL.Path, f.Path) {
			continue
		}
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				s.faults = append(s.faults[:i:i], s.faults[i+1:]...)
			}
		}
		return f
	}
	return nil
}

func (s *Server) checkAccount(w http.ResponseWriter, r *http.Request) bool {
	if r.PathValue("account") != strconv.FormatInt(s.account.ID, 10) {
		writeError(w, http.StatusNotFound, "Account not found", nil)
		return false
	}
	return true
}

// zoneFor resolves the zone path value. Caller holds mu.
func (s *Server) zoneFor(w http.ResponseWriter, r *http.Request) (*zoneState, bool) {
	if !s.checkAccount(w, r) {
		return nil, false
	}
	name := r.PathValue("zone")
	zs, ok := s.zones[name]
	if !ok {
		for _, candidate := range s.zones {
			if strconv.FormatInt(candidate.zone.ID, 10) == name {
				zs, ok = candidate, true
				break
			}
		}
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Zone `"+name+"` not found", nil)
		return nil, false
	}
	return zs, true
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	acct := s.account
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, dnsimple.DataResponse[sdk.WhoamiData]{
		Data: sdk.WhoamiData{Account: &acct},
	})
}

// handleListDomains lists the domain of every zone, optionally filtered by
// name_like.
func (s *Server) handleListDomains(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAccount(w, r) {
		return
	}
	like := strings.ToLower(r.URL.Query().Get("name_like"))
	domains := make([]sdk.Domain, 0, len(s.zones))
	for _, name := range s.zoneNames() {
		if like != "" && !strings.Contains(name, like) {
			continue
		}
		domains = append(domains, s.zones[name].domain)
	}
	writePage(w, r, domains)
}

func (s *Server) handleGetDomain(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAccount(w, r) {
		return
	}
	name := strings.ToLower(r.PathValue("domain"))
	zs, ok := s.zones[name]
	if !ok {
		writeError(w, http.StatusNotFound, "Domain `"+name+"` not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, dnsimple.DataResponse[sdk.Domain]{Data: zs.domain})
}

// handleCreateDomain adds a hosted domain and its empty zone.
func (s *Server) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAccount(w, r) {
		return
	}
	var in sdk.Domain
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	name := strings.ToLower(strings.TrimSuffix(in.Name, "."))
	if !validDomainName(name) {
		writeError(w, http.StatusBadRequest, "Validation failed", map[string][]string{"name": {"is invalid"}})
		return
	}
	if _, ok := s.zones[name]; ok {
		writeError(w, http.StatusBadRequest, "Domain already exists", nil)
		return
	}
	zs := s.addZoneLocked(name, true)
	zs.zone.CreatedAt, zs.zone.UpdatedAt = s.stamp(), s.stamp()
	zs.domain.CreatedAt, zs.domain.UpdatedAt = zs.zone.CreatedAt, zs.zone.UpdatedAt
	s.logger.Debug("demo domain created", slog.String("domain", name))
	writeJSON(w, http.StatusCreated, dnsimple.DataResponse[sdk.Domain]{Data: zs.domain})
}

// handleDeleteDomain removes a domain together with its zone and records.
func (s *Server) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAccount(w, r) {
		return
	}
	name := strings.ToLower(r.PathValue("domain"))
	if _, ok := s.zones[name]; !ok {
		writeError(w, http.StatusNotFound, "Domain `"+name+"` not found", nil)
		return
	}
	delete(s.zones, name)
	s.logger.Debug("demo domain deleted", slog.String("domain", name))
	w.WriteHeader(http.StatusNoContent)
}

// validDomainName accepts lowercase host names with at least two labels.
func validDomainName(name string) bool {
	labels := strings.Split(name, ".")
	if len(name) > 253 || len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" || len(l) > 63 || l[0] == '-' || l[len(l)-1] == '-' {
			return false
		}
		for _, c := range l {
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
				return false
			}
		}
	}
	return true
}

// zoneNames returns the zone names in order. Caller holds mu.
func (s *Server) zoneNames() []string {
	names := make([]string, 0, len(s.zones))
	for name := range s.zones {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.checkAccount(w, r) {
		return
	}
	names := s.zoneNames()
	zones := make([]sdk.Zone, 0, len(names))
	for _, name := range names {
		zones = append(zones, s.zones[name].zone)
	}
	writePage(w, r, zones)
}

func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zoneFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dnsimple.DataResponse[sdk.Zone]{Data: zs.zone})
}

func (s *Server) handleZoneFile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zoneFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dnsimple.DataResponse[sdk.ZoneFile]{
		Data: sdk.ZoneFile{Zone: renderZoneFile(zs)},
	})
}

func (s *Server) handleZoneDistribution(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zoneFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dnsimple.DataResponse[sdk.ZoneDistribution]{
		Data: sdk.ZoneDistribution{Distributed: zs.zone.Active},
	})
}

func (s *Server) handleActivation(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		zs, ok := s.zoneFor(w, r)
		if !ok {
			return
		}
		zs.zone.Active = active
		zs.zone.UpdatedAt = s.stamp()
		writeJSON(w, http.StatusOK, dnsimple.DataResponse[sdk.Zone]{Data: zs.zone})
	}
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zoneFor(w, r)
	if !ok {
		return
	}
	records := make([]sdk.ZoneRecord, len(zs.records))
	copy(records, zs.records)
	writePage(w, r, records)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zoneFor(w, r)
	if !ok {
		return
	}
	i, ok := findRecord(w, r, zs)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dnsimple.DataResponse[sdk.ZoneRecord]{Data: zs.records[i]})
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zoneFor(w, r)
	if !ok {
		return
	}
	var attrs sdk.ZoneRecordAttributes
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}

	rec := sdk.ZoneRecord{
		ZoneID:   zs.zone.Name,
		Type:     strings.ToUpper(attrs.Type),
		Content:  attrs.Content,
		TTL:      3600,
		Priority: attrs.Priority,
		Regions:  []string{"global"},
	}
	if attrs.Name != nil {
		rec.Name = *attrs.Name
	}
	if attrs.TTL > 0 {
		rec.TTL = attrs.TTL
	}
	if errs := validateRecord(rec); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "Validation failed", errs)
		return
	}
	for _, existing := range zs.records {
		if sameRecord(existing, rec) {
			writeError(w, http.StatusBadRequest, "Zone record already exists", nil)
			return
		}
	}

	s.nextID++
	rec.ID = s.nextID
	rec.CreatedAt = s.stamp()
	rec.UpdatedAt = rec.CreatedAt
	zs.records = append(zs.records, rec)
	writeJSON(w, http.StatusCreated, dnsimple.DataResponse[sdk.ZoneRecord]{Data: rec})
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zoneFor(w, r)
	if !ok {
		return
	}
	i, ok := findRecord(w, r, zs)
	if !ok {
		return
	}
	if zs.records[i].SystemRecord {
		writeError(w, http.StatusBadRequest, "System records cannot be updated", nil)
		return
	}
	var attrs dnsimple.RecordPatch
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}

	rec := zs.records[i]
	if attrs.Name != nil {
		rec.Name = *attrs.Name
	}
	if attrs.Content != nil {
		rec.Content = *attrs.Content
	}
	if attrs.TTL != nil {
		rec.TTL = *attrs.TTL
	}
	if attrs.Priority != nil {
		rec.Priority = *attrs.Priority
	}
	if errs := validateRecord(rec); len(errs) > 0 {
		writeError(w, http.StatusBadRequest, "Validation failed", errs)
		return
	}
	rec.UpdatedAt = s.stamp()
	zs.records[i] = rec
	writeJSON(w, http.StatusOK, dnsimple.DataResponse[sdk.ZoneRecord]{Data: rec})
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zoneFor(w, r)
	if !ok {
		return
	}
	i, ok := findRecord(w, r, zs)
	if !ok {
		return
	}
	if zs.records[i].SystemRecord {
		writeError(w, http.StatusBadRequest, "System records cannot be deleted", nil)
		return
	}
	s.removeLocked(zs.zone.Name, zs.records[i].ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordDistribution(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	zs, ok := s.zoneFor(w, r)
	if !ok {
		return
	}
	if _, ok := findRecord(w, r, zs); !ok {
		return
	}
	writeJSON(w, http.StatusOK, dnsimple.DataResponse[sdk.ZoneDistribution]{
		Data: sdk.ZoneDistribution{Distributed: zs.zone.Active},
	})
}

func (s *Server) removeLocked(zone string, id int64) bool {
	zs, ok := s.zones[zone]
	if !ok {
		return false
	}
	for i := range zs.records {
		if zs.records[i].ID == id {
			zs.records = append(zs.records[:i], zs.records[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Server) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func findRecord(w http.ResponseWriter, r *http.Request, zs *zoneState) (int, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err == nil {
		for i := range zs.records {
			if zs.records[i].ID == id {
				return i, true
			}
		}
	}
	writeError(w, http.StatusNotFound, "Record `"+r.PathValue("id")+"` not found", nil)
	return 0, false
}

func sameRecord(a, b sdk.ZoneRecord) bool {
	return strings.EqualFold(a.Name, b.Name) && strings.EqualFold(a.Type, b.Type) &&
		a.Content == b.Content && a.Priority == b.Priority
}

// validateRecord applies the handful of checks the real API is strict about.
func validateRecord(rec sdk.ZoneRecord) map[string][]string {
	errs := make(map[string][]string)
	if rec.Type == "" {
		errs["type"] = append(errs["type"], "can't be blank")
	}
	if rec.Content == "" {
		errs["content"] = append(errs["content"], "can't be blank")
	}
	if rec.Priority < 0 || rec.Priority > 65535 {
		errs["priority"] = append(errs["priority"], "must be between 0 and 65535")
	}
	if rec.TTL < 0 {
		errs["ttl"] = append(errs["ttl"], "must be greater than or equal to 0")
	}
	return errs
}

func renderZoneFile(zs *zoneState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$ORIGIN %s.\n", zs.zone.Name)
	for _, r := range zs.records {
		name := r.Name
		if name == "" {
			name = "@"
		}
		if r.Type == "MX" || r.Type == "SRV" {
			fmt.Fprintf(&b, "%s %d IN %s %d %s\n", name, r.TTL, r.Type, r.Priority, r.Content)
			continue
		}
		content := r.Content
		if r.Type == "TXT" && !strings.HasPrefix(content, `"`) {
			content = strconv.Quote(content)
		}
		fmt.Fprintf(&b, "%s %d IN %s %s\n", name, r.TTL, r.Type, content)
	}
	return b.String()
}

func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page <= 0 {
		page = 1
	}
	totalPages := (len(items) + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * perPage
	if start > len(items) {
		start = len(items)
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	writeJSON(w, http.StatusOK, dnsimple.ListResponse[T]{
		Data: items[start:end],
		Pagination: &sdk.Pagination{
			CurrentPage:  page,
			PerPage:      perPage,
			TotalEntries: len(items),
			TotalPages:   totalPages,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, errs map[string][]string) {
	writeJSON(w, status, dnsimple.ErrorResponse{Message: msg, Errors: errs})
}

// discardWriter swallows the response of a request that is applied before
// a fault is returned.
type discardWriter struct {
	header http.Header
}

func (d discardWriter) Header() http.Header         { return d.header }
func (d discardWriter) Write(p []byte) (int, error) { return len(p), nil }
func (d discardWriter) WriteHeader(int)             {}

// Adapter returns a DNSimple adapter addressed at BaseURL.
func Adapter() *dnsimple.Adapter {
	a, err := dnsimple.New(dnsapi.AdapterConfig{BaseURL: BaseURL})
	if err != nil {
		panic(err)
	}
	return a
}

// NewGateway returns a gateway wired to s through an in-process transport.
func NewGateway(s *Server, token string, opts ...dnsapi.Option) *dnsapi.Gateway {
	client := httputil.NewClient(&httputil.ClientConfig{Base: s.Transport(), Logger: s.logger})
	opts = append([]dnsapi.Option{dnsapi.WithHTTPClient(client), dnsapi.WithRateLimit(0, 0)}, opts...)
	return dnsapi.New(Adapter(), token, opts...)
}
