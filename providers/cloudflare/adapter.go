// Package cloudflare implements the gateway adapter for the Cloudflare v4 API.
package cloudflare

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/pkg/dnsapi"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

const (
	// TypeName is the provider type used in configuration.
	TypeName = "cloudflare"

	// DefaultAPIEndpoint is the base URL for Cloudflare API v4.
	DefaultAPIEndpoint = "https://api.cloudflare.com/client/v4"

	// DefaultPerPage is the page size requested for list calls.
	DefaultPerPage = 100

	// autoTTL is Cloudflare's "automatic" TTL value.
	autoTTL = 1
)

// Cloudflare error codes with a specific meaning.
const (
	codeRecordExists    = 81053 // record with that host already exists
	codeIdenticalRecord = 81058 // an identical record already exists
	codeInvalidToken    = 9109
	codeAuthError       = 10000
)

// Adapter maps gateway operations to the Cloudflare API.
type Adapter struct {
	apiEndpoint string
	perPage     int
}

// New creates an adapter. Cloudflare has no sandbox, so cfg.Sandbox is ignored.
func New(cfg dnsapi.AdapterConfig) (*Adapter, error) {
	endpoint := DefaultAPIEndpoint
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid API endpoint %q", cfg.BaseURL)
		}
		endpoint = cfg.BaseURL
	}
	return &Adapter{apiEndpoint: strings.TrimSuffix(endpoint, "/"), perPage: DefaultPerPage}, nil
}

// Factory is the dnsapi.Factory for Cloudflare.
func Factory(cfg dnsapi.AdapterConfig) (dnsapi.Adapter, error) {
	return New(cfg)
}

// Register adds the Cloudflare factory to r.
func Register(r *dnsapi.Registry) {
	r.Register(TypeName, Factory)
}

func (a *Adapter) Name() string    { return TypeName }
func (a *Adapter) BaseURL() string { return a.apiEndpoint }

func (a *Adapter) Authorize(h http.Header, token string) {
	h.Set("Authorization", "Bearer "+token)
}

// decode unwraps the standard response envelope.
func decode(body []byte) (*apiResponse, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	if !resp.Success {
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("API error: %s (code: %d)", resp.Errors[0].Message, resp.Errors[0].Code)
		}
		return nil, fmt.Errorf("API request failed with unknown error")
	}
	return &resp, nil
}

func nextCursor(info *resultInfo) string {
	if info == nil || info.Page >= info.TotalPages {
		return ""
	}
	return strconv.Itoa(info.Page + 1)
}

func (a *Adapter) pageQuery(cursor string) url.Values {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(a.perPage))
	if cursor != "" {
		q.Set("page", cursor)
	}
	return q
}

// Whoami uses the account list; an API token is normally scoped to one account.
func (a *Adapter) Whoami() dnsapi.Call {
	q := url.Values{}
	q.Set("per_page", "1")
	return dnsapi.Call{Method: http.MethodGet, Path: "/accounts", Query: q}
}

func (a *Adapter) DecodeWhoami(body []byte) (model.Account, error) {
	resp, err := decode(body)
	if err != nil {
		return model.Account{}, err
	}
	var accounts []accountResult
	if err := json.Unmarshal(resp.Result, &accounts); err != nil {
		return model.Account{}, err
	}
	if len(accounts) == 0 {
		return model.Account{}, fmt.Errorf("token has access to no accounts")
	}
	return model.Account{ID: accounts[0].ID, Name: accounts[0].Name, Active: true}, nil
}

func (a *Adapter) ListZones(accountID, cursor string) dnsapi.Call {
	q := a.pageQuery(cursor)
	if accountID != "" {
		q.Set("account.id", accountID)
	}
	return dnsapi.Call{Method: http.MethodGet, Path: "/zones", Query: q}
}

func (a *Adapter) DecodeZones(accountID string, body []byte) ([]model.Zone, string, error) {
	resp, err := decode(body)
	if err != nil {
		return nil, "", err
	}
	var results []zoneResult
	if err := json.Unmarshal(resp.Result, &results); err != nil {
		return nil, "", err
	}
	zones := make([]model.Zone, 0, len(results))
	for _, z := range results {
		acct := z.Account.ID
		if acct == "" {
			acct = accountID
		}
		zones = append(zones, model.Zone{ID: z.ID, AccountID: acct, Name: z.Name, Status: zoneStatus(z)})
	}
	return zones, nextCursor(resp.ResultInfo), nil
}

func zoneStatus(z zoneResult) model.ZoneStatus {
	if z.Paused {
		return model.ZoneInactive
	}
	switch z.Status {
	case "active":
		return model.ZoneActive
	case "pending", "initializing":
		return model.ZoneTransferring
	default:
		return model.ZoneInactive
	}
}

func recordsPath(zone model.Zone) string {
	return "/zones/" + url.PathEscape(zone.ID) + "/dns_records"
}

func (a *Adapter) ListRecords(zone model.Zone, cursor string) dnsapi.Call {
	return dnsapi.Call{Method: http.MethodGet, Path: recordsPath(zone), Query: a.pageQuery(cursor)}
}

func (a *Adapter) DecodeRecords(zone model.Zone, body []byte) ([]model.Record, string, error) {
	resp, err := decode(body)
	if err != nil {
		return nil, "", err
	}
	var results []dnsRecord
	if err := json.Unmarshal(resp.Result, &results); err != nil {
		return nil, "", err
	}
	records := make([]model.Record, 0, len(results))
	for _, r := range results {
		records = append(records, toRecord(zone, r))
	}
	return records, nextCursor(resp.ResultInfo), nil
}

// toRecord converts a Cloudflare record. Cloudflare names are fully
// qualified; the model keeps them relative to the zone.
func toRecord(zone model.Zone, r dnsRecord) model.Record {
	rec := model.Record{
		ID:      r.ID,
		ZoneID:  zone.ID,
		Name:    model.NormalizeName(r.Name, zone.Name),
		Type:    model.RecordType(strings.ToUpper(r.Type)),
		Content: r.Content,
		TTL:     r.TTL,
		System:  r.Meta.ReadOnly,
	}
	if rec.TTL == autoTTL {
		rec.TTL = 0
	}
	if r.Priority != nil {
		rec.Priority = *r.Priority
	}
	return rec
}

func fqdn(name string, zone model.Zone) string {
	if name == "" || name == "@" {
		return zone.Name
	}
	return name + "." + zone.Name
}

func (a *Adapter) CreateRecord(zone model.Zone, d model.Draft) dnsapi.Call {
	name := fqdn(d.Name, zone)
	content := d.Content
	ttl := d.TTL
	if ttl <= 0 {
		ttl = autoTTL
	}
	proxied := false
	return dnsapi.Call{Method: http.MethodPost, Path: recordsPath(zone), Body: recordRequest{
		Type:     string(d.Type),
		Name:     &name,
		Content:  &content,
		TTL:      &ttl,
		Priority: d.Priority,
		Proxied:  &proxied,
	}}
}

func (a *Adapter) UpdateRecord(zone model.Zone, id string, p model.Patch) dnsapi.Call {
	body := recordRequest{Content: p.Content, Priority: p.Priority}
	if p.Name != nil {
		name := fqdn(*p.Name, zone)
		body.Name = &name
	}
	if p.TTL != nil {
		ttl := *p.TTL
		if ttl <= 0 {
			ttl = autoTTL
		}
		body.TTL = &ttl
	}
	return dnsapi.Call{Method: http.MethodPatch, Path: recordsPath(zone) + "/" + url.PathEscape(id), Body: body}
}

func (a *Adapter) DecodeRecord(zone model.Zone, body []byte) (model.Record, error) {
	resp, err := decode(body)
	if err != nil {
		return model.Record{}, err
	}
	var r dnsRecord
	if err := json.Unmarshal(resp.Result, &r); err != nil {
		return model.Record{}, err
	}
	return toRecord(zone, r), nil
}

func (a *Adapter) DeleteRecord(zone model.Zone, id string) dnsapi.Call {
	return dnsapi.Call{Method: http.MethodDelete, Path: recordsPath(zone) + "/" + url.PathEscape(id)}
}

// ErrorDetail maps Cloudflare error codes. Duplicate-record codes become
// conflicts regardless of the HTTP status.
func (a *Adapter) ErrorDetail(status int, body []byte) (model.Kind, string) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Errors) == 0 {
		return "", ""
	}
	e := resp.Errors[0]
	msg := fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
	switch e.Code {
	case codeRecordExists, codeIdenticalRecord:
		return model.KindConflict, msg
	case codeInvalidToken, codeAuthError:
		return model.KindUnauthorized, msg
	}
	return "", msg
}

// RateLimitReset reads the reset from the "Ratelimit" header
// (e.g. `"default";r=0;t=30`).
func (a *Adapter) RateLimitReset(h http.Header, _ time.Time) (time.Duration, bool) {
	v := h.Get("Ratelimit")
	if v == "" {
		return 0, false
	}
	for _, part := range strings.Split(v, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key != "t" {
			continue
		}
		secs, err := strconv.Atoi(val)
		if err != nil || secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// SetZoneActive pauses or unpauses the zone.
func (a *Adapter) SetZoneActive(zone model.Zone, active bool) dnsapi.Call {
	return dnsapi.Call{
		Method: http.MethodPatch,
		Path:   "/zones/" + url.PathEscape(zone.ID),
		Body:   zonePatch{Paused: !active},
	}
}

// ZoneFile uses the BIND export endpoint, which responds with plain text.
func (a *Adapter) ZoneFile(zone model.Zone) dnsapi.Call {
	return dnsapi.Call{Method: http.MethodGet, Path: recordsPath(zone) + "/export"}
}

func (a *Adapter) DecodeZoneFile(body []byte) (string, error) {
	return string(body), nil
}

var (
	_ dnsapi.Adapter       = (*Adapter)(nil)
	_ dnsapi.ZoneFiler     = (*Adapter)(nil)
	_ dnsapi.ZoneActivator = (*Adapter)(nil)
)
