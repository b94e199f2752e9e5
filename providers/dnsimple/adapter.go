// Package dnsimple implements the gateway adapter for the DNSimple v2 API.
package dnsimple

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	sdk "github.com/dnsimple/dnsimple-go/dnsimple"

	"gitlab.bluewillows.net/root/zonedeck/pkg/dnsapi"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

const (
	// TypeName is the provider type used in configuration.
	TypeName = "dnsimple"

	// DefaultAPIEndpoint is the production API root.
	DefaultAPIEndpoint = "https://api.dnsimple.com/v2"

	// SandboxAPIEndpoint is the sandbox API root.
	SandboxAPIEndpoint = "https://api.sandbox.dnsimple.com/v2"

	// DefaultPerPage is the page size requested for list calls.
	DefaultPerPage = 100
)

// Adapter maps gateway operations to the DNSimple API.
type Adapter struct {
	baseURL string
	perPage int
}

// New creates an adapter. An explicit base URL wins over the sandbox flag.
func New(cfg dnsapi.AdapterConfig) (*Adapter, error) {
	base := DefaultAPIEndpoint
	if cfg.Sandbox {
		base = SandboxAPIEndpoint
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
		}
		base = cfg.BaseURL
	}
	return &Adapter{baseURL: strings.TrimSuffix(base, "/"), perPage: DefaultPerPage}, nil
}

// Factory is the dnsapi.Factory for DNSimple.
func Factory(cfg dnsapi.AdapterConfig) (dnsapi.Adapter, error) {
	return New(cfg)
}

// Register adds the DNSimple factory to r.
func Register(r *dnsapi.Registry) {
	r.Register(TypeName, Factory)
}

// Name implements dnsapi.Adapter.
func (a *Adapter) Name() string { return TypeName }

// BaseURL implements dnsapi.Adapter.
func (a *Adapter) BaseURL() string { return a.baseURL }

// Authorize implements dnsapi.Adapter.
func (a *Adapter) Authorize(h http.Header, token string) {
	h.Set("Authorization", "Bearer "+token)
}

// Whoami implements dnsapi.Adapter.
func (a *Adapter) Whoami() dnsapi.Call {
	return dnsapi.Call{Method: http.MethodGet, Path: "/whoami"}
}

// DecodeWhoami implements dnsapi.Adapter.
func (a *Adapter) DecodeWhoami(body []byte) (model.Account, error) {
	var resp DataResponse[sdk.WhoamiData]
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Account{}, err
	}
	if resp.Data.Account == nil {
		return model.Account{}, fmt.Errorf("token is not scoped to an account")
	}
	acct := model.Account{
		ID:     strconv.FormatInt(resp.Data.Account.ID, 10),
		Email:  resp.Data.Account.Email,
		Active: true,
	}
	acct.Name = acct.Email
	if acct.Name == "" {
		acct.Name = "Account " + acct.ID
	}
	return acct, nil
}

func (a *Adapter) pageQuery(cursor string) url.Values {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(a.perPage))
	if cursor != "" {
		q.Set("page", cursor)
	}
	q.Set("sort", "id:asc")
	return q
}

// nextCursor turns DNSimple page numbers into a continuation token.
func nextCursor(p *sdk.Pagination) string {
	if p == nil || p.CurrentPage >= p.TotalPages {
		return ""
	}
	return strconv.Itoa(p.CurrentPage + 1)
}

// ListZones implements dnsapi.Adapter.
func (a *Adapter) ListZones(accountID, cursor string) dnsapi.Call {
	return dnsapi.Call{
		Method: http.MethodGet,
		Path:   "/" + url.PathEscape(accountID) + "/zones",
		Query:  a.pageQuery(cursor),
	}
}

// DecodeZones implements dnsapi.Adapter.
func (a *Adapter) DecodeZones(accountID string, body []byte) ([]model.Zone, string, error) {
	var resp ListResponse[sdk.Zone]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", err
	}
	zones := make([]model.Zone, 0, len(resp.Data))
	for _, z := range resp.Data {
		status := model.ZoneActive
		if !z.Active {
			status = model.ZoneInactive
		}
		acct := accountID
		if z.AccountID != 0 {
			acct = strconv.FormatInt(z.AccountID, 10)
		}
		zones = append(zones, model.Zone{
			ID:        strconv.FormatInt(z.ID, 10),
			AccountID: acct,
			Name:      z.Name,
			Status:    status,
		})
	}
	return zones, nextCursor(resp.Pagination), nil
}

func zonePath(zone model.Zone) string {
	return "/" + url.PathEscape(zone.AccountID) + "/zones/" + url.PathEscape(zone.Name)
}

// ListRecords implements dnsapi.Adapter.
func (a *Adapter) ListRecords(zone model.Zone, cursor string) dnsapi.Call {
	return dnsapi.Call{
		Method: http.MethodGet,
		Path:   zonePath(zone) + "/records",
		Query:  a.pageQuery(cursor),
	}
}

// DecodeRecords implements dnsapi.Adapter.
func (a *Adapter) DecodeRecords(zone model.Zone, body []byte) ([]model.Record, string, error) {
	var resp ListResponse[sdk.ZoneRecord]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", err
	}
	records := make([]model.Record, 0, len(resp.Data))
	for _, r := range resp.Data {
		records = append(records, toRecord(zone, r))
	}
	return records, nextCursor(resp.Pagination), nil
}

func toRecord(zone model.Zone, r sdk.ZoneRecord) model.Record {
	return model.Record{
		ID:       strconv.FormatInt(r.ID, 10),
		ZoneID:   zone.ID,
		Name:     r.Name,
		Type:     model.RecordType(strings.ToUpper(r.Type)),
		Content:  r.Content,
		TTL:      r.TTL,
		Priority: r.Priority,
		System:   r.SystemRecord,
	}
}

// CreateRecord implements dnsapi.Adapter.
func (a *Adapter) CreateRecord(zone model.Zone, d model.Draft) dnsapi.Call {
	name := d.Name
	body := sdk.ZoneRecordAttributes{
		Name:    &name,
		Type:    string(d.Type),
		Content: d.Content,
		TTL:     d.TTL,
	}
	if d.Priority != nil {
		body.Priority = *d.Priority
	}
	return dnsapi.Call{Method: http.MethodPost, Path: zonePath(zone) + "/records", Body: body}
}

// UpdateRecord implements dnsapi.Adapter.
func (a *Adapter) UpdateRecord(zone model.Zone, id string, p model.Patch) dnsapi.Call {
	body := RecordPatch{
		Name:     p.Name,
		Content:  p.Content,
		TTL:      p.TTL,
		Priority: p.Priority,
	}
	return dnsapi.Call{
		Method: http.MethodPatch,
		Path:   zonePath(zone) + "/records/" + url.PathEscape(id),
		Body:   body,
	}
}

// DecodeRecord implements dnsapi.Adapter.
func (a *Adapter) DecodeRecord(zone model.Zone, body []byte) (model.Record, error) {
	var resp DataResponse[sdk.ZoneRecord]
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Record{}, err
	}
	return toRecord(zone, resp.Data), nil
}

// DeleteRecord implements dnsapi.Adapter.
func (a *Adapter) DeleteRecord(zone model.Zone, id string) dnsapi.Call {
	return dnsapi.Call{Method: http.MethodDelete, Path: zonePath(zone) + "/records/" + url.PathEscape(id)}
}

// ErrorDetail implements dnsapi.Adapter.
func (a *Adapter) ErrorDetail(status int, body []byte) (model.Kind, string) {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", ""
	}
	msg := resp.Message
	if len(resp.Errors) > 0 {
		fields := make([]string, 0, len(resp.Errors))
		for field := range resp.Errors {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		var parts []string
		for _, field := range fields {
			parts = append(parts, field+" "+strings.Join(resp.Errors[field], ", "))
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if status == http.StatusBadRequest && strings.Contains(strings.ToLower(resp.Message), "already exists") {
		return model.KindConflict, msg
	}
	return "", msg
}

// RateLimitReset implements dnsapi.Adapter. DNSimple reports the reset as a
// Unix timestamp.
func (a *Adapter) RateLimitReset(h http.Header, now time.Time) (time.Duration, bool) {
	v := h.Get("X-RateLimit-Reset")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	d := time.Unix(secs, 0).Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// ZoneFile implements dnsapi.ZoneFiler.
func (a *Adapter) ZoneFile(zone model.Zone) dnsapi.Call {
	return dnsapi.Call{Method: http.MethodGet, Path: zonePath(zone) + "/file"}
}

// DecodeZoneFile implements dnsapi.ZoneFiler.
func (a *Adapter) DecodeZoneFile(body []byte) (string, error) {
	var resp DataResponse[sdk.ZoneFile]
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	return resp.Data.Zone, nil
}

// ZoneDistribution implements dnsapi.DistributionChecker.
func (a *Adapter) ZoneDistribution(zone model.Zone) dnsapi.Call {
	return dnsapi.Call{Method: http.MethodGet, Path: zonePath(zone) + "/distribution"}
}

// RecordDistribution implements dnsapi.DistributionChecker.
func (a *Adapter) RecordDistribution(zone model.Zone, id string) dnsapi.Call {
	return dnsapi.Call{Method: http.MethodGet, Path: zonePath(zone) + "/records/" + url.PathEscape(id) + "/distribution"}
}

// DecodeDistribution implements dnsapi.DistributionChecker.
func (a *Adapter) DecodeDistribution(body []byte) (bool, error) {
	var resp DataResponse[sdk.ZoneDistribution]
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, err
	}
	return resp.Data.Distributed, nil
}

// ListDomains implements dnsapi.DomainLister.
func (a *Adapter) ListDomains(accountID, nameLike, cursor string) dnsapi.Call {
	q := a.pageQuery(cursor)
	if nameLike != "" {
		q.Set("name_like", nameLike)
	}
	return dnsapi.Call{
		Method: http.MethodGet,
		Path:   "/" + url.PathEscape(accountID) + "/domains",
		Query:  q,
	}
}

// DecodeDomains implements dnsapi.DomainLister.
func (a *Adapter) DecodeDomains(accountID string, body []byte) ([]model.Domain, string, error) {
	var resp ListResponse[sdk.Domain]
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", err
	}
	domains := make([]model.Domain, 0, len(resp.Data))
	for _, d := range resp.Data {
		domains = append(domains, toDomain(accountID, d))
	}
	return domains, nextCursor(resp.Pagination), nil
}

// GetDomain implements dnsapi.DomainLister.
func (a *Adapter) GetDomain(accountID, name string) dnsapi.Call {
	return dnsapi.Call{
		Method: http.MethodGet,
		Path:   "/" + url.PathEscape(accountID) + "/domains/" + url.PathEscape(name),
	}
}

// DecodeDomain implements dnsapi.DomainLister.
func (a *Adapter) DecodeDomain(accountID string, body []byte) (model.Domain, error) {
	var resp DataResponse[sdk.Domain]
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.Domain{}, err
	}
	return toDomain(accountID, resp.Data), nil
}

// CreateDomain implements dnsapi.DomainEditor.
func (a *Adapter) CreateDomain(accountID, name string) dnsapi.Call {
	return dnsapi.Call{
		Method: http.MethodPost,
		Path:   "/" + url.PathEscape(accountID) + "/domains",
		Body:   sdk.Domain{Name: name},
	}
}

// DeleteDomain implements dnsapi.DomainEditor.
func (a *Adapter) DeleteDomain(accountID, name string) dnsapi.Call {
	return dnsapi.Call{
		Method: http.MethodDelete,
		Path:   "/" + url.PathEscape(accountID) + "/domains/" + url.PathEscape(name),
	}
}

func toDomain(accountID string, d sdk.Domain) model.Domain {
	out := model.Domain{
		ID:           strconv.FormatInt(d.ID, 10),
		AccountID:    accountID,
		Name:         d.Name,
		UnicodeName:  d.UnicodeName,
		State:        d.State,
		AutoRenew:    d.AutoRenew,
		PrivateWhois: d.PrivateWhois,
	}
	if d.AccountID != 0 {
		out.AccountID = strconv.FormatInt(d.AccountID, 10)
	}
	// Hosted domains carry no expiry; a malformed one is dropped too.
	if t, err := time.Parse(time.RFC3339, d.ExpiresAt); err == nil {
		t = t.UTC()
		out.ExpiresAt = &t
	}
	return out
}

// SetZoneActive implements dnsapi.ZoneActivator.
func (a *Adapter) SetZoneActive(zone model.Zone, active bool) dnsapi.Call {
	method := http.MethodDelete
	if active {
		method = http.MethodPut
	}
	return dnsapi.Call{Method: method, Path: zonePath(zone) + "/activation"}
}

var (
	_ dnsapi.Adapter             = (*Adapter)(nil)
	_ dnsapi.ZoneFiler           = (*Adapter)(nil)
	_ dnsapi.DistributionChecker = (*Adapter)(nil)
	_ dnsapi.ZoneActivator       = (*Adapter)(nil)
	_ dnsapi.DomainLister        = (*Adapter)(nil)
	_ dnsapi.DomainEditor        = (*Adapter)(nil)
)
