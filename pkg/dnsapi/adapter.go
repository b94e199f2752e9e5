// Package dnsapi implements the gateway to a remote DNS provider API.
//
// The Gateway owns everything that is independent of the provider: bearer
// authentication, client-side rate limiting, retry with backoff, pagination
// assembly, error classification, tracing and metrics. Provider specifics
// (paths, payload shapes, pagination fields, error codes) live in an Adapter.
package dnsapi

import (
	"net/http"
	"net/url"
	"time"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Call describes one HTTP request to the provider.
type Call struct {
	Method string
	Path   string
	Query  url.Values
	Body   any // JSON-encoded when non-nil
}

// Adapter maps gateway operations to a provider's HTTP API.
//
// List decoders return an opaque continuation token. An empty token means
// the sequence is exhausted.
type Adapter interface {
	// Name returns the provider type (e.g. "dnsimple").
	Name() string

	// BaseURL returns the API root without a trailing slash.
	BaseURL() string

	// Authorize sets credential headers on a request.
	Authorize(h http.Header, token string)

	Whoami() Call
	DecodeWhoami(body []byte) (model.Account, error)

	ListZones(accountID, cursor string) Call
	DecodeZones(accountID string, body []byte) ([]model.Zone, string, error)

	ListRecords(zone model.Zone, cursor string) Call
	DecodeRecords(zone model.Zone, body []byte) ([]model.Record, string, error)

	CreateRecord(zone model.Zone, draft model.Draft) Call
	UpdateRecord(zone model.Zone, id string, patch model.Patch) Call
	DecodeRecord(zone model.Zone, body []byte) (model.Record, error)
	DeleteRecord(zone model.Zone, id string) Call

	// ErrorDetail extracts a message from an error response and may
	// override the status-based classification by returning a non-empty kind.
	ErrorDetail(status int, body []byte) (model.Kind, string)

	// RateLimitReset returns the provider's own hint for when requests may
	// resume, used when no Retry-After header is present.
	RateLimitReset(h http.Header, now time.Time) (time.Duration, bool)
}

// ZoneFiler is implemented by adapters that can fetch a BIND zone file.
type ZoneFiler interface {
	ZoneFile(zone model.Zone) Call
	DecodeZoneFile(body []byte) (string, error)
}

// DistributionChecker is implemented by adapters that can report whether
// zone or record changes have reached all name servers.
type DistributionChecker interface {
	ZoneDistribution(zone model.Zone) Call
	RecordDistribution(zone model.Zone, id string) Call
	DecodeDistribution(body []byte) (bool, error)
}

// DomainLister is implemented by adapters that expose domain registration
// state. Names are matched case-insensitively by the provider.
type DomainLister interface {
	ListDomains(accountID, nameLike, cursor string) Call
	DecodeDomains(accountID string, body []byte) ([]model.Domain, string, error)
	GetDomain(accountID, name string) Call
	DecodeDomain(accountID string, body []byte) (model.Domain, error)
}

// DomainEditor is implemented by adapters that can add a domain to the
// account, which creates its zone, and remove it again. Created domains are
// decoded with DomainLister.DecodeDomain.
type DomainEditor interface {
	CreateDomain(accountID, name string) Call
	DeleteDomain(accountID, name string) Call
}

// ZoneActivator is implemented by adapters that can toggle DNS service for a zone.
type ZoneActivator interface {
	SetZoneActive(zone model.Zone, active bool) Call
}
