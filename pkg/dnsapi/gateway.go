package dnsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"gitlab.bluewillows.net/root/zonedeck/internal/metrics"
	"gitlab.bluewillows.net/root/zonedeck/pkg/httputil"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

const (
	instrumentationName = "gitlab.bluewillows.net/root/zonedeck/pkg/dnsapi"

	// maxBodySize bounds how much of a response body is read.
	maxBodySize = 16 << 20

	// maxPages guards against providers that never stop returning cursors.
	maxPages = 10000
)

// Gateway performs provider API calls on behalf of the sync engine and the
// command core. It is safe for concurrent use.
type Gateway struct {
	adapter Adapter
	client  *http.Client
	policy  RetryPolicy
	limiter *rate.Limiter
	logger  *slog.Logger
	tracer  trace.Tracer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.RWMutex
	token string
}

// Option is a functional option for configuring the Gateway.
type Option func(*Gateway)

// WithLogger sets the logger for the gateway.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.client = client
		}
	}
}

// WithRetryPolicy sets the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) {
		g.policy = p.withDefaults()
	}
}

// WithRateLimit sets the client-side request rate. A non-positive rps
// disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(g *Gateway) {
		if rps <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		if tracer != nil {
			g.tracer = tracer
		}
	}
}

// New creates a gateway for adapter authenticated with token.
func New(adapter Adapter, token string, opts ...Option) *Gateway {
	g := &Gateway{
		adapter: adapter,
		client:  httputil.NewClient(nil),
		policy:  DefaultRetryPolicy(),
		limiter: rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultBurst),
		logger:  slog.Default(),
		tracer:  otel.Tracer(instrumentationName),
		now:     time.Now,
		sleep:   sleepContext,
		token:   token,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Provider returns the adapter name.
func (g *Gateway) Provider() string {
	return g.adapter.Name()
}

// SetToken replaces the bearer credential, e.g. after re-authentication.
func (g *Gateway) SetToken(token string) {
	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
}

func (g *Gateway) currentToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// Whoami returns the account the credential belongs to.
func (g *Gateway) Whoami(ctx context.Context) (model.Account, error) {
	const op = "whoami"
	ctx, finish := g.begin(ctx, op, "account")
	body, err := g.do(ctx, op, "account", g.adapter.Whoami(), g.idempotent())
	if err != nil {
		finish(err)
		return model.Account{}, err
	}
	acct, err := g.adapter.DecodeWhoami(body)
	if err != nil {
		err = decodeError(op, "account", err)
	}
	finish(err)
	return acct, err
}

// ListZones returns every zone of the account, across all pages.
func (g *Gateway) ListZones(ctx context.Context, accountID string) ([]model.Zone, error) {
	const op = "list_zones"
	resource := "account " + accountID
	ctx, finish := g.begin(ctx, op, resource)
	zones, err := paginate(ctx, g, op, resource,
		func(cursor string) Call { return g.adapter.ListZones(accountID, cursor) },
		func(body []byte) ([]model.Zone, string, error) { return g.adapter.DecodeZones(accountID, body) },
	)
	finish(err)
	return zones, err
}

// ListRecords returns every record of zone, across all pages.
func (g *Gateway) ListRecords(ctx context.Context, zone model.Zone) ([]model.Record, error) {
	const op = "list_records"
	resource := "zone " + zone.Name
	ctx, finish := g.begin(ctx, op, resource)
	records, err := g.listRecords(ctx, op, zone)
	finish(err)
	return records, err
}

func (g *Gateway) listRecords(ctx context.Context, op string, zone model.Zone) ([]model.Record, error) {
	return paginate(ctx, g, op, "zone "+zone.Name,
		func(cursor string) Call { return g.adapter.ListRecords(zone, cursor) },
		func(body []byte) ([]model.Record, string, error) { return g.adapter.DecodeRecords(zone, body) },
	)
}

// CreateRecord creates a record in zone.
//
// A create that fails ambiguously (timeout, network error, 5xx) may still
// have taken effect. Before retrying, the gateway lists the zone and adopts a
// matching record if one exists. A listing cannot see a create the provider
// is still processing, so retries after an ambiguous failure are capped at
// RetryPolicy.CreateRetries+1 in total, of which at most CreateRetries may
// be blind (made when the listing itself failed).
func (g *Gateway) CreateRecord(ctx context.Context, zone model.Zone, draft model.Draft) (model.Record, error) {
	const op = "create_record"
	resource := fmt.Sprintf("record %s %s in %s", draft.Type, draftName(draft), zone.Name)
	ctx, finish := g.begin(ctx, op, resource)

	// Rate-limit responses are rejected before any side effect, so they use
	// the full budget. Ambiguous failures are handled below.
	b := budget{rateLimited: g.policy.MaxRetries}
	call := g.adapter.CreateRecord(zone, draft)

	verified, blind := 0, 0
	for attempt := 0; ; attempt++ {
		body, err := g.do(ctx, op, resource, call, b)
		if err == nil {
			rec, derr := g.adapter.DecodeRecord(zone, body)
			if derr != nil {
				derr = decodeError(op, resource, derr)
			}
			finish(derr)
			return rec, derr
		}
		if model.KindOf(err) != model.KindTransient || ctx.Err() != nil {
			finish(err)
			return model.Record{}, err
		}

		existing, found, perr := g.findCreated(ctx, zone, draft)
		switch {
		case perr == nil && found:
			g.logger.Info("create took effect despite failed response",
				slog.String("zone", zone.Name),
				slog.String("record", existing.String()),
			)
			finish(nil)
			return existing, nil
		case verified+blind > g.policy.CreateRetries:
			finish(err)
			return model.Record{}, err
		case perr == nil:
			verified++
		case blind >= g.policy.CreateRetries:
			finish(err)
			return model.Record{}, err
		default:
			blind++
		}

		metrics.APIRetries.WithLabelValues(g.Provider(), op, "transient").Inc()
		g.logger.Debug("retrying create",
			slog.String("zone", zone.Name),
			slog.Int("attempt", attempt+1),
			slog.Bool("verified_absent", perr == nil),
		)
		if serr := g.sleep(ctx, g.policy.backoff(attempt)); serr != nil {
			err = model.NewError(model.KindTransient, op, resource, serr)
			finish(err)
			return model.Record{}, err
		}
	}
}

// findCreated looks for a record matching draft in the zone's current remote
// contents.
func (g *Gateway) findCreated(ctx context.Context, zone model.Zone, draft model.Draft) (model.Record, bool, error) {
	records, err := g.listRecords(ctx, "create_record_check", zone)
	if err != nil {
		return model.Record{}, false, err
	}
	want := draft.Record(zone.ID)
	want.Name = model.NormalizeName(want.Name, zone.Name)
	for _, r := range records {
		if !strings.EqualFold(model.NormalizeName(r.Name, zone.Name), want.Name) ||
			r.Type != want.Type || r.Content != want.Content {
			continue
		}
		if draft.TTL > 0 && r.TTL != draft.TTL {
			continue
		}
		if draft.Priority != nil && r.Priority != *draft.Priority {
			continue
		}
		return r, true, nil
	}
	return model.Record{}, false, nil
}

// UpdateRecord applies patch to the record id in zone.
func (g *Gateway) UpdateRecord(ctx context.Context, zone model.Zone, id string, patch model.Patch) (model.Record, error) {
	const op = "update_record"
	resource := fmt.Sprintf("record %s in %s", id, zone.Name)
	ctx, finish := g.begin(ctx, op, resource)
	body, err := g.do(ctx, op, resource, g.adapter.UpdateRecord(zone, id, patch), g.idempotent())
	if err != nil {
		finish(err)
		return model.Record{}, err
	}
	rec, err := g.adapter.DecodeRecord(zone, body)
	if err != nil {
		err = decodeError(op, resource, err)
	}
	finish(err)
	return rec, err
}

// DeleteRecord deletes the record id in zone.
func (g *Gateway) DeleteRecord(ctx context.Context, zone model.Zone, id string) error {
	const op = "delete_record"
	resource := fmt.Sprintf("record %s in %s", id, zone.Name)
	ctx, finish := g.begin(ctx, op, resource)
	_, err := g.do(ctx, op, resource, g.adapter.DeleteRecord(zone, id), g.idempotent())
	finish(err)
	return err
}

// ZoneFile returns the zone in BIND format as rendered by the provider.
func (g *Gateway) ZoneFile(ctx context.Context, zone model.Zone) (string, error) {
	const op = "zone_file"
	resource := "zone " + zone.Name
	zf, ok := g.adapter.(ZoneFiler)
	if !ok {
		return "", g.unsupported(op, resource)
	}
	ctx, finish := g.begin(ctx, op, resource)
	body, err := g.do(ctx, op, resource, zf.ZoneFile(zone), g.idempotent())
	if err != nil {
		finish(err)
		return "", err
	}
	text, err := zf.DecodeZoneFile(body)
	if err != nil {
		err = decodeError(op, resource, err)
	}
	finish(err)
	return text, err
}

// ZoneDistribution reports whether the zone is fully propagated to the
// provider's name servers.
func (g *Gateway) ZoneDistribution(ctx context.Context, zone model.Zone) (bool, error) {
	const op = "zone_distribution"
	resource := "zone " + zone.Name
	dc, ok := g.adapter.(DistributionChecker)
	if !ok {
		return false, g.unsupported(op, resource)
	}
	return g.distribution(ctx, op, resource, dc, dc.ZoneDistribution(zone))
}

// RecordDistribution reports whether the record is fully propagated.
func (g *Gateway) RecordDistribution(ctx context.Context, zone model.Zone, id string) (bool, error) {
	const op = "record_distribution"
	resource := fmt.Sprintf("record %s in %s", id, zone.Name)
	dc, ok := g.adapter.(DistributionChecker)
	if !ok {
		return false, g.unsupported(op, resource)
	}
	return g.distribution(ctx, op, resource, dc, dc.RecordDistribution(zone, id))
}

func (g *Gateway) distribution(ctx context.Context, op, resource string, dc DistributionChecker, call Call) (bool, error) {
	ctx, finish := g.begin(ctx, op, resource)
	body, err := g.do(ctx, op, resource, call, g.idempotent())
	if err != nil {
		finish(err)
		return false, err
	}
	ok, err := dc.DecodeDistribution(body)
	if err != nil {
		err = decodeError(op, resource, err)
	}
	finish(err)
	return ok, err
}

// SetZoneActive enables or disables DNS service for the zone.
func (g *Gateway) SetZoneActive(ctx context.Context, zone model.Zone, active bool) error {
	op := "deactivate_zone"
	if active {
		op = "activate_zone"
	}
	resource := "zone " + zone.Name
	za, ok := g.adapter.(ZoneActivator)
	if !ok {
		return g.unsupported(op, resource)
	}
	ctx, finish := g.begin(ctx, op, resource)
	_, err := g.do(ctx, op, resource, za.SetZoneActive(zone, active), g.idempotent())
	finish(err)
	return err
}

// ListDomains returns the domains of accountID, across all pages. A
// non-empty nameLike keeps only domains whose name contains it.
func (g *Gateway) ListDomains(ctx context.Context, accountID, nameLike string) ([]model.Domain, error) {
	const op = "list_domains"
	resource := "account " + accountID
	dl, ok := g.adapter.(DomainLister)
	if !ok {
		return nil, g.unsupported(op, resource)
	}
	ctx, finish := g.begin(ctx, op, resource)
	domains, err := paginate(ctx, g, op, resource,
		func(cursor string) Call { return dl.ListDomains(accountID, nameLike, cursor) },
		func(body []byte) ([]model.Domain, string, error) { return dl.DecodeDomains(accountID, body) },
	)
	finish(err)
	return domains, err
}

// Domain returns one domain of accountID by name.
func (g *Gateway) Domain(ctx context.Context, accountID, name string) (model.Domain, error) {
	const op = "get_domain"
	resource := "domain " + name
	dl, ok := g.adapter.(DomainLister)
	if !ok {
		return model.Domain{}, g.unsupported(op, resource)
	}
	ctx, finish := g.begin(ctx, op, resource)
	body, err := g.do(ctx, op, resource, dl.GetDomain(accountID, name), g.idempotent())
	if err != nil {
		finish(err)
		return model.Domain{}, err
	}
	d, err := dl.DecodeDomain(accountID, body)
	if err != nil {
		err = decodeError(op, resource, err)
	}
	finish(err)
	return d, err
}

// CreateDomain adds name to accountID, which also creates an empty zone.
//
// Ambiguous failures are not retried: resending could only fail with a
// conflict, and the caller can look the domain up instead.
func (g *Gateway) CreateDomain(ctx context.Context, accountID, name string) (model.Domain, error) {
	const op = "create_domain"
	resource := "domain " + name
	de, ok := g.adapter.(DomainEditor)
	if !ok {
		return model.Domain{}, g.unsupported(op, resource)
	}
	dl, ok := g.adapter.(DomainLister)
	if !ok {
		return model.Domain{}, g.unsupported(op, resource)
	}
	ctx, finish := g.begin(ctx, op, resource)
	body, err := g.do(ctx, op, resource, de.CreateDomain(accountID, name), budget{rateLimited: g.policy.MaxRetries})
	if err != nil {
		finish(err)
		return model.Domain{}, err
	}
	d, err := dl.DecodeDomain(accountID, body)
	if err != nil {
		err = decodeError(op, resource, err)
	}
	finish(err)
	return d, err
}

// DeleteDomain removes name and its zone from accountID.
func (g *Gateway) DeleteDomain(ctx context.Context, accountID, name string) error {
	const op = "delete_domain"
	resource := "domain " + name
	de, ok := g.adapter.(DomainEditor)
	if !ok {
		return g.unsupported(op, resource)
	}
	ctx, finish := g.begin(ctx, op, resource)
	_, err := g.do(ctx, op, resource, de.DeleteDomain(accountID, name), g.idempotent())
	finish(err)
	return err
}

func (g *Gateway) unsupported(op, resource string) error {
	return model.NewError(model.KindValidation, op, resource,
		fmt.Errorf("operation %s is not supported by the %s provider", op, g.Provider()))
}

// begin starts the span for op and returns a function that ends it and
// records the operation duration.
func (g *Gateway) begin(ctx context.Context, op, resource string) (context.Context, func(error)) {
	start := g.now()
	ctx, span := g.tracer.Start(ctx, "dnsapi."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("dns.provider", g.Provider()),
			attribute.String("dns.resource", resource),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(model.KindOf(err)))
		}
		span.End()
		metrics.APIDuration.WithLabelValues(g.Provider(), op).Observe(g.now().Sub(start).Seconds())
	}
}

// budget is the number of retries allowed per failure class.
type budget struct {
	rateLimited int
	transient   int
}

func (g *Gateway) idempotent() budget {
	return budget{rateLimited: g.policy.MaxRetries, transient: g.policy.MaxRetries}
}

// do sends call, retrying rate-limited and transient failures within b.
func (g *Gateway) do(ctx context.Context, op, resource string, call Call, b budget) ([]byte, error) {
	var limited, transient int
	for attempt := 0; ; attempt++ {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, model.NewError(model.KindTransient, op, resource, err)
		}

		resp, err := g.send(ctx, call)
		var failure error
		switch {
		case err != nil:
			metrics.APIRequests.WithLabelValues(g.Provider(), op, "error").Inc()
			if ctx.Err() != nil {
				return nil, model.NewError(model.KindTransient, op, resource, ctx.Err())
			}
			failure = model.NewError(model.KindTransient, op, resource, err)
		case resp.status >= 200 && resp.status < 300:
			metrics.APIRequests.WithLabelValues(g.Provider(), op, strconv.Itoa(resp.status)).Inc()
			return resp.body, nil
		default:
			metrics.APIRequests.WithLabelValues(g.Provider(), op, strconv.Itoa(resp.status)).Inc()
			failure = g.classify(op, resource, resp)
		}

		var wait time.Duration
		var reason string
		switch model.KindOf(failure) {
		case model.KindRateLimited:
			if limited >= b.rateLimited {
				return nil, failure
			}
			limited++
			reason = "rate_limited"
			wait = g.rateLimitWait(resp.header, attempt)
		case model.KindTransient:
			if transient >= b.transient {
				return nil, failure
			}
			transient++
			reason = "transient"
			wait = g.policy.backoff(attempt)
		default:
			return nil, failure
		}

		metrics.APIRetries.WithLabelValues(g.Provider(), op, reason).Inc()
		trace.SpanFromContext(ctx).AddEvent("retry", trace.WithAttributes(
			attribute.String("reason", reason),
			attribute.Int("attempt", attempt+1),
			attribute.Int64("wait_ms", wait.Milliseconds()),
		))
		g.logger.Debug("retrying API request",
			slog.String("op", op),
			slog.String("resource", resource),
			slog.String("reason", reason),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
		)
		if err := g.sleep(ctx, wait); err != nil {
			return nil, model.NewError(model.KindTransient, op, resource, err)
		}
	}
}

func (g *Gateway) rateLimitWait(h http.Header, attempt int) time.Duration {
	now := g.now()
	if d, ok := parseRetryAfter(h, now); ok {
		return g.policy.clamp(d)
	}
	if d, ok := g.adapter.RateLimitReset(h, now); ok {
		return g.policy.clamp(d)
	}
	return g.policy.backoff(attempt)
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// send performs one HTTP exchange.
func (g *Gateway) send(ctx context.Context, call Call) (*response, error) {
	reqURL := g.adapter.BaseURL() + call.Path
	if len(call.Query) > 0 {
		reqURL += "?" + call.Query.Encode()
	}

	var body io.Reader
	if call.Body != nil {
		buf, err := json.Marshal(call.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	g.adapter.Authorize(req.Header, g.currentToken())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: respBody}, nil
}

// classify maps a non-2xx response to a typed error.
func (g *Gateway) classify(op, resource string, resp *response) error {
	kind, msg := g.adapter.ErrorDetail(resp.status, resp.body)
	if kind == "" {
		kind = KindForStatus(resp.status)
	}
	if msg == "" {
		msg = http.StatusText(resp.status)
	}
	return model.NewError(kind, op, resource, fmt.Errorf("HTTP %d: %s", resp.status, msg))
}

// KindForStatus returns the default error kind for an HTTP status code.
func KindForStatus(status int) model.Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return model.KindUnauthorized
	case status == http.StatusNotFound:
		return model.KindNotFound
	case status == http.StatusConflict:
		return model.KindConflict
	case status == http.StatusTooManyRequests:
		return model.KindRateLimited
	case status == http.StatusRequestTimeout, status >= 500:
		return model.KindTransient
	default:
		return model.KindValidation
	}
}

func decodeError(op, resource string, err error) error {
	return model.NewError(model.KindTransient, op, resource, fmt.Errorf("decoding response: %w", err))
}

func draftName(d model.Draft) string {
	if d.Name == "" {
		return "@"
	}
	return d.Name
}

// paginate follows continuation tokens until exhausted and returns the
// assembled sequence. Any page failure fails the whole call.
func paginate[T any](ctx context.Context, g *Gateway, op, resource string,
	call func(cursor string) Call, decode func(body []byte) ([]T, string, error),
) ([]T, error) {
	var out []T
	seen := make(map[string]bool)
	cursor := ""
	for page := 1; page <= maxPages; page++ {
		body, err := g.do(ctx, op, resource, call(cursor), g.idempotent())
		if err != nil {
			return nil, err
		}
		items, next, err := decode(body)
		if err != nil {
			return nil, decodeError(op, resource, fmt.Errorf("page %d: %w", page, err))
		}
		out = append(out, items...)
		if next == "" {
			return out, nil
		}
		if seen[next] {
			return nil, model.NewError(model.KindTransient, op, resource,
				fmt.Errorf("provider repeated continuation token %q", next))
		}
		seen[next] = true
		cursor = next
	}
	return nil, model.NewError(model.KindTransient, op, resource,
		fmt.Errorf("more than %d pages", maxPages))
}
