package dnsapi

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Default retry policy values.
const (
	DefaultMaxRetries        = 5
	DefaultBaseDelay         = 500 * time.Millisecond
	DefaultMaxDelay          = 30 * time.Second
	DefaultRequestsPerSecond = 10
	DefaultBurst             = 5
)

// RetryPolicy bounds how the gateway retries rate-limited and transient failures.
type RetryPolicy struct {
	// MaxRetries is the retry budget for idempotent requests.
	MaxRetries int

	// CreateRetries is the number of blind retries allowed for a create when
	// the gateway cannot verify whether the previous attempt took effect.
	CreateRetries int

	// BaseDelay is the initial backoff delay.
	BaseDelay time.Duration

	// MaxDelay caps every wait, including provider hints.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the default policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    DefaultMaxRetries,
		CreateRetries: 1,
		BaseDelay:     DefaultBaseDelay,
		MaxDelay:      DefaultMaxDelay,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.CreateRetries < 0 {
		p.CreateRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// backoff returns the delay before retry number attempt (0-based) using
// exponential backoff with full jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	ceiling := p.BaseDelay
	for i := 0; i < attempt && ceiling < p.MaxDelay; i++ {
		ceiling *= 2
	}
	if ceiling > p.MaxDelay {
		ceiling = p.MaxDelay
	}
	return time.Duration(rand.Int64N(int64(ceiling)) + 1)
}

// clamp caps a provider-supplied wait at MaxDelay.
func (p RetryPolicy) clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// parseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form.
func parseRetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(v); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
