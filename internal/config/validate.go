package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Providers lists the provider types zonedeck can talk to.
var Providers = []string{"dnsimple", "cloudflare"}

// Validate checks cfg after flags were applied on top of it.
func (c *Config) Validate() error {
	if errs := validateConfig(c); len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// validateConfig performs cross-field validation on the complete configuration.
func validateConfig(cfg *Config) []string {
	var errs []string

	if !slices.Contains(Providers, cfg.Provider) {
		errs = append(errs, fmt.Sprintf("provider: invalid value %q (must be %s)", cfg.Provider, strings.Join(Providers, " or ")))
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log level: invalid value %q (must be debug, info, warn, or error)", cfg.LogLevel))
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log format: invalid value %q (must be json or text)", cfg.LogFormat))
	}
	switch cfg.Tracing {
	case "none", "console", "otlp":
	default:
		errs = append(errs, fmt.Sprintf("tracing: invalid exporter %q (must be none, console, or otlp)", cfg.Tracing))
	}

	for name, d := range map[string]int64{
		"stale after":     int64(cfg.StaleAfter),
		"poll interval":   int64(cfg.PollInterval),
		"request timeout": int64(cfg.RequestTimeout),
		"commit timeout":  int64(cfg.CommitTimeout),
		"base backoff":    int64(cfg.BaseBackoff),
		"max backoff":     int64(cfg.MaxBackoff),
	} {
		if d <= 0 {
			errs = append(errs, name+": must be positive")
		}
	}
	if cfg.BaseBackoff > cfg.MaxBackoff {
		errs = append(errs, "base backoff: must not exceed max backoff")
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, "max retries: must not be negative")
	}
	if cfg.Workers < 1 {
		errs = append(errs, "workers: must be at least 1")
	}
	if cfg.RequestsPerSecond < 0 {
		errs = append(errs, "requests per second: must not be negative")
	}
	if cfg.CacheEnabled && cfg.CacheDir == "" {
		errs = append(errs, "cache dir: required when the cache is enabled")
	}

	// Map iteration order is random; keep messages stable.
	slices.Sort(errs)
	return errs
}
