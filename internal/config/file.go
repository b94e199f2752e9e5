package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// FileConfig is the configuration file structure. Both YAML and TOML use
// the same keys; durations are Go duration strings.
type FileConfig struct {
	Provider  string `yaml:"provider,omitempty" toml:"provider"`
	BaseURL   string `yaml:"base_url,omitempty" toml:"base_url"`
	Sandbox   *bool  `yaml:"sandbox,omitempty" toml:"sandbox"`
	AccountID string `yaml:"account,omitempty" toml:"account"`

	Logging *FileLoggingConfig `yaml:"logging,omitempty" toml:"logging"`
	Sync    *FileSyncConfig    `yaml:"sync,omitempty" toml:"sync"`
	API     *FileAPIConfig     `yaml:"api,omitempty" toml:"api"`
	Cache   *FileCacheConfig   `yaml:"cache,omitempty" toml:"cache"`
	Server  *FileServerConfig  `yaml:"server,omitempty" toml:"server"`
	Tracing *FileTracingConfig `yaml:"tracing,omitempty" toml:"tracing"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format,omitempty" toml:"format"` // json, text
	File   string `yaml:"file,omitempty" toml:"file"`
}

// FileSyncConfig holds cache freshness settings.
type FileSyncConfig struct {
	StaleAfter   string `yaml:"stale_after,omitempty" toml:"stale_after"`
	PollInterval string `yaml:"poll_interval,omitempty" toml:"poll_interval"`
}

// FileAPIConfig holds provider API client settings.
type FileAPIConfig struct {
	Timeout           string   `yaml:"timeout,omitempty" toml:"timeout"`
	CommitTimeout     string   `yaml:"commit_timeout,omitempty" toml:"commit_timeout"`
	MaxRetries        *int     `yaml:"max_retries,omitempty" toml:"max_retries"`
	BaseBackoff       string   `yaml:"base_backoff,omitempty" toml:"base_backoff"`
	MaxBackoff        string   `yaml:"max_backoff,omitempty" toml:"max_backoff"`
	RequestsPerSecond *float64 `yaml:"requests_per_second,omitempty" toml:"requests_per_second"`
	Workers           *int     `yaml:"workers,omitempty" toml:"workers"`
}

// FileCacheConfig holds persisted cache settings.
type FileCacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty" toml:"enabled"`
	Dir     string `yaml:"dir,omitempty" toml:"dir"`
}

// FileServerConfig holds health/metrics server settings.
type FileServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr,omitempty" toml:"metrics_addr"`
}

// FileTracingConfig holds OpenTelemetry settings.
type FileTracingConfig struct {
	Exporter string `yaml:"exporter,omitempty" toml:"exporter"` // none, console, otlp
	Endpoint string `yaml:"endpoint,omitempty" toml:"endpoint"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		if len(groups) >= 3 {
			return groups[2]
		}
		return ""
	})
}

// interpolateEnvVars expands ${VAR} in every string field.
func (c *FileConfig) interpolateEnvVars() {
	for _, p := range []*string{&c.Provider, &c.BaseURL, &c.AccountID} {
		*p = InterpolateEnvVars(*p)
	}
	if c.Logging != nil {
		c.Logging.Level = InterpolateEnvVars(c.Logging.Level)
		c.Logging.Format = InterpolateEnvVars(c.Logging.Format)
		c.Logging.File = InterpolateEnvVars(c.Logging.File)
	}
	if c.Sync != nil {
		c.Sync.StaleAfter = InterpolateEnvVars(c.Sync.StaleAfter)
		c.Sync.PollInterval = InterpolateEnvVars(c.Sync.PollInterval)
	}
	if c.API != nil {
		c.API.Timeout = InterpolateEnvVars(c.API.Timeout)
		c.API.CommitTimeout = InterpolateEnvVars(c.API.CommitTimeout)
		c.API.BaseBackoff = InterpolateEnvVars(c.API.BaseBackoff)
		c.API.MaxBackoff = InterpolateEnvVars(c.API.MaxBackoff)
	}
	if c.Cache != nil {
		c.Cache.Dir = InterpolateEnvVars(c.Cache.Dir)
	}
	if c.Server != nil {
		c.Server.MetricsAddr = InterpolateEnvVars(c.Server.MetricsAddr)
	}
	if c.Tracing != nil {
		c.Tracing.Exporter = InterpolateEnvVars(c.Tracing.Exporter)
		c.Tracing.Endpoint = InterpolateEnvVars(c.Tracing.Endpoint)
	}
}

// LoadFile reads and parses a configuration file. The format follows the
// extension: .toml is TOML, anything else YAML.
func LoadFile(fs afero.Fs, path string) (*FileConfig, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	cfg.interpolateEnvVars()
	return &cfg, nil
}

// apply copies the file's settings over cfg. Invalid values are reported
// and leave the previous setting in place.
func (c *FileConfig) apply(cfg *Config) []string {
	var errs []string
	setString(&cfg.Provider, c.Provider)
	setString(&cfg.BaseURL, c.BaseURL)
	setString(&cfg.AccountID, c.AccountID)
	if c.Sandbox != nil {
		cfg.Sandbox = *c.Sandbox
	}

	if l := c.Logging; l != nil {
		setString(&cfg.LogLevel, strings.ToLower(l.Level))
		setString(&cfg.LogFormat, strings.ToLower(l.Format))
		setString(&cfg.LogFile, l.File)
	}
	if s := c.Sync; s != nil {
		errs = append(errs, setDuration(&cfg.StaleAfter, "sync.stale_after", s.StaleAfter)...)
		errs = append(errs, setDuration(&cfg.PollInterval, "sync.poll_interval", s.PollInterval)...)
	}
	if a := c.API; a != nil {
		errs = append(errs, setDuration(&cfg.RequestTimeout, "api.timeout", a.Timeout)...)
		errs = append(errs, setDuration(&cfg.CommitTimeout, "api.commit_timeout", a.CommitTimeout)...)
		errs = append(errs, setDuration(&cfg.BaseBackoff, "api.base_backoff", a.BaseBackoff)...)
		errs = append(errs, setDuration(&cfg.MaxBackoff, "api.max_backoff", a.MaxBackoff)...)
		if a.MaxRetries != nil {
			cfg.MaxRetries = *a.MaxRetries
		}
		if a.RequestsPerSecond != nil {
			cfg.RequestsPerSecond = *a.RequestsPerSecond
		}
		if a.Workers != nil {
			cfg.Workers = *a.Workers
		}
	}
	if ca := c.Cache; ca != nil {
		if ca.Enabled != nil {
			cfg.CacheEnabled = *ca.Enabled
		}
		setString(&cfg.CacheDir, ca.Dir)
	}
	if s := c.Server; s != nil {
		setString(&cfg.MetricsAddr, s.MetricsAddr)
	}
	if t := c.Tracing; t != nil {
		setString(&cfg.Tracing, strings.ToLower(t.Exporter))
		setString(&cfg.OTLPEndpoint, t.Endpoint)
	}
	return errs
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) []string {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return []string{fmt.Sprintf("%s: invalid duration %q", key, v)}
	}
	*dst = d
	return nil
}
