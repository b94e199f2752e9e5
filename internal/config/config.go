// Package config handles loading and validation of zonedeck configuration.
//
// Settings come from, in increasing precedence: built-in defaults, an
// optional YAML or TOML file, ZONEDECK_* environment variables (with the
// _FILE suffix for secrets) and finally command-line flags, which the CLI
// applies on top of the loaded Config.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// AppName names the config and cache directories.
const AppName = "zonedeck"

// Defaults.
const (
	DefaultProvider          = "dnsimple"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultStaleAfter        = 30 * time.Second
	DefaultPollInterval      = 15 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultCommitTimeout     = 2 * time.Minute
	DefaultMaxRetries        = 5
	DefaultBaseBackoff       = 500 * time.Millisecond
	DefaultMaxBackoff        = 30 * time.Second
	DefaultRequestsPerSecond = 10
	DefaultWorkers           = 4
	DefaultTracing           = "none"
)

// Config holds the runtime settings.
type Config struct {
	// Provider selection
	Provider  string // dnsimple, cloudflare
	BaseURL   string // overrides the provider's API root
	Sandbox   bool   // use the provider's sandbox API
	AccountID string // empty resolves the account through whoami
	Demo      bool   // serve from the in-process demo provider

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
	LogFile   string // interactive mode log destination

	// Sync and API behavior
	StaleAfter        time.Duration
	PollInterval      time.Duration
	RequestTimeout    time.Duration
	CommitTimeout     time.Duration
	MaxRetries        int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	RequestsPerSecond float64
	Workers           int

	// Local state
	CacheEnabled bool
	CacheDir     string
	ConfigDir    string

	// Observability
	MetricsAddr  string // empty disables the health and metrics server
	Tracing      string // none, console, otlp
	OTLPEndpoint string

	// Path is the config file that was loaded, if any.
	Path string
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() *Config {
	return &Config{
		Provider:          DefaultProvider,
		LogLevel:          DefaultLogLevel,
		LogFormat:         DefaultLogFormat,
		StaleAfter:        DefaultStaleAfter,
		PollInterval:      DefaultPollInterval,
		RequestTimeout:    DefaultRequestTimeout,
		CommitTimeout:     DefaultCommitTimeout,
		MaxRetries:        DefaultMaxRetries,
		BaseBackoff:       DefaultBaseBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Workers:           DefaultWorkers,
		CacheEnabled:      true,
		CacheDir:          defaultDir(os.UserCacheDir),
		ConfigDir:         defaultDir(os.UserConfigDir),
		Tracing:           DefaultTracing,
	}
}

func defaultDir(base func() (string, error)) string {
	dir, err := base()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, AppName)
}

// DefaultLogFile returns the log file used when the terminal is taken over
// by the interactive view.
func (c *Config) DefaultLogFile() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.CacheDir, AppName+".log")
}
