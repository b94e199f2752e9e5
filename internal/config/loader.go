package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// configNames are tried in the config directory when no file is given.
var configNames = []string{"config.yaml", "config.yml", "config.toml"}

// LoadOptions controls where Load looks.
type LoadOptions struct {
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Path is an explicit config file. It must exist when set.
	Path string
	// ConfigDir overrides the directory searched for a config file.
	ConfigDir string
}

// Load builds the configuration from defaults, the config file and the
// environment, then validates it.
func Load(opts LoadOptions) (*Config, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	cfg := DefaultConfig()
	if opts.ConfigDir != "" {
		cfg.ConfigDir = opts.ConfigDir
	}
	if dir := getEnv("CONFIG_DIR"); dir != "" {
		cfg.ConfigDir = dir
	}

	var errs []string
	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		if path = getEnv("CONFIG"); path != "" {
			explicit = true
		}
	}
	if !explicit {
		path = findConfigFile(opts.Fs, cfg.ConfigDir)
	}
	if path != "" {
		fileCfg, err := LoadFile(opts.Fs, path)
		switch {
		case err == nil:
			errs = append(errs, fileCfg.apply(cfg)...)
			cfg.Path = path
			slog.Debug("loaded configuration from file", slog.String("path", path))
		case explicit || !errors.Is(err, fs.ErrNotExist):
			errs = append(errs, "config file: "+err.Error())
		}
	}

	errs = append(errs, applyEnv(opts.Fs, cfg)...)
	errs = append(errs, validateConfig(cfg)...)
	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return cfg, nil
}

func findConfigFile(fs afero.Fs, dir string) string {
	for _, name := range configNames {
		path := filepath.Join(dir, name)
		if ok, _ := afero.Exists(fs, path); ok {
			return path
		}
	}
	return ""
}

// applyEnv overrides cfg with ZONEDECK_* variables.
// Environment variables always take precedence over file config.
func applyEnv(fs afero.Fs, cfg *Config) []string {
	var errs []string

	setString(&cfg.Provider, strings.ToLower(getEnv("PROVIDER")))
	setString(&cfg.BaseURL, getEnv("BASE_URL"))
	setString(&cfg.AccountID, getEnv("ACCOUNT"))
	setString(&cfg.LogLevel, strings.ToLower(getEnv("LOG_LEVEL")))
	setString(&cfg.LogFormat, strings.ToLower(getEnv("LOG_FORMAT")))
	setString(&cfg.LogFile, getEnv("LOG_FILE"))
	setString(&cfg.CacheDir, getEnv("CACHE_DIR"))
	setString(&cfg.MetricsAddr, getEnv("METRICS_ADDR"))
	setString(&cfg.Tracing, strings.ToLower(getEnv("TRACING")))
	setString(&cfg.OTLPEndpoint, getEnvOrFile(fs, "OTLP_ENDPOINT"))

	if v := getEnv("SANDBOX"); v != "" {
		cfg.Sandbox = parseBool(v, cfg.Sandbox)
	}
	if v := getEnv("DEMO"); v != "" {
		cfg.Demo = parseBool(v, cfg.Demo)
	}
	if v := getEnv("CACHE"); v != "" {
		cfg.CacheEnabled = parseBool(v, cfg.CacheEnabled)
	}

	for key, dst := range map[string]*time.Duration{
		"STALE_AFTER":     &cfg.StaleAfter,
		"POLL_INTERVAL":   &cfg.PollInterval,
		"REQUEST_TIMEOUT": &cfg.RequestTimeout,
		"COMMIT_TIMEOUT":  &cfg.CommitTimeout,
		"BASE_BACKOFF":    &cfg.BaseBackoff,
		"MAX_BACKOFF":     &cfg.MaxBackoff,
	} {
		errs = append(errs, setDuration(dst, EnvPrefix+key, getEnv(key))...)
	}
	for key, dst := range map[string]*int{
		"MAX_RETRIES": &cfg.MaxRetries,
		"WORKERS":     &cfg.Workers,
	} {
		if v := getEnv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: invalid integer %q", EnvPrefix, key, v))
				continue
			}
			*dst = n
		}
	}
	if v := getEnv("REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%sREQUESTS_PER_SECOND: invalid number %q", EnvPrefix, v))
		} else {
			cfg.RequestsPerSecond = rps
		}
	}
	return errs
}
