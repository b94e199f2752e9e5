package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"

	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/internal/config"
	"gitlab.bluewillows.net/root/zonedeck/internal/health"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/internal/telemetry"
	"gitlab.bluewillows.net/root/zonedeck/pkg/dnsapi"
	"gitlab.bluewillows.net/root/zonedeck/pkg/httputil"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
	"gitlab.bluewillows.net/root/zonedeck/providers/cloudflare"
	"gitlab.bluewillows.net/root/zonedeck/providers/demo"
	"gitlab.bluewillows.net/root/zonedeck/providers/dnsimple"
)

// demoToken authenticates against the in-process demo provider.
const demoToken = "demo"

// App is the wiring shared by every command: configuration, the gateway,
// the store and the two cores on top of it.
type App struct {
	Config *config.Config
	Creds  *config.Credentials
	Logger *slog.Logger
	Fs     afero.Fs
	Out    io.Writer
	ErrOut io.Writer
	In     io.Reader

	// Transport replaces the network for every provider request. Tests and
	// demo mode route it to an in-process server.
	Transport http.RoundTripper

	Gateway *dnsapi.Gateway
	Store   *store.Store
	Engine  *syncer.Engine
	Core    *command.Core

	account     string
	tracer      trace.Tracer
	shutdown    []func(context.Context) error
	demoServer  *demo.Server
	tokenSource string
}

// NewRegistry returns the registry of supported providers.
func NewRegistry() *dnsapi.Registry {
	r := dnsapi.NewRegistry()
	dnsimple.Register(r)
	cloudflare.Register(r)
	return r
}

// open builds the gateway, store and cores. It does not touch the network.
func (a *App) open(ctx context.Context) error {
	cfg := a.Config

	tracer, stop, err := telemetry.Setup(ctx, telemetry.Config{
		Exporter: cfg.Tracing,
		Endpoint: cfg.OTLPEndpoint,
		Version:  Version,
		Console:  a.ErrOut,
	})
	if err != nil {
		return err
	}
	a.tracer = tracer
	a.shutdown = append(a.shutdown, stop)

	opts := []dnsapi.Option{
		dnsapi.WithLogger(a.Logger),
		dnsapi.WithTracer(tracer),
		dnsapi.WithRetryPolicy(dnsapi.RetryPolicy{
			MaxRetries:    cfg.MaxRetries,
			CreateRetries: 1,
			BaseDelay:     cfg.BaseBackoff,
			MaxDelay:      cfg.MaxBackoff,
		}),
	}

	if cfg.Demo {
		a.demoServer = demo.NewServer(demo.WithLogger(a.Logger))
		a.Gateway = demo.NewGateway(a.demoServer, demoToken, opts...)
		a.tokenSource = "demo"
	} else {
		adapter, err := NewRegistry().Create(cfg.Provider, dnsapi.AdapterConfig{BaseURL: cfg.BaseURL, Sandbox: cfg.Sandbox})
		if err != nil {
			return model.NewError(model.KindValidation, "configure", "provider "+cfg.Provider, err)
		}
		token, source, err := a.Creds.Token()
		if err != nil {
			return err
		}
		a.tokenSource = source
		client := httputil.NewClient(&httputil.ClientConfig{
			Timeout: cfg.RequestTimeout,
			Base:    a.Transport,
			Logger:  a.Logger,
		})
		opts = append(opts,
			dnsapi.WithHTTPClient(client),
			dnsapi.WithRateLimit(cfg.RequestsPerSecond, dnsapi.DefaultBurst),
		)
		a.Gateway = dnsapi.New(adapter, token, opts...)
	}

	a.Store = store.New(store.WithLogger(a.Logger))
	engineCfg := syncer.DefaultConfig()
	engineCfg.StaleAfter = cfg.StaleAfter
	a.Engine = syncer.New(a.Gateway, a.Store, syncer.WithConfig(engineCfg), syncer.WithLogger(a.Logger))
	a.Core = command.New(a.Gateway, a.Engine,
		command.WithLogger(a.Logger),
		command.WithWorkers(cfg.Workers),
		command.WithCommitTimeout(cfg.CommitTimeout),
	)

	if cfg.MetricsAddr != "" {
		srv := health.New(cfg.MetricsAddr, health.WithLogger(a.Logger), health.WithVersion(Version))
		srv.RegisterChecker("session", health.SessionChecker(a.Store))
		srv.RegisterDegradedChecker("cache", health.StaleCacheChecker(a.Store))
		if err := srv.Start(); err != nil {
			return err
		}
		a.shutdown = append(a.shutdown, srv.Shutdown)
	}
	return nil
}

// requireToken fails fast when no credential is configured.
func (a *App) requireToken() error {
	if a.Config.Demo || a.tokenSource != config.SourceNone {
		return nil
	}
	return model.NewError(model.KindUnauthorized, "auth", "credentials",
		errors.New("no API token; run 'zonedeck auth login' or set ZONEDECK_TOKEN"))
}

// Account resolves the account to work in: the --account flag or config,
// then the remembered id, then whoami. The cache of the account is loaded
// once the id is known.
func (a *App) Account(ctx context.Context) (string, error) {
	if a.account != "" {
		return a.account, nil
	}
	if err := a.requireToken(); err != nil {
		return "", err
	}

	id := a.Config.AccountID
	if id == "" && !a.Config.Demo {
		saved, err := a.Creds.AccountID()
		if err != nil {
			a.Logger.Warn("ignoring remembered account", slog.String("error", err.Error()))
		}
		id = saved
	}
	if id == "" {
		acct, err := a.Engine.Account(ctx)
		if err != nil {
			return "", err
		}
		id = acct.ID
		if !a.Config.Demo {
			if err := a.Creds.SaveAccountID(id); err != nil {
				a.Logger.Warn("failed to remember account", slog.String("error", err.Error()))
			}
		}
	} else if _, ok := a.Store.Account(); !ok {
		a.Store.SetAccount(model.Account{ID: id, Active: true})
	}
	a.account = id
	a.loadCache()
	return id, nil
}

// Zone resolves ref in the current account.
func (a *App) Zone(ctx context.Context, ref string) (model.Zone, error) {
	acct, err := a.Account(ctx)
	if err != nil {
		return model.Zone{}, err
	}
	return a.Engine.ResolveZone(ctx, acct, ref)
}

func (a *App) cacheEnabled() bool {
	return a.Config.CacheEnabled && !a.Config.Demo
}

func (a *App) loadCache() {
	if !a.cacheEnabled() {
		return
	}
	path := store.CachePath(a.Config.CacheDir, a.account)
	loaded, err := a.Store.Load(a.Fs, path, a.account)
	switch {
	case err != nil:
		a.Logger.Warn("ignoring unreadable cache", slog.String("path", path), slog.String("error", err.Error()))
	case loaded:
		a.Logger.Debug("cache loaded", slog.String("path", path))
	}
}

// Close waits for in-flight commits, saves the cache and stops telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Core != nil {
		a.Core.Wait()
	}
	if a.account != "" && a.cacheEnabled() {
		if err := a.Fs.MkdirAll(a.Config.CacheDir, 0o700); err != nil {
			errs = append(errs, fmt.Errorf("creating cache dir: %w", err))
		} else if err := a.Store.Save(a.Fs, store.CachePath(a.Config.CacheDir, a.account), a.account); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// accountLabel renders an account for humans.
func accountLabel(acct model.Account) string {
	switch {
	case acct.Name != "" && acct.Email != "":
		return acct.Name + " <" + acct.Email + ">"
	case acct.Email != "":
		return acct.Email
	case acct.Name != "":
		return acct.Name
	}
	return acct.ID
}
