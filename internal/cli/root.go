// Package cli is the scripting entry point: cobra commands over the same
// sync engine and command core the interactive view uses.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/zonedeck/internal/config"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

// Version is set at build time.
var Version = "dev"

// Options configures the root command. Zero values use the process
// environment.
type Options struct {
	Fs        afero.Fs
	In        io.Reader
	Out       io.Writer
	ErrOut    io.Writer
	Transport http.RoundTripper
}

type globalFlags struct {
	output      string
	account     string
	provider    string
	configPath  string
	logLevel    string
	metricsAddr string
	sandbox     bool
	demo        bool
	noCache     bool
}

type rootState struct {
	opts    Options
	flags   globalFlags
	app     *App
	printer *Printer
	logFile io.Closer
}

// newRootCommand builds the command tree. The returned state owns the App
// built before any command runs and must be torn down after execution.
func newRootCommand(opts Options) (*cobra.Command, *rootState) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ErrOut == nil {
		opts.ErrOut = os.Stderr
	}
	rs := &rootState{opts: opts}

	cmd := &cobra.Command{
		Use:   "zonedeck",
		Short: "Manage DNS zones and records from the terminal",
		Long: `zonedeck browses and edits the DNS records of a provider account.

Run without arguments for the interactive browser, or use the subcommands
for scripting.`,
		Version:           Version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: rs.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rs.runTUI(cmd.Context())
		},
	}
	cmd.SetIn(opts.In)
	cmd.SetOut(opts.Out)
	cmd.SetErr(opts.ErrOut)

	f := cmd.PersistentFlags()
	f.StringVarP(&rs.flags.output, "output", "o", FormatTable, "output format: table, json, or yaml")
	f.StringVar(&rs.flags.account, "account", "", "account id (default: resolved with whoami)")
	f.StringVar(&rs.flags.provider, "provider", "", "DNS provider: "+strings.Join(config.Providers, ", "))
	f.BoolVar(&rs.flags.sandbox, "sandbox", false, "use the provider's sandbox API")
	f.BoolVar(&rs.flags.demo, "demo", false, "use a built-in demo provider with sample zones")
	f.StringVar(&rs.flags.configPath, "config", "", "config file (default: <config dir>/config.yaml)")
	f.StringVar(&rs.flags.logLevel, "log-level", "", "log level: debug, info, warn, or error")
	f.BoolVar(&rs.flags.noCache, "no-cache", false, "do not read or write the local cache")
	f.StringVar(&rs.flags.metricsAddr, "metrics-addr", "", "serve /health, /ready and /metrics on this address")

	cmd.AddCommand(
		rs.whoamiCommand(),
		rs.zonesCommand(),
		rs.domainsCommand(),
		rs.recordsCommand(),
		rs.authCommand(),
		rs.tuiCommand(),
	)
	return cmd, rs
}

// setup loads configuration, applies flags and wires the App.
func (rs *rootState) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.LoadOptions{Fs: rs.opts.Fs, Path: rs.flags.configPath})
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = strings.ToLower(rs.flags.provider)
	}
	if flags.Changed("account") {
		cfg.AccountID = rs.flags.account
	}
	if flags.Changed("sandbox") {
		cfg.Sandbox = rs.flags.sandbox
	}
	if flags.Changed("demo") {
		cfg.Demo = rs.flags.demo
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(rs.flags.logLevel)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = rs.flags.metricsAddr
	}
	if rs.flags.noCache {
		cfg.CacheEnabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rs.printer, err = NewPrinter(rs.opts.Out, rs.flags.output)
	if err != nil {
		return err
	}

	logger, closer, err := rs.newLogger(cfg, interactive(cmd))
	if err != nil {
		return err
	}
	rs.logFile = closer
	slog.SetDefault(logger)

	rs.app = &App{
		Config:    cfg,
		Creds:     config.NewCredentials(rs.opts.Fs, cfg.ConfigDir),
		Logger:    logger,
		Fs:        rs.opts.Fs,
		In:        rs.opts.In,
		Out:       rs.opts.Out,
		ErrOut:    rs.opts.ErrOut,
		Transport: rs.opts.Transport,
	}
	return rs.app.open(cmd.Context())
}

func (rs *rootState) teardown(ctx context.Context) error {
	var errs []error
	if rs.app != nil {
		errs = append(errs, rs.app.Close(ctx))
	}
	if rs.logFile != nil {
		errs = append(errs, rs.logFile.Close())
	}
	return errors.Join(errs...)
}

// interactive reports whether cmd takes over the terminal.
func interactive(cmd *cobra.Command) bool {
	return cmd.Name() == "tui" || cmd.Name() == "zonedeck"
}

// newLogger logs to stderr, or to the log file while the terminal belongs
// to the interactive view.
func (rs *rootState) newLogger(cfg *config.Config, toFile bool) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, model.Validationf("--log-level", "invalid level %q", cfg.LogLevel)
	}

	w := rs.opts.ErrOut
	var closer io.Closer
	if toFile {
		path := cfg.DefaultLogFile()
		if err := rs.opts.Fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating log dir: %w", err)
		}
		f, err := rs.opts.Fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w, closer = f, f
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler), closer, nil
}

// ErrorLine renders err the way the CLI reports failures:
// "error: <kind>: <resource>: <message>".
func ErrorLine(err error) string {
	msg := err.Error()
	var cfgErr *config.ValidationError
	if errors.As(err, &cfgErr) {
		return "error: " + string(model.KindValidation) + ": config: " + strings.Join(cfgErr.Errors, "; ")
	}
	kind := model.KindOf(err)
	if kind == "" {
		return "error: " + msg
	}
	if !strings.HasPrefix(msg, string(kind)+":") {
		msg = string(kind) + ": " + msg
	}
	return "error: " + msg
}

// Execute runs the command tree and returns the process exit code.
// Pending commits are awaited and the cache is saved even when the
// command fails.
func Execute(ctx context.Context, opts Options, args []string) int {
	cmd, rs := newRootCommand(opts)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if terr := rs.teardown(context.WithoutCancel(ctx)); terr != nil {
		if err == nil {
			err = terr
		} else {
			slog.Warn("cleanup failed", slog.String("error", terr.Error()))
		}
	}
	if err != nil {
		fmt.Fprintln(rs.opts.ErrOut, ErrorLine(err))
		return 1
	}
	return 0
}
