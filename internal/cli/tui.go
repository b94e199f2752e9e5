package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/zonedeck/internal/syncer"
	"gitlab.bluewillows.net/root/zonedeck/internal/tui"
	"gitlab.bluewillows.net/root/zonedeck/internal/view"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

func (rs *rootState) tuiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and edit records interactively (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rs.runTUI(cmd.Context())
		},
	}
}

func (rs *rootState) runTUI(ctx context.Context) error {
	app := rs.app
	if err := tui.CheckTerminal(rs.opts.In); err != nil {
		return fmt.Errorf("%w; run a subcommand instead (see --help)", err)
	}

	// Seed the store from the cache. Failures are left to the sign-in
	// screen of the view.
	if app.requireToken() == nil {
		if _, err := app.Account(ctx); err != nil {
			app.Logger.Info("starting without a session", slog.String("error", err.Error()))
		}
	}

	var ui *tui.Program
	pollCfg := syncer.DefaultPollerConfig()
	pollCfg.Interval = app.Config.PollInterval
	poller := syncer.NewPoller(app.Engine,
		syncer.WithPollerConfig(pollCfg),
		syncer.WithPollerLogger(app.Logger),
		syncer.WithOnRefresh(func(zone model.Zone, result *syncer.Result, err error) {
			ui.Send(view.BackgroundRefresh{ZoneID: zone.ID, Result: result, Err: err})
		}),
	)

	services := &view.Services{
		Engine: app.Engine,
		Core:   app.Core,
		Tokens: app.Gateway,
		Poller: poller,
		SaveToken: func(token string) error {
			if app.Config.Demo {
				return nil
			}
			return app.Creds.SaveToken(token)
		},
	}
	ui = tui.New(ctx, services, tui.WithIO(rs.opts.In, rs.opts.Out), tui.WithLogger(app.Logger))

	if err := poller.Start(ctx); err != nil {
		return err
	}
	defer poller.Stop()

	return ui.Run()
}
