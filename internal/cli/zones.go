package cli

import (
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
	"gitlab.bluewillows.net/root/zonedeck/pkg/zonefile"
)

func (rs *rootState) zonesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "zones",
		Aliases: []string{"zone"},
		Short:   "List and inspect zones",
	}
	cmd.AddCommand(
		rs.zonesListCommand(),
		rs.zonesGetCommand(),
		rs.zonesFileCommand(),
		rs.zonesDistributionCommand(),
		rs.zonesActivateCommand("activate", true),
		rs.zonesActivateCommand("deactivate", false),
		rs.zonesExportCommand(),
	)
	return cmd
}

func (rs *rootState) zonesListCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the zones of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			acct, err := rs.app.Account(ctx)
			if err != nil {
				return err
			}
			zones, err := rs.app.Engine.Zones(ctx, acct, refresh)
			if err != nil {
				return err
			}
			if zones == nil {
				zones = []model.Zone{}
			}
			return rs.printer.Value(zones, zonesTable(zones))
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached zone list")
	return cmd
}

func (rs *rootState) zonesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <zone>",
		Short: "Show one zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			zone, err := rs.app.Zone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return rs.printer.Value(zone, zonesTable([]model.Zone{zone}))
		},
	}
}

type zoneFileView struct {
	Zone string `json:"zone" yaml:"zone"`
	File string `json:"file" yaml:"file"`
}

func (rs *rootState) zonesFileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "file <zone>",
		Short: "Print the zone file the provider publishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			file, err := rs.app.Gateway.ZoneFile(ctx, zone)
			if err != nil {
				return err
			}
			if rs.printer.Structured() {
				return rs.printer.Value(zoneFileView{Zone: zone.Name, File: file}, nil)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), file)
			return err
		},
	}
}

type distributionView struct {
	Zone        string `json:"zone" yaml:"zone"`
	Record      string `json:"record,omitempty" yaml:"record,omitempty"`
	Distributed bool   `json:"distributed" yaml:"distributed"`
}

func distributionTable(v distributionView) func(*Table) {
	return func(t *Table) {
		state := "pending"
		if v.Distributed {
			state = "distributed"
		}
		if v.Record != "" {
			t.Row("ZONE", "RECORD", "STATE")
			t.Row(v.Zone, v.Record, state)
			return
		}
		t.Row("ZONE", "STATE")
		t.Row(v.Zone, state)
	}
}

func (rs *rootState) zonesDistributionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "distribution <zone>",
		Short: "Check whether the zone has reached every name server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			ok, err := rs.app.Gateway.ZoneDistribution(ctx, zone)
			if err != nil {
				return err
			}
			v := distributionView{Zone: zone.Name, Distributed: ok}
			return rs.printer.Value(v, distributionTable(v))
		},
	}
}

func (rs *rootState) zonesActivateCommand(name string, active bool) *cobra.Command {
	short := "Enable DNS resolution for a zone"
	if !active {
		short = "Stop resolving a zone"
	}
	return &cobra.Command{
		Use:   name + " <zone>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			if err := rs.app.Gateway.SetZoneActive(ctx, zone, active); err != nil {
				return err
			}
			zones, err := rs.app.Engine.Zones(ctx, zone.AccountID, true)
			if err != nil {
				return err
			}
			for _, z := range zones {
				if z.ID == zone.ID {
					zone = z
				}
			}
			if rs.printer.Structured() {
				return rs.printer.Value(zone, nil)
			}
			rs.printer.Line("zone %s %sd", zone.Name, name)
			return nil
		},
	}
}

func (rs *rootState) zonesExportCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export <zone>",
		Short: "Write the cached records as a BIND zone file",
		Long: `Export writes the records of a zone in BIND format. Records are read from
the cache, which is refreshed first when stale. Uncommitted local edits are
not included.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			snap, err := rs.app.Engine.EnsureFresh(ctx, zone)
			if err != nil {
				return err
			}
			if file == "" {
				return zonefile.Export(cmd.OutOrStdout(), zone.Name, snap.Canonical())
			}
			f, err := rs.app.Fs.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return err
			}
			if err := zonefile.Export(f, zone.Name, snap.Canonical()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			rs.printer.Line("wrote %d records to %s", len(snap.Canonical()), file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "write to this file instead of stdout")
	return cmd
}

// readInput returns the contents of path, or of in when path is "-".
func readInput(fs afero.Fs, in io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(in)
	}
	return afero.ReadFile(fs, path)
}
