package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/zonedeck/internal/command"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
	"gitlab.bluewillows.net/root/zonedeck/pkg/zonefile"
)

func (rs *rootState) recordsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"record", "rr"},
		Short:   "List and edit the records of a zone",
		Long: `Records are addressed by provider id, by the local key of an uncommitted
record, or as name/TYPE (for example www/CNAME or @/MX) when that is unique.`,
	}
	cmd.AddCommand(
		rs.recordsListCommand(),
		rs.recordsGetCommand(),
		rs.recordsCreateCommand(),
		rs.recordsUpdateCommand(),
		rs.recordsDeleteCommand(),
		rs.recordsSearchCommand(),
		rs.recordsDistributionCommand(),
		rs.recordsImportCommand(),
	)
	return cmd
}

// snapshot returns the records of zone, refreshing them when stale or when
// force is set.
func (rs *rootState) snapshot(ctx context.Context, zone model.Zone, force bool) (store.Snapshot, error) {
	if force {
		if _, err := rs.app.Engine.Refresh(ctx, zone); err != nil {
			return store.Snapshot{}, err
		}
		snap, _ := rs.app.Store.Get(zone.ID)
		return snap, nil
	}
	return rs.app.Engine.EnsureFresh(ctx, zone)
}

// resolveRecord finds the record ref names in zone.
func (rs *rootState) resolveRecord(ctx context.Context, zone model.Zone, ref string) (store.Entry, error) {
	snap, err := rs.snapshot(ctx, zone, false)
	if err != nil {
		return store.Entry{}, err
	}
	if key, ok := rs.app.Store.KeyFor(zone.ID, ref); ok {
		if e, ok := snap.Find(key); ok {
			return e, nil
		}
	}

	resource := zone.Name + "/" + ref
	i := strings.LastIndex(ref, "/")
	if i < 0 {
		return store.Entry{}, model.NewError(model.KindNotFound, "resolve", resource, errors.New("no record with this id"))
	}
	name := model.NormalizeName(ref[:i], zone.Name)
	typ, err := model.ParseRecordType(ref[i+1:])
	if err != nil {
		return store.Entry{}, model.NewError(model.KindValidation, "resolve", resource, err)
	}

	var found []store.Entry
	for _, e := range snap.Entries {
		if strings.EqualFold(e.Record.Name, name) && e.Record.Type == typ {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return store.Entry{}, model.NewError(model.KindNotFound, "resolve", resource, errors.New("no such record"))
	case 1:
		return found[0], nil
	}
	return store.Entry{}, model.Validationf(resource, "%d records match; use the record id", len(found))
}

func (rs *rootState) printEntries(zone model.Zone, entries []store.Entry) error {
	views := make([]recordView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newRecordView(zone, e))
	}
	return rs.printer.Value(views, recordsTable(views))
}

func (rs *rootState) printEntry(zone model.Zone, e store.Entry) error {
	v := newRecordView(zone, e)
	return rs.printer.Value(v, recordsTable([]recordView{v}))
}

// search prints the records of zone selected by p.
func (rs *rootState) search(ctx context.Context, zoneRef string, force bool, p command.Predicate) error {
	zone, err := rs.app.Zone(ctx, zoneRef)
	if err != nil {
		return err
	}
	snap, err := rs.snapshot(ctx, zone, force)
	if err != nil {
		return err
	}
	var entries []store.Entry
	for key := range rs.app.Core.Search(zone.ID, p) {
		if e, ok := snap.Find(key); ok {
			entries = append(entries, e)
		}
	}
	return rs.printEntries(zone, entries)
}

func (rs *rootState) recordsListCommand() *cobra.Command {
	var (
		name    string
		typ     string
		refresh bool
	)
	cmd := &cobra.Command{
		Use:   "list <zone>",
		Short: "List the records of a zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preds := []command.Predicate{command.All()}
			if name != "" {
				preds = append(preds, command.ByName(name))
			}
			if typ != "" {
				t, err := model.ParseRecordType(typ)
				if err != nil {
					return model.NewError(model.KindValidation, "list", "--type", err)
				}
				preds = append(preds, command.ByType(t))
			}
			return rs.search(cmd.Context(), args[0], refresh, command.And(preds...))
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "only records whose name contains this text (@ for the apex)")
	f.StringVar(&typ, "type", "", "only records of this type")
	f.BoolVar(&refresh, "refresh", false, "ignore the cache and fetch the records")
	return cmd
}

func (rs *rootState) recordsSearchCommand() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "search <zone> <text>...",
		Short: "Find records whose name, type or content match every word",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rs.search(cmd.Context(), args[0], refresh, command.Match(strings.Join(args[1:], " ")))
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cache and fetch the records")
	return cmd
}

func (rs *rootState) recordsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <zone> <record>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			e, err := rs.resolveRecord(ctx, zone, args[1])
			if err != nil {
				return err
			}
			return rs.printEntry(zone, e)
		},
	}
}

func (rs *rootState) recordsCreateCommand() *cobra.Command {
	var (
		draft    model.Draft
		typ      string
		priority int
	)
	cmd := &cobra.Command{
		Use:   "create <zone>",
		Short: "Create a record",
		Example: `  zonedeck records create example.com --name www --type CNAME --content example.com
  zonedeck records create example.com --name @ --type MX --content mail.example.com --priority 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := model.ParseRecordType(typ)
			if err != nil {
				return model.NewError(model.KindValidation, "create", "--type", err)
			}
			draft.Type = t
			if cmd.Flags().Changed("priority") {
				draft.Priority = model.Int(priority)
			}
			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			if _, err := rs.snapshot(ctx, zone, false); err != nil {
				return err
			}
			e, err := rs.app.Core.CreateRecord(ctx, zone.ID, draft)
			if err != nil {
				return err
			}
			return rs.printEntry(zone, e)
		},
	}
	f := cmd.Flags()
	f.StringVar(&draft.Name, "name", "@", "record name relative to the zone (@ for the apex)")
	f.StringVar(&typ, "type", "", "record type: "+typeList())
	f.StringVar(&draft.Content, "content", "", "record content")
	f.IntVar(&draft.TTL, "ttl", 0, "time to live in seconds (default: provider default)")
	f.IntVar(&priority, "priority", 0, "priority for MX and SRV records")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func (rs *rootState) recordsUpdateCommand() *cobra.Command {
	var (
		name     string
		content  string
		ttl      int
		priority int
	)
	cmd := &cobra.Command{
		Use:   "update <zone> <record>",
		Short: "Change a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var patch model.Patch
			f := cmd.Flags()
			if f.Changed("name") {
				patch.Name = model.String(name)
			}
			if f.Changed("content") {
				patch.Content = model.String(content)
			}
			if f.Changed("ttl") {
				patch.TTL = model.Int(ttl)
			}
			if f.Changed("priority") {
				patch.Priority = model.Int(priority)
			}
			if patch.IsEmpty() {
				return model.Validationf("update", "nothing to change; set --name, --content, --ttl or --priority")
			}

			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			e, err := rs.resolveRecord(ctx, zone, args[1])
			if err != nil {
				return err
			}
			if patch.Name != nil {
				patch.Name = model.String(model.NormalizeName(name, zone.Name))
			}
			e, err = rs.app.Core.UpdateRecord(ctx, e.Key, patch)
			if err != nil {
				return err
			}
			return rs.printEntry(zone, e)
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "new record name")
	f.StringVar(&content, "content", "", "new content")
	f.IntVar(&ttl, "ttl", 0, "new time to live in seconds")
	f.IntVar(&priority, "priority", 0, "new priority for MX and SRV records")
	return cmd
}

func (rs *rootState) recordsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <zone> <record>",
		Aliases: []string{"rm"},
		Short:   "Delete a record",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			e, err := rs.resolveRecord(ctx, zone, args[1])
			if err != nil {
				return err
			}
			if err := rs.app.Core.DeleteRecord(ctx, e.Key); err != nil {
				return err
			}
			if rs.printer.Structured() {
				return rs.printer.Value(map[string]any{"deleted": newRecordView(zone, e)}, nil)
			}
			rs.printer.Line("deleted %s", e.Record)
			return nil
		},
	}
}

func (rs *rootState) recordsDistributionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "distribution <zone> <record>",
		Short: "Check whether a record has reached every name server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			e, err := rs.resolveRecord(ctx, zone, args[1])
			if err != nil {
				return err
			}
			if e.Record.ID == "" {
				return model.Validationf(zone.Name+"/"+args[1], "record is not committed yet")
			}
			ok, err := rs.app.Gateway.RecordDistribution(ctx, zone, e.Record.ID)
			if err != nil {
				return err
			}
			v := distributionView{Zone: zone.Name, Record: e.Record.String(), Distributed: ok}
			return rs.printer.Value(v, distributionTable(v))
		},
	}
}

type importView struct {
	Created []recordView  `json:"created" yaml:"created"`
	Planned []model.Draft `json:"planned,omitempty" yaml:"planned,omitempty"`
	Skipped []string      `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Failed  []string      `json:"failed,omitempty" yaml:"failed,omitempty"`
}

func (rs *rootState) recordsImportCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <zone> <file>",
		Short: "Create the records of a BIND zone file",
		Long: `Import reads a BIND zone file ("-" for stdin) and creates each record in the
zone. SOA and apex NS records are skipped. Records that already exist are
reported as conflicts and left alone.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := readInput(rs.app.Fs, cmd.InOrStdin(), args[1])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[1], err)
			}
			zone, err := rs.app.Zone(ctx, args[0])
			if err != nil {
				return err
			}
			parsed, err := zonefile.Parse(bytes.NewReader(data), zone.Name, args[1])
			if err != nil {
				return model.NewError(model.KindValidation, "import", args[1], err)
			}

			out := importView{Created: []recordView{}, Skipped: parsed.Skipped}
			if dryRun {
				out.Planned = parsed.Drafts
				return rs.printer.Value(out, func(t *Table) {
					t.Row("NAME", "TYPE", "CONTENT", "TTL")
					for _, d := range parsed.Drafts {
						t.Row(d.Name, string(d.Type), d.Content, fmt.Sprint(d.TTL))
					}
					for _, s := range parsed.Skipped {
						t.Row("; skipped " + s)
					}
				})
			}

			if _, err := rs.snapshot(ctx, zone, false); err != nil {
				return err
			}
			entries, err := rs.app.Core.CreateRecords(ctx, zone.ID, parsed.Drafts)
			errs := unjoin(err)
			for i, e := range entries {
				if e.Key != "" && e.State == model.StateClean {
					out.Created = append(out.Created, newRecordView(zone, e))
					continue
				}
				d := parsed.Drafts[i]
				reason := "not created"
				if n := len(out.Failed); n < len(errs) {
					reason = errs[n].Error()
				}
				out.Failed = append(out.Failed, fmt.Sprintf("%s %s %s: %s", d.Type, model.Record{Name: d.Name}.DisplayName(), d.Content, reason))
			}

			if perr := rs.printer.Value(out, func(t *Table) {
				t.Row("RESULT", "RECORD")
				for _, v := range out.Created {
					t.Row("created", string(v.Type)+" "+v.Name+" "+v.Content)
				}
				for _, s := range out.Failed {
					t.Row("failed", s)
				}
				for _, s := range out.Skipped {
					t.Row("skipped", s)
				}
			}); perr != nil {
				return perr
			}
			if len(errs) > 0 {
				return fmt.Errorf("%d of %d records not imported: %w", len(out.Failed), len(parsed.Drafts), errs[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the records that would be created")
	return cmd
}

func typeList() string {
	var names []string
	for _, t := range model.RecordTypes() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}

// unjoin splits an error built with errors.Join.
func unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
