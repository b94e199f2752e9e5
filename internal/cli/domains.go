package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

func (rs *rootState) domainsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "domains",
		Aliases: []string{"domain", "dom"},
		Short:   "Show domain registrations of the account",
	}
	cmd.AddCommand(
		rs.domainsListCommand(),
		rs.domainsGetCommand(),
		rs.domainsCreateCommand(),
		rs.domainsDeleteCommand(),
	)
	return cmd
}

func (rs *rootState) domainsListCommand() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List domains with registration state and expiry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			acct, err := rs.app.Account(ctx)
			if err != nil {
				return err
			}
			domains, err := rs.app.Gateway.ListDomains(ctx, acct, filter)
			if err != nil {
				return err
			}
			if domains == nil {
				domains = []model.Domain{}
			}
			return rs.printer.Value(domains, domainsTable(domains))
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "only domains whose name contains this text")
	return cmd
}

func (rs *rootState) domainsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <domain>",
		Short: "Show one domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			acct, err := rs.app.Account(ctx)
			if err != nil {
				return err
			}
			d, err := rs.app.Gateway.Domain(ctx, acct, strings.TrimSuffix(args[0], "."))
			if err != nil {
				return err
			}
			return rs.printer.Value(d, domainDetail(d))
		},
	}
}

func (rs *rootState) domainsCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create <domain>",
		Short: "Add a domain to the account without registering it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			acct, err := rs.app.Account(ctx)
			if err != nil {
				return err
			}
			d, err := rs.app.Gateway.CreateDomain(ctx, acct, args[0])
			if err != nil {
				return err
			}
			// The new zone shows up in the next zone list.
			if _, err := rs.app.Engine.Zones(ctx, acct, true); err != nil {
				return err
			}
			if rs.printer.Structured() {
				return rs.printer.Value(d, nil)
			}
			rs.printer.Line("domain %s added (id %s)", d.Name, d.ID)
			return nil
		},
	}
}

func (rs *rootState) domainsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <domain>",
		Short: "Remove a domain and its zone from the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			acct, err := rs.app.Account(ctx)
			if err != nil {
				return err
			}
			name := strings.ToLower(strings.TrimSuffix(args[0], "."))
			if err := rs.app.Gateway.DeleteDomain(ctx, acct, name); err != nil {
				return err
			}
			if _, err := rs.app.Engine.Zones(ctx, acct, true); err != nil {
				return err
			}
			rs.printer.Line("domain %s deleted", name)
			return nil
		},
	}
}

func domainsTable(domains []model.Domain) func(*Table) {
	return func(t *Table) {
		t.Row("NAME", "STATE", "EXPIRES", "AUTO-RENEW")
		for _, d := range domains {
			t.Row(d.Name, d.State, expires(d), yesNo(d.AutoRenew))
		}
	}
}

func domainDetail(d model.Domain) func(*Table) {
	return func(t *Table) {
		t.Row("ID:", d.ID)
		t.Row("Name:", d.Name)
		if d.UnicodeName != "" && d.UnicodeName != d.Name {
			t.Row("Unicode name:", d.UnicodeName)
		}
		t.Row("State:", d.State)
		t.Row("Expires:", expires(d))
		t.Row("Auto-renew:", yesNo(d.AutoRenew))
		t.Row("Private whois:", yesNo(d.PrivateWhois))
	}
}

func expires(d model.Domain) string {
	if d.ExpiresAt == nil {
		return "-"
	}
	return d.ExpiresAt.Format("2006-01-02")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
