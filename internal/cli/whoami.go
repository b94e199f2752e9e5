package cli

import (
	"github.com/spf13/cobra"
)

func (rs *rootState) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account the credentials belong to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rs.app.requireToken(); err != nil {
				return err
			}
			acct, err := rs.app.Engine.Account(cmd.Context())
			if err != nil {
				return err
			}
			return rs.printer.Value(acct, func(t *Table) {
				t.Row("ACCOUNT", "NAME", "EMAIL", "PROVIDER")
				t.Row(acct.ID, acct.Name, acct.Email, rs.app.Gateway.Provider())
			})
		},
	}
}
