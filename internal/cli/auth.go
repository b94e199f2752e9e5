package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"gitlab.bluewillows.net/root/zonedeck/internal/config"
	"gitlab.bluewillows.net/root/zonedeck/internal/store"
	"gitlab.bluewillows.net/root/zonedeck/pkg/model"
)

func (rs *rootState) authCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored API token",
	}
	cmd.AddCommand(rs.authLoginCommand(), rs.authLogoutCommand(), rs.authStatusCommand())
	return cmd
}

// readToken prompts for a token on a terminal, or reads the first line of
// piped input.
func readToken(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "API token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

type authView struct {
	SignedIn bool   `json:"signed_in" yaml:"signed_in"`
	Source   string `json:"source" yaml:"source"`
	Provider string `json:"provider" yaml:"provider"`
	Account  string `json:"account,omitempty" yaml:"account,omitempty"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
}

func (rs *rootState) authLoginCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify a token and store it for later runs",
		Long: `Login checks the token against the provider and saves it, readable only by
you, in the config directory. Without --token the token is read from the
terminal or from standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if token == "" {
				var err error
				if token, err = readToken(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
			}
			if token == "" {
				return model.Validationf("token", "must not be empty")
			}

			rs.app.Gateway.SetToken(token)
			acct, err := rs.app.Engine.Account(ctx)
			if err != nil {
				return err
			}
			if !rs.app.Config.Demo {
				if err := rs.app.Creds.SaveToken(token); err != nil {
					return err
				}
				if err := rs.app.Creds.SaveAccountID(acct.ID); err != nil {
					return err
				}
			}
			rs.app.Logger.Info("signed in",
				slog.String("account", acct.ID),
				slog.String("provider", rs.app.Gateway.Provider()))
			v := authView{SignedIn: true, Source: config.SourceFile, Provider: rs.app.Gateway.Provider(), Account: acct.ID, Name: accountLabel(acct)}
			if rs.printer.Structured() {
				return rs.printer.Value(v, nil)
			}
			rs.printer.Line("signed in to %s as %s", v.Provider, v.Name)
			if _, source, _ := rs.app.Creds.Token(); source == config.SourceEnv {
				rs.printer.Line("note: %sTOKEN is set and takes precedence over the saved token", config.EnvPrefix)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "API token (default: prompt)")
	return cmd
}

func (rs *rootState) authLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token and cached data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			creds := rs.app.Creds
			acct, err := creds.AccountID()
			if err != nil {
				rs.app.Logger.Warn("ignoring remembered account", slog.String("error", err.Error()))
			}
			if err := creds.Clear(); err != nil {
				return err
			}
			if acct != "" {
				path := store.CachePath(rs.app.Config.CacheDir, acct)
				if err := rs.app.Fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("removing cache: %w", err)
				}
			}
			rs.app.Store.Logout()
			rs.printer.Line("signed out")
			if _, source, _ := creds.Token(); source == config.SourceEnv {
				rs.printer.Line("note: %sTOKEN is still set in the environment", config.EnvPrefix)
			}
			return nil
		},
	}
}

func (rs *rootState) authStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where the token comes from and whether it works",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v := authView{Source: rs.app.tokenSource, Provider: rs.app.Gateway.Provider()}
			if err := rs.app.requireToken(); err != nil {
				_ = rs.printer.Value(v, authTable(v, rs.app.Creds))
				return err
			}
			acct, err := rs.app.Engine.Account(cmd.Context())
			if err != nil {
				return err
			}
			v.SignedIn = true
			v.Account = acct.ID
			v.Name = accountLabel(acct)
			return rs.printer.Value(v, authTable(v, rs.app.Creds))
		},
	}
}

func authTable(v authView, creds *config.Credentials) func(*Table) {
	return func(t *Table) {
		source := v.Source
		if source == config.SourceFile {
			source = creds.TokenPath()
		}
		t.Row("PROVIDER", "TOKEN", "ACCOUNT")
		account := "-"
		if v.SignedIn {
			account = v.Name + " (" + v.Account + ")"
		}
		t.Row(v.Provider, source, account)
	}
}
