package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const (
	tokenFile   = "token"
	accountFile = "account"

	// Secret files are readable by the owner only.
	secretPerm = 0o600
	dirPerm    = 0o700
)

// Token sources reported by Credentials.Token.
const (
	SourceEnv  = "environment"
	SourceFile = "file"
	SourceNone = "none"
)

// Credentials reads and writes the API token and the remembered account
// id in the config directory.
type Credentials struct {
	fs  afero.Fs
	dir string
}

// NewCredentials returns credentials stored under dir.
func NewCredentials(fs afero.Fs, dir string) *Credentials {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Credentials{fs: fs, dir: dir}
}

// TokenPath returns the token file location.
func (c *Credentials) TokenPath() string {
	return filepath.Join(c.dir, tokenFile)
}

// Token resolves the API token. ZONEDECK_TOKEN and ZONEDECK_TOKEN_FILE win
// over the stored token. An absent token is not an error; the returned
// source is SourceNone.
func (c *Credentials) Token() (string, string, error) {
	if token := getEnvOrFile(c.fs, "TOKEN"); token != "" {
		return token, SourceEnv, nil
	}
	token, err := c.read(tokenFile)
	if err != nil {
		return "", SourceNone, err
	}
	if token == "" {
		return "", SourceNone, nil
	}
	return token, SourceFile, nil
}

// SaveToken stores token with owner-only permissions.
func (c *Credentials) SaveToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	return c.write(tokenFile, token)
}

// AccountID returns the remembered account id, if any.
func (c *Credentials) AccountID() (string, error) {
	return c.read(accountFile)
}

// SaveAccountID remembers the account resolved through whoami.
func (c *Credentials) SaveAccountID(id string) error {
	return c.write(accountFile, id)
}

// Clear removes the stored token and account id. Missing files are fine.
func (c *Credentials) Clear() error {
	var errs []error
	for _, name := range []string{tokenFile, accountFile} {
		err := c.fs.Remove(filepath.Join(c.dir, name))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Credentials) read(name string) (string, error) {
	data, err := afero.ReadFile(c.fs, filepath.Join(c.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *Credentials) write(name, value string) error {
	if err := c.fs.MkdirAll(c.dir, dirPerm); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	path := filepath.Join(c.dir, name)
	if err := afero.WriteFile(c.fs, path, []byte(value+"\n"), secretPerm); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := c.fs.Chmod(path, secretPerm); err != nil {
		return fmt.Errorf("securing %s: %w", name, err)
	}
	return nil
}
