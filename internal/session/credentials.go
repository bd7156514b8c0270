package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrNoCredentials means no login has been stored for the session.
var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is the portal token written by `precinctctl login`.
type Credentials struct {
	Token   string    `toml:"token"`
	UserID  string    `toml:"user_id,omitempty"`
	SavedAt time.Time `toml:"saved_at"`
}

// LoadCredentials reads the session's stored token.
func LoadCredentials(name string) (Credentials, error) {
	var c Credentials
	if _, err := toml.DecodeFile(CredentialsPath(name), &c); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, ErrNoCredentials
		}
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	if c.Token == "" {
		return Credentials{}, ErrNoCredentials
	}
	return c, nil
}

// SaveCredentials stores c with owner-only permissions.
func SaveCredentials(name string, c Credentials) error {
	path := CredentialsPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now().UTC()
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(c)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		encErr = closeErr
	}
	if encErr != nil {
		_ = os.Remove(tmp)
		return encErr
	}
	return os.Rename(tmp, path)
}

// ClearCredentials removes the stored token.
func ClearCredentials(name string) error {
	err := os.Remove(CredentialsPath(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
