package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/matheus3301/precinct/internal/config"
	"github.com/matheus3301/precinct/internal/lock"
)

// FallbackName is used when neither the flag nor the config names a session.
const FallbackName = "main"

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Resolve picks the session name: an explicit --session value wins, then
// default_session from the config file, then FallbackName. A missing or
// unreadable config file is not an error here; the daemon reports it.
func Resolve(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if cfg, err := config.Load(ConfigPath()); err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return FallbackName
}

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// Info describes a session directory on disk.
type Info struct {
	Name           string
	Dir            string
	DaemonRunning  bool
	DaemonPID      int
	HasCredentials bool
}

// List returns the sessions under the base directory, sorted by name.
// Directories that are not valid session names are skipped.
func List() ([]Info, error) {
	entries, err := os.ReadDir(filepath.Join(BaseDir(), "sessions"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Info
	for _, e := range entries {
		if !e.IsDir() || ValidateName(e.Name()) != nil {
			continue
		}
		info := Info{Name: e.Name(), Dir: Dir(e.Name())}
		holder, held, err := lock.Probe(info.Dir)
		if err != nil {
			return nil, err
		}
		info.DaemonRunning, info.DaemonPID = held, holder.PID
		if _, err := os.Stat(CredentialsPath(e.Name())); err == nil {
			info.HasCredentials = true
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
