package session

import (
	"os"
	"testing"

	"github.com/matheus3301/precinct/internal/config"
	"github.com/matheus3301/precinct/internal/lock"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-session", false},
		{"valid with underscore", "my_session", false},
		{"valid single char", "a", false},
		{"valid max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my session", true},
		{"dot", "my.session", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"special chars", "my@session", true},
		{"slash", "my/session", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if got := Resolve(""); got != FallbackName {
		t.Errorf("Resolve() without config = %q, want %q", got, FallbackName)
	}

	cfg := config.Default()
	cfg.DefaultSession = "nightshift"
	if err := config.Save(ConfigPath(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != "nightshift" {
		t.Errorf("Resolve() = %q, want nightshift from config", got)
	}
	if got := Resolve("dayshift"); got != "dayshift" {
		t.Errorf("Resolve(dayshift) = %q, flag should win", got)
	}

	if err := os.WriteFile(ConfigPath(), []byte("default_session = ["), 0600); err != nil {
		t.Fatal(err)
	}
	if got := Resolve(""); got != FallbackName {
		t.Errorf("Resolve() with broken config = %q, want %q", got, FallbackName)
	}
}

func TestList(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if got, err := List(); err != nil || len(got) != 0 {
		t.Fatalf("List() on empty home = %v, %v", got, err)
	}

	for _, name := range []string{"work", "main", "Not.Valid"} {
		if err := os.MkdirAll(Dir(name), 0700); err != nil {
			t.Fatal(err)
		}
	}
	if err := SaveCredentials("work", Credentials{Token: "tok"}); err != nil {
		t.Fatal(err)
	}
	l, err := lock.Acquire(Dir("main"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Release() }()

	got, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "main" || got[1].Name != "work" {
		t.Fatalf("List() = %+v", got)
	}
	if !got[0].DaemonRunning || got[0].DaemonPID != os.Getpid() || got[0].HasCredentials {
		t.Errorf("main = %+v", got[0])
	}
	if got[1].DaemonRunning || !got[1].HasCredentials {
		t.Errorf("work = %+v", got[1])
	}
}
