package session

import (
	"errors"
	"os"
	"testing"
)

func TestCredentialsRoundTrip(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())

	if _, err := LoadCredentials("main"); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("LoadCredentials() before login error = %v, want ErrNoCredentials", err)
	}
	if err := SaveCredentials("main", Credentials{Token: "tok", UserID: "7"}); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCredentials("main")
	if err != nil {
		t.Fatal(err)
	}
	if c.Token != "tok" || c.UserID != "7" || c.SavedAt.IsZero() {
		t.Errorf("credentials = %+v", c)
	}
	info, err := os.Stat(CredentialsPath("main"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("credentials mode = %o, want 0600", info.Mode().Perm())
	}

	if err := ClearCredentials("main"); err != nil {
		t.Fatal(err)
	}
	if err := ClearCredentials("main"); err != nil {
		t.Errorf("second ClearCredentials() error = %v", err)
	}
	if _, err := LoadCredentials("main"); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("LoadCredentials() after clear error = %v", err)
	}
}
