package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.UI.ComposerMaxLines != 8 {
		t.Errorf("expected composer_max_lines=8, got %d", cfg.UI.ComposerMaxLines)
	}
	if cfg.RefreshInterval() != 30*time.Minute {
		t.Errorf("expected 30m refresh interval, got %s", cfg.RefreshInterval())
	}
	if cfg.UI.ShortcutModifier != "ctrl" {
		t.Errorf("expected ctrl modifier, got %s", cfg.UI.ShortcutModifier)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	content := `
[api]
url_root = "https://api.example.test"

[realtime]
app_key = "abc"
cluster = "eu"

[ui]
composer_max_lines = 3
shortcut_modifier = "alt"

[refresh]
interval = "5m"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.URLRoot != "https://api.example.test/" {
		t.Errorf("expected trailing slash on url root, got %s", cfg.API.URLRoot)
	}
	if cfg.Realtime.AppKey != "abc" || cfg.Realtime.Cluster != "eu" {
		t.Errorf("unexpected realtime config: %+v", cfg.Realtime)
	}
	if cfg.UI.ComposerMaxLines != 3 {
		t.Errorf("expected composer_max_lines=3, got %d", cfg.UI.ComposerMaxLines)
	}
	if cfg.RefreshInterval() != 5*time.Minute {
		t.Errorf("expected 5m, got %s", cfg.RefreshInterval())
	}
	if cfg.AuthEndpoint() != "https://api.example.test/api?command=Push_Authenticate" {
		t.Errorf("unexpected auth endpoint %s", cfg.AuthEndpoint())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.URLRoot != DefaultConfig().API.URLRoot {
		t.Errorf("expected default url root, got %s", cfg.API.URLRoot)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("TALLY_API_ROOT", "https://env.example.test/")
	t.Setenv("TALLY_PUSHER_CLUSTER", "ap2")
	t.Setenv("TALLY_COMPOSER_MAX_LINES", "12")
	t.Setenv("TALLY_REFRESH_INTERVAL", "1h")
	t.Setenv("TALLY_NOTIFICATIONS", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.API.URLRoot != "https://env.example.test/" {
		t.Errorf("expected env url root, got %s", cfg.API.URLRoot)
	}
	if cfg.Realtime.Cluster != "ap2" {
		t.Errorf("expected cluster ap2, got %s", cfg.Realtime.Cluster)
	}
	if cfg.UI.ComposerMaxLines != 12 {
		t.Errorf("expected 12, got %d", cfg.UI.ComposerMaxLines)
	}
	if cfg.RefreshInterval() != time.Hour {
		t.Errorf("expected 1h, got %s", cfg.RefreshInterval())
	}
	if cfg.UI.Notifications {
		t.Error("expected notifications disabled")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad_interval", "[refresh]\ninterval = \"soon\"\n"},
		{"bad_modifier", "[ui]\nshortcut_modifier = \"hyper\"\n"},
		{"bad_toml", "[ui\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCredentialsRoundTrip(t *testing.T) {
	t.Setenv("TALLY_AUTH_TOKEN", "")
	path := filepath.Join(t.TempDir(), "sub", "credentials.toml")

	if _, err := LoadCredentialsFrom(path); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	want := &Credentials{Email: "me@example.test", AccountID: 42, AuthToken: "tok"}
	if err := SaveCredentials(path, want); err != nil {
		t.Fatalf("SaveCredentials() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %o", info.Mode().Perm())
	}

	got, err := LoadCredentialsFrom(path)
	if err != nil {
		t.Fatalf("LoadCredentialsFrom() error: %v", err)
	}
	if *got != *want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestCredentialsEnvOverride(t *testing.T) {
	t.Setenv("TALLY_AUTH_TOKEN", "env-token")
	t.Setenv("TALLY_ACCOUNT_ID", "7")

	got, err := LoadCredentialsFrom(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AuthToken != "env-token" || got.AccountID != 7 {
		t.Errorf("unexpected credentials %+v", got)
	}
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TALLY_HOME", dir)

	got, err := EnsureDataDir()
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("expected %s, got %s", dir, got)
	}
}
