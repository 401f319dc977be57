package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// ErrNotAuthenticated is returned when no auth token is available.
var ErrNotAuthenticated = errors.New("not authenticated")

// Credentials identify the signed-in account.
type Credentials struct {
	Email     string `toml:"email"`
	AccountID int64  `toml:"account_id"`
	AuthToken string `toml:"auth_token"`
}

// CredentialsPath returns the credentials file location.
func CredentialsPath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "credentials.toml"), nil
}

// LoadCredentials reads ~/.tally/credentials.toml, then applies
// TALLY_EMAIL, TALLY_ACCOUNT_ID and TALLY_AUTH_TOKEN.
func LoadCredentials() (*Credentials, error) {
	path, err := CredentialsPath()
	if err != nil {
		return nil, err
	}
	return LoadCredentialsFrom(path)
}

// LoadCredentialsFrom reads credentials from path. A missing file yields
// whatever the environment provides.
func LoadCredentialsFrom(path string) (*Credentials, error) {
	creds := &Credentials{}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, creds); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}

	if v := os.Getenv("TALLY_EMAIL"); v != "" {
		creds.Email = v
	}
	if v := os.Getenv("TALLY_ACCOUNT_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			creds.AccountID = n
		}
	}
	if v := os.Getenv("TALLY_AUTH_TOKEN"); v != "" {
		creds.AuthToken = v
	}

	if creds.AuthToken == "" {
		return creds, ErrNotAuthenticated
	}
	return creds, nil
}

// SaveCredentials writes credentials with owner-only permissions.
func SaveCredentials(path string, creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("open credentials: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(creds); err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	return nil
}
