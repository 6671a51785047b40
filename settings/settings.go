// Package settings resolves user-level settings that live outside the
// project: the provider credential and the persistent auth store.
//
// The credential is looked up in precedence order: an explicit flag value,
// the LANGSYNC_API_KEY environment variable, a .env file in the project
// root, and finally the stored login in the XDG data directory.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// EnvKey is the environment variable holding the provider API key.
const EnvKey = "LANGSYNC_API_KEY"

// ErrNoCredentials means no API key could be found anywhere in the chain.
var ErrNoCredentials = errors.New("no API key configured")

// auth is the persisted login file.
type auth struct {
	APIKey string `json:"api_key"`
}

// ResolveAPIKey walks the credential chain and returns the first key found.
// flagValue wins when non-empty; projectRoot is searched for a .env file.
func ResolveAPIKey(flagValue, projectRoot string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if key := os.Getenv(EnvKey); key != "" {
		return key, nil
	}
	if projectRoot != "" {
		if env, err := godotenv.Read(filepath.Join(projectRoot, ".env")); err == nil {
			if key := env[EnvKey]; key != "" {
				return key, nil
			}
		}
	}
	if key, err := storedKey(); err == nil && key != "" {
		return key, nil
	}
	return "", ErrNoCredentials
}

// ---------------------------------------------------------------------------
// Auth store
// ---------------------------------------------------------------------------

func authPath() (string, error) {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "langsync", "auth.json"), nil
}

func storedKey() (string, error) {
	path, err := authPath()
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var a auth
	if err := json.Unmarshal(data, &a); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	return a.APIKey, nil
}

// StoreAPIKey persists the key in the auth store for future runs.
func StoreAPIKey(key string) error {
	path, err := authPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(auth{APIKey: key}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ClearAPIKey removes the stored login. A missing store is not an error.
func ClearAPIKey() error {
	path, err := authPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
