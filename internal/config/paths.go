package config

import (
	"os"
	"path/filepath"
)

// HomePath returns the root directory for switchboard's on-disk state
// (config, .env, sqlite stores). It uses $SWITCHBOARD_PATH if set,
// otherwise defaults to ~/.switchboard.
func HomePath() string {
	if v := os.Getenv("SWITCHBOARD_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".switchboard")
	}
	return filepath.Join(home, ".switchboard")
}

// ConfigPath returns the path to the switchboard config file.
func ConfigPath() string {
	return filepath.Join(HomePath(), "config.jsonc")
}

// DotenvPath returns the path to the switchboard .env file.
func DotenvPath() string {
	return filepath.Join(HomePath(), ".env")
}
