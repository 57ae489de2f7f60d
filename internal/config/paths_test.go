package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestHomePath_Default(t *testing.T) {
	t.Setenv("SWITCHBOARD_PATH", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := HomePath()
	want := filepath.Join(home, ".switchboard")
	if got != want {
		t.Errorf("HomePath() = %q, want %q", got, want)
	}
}

func TestHomePath_EnvOverride(t *testing.T) {
	t.Setenv("SWITCHBOARD_PATH", "/tmp/custom-switchboard")

	got := HomePath()
	want := "/tmp/custom-switchboard"
	if got != want {
		t.Errorf("HomePath() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("SWITCHBOARD_PATH", "/tmp/test-switchboard")

	got := ConfigPath()
	want := "/tmp/test-switchboard/config.jsonc"
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestDotenvPath(t *testing.T) {
	t.Setenv("SWITCHBOARD_PATH", "/tmp/test-switchboard")

	got := DotenvPath()
	want := "/tmp/test-switchboard/.env"
	if got != want {
		t.Errorf("DotenvPath() = %q, want %q", got, want)
	}
}
