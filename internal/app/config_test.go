package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != "nodejs" || cfg.BaseBranch != "main" || cfg.MaxIterations != 5 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadConfigClampsMaxIterations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte("max_iterations: 99\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxIterations != 20 {
		t.Fatalf("max_iterations = %d, want clamped to 20", cfg.MaxIterations)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	want := DefaultConfig()
	want.AgentURL = "http://localhost:8000"
	want.TeamName = "Rift Organisers"
	if err := SaveConfig(want, path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.AgentURL != want.AgentURL || got.TeamName != want.TeamName {
		t.Fatalf("got %+v", got)
	}
}
