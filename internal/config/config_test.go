package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if *cfg != *want {
		t.Errorf("expected default config, got %+v", cfg)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.SuccessCriteria = true
	cfg.Hooks.NATSURL = "nats://localhost:4222"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.SuccessCriteria {
		t.Error("expected success_criteria to round-trip as true")
	}
	if loaded.Hooks.NATSURL != "nats://localhost:4222" {
		t.Errorf("expected nats_url to round-trip, got %q", loaded.Hooks.NATSURL)
	}
}

func TestMinimalModeOverridesOtherToggles(t *testing.T) {
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.SuccessCriteria = true
	cfg.Feedback = true
	cfg.Hooks.NATSURL = "nats://localhost:4222"
	cfg.MinimalMode = true
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.SuccessCriteria || loaded.Feedback {
		t.Error("expected minimal_mode to force feature toggles off on load")
	}
	if loaded.Hooks.NATSURL != "" {
		t.Errorf("expected minimal_mode to clear nats_url, got %q", loaded.Hooks.NATSURL)
	}
}

func TestEnableDisableUnknownFeature(t *testing.T) {
	cfg := Default()
	if err := cfg.Enable("success_criteria"); err != nil {
		t.Fatal(err)
	}
	if !cfg.SuccessCriteria {
		t.Error("expected Enable to set success_criteria")
	}
	if err := cfg.Disable("success_criteria"); err != nil {
		t.Fatal(err)
	}
	if cfg.SuccessCriteria {
		t.Error("expected Disable to clear success_criteria")
	}
	if err := cfg.Enable("not_a_real_feature"); err == nil {
		t.Error("expected unknown feature name to error")
	}
}

func TestEnableMinimalModeClearsOtherToggles(t *testing.T) {
	cfg := Default()
	cfg.SuccessCriteria = true
	cfg.Deadlines = true
	if err := cfg.Enable("minimal_mode"); err != nil {
		t.Fatal(err)
	}
	if cfg.SuccessCriteria || cfg.Deadlines {
		t.Error("expected enabling minimal_mode to immediately clear other toggles")
	}
}
