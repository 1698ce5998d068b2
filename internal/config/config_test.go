package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte("port: 12000\nsink: gdrive\nsink_target: relay/inbox\nprogress_interval: 500ms\n")
	if err := os.WriteFile(path, yaml, 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FETCHRELAY_USERNAME", "admin")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 12000 || cfg.Sink != "gdrive" || cfg.SinkTarget != "relay/inbox" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.ProgressEvery != 500*time.Millisecond {
		t.Fatalf("unexpected progress interval %s", cfg.ProgressEvery)
	}
	if cfg.Username != "admin" {
		t.Fatalf("env override not applied, got %q", cfg.Username)
	}
	if cfg.MaxSubscribers != Default.MaxSubscribers || !cfg.SerializeRelays {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != Default.Port || cfg.PublicURLPrefix != "/dl/" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
