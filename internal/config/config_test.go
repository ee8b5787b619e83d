package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json5"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Addr != "127.0.0.1:8765" {
		t.Errorf("default addr = %q", cfg.Gateway.Addr)
	}
	if cfg.Scheduler.Workers != 4 || cfg.Scheduler.TickWindowSeconds != 60 {
		t.Errorf("scheduler defaults = %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.RetryMax != 0 {
		t.Error("retries must default to off")
	}
	if cfg.TickWindow() != time.Minute {
		t.Errorf("TickWindow = %s", cfg.TickWindow())
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json5")
	// JSON5: comments and trailing commas are fine.
	content := `{
		// local override
		timezone: "Europe/Berlin",
		gateway: { addr: "127.0.0.1:9000", token: "s3cret-token" },
		scheduler: { workers: 2, },
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Errorf("timezone = %q", cfg.Timezone)
	}
	if cfg.Gateway.Addr != "127.0.0.1:9000" || cfg.Gateway.Token != "s3cret-token" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Scheduler.Workers != 2 {
		t.Errorf("workers = %d", cfg.Scheduler.Workers)
	}
	// Untouched keys keep their defaults.
	if cfg.Scheduler.TickWindowSeconds != 60 {
		t.Errorf("tick_window_seconds = %d", cfg.Scheduler.TickWindowSeconds)
	}
}

func TestLoad_RejectsBadConfig(t *testing.T) {
	dir := t.TempDir()

	malformed := filepath.Join(dir, "bad.json5")
	if err := os.WriteFile(malformed, []byte("{ addr:"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(malformed); err == nil {
		t.Error("malformed file must be an error, not a silent default")
	}

	badTZ := filepath.Join(dir, "tz.json5")
	if err := os.WriteFile(badTZ, []byte(`{ timezone: "Mars/Olympus" }`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(badTZ); err == nil {
		t.Error("unknown timezone must fail validation")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	cfg.Gateway.Addr = ""
	if err := cfg.Validate(); err == nil {
		t.Error("empty gateway addr must fail")
	}

	cfg = Default()
	cfg.Scheduler.TickWindowSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero tick window must fail")
	}
}
