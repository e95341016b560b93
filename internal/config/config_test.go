package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Bus.Baud != 115200 {
		t.Fatalf("Bus.Baud = %d, want 115200", cfg.Bus.Baud)
	}
	if cfg.Locator.DelayTimeMs != 5 {
		t.Fatalf("Locator.DelayTimeMs = %d, want 5", cfg.Locator.DelayTimeMs)
	}
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if cfg.Bus.Port != "/dev/ttyBus0" {
		t.Fatalf("Bus.Port = %q, want default", cfg.Bus.Port)
	}
}

func TestLoadConfigParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
bus:
  port: /dev/ttyUSB3
  baud: 9600
locator:
  scan_first: 10
  scan_last: 20
  stop_on_missing: true
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg := LoadConfig(path)
	if cfg.Bus.Port != "/dev/ttyUSB3" || cfg.Bus.Baud != 9600 {
		t.Fatalf("unexpected bus config: %+v", cfg.Bus)
	}
	if cfg.Locator.ScanFirst != 10 || cfg.Locator.ScanLast != 20 || !cfg.Locator.StopOnMissing {
		t.Fatalf("unexpected locator config: %+v", cfg.Locator)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("BUS_PORT", "/dev/ttyOverride")
	t.Setenv("BUS_BAUD", "57600")
	t.Setenv("LOCATOR_STOP_ON_MISSING", "true")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if cfg.Bus.Port != "/dev/ttyOverride" {
		t.Fatalf("Bus.Port = %q, want override", cfg.Bus.Port)
	}
	if cfg.Bus.Baud != 57600 {
		t.Fatalf("Bus.Baud = %d, want 57600", cfg.Bus.Baud)
	}
	if !cfg.Locator.StopOnMissing {
		t.Fatalf("Locator.StopOnMissing = false, want true")
	}
}
