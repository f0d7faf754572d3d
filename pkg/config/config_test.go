package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("METRICS_ADDR")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "./data" || cfg.LogLevel != "info" || cfg.MetricsAddr != "127.0.0.1:9090" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/ncore")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/tmp/ncore" || cfg.LogLevel != "debug" {
		t.Fatalf("expected env overrides to apply, got %+v", cfg)
	}
}

func TestDefaultProtocolSettingsSingleValidator(t *testing.T) {
	p := DefaultProtocolSettings()
	if p.ValidatorsCount != 1 {
		t.Fatalf("expected single-validator default, got %d", p.ValidatorsCount)
	}
	if !p.IsHardforkActive(HFEchidna, 0) {
		t.Fatal("expected an unconfigured hardfork to be active from genesis")
	}
}

func TestLoadProtocolSettingsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "protocol.yml")
	doc := `
validators_count: 7
milliseconds_per_block: 15000
max_traceable_blocks: 2102400
hardfork_activation_heights:
  Echidna: 5000000
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProtocolSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.ValidatorsCount != 7 {
		t.Fatalf("got validators_count %d, want 7", p.ValidatorsCount)
	}
	if p.IsHardforkActive(HFEchidna, 100) {
		t.Fatal("expected Echidna inactive below its configured activation height")
	}
	if !p.IsHardforkActive(HFEchidna, 5_000_000) {
		t.Fatal("expected Echidna active at its configured activation height")
	}
	if !p.EchidnaActive(6_000_000) {
		t.Fatal("expected EchidnaActive to mirror IsHardforkActive(HFEchidna, ...)")
	}
}
