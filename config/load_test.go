package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, "symbol: ETHUSDT\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Symbol != "ETHUSDT" {
		t.Fatalf("symbol not applied: %s", cfg.Symbol)
	}
	if cfg.Archive.RingCapacity != 6000 || cfg.Archive.HighWater != 5500 {
		t.Fatalf("archive defaults missing: %+v", cfg.Archive)
	}
	if cfg.Playback.TickMs != 50 {
		t.Fatalf("playback defaults missing: %+v", cfg.Playback)
	}
	if cfg.Detector.LargeOrder.High != 10 {
		t.Fatalf("detector defaults missing: %+v", cfg.Detector.LargeOrder)
	}
}

func TestLoadOverridesNested(t *testing.T) {
	path := writeTempConfig(t, `
symbol: BTCUSDT
archive:
  ringCapacity: 100
  highWater: 80
  offloadBatch: 20
tier:
  redisURL: redis://localhost:6379/0
  maxRows: 500
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Archive.RingCapacity != 100 || cfg.Archive.HighWater != 80 {
		t.Fatalf("archive override missing: %+v", cfg.Archive)
	}
	if cfg.Archive.CadenceMs != 100 {
		t.Fatalf("untouched default changed: %+v", cfg.Archive)
	}
	if cfg.Tier.RedisURL != "redis://localhost:6379/0" || cfg.Tier.MaxRows != 500 {
		t.Fatalf("tier override missing: %+v", cfg.Tier)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"highWater above capacity": "archive:\n  ringCapacity: 100\n  highWater: 200\n",
		"empty symbol":             "symbol: \"\"\n",
		"bad tick":                 "playback:\n  tickMs: 0\n",
		"bad detector thresholds":  "detector:\n  largeOrder:\n    low: 10\n    medium: 5\n    high: 20\n",
	}
	for name, content := range cases {
		path := writeTempConfig(t, content)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "symbol: BTCUSDT\ntier:\n  redisURL: redis://file-host:6379\n")

	t.Setenv("BR_REDIS_URL", "redis://env-host:6379")
	t.Setenv("BR_REDIS_PASSWORD", "secret")
	t.Setenv("BR_FEED_ENDPOINT", "wss://testnet.example.com")

	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tier.RedisURL != "redis://env-host:6379" {
		t.Fatalf("env redis url not applied: %s", cfg.Tier.RedisURL)
	}
	if cfg.Tier.RedisPassword != "secret" {
		t.Fatalf("env redis password not applied")
	}
	if cfg.Feed.Endpoint != "wss://testnet.example.com" {
		t.Fatalf("env feed endpoint not applied: %s", cfg.Feed.Endpoint)
	}
}
