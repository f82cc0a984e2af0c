package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_DefaultsWhenKeysMissing(t *testing.T) {
	cfg, err := Load(writeConfig(t, "port: \"9090\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("port=%q", cfg.Port)
	}
	if cfg.Store.Driver != StoreSQLite || cfg.CatchUp.Strategy != CatchUpLocal {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Store, cfg.CatchUp)
	}
	if cfg.Schedule.DefaultIntervalDays != 1 || cfg.Schedule.DefaultDurationMS != 5000 {
		t.Fatalf("unexpected schedule defaults: %+v", cfg.Schedule)
	}
	if cfg.TimeSync.Timeout != 5*time.Second || cfg.TimeSync.Resync != "@every 1h" {
		t.Fatalf("unexpected timesync defaults: %+v", cfg.TimeSync)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("WATER_TIMER_CATCH_UP_STRATEGY", "remote")
	t.Setenv("WATER_TIMER_LOG_LEVEL", "debug")
	cfg, err := Load(writeConfig(t, "log:\n  level: info\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CatchUp.Strategy != CatchUpRemote {
		t.Fatalf("strategy=%q", cfg.CatchUp.Strategy)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("level=%q", cfg.Log.Level)
	}
}

func TestLoad_ClampsMonitorCadence(t *testing.T) {
	cfg, err := Load(writeConfig(t, "monitor:\n  cadence: 5s\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.Cadence != time.Second {
		t.Fatalf("cadence=%v, want 1s", cfg.Monitor.Cadence)
	}

	cfg, err = Load(writeConfig(t, "monitor:\n  cadence: 10ms\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Monitor.Cadence != 500*time.Millisecond {
		t.Fatalf("cadence=%v, want 500ms", cfg.Monitor.Cadence)
	}
}

func TestLoad_RejectsUnknownDriverAndStrategy(t *testing.T) {
	if _, err := Load(writeConfig(t, "store:\n  driver: etcd\n")); err == nil {
		t.Fatalf("expected error for unknown store driver")
	}
	if _, err := Load(writeConfig(t, "catch_up:\n  strategy: psychic\n")); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
	if _, err := Load(writeConfig(t, "catch_up:\n  strategy: remote\ntimesync:\n  enabled: false\n")); err == nil {
		t.Fatalf("expected error for remote strategy without timesync")
	}
}

func TestLoad_LogFormat(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  format: JSON\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("format=%q, want json", cfg.Log.Format)
	}
	if _, err := Load(writeConfig(t, "log:\n  format: xml\n")); err == nil {
		t.Fatalf("expected error for unknown log format")
	}
}
