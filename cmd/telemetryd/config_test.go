package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/cantelemetry/internal/config"
	"github.com/danmuck/cantelemetry/internal/testutil/testlog"
)

func TestLoadConfigDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadConfig(nil)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.HTTP.Addr != config.DefaultHTTPAddr || cfg.UDP.Addr != config.DefaultUDPAddr {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.UDP.Enabled || cfg.Serial.Enabled || cfg.MQTT.Enabled {
		t.Fatalf("unexpected enabled transports: %+v", cfg)
	}
}

func TestOverrideFileAppliesOnlyDefinedKeys(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadConfig([]string{"--override", "ex.config.toml"})
	if err != nil {
		t.Fatalf("load override: %v", err)
	}
	if cfg.Name != "bench" || cfg.HTTP.Addr != "127.0.0.1:8090" {
		t.Fatalf("override not applied: %+v", cfg)
	}
	if cfg.Pipeline.Workers != 1 || !cfg.Pipeline.Debug {
		t.Fatalf("pipeline override not applied: %+v", cfg.Pipeline)
	}
	if cfg.UDP.Addr != "127.0.0.1:19133" || !cfg.UDP.Enabled {
		t.Fatalf("udp override wrong: %+v", cfg.UDP)
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker != "broker.local" || cfg.MQTT.Topic != "bench/can" {
		t.Fatalf("mqtt override wrong: %+v", cfg.MQTT)
	}
	if cfg.Serial.Baud != config.DefaultSerialBaud || cfg.Datalog.Dir != config.DefaultDatalogDir {
		t.Fatalf("undefined keys changed: %+v", cfg)
	}
}

func TestFlagsWinOverFiles(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "telemetryd.toml")
	if err := config.WriteTemplate(path, "telemetryd", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := loadConfig([]string{
		"-c", path,
		"--override", "ex.config.toml",
		"--udp=false",
		"--serial", "--serial-port", "/dev/ttyACM0",
		"--workers", "3",
		"--datalog-dir", dir,
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.UDP.Enabled || !cfg.Serial.Enabled || cfg.Serial.Port != "/dev/ttyACM0" {
		t.Fatalf("transport flags not applied: %+v", cfg)
	}
	if cfg.Pipeline.Workers != 3 || cfg.Datalog.Dir != dir {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.Name != "bench" {
		t.Fatalf("override lost under flags: %q", cfg.Name)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := loadConfig([]string{"--override", filepath.Join(t.TempDir(), "missing.toml")}); err == nil {
		t.Fatalf("expected error for missing override file")
	}
	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("[mqtt]\nenabled = true\ntopic = \"\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := loadConfig([]string{"--override", bad}); err == nil {
		t.Fatalf("expected validation error for empty mqtt topic")
	}
	if _, err := loadConfig([]string{"--no-such-flag"}); err == nil {
		t.Fatalf("expected flag parse error")
	}
}
