package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleConfig = `adapters:
  standard:
    include_system: true
  adb:
    interval: 5s
    fetch_meta: true
  usbboot:
record:
  sqlite: true
  db_path: /tmp/devices.sqlite
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "devicescan.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesAdaptersAndRecord(t *testing.T) {
	t.Setenv("DEVICESCAN_ADAPTERS", "")
	t.Setenv("DEVICESCAN_DB_PATH", "")
	t.Setenv("DEVICE_BITABLE_URL", "")
	cfg, path, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if path == "" {
		t.Fatal("expected resolved path")
	}
	if len(cfg.Adapters) != 3 {
		t.Fatalf("adapters=%v", cfg.Adapters)
	}
	if !cfg.Adapters["standard"].Bool("include_system", false) {
		t.Fatal("standard include_system should be true")
	}
	if got := cfg.Adapters["adb"].String("interval", ""); got != "5s" {
		t.Fatalf("adb interval=%q", got)
	}
	if _, ok := cfg.Adapters["usbboot"]; !ok {
		t.Fatal("usbboot without options must still be enabled")
	}
	if !cfg.Record.SQLite || cfg.Record.DBPath != "/tmp/devices.sqlite" {
		t.Fatalf("record=%+v", cfg.Record)
	}

	sc := cfg.ScannerConfig()
	if len(sc.Options) != 3 {
		t.Fatalf("scanner options=%v", sc.Options)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("DEVICESCAN_ADAPTERS", "adb, standard")
	t.Setenv("DEVICESCAN_DB_PATH", "/data/devices.sqlite")
	t.Setenv("DEVICE_BITABLE_URL", "https://example.feishu.cn/base/app?table=tbl")
	cfg, _, err := Load(writeConfig(t, "adapters:\n  adb:\n    include_offline: true\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Adapters["adb"].Bool("include_offline", false) {
		t.Fatal("env must not replace configured adapter options")
	}
	if _, ok := cfg.Adapters["standard"]; !ok {
		t.Fatal("standard should be enabled from env")
	}
	if cfg.Record.DBPath != "/data/devices.sqlite" || !cfg.Record.SQLite {
		t.Fatalf("record=%+v", cfg.Record)
	}
	if cfg.Record.FeishuURL == "" {
		t.Fatal("feishu url should come from env")
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for explicit missing config")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, _, err := Load(writeConfig(t, "adapters: [standard")); err == nil {
		t.Fatal("expected parse error")
	}
}
