package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/httprunner/DeviceScan/pkg/devrecorder"
)

func TestSQLiteRecorderUpsertsByAdapterAndSerial(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "devices.sqlite")
	rec, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rec.Close()

	ctx := context.Background()
	seen := time.UnixMilli(1700000000000)
	err = rec.UpsertDevices(ctx, []devrecorder.Update{
		{Serial: "sdb", Adapter: "standard", Status: "online", Size: 1 << 30, LastSeenAt: seen},
		{Serial: "emu-1", Adapter: "adb", Status: "online", OSVersion: "14", LastSeenAt: seen},
		{Serial: " ", Adapter: "adb", Status: "online"},
	})
	if err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	// Same key updates in place; same serial under another adapter is a new row.
	err = rec.UpsertDevices(ctx, []devrecorder.Update{
		{Serial: "sdb", Adapter: "standard", Status: "offline", Size: 1 << 30, LastSeenAt: seen},
		{Serial: "sdb", Adapter: "usbboot", Status: "boot"},
	})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	rows, err := rec.Devices(ctx)
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].Adapter != "adb" || rows[0].OSVersion != "14" {
		t.Fatalf("unexpected adb row: %+v", rows[0])
	}
	if rows[1].Adapter != "standard" || rows[1].Status != "offline" || rows[1].Size != 1<<30 {
		t.Fatalf("unexpected standard row: %+v", rows[1])
	}
	if !rows[1].LastSeenAt.Equal(seen) {
		t.Fatalf("last seen=%s", rows[1].LastSeenAt)
	}
	if rows[2].Adapter != "usbboot" || !rows[2].LastSeenAt.IsZero() {
		t.Fatalf("unexpected usbboot row: %+v", rows[2])
	}
}

func TestResolveDatabasePathFromEnv(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "db", "custom.sqlite")
	t.Setenv("DEVICESCAN_DB_PATH", custom)
	got, err := ResolveDatabasePath()
	if err != nil {
		t.Fatalf("ResolveDatabasePath failed: %v", err)
	}
	if got != custom {
		t.Fatalf("path=%q, want %q", got, custom)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *SQLiteRecorder
	if err := rec.UpsertDevices(context.Background(), []devrecorder.Update{{Serial: "sda"}}); err != nil {
		t.Fatalf("nil recorder failed: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("nil close failed: %v", err)
	}
}
