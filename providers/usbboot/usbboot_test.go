package usbboot

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/httprunner/DeviceScan/pkg/adapter"
)

func file(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s + "\n")} }

func testSysFS() fstest.MapFS {
	return fstest.MapFS{
		"bus/usb/devices/usb1/busnum":        file("1"),
		"bus/usb/devices/1-1/idVendor":       file("0a5c"),
		"bus/usb/devices/1-1/idProduct":      file("2711"),
		"bus/usb/devices/1-1/busnum":         file("1"),
		"bus/usb/devices/1-1/devnum":         file("7"),
		"bus/usb/devices/1-1:1.0/bInterface": file("00"),
		"bus/usb/devices/1-2/idVendor":       file("046d"),
		"bus/usb/devices/1-2/idProduct":      file("c52b"),
		"bus/usb/devices/1-2/busnum":         file("1"),
		"bus/usb/devices/1-2/devnum":         file("3"),
		"bus/usb/devices/2-4/idVendor":       file("1209"),
		"bus/usb/devices/2-4/idProduct":      file("BEEF"),
		"bus/usb/devices/2-4/busnum":         file("2"),
		"bus/usb/devices/2-4/devnum":         file("12"),
	}
}

func TestScanMatchesKnownBootROMs(t *testing.T) {
	snap, err := NewWithFS(testSysFS()).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(snap.Devices) != 1 {
		t.Fatalf("unexpected devices: %v", snap.Serials())
	}
	dev := snap.Devices[0]
	if dev.Serial != "1-1" || dev.Path != "/dev/bus/usb/001/007" {
		t.Fatalf("unexpected device: %+v", dev)
	}
	if dev.Description != KnownIDs["0a5c:2711"] {
		t.Fatalf("description=%q", dev.Description)
	}
}

func TestScanExtraIDs(t *testing.T) {
	opts := adapter.Options{"ids": "1209:beef, bogus"}
	snap, err := NewWithFS(testSysFS()).Scan(context.Background(), opts)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	serials := snap.Serials()
	if len(serials) != 2 || serials[0] != "1-1" || serials[1] != "2-4" {
		t.Fatalf("unexpected devices: %v", serials)
	}
	if snap.Devices[1].Path != "/dev/bus/usb/002/012" {
		t.Fatalf("path=%q", snap.Devices[1].Path)
	}
}

func TestScanWithoutUSBBusFails(t *testing.T) {
	if _, err := NewWithFS(fstest.MapFS{}).Scan(context.Background(), nil); err == nil {
		t.Fatal("expected error without usb sysfs")
	}
}
