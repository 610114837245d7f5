package standard

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/httprunner/DeviceScan/pkg/adapter"
)

func file(s string) *fstest.MapFile { return &fstest.MapFile{Data: []byte(s + "\n")} }

func testSysFS() fstest.MapFS {
	return fstest.MapFS{
		"block/sda/size":             file("500118192"),
		"block/sda/removable":        file("0"),
		"block/sda/ro":               file("0"),
		"block/sda/device/vendor":    file("ATA"),
		"block/sda/device/model":     file("Samsung SSD 860"),
		"block/sdb/size":             file("30031872"),
		"block/sdb/removable":        file("1"),
		"block/sdb/ro":               file("0"),
		"block/sdb/device/vendor":    file("SanDisk"),
		"block/sdb/device/model":     file("Ultra"),
		"block/mmcblk0/size":         file("62333952"),
		"block/mmcblk0/removable":    file("1"),
		"block/mmcblk0/ro":           file("1"),
		"block/mmcblk0/device/name":  file("SD64G"),
		"block/loop0/size":           file("1024"),
		"block/loop0/removable":      file("0"),
		"block/zram0/size":           file("1024"),
		"block/zram0/removable":      file("0"),
		"block/nvme0n1/size":         file("1000215216"),
		"block/nvme0n1/removable":    file("0"),
		"block/nvme0n1/device/model": file("WD Black"),
	}
}

func testProcFS() fstest.MapFS {
	return fstest.MapFS{
		"mounts": file(`/dev/nvme0n1p2 / ext4 rw,relatime 0 0
/dev/sdb1 /media/user/USB\040DISK vfat rw 0 0
/dev/sdb2 /media/user/data ext4 rw 0 0
/dev/mmcblk0p1 /boot/firmware vfat rw 0 0
proc /proc proc rw 0 0
tmpfs /run tmpfs rw 0 0`),
	}
}

func TestScanReportsRemovableDrives(t *testing.T) {
	a := NewWithFS(testSysFS(), testProcFS())
	snap, err := a.Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if snap.Adapter != ID {
		t.Fatalf("adapter=%q", snap.Adapter)
	}
	serials := snap.Serials()
	if len(serials) != 2 || serials[0] != "mmcblk0" || serials[1] != "sdb" {
		t.Fatalf("unexpected devices: %v", serials)
	}

	sdb := snap.Devices[1]
	if sdb.Path != "/dev/sdb" {
		t.Fatalf("path=%q", sdb.Path)
	}
	if sdb.Size != 30031872*512 {
		t.Fatalf("size=%d", sdb.Size)
	}
	if sdb.Description != "SanDisk Ultra" {
		t.Fatalf("description=%q", sdb.Description)
	}
	if len(sdb.Mountpoints) != 2 || sdb.Mountpoints[0] != "/media/user/USB DISK" || sdb.Mountpoints[1] != "/media/user/data" {
		t.Fatalf("mountpoints=%v", sdb.Mountpoints)
	}

	mmc := snap.Devices[0]
	if !mmc.ReadOnly || mmc.Description != "SD64G" {
		t.Fatalf("unexpected mmc device: %+v", mmc)
	}
	if len(mmc.Mountpoints) != 1 || mmc.Mountpoints[0] != "/boot/firmware" {
		t.Fatalf("mmc mountpoints=%v", mmc.Mountpoints)
	}
}

func TestScanIncludeSystem(t *testing.T) {
	a := NewWithFS(testSysFS(), testProcFS())
	snap, err := a.Scan(context.Background(), adapter.Options{"include_system": true})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	serials := snap.Serials()
	want := []string{"mmcblk0", "nvme0n1", "sda", "sdb"}
	if len(serials) != len(want) {
		t.Fatalf("devices=%v", serials)
	}
	for i := range want {
		if serials[i] != want[i] {
			t.Fatalf("devices=%v, want %v", serials, want)
		}
	}
	for _, d := range snap.Devices {
		if d.Serial == "nvme0n1" && (len(d.Mountpoints) != 1 || d.Mountpoints[0] != "/") {
			t.Fatalf("nvme mountpoints=%v", d.Mountpoints)
		}
	}
}

func TestScanWithoutSysfsFails(t *testing.T) {
	a := NewWithFS(fstest.MapFS{}, nil)
	if _, err := a.Scan(context.Background(), nil); err == nil {
		t.Fatal("expected error without /sys/block")
	}
}

func TestScanRejectsMalformedSize(t *testing.T) {
	sys := fstest.MapFS{
		"block/sdc/size":      file("lots"),
		"block/sdc/removable": file("1"),
	}
	if _, err := NewWithFS(sys, nil).Scan(context.Background(), nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestIsPartitionOf(t *testing.T) {
	cases := []struct {
		part, disk string
		want       bool
	}{
		{"sdb1", "sdb", true},
		{"sdb", "sdb", false},
		{"sdba", "sdb", false},
		{"nvme0n1p2", "nvme0n1", true},
		{"mmcblk0p1", "mmcblk0", true},
		{"sda1", "sdb", false},
	}
	for _, c := range cases {
		if got := isPartitionOf(c.part, c.disk); got != c.want {
			t.Errorf("isPartitionOf(%q, %q)=%v", c.part, c.disk, got)
		}
	}
}
