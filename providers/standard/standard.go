// Package standard implements the "standard" adapter: removable block devices
// enumerated from Linux sysfs.
package standard

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/httprunner/DeviceScan/pkg/adapter"
	"github.com/httprunner/DeviceScan/pkg/device"
)

// ID is the registry identifier of this adapter.
const ID = "standard"

const (
	defaultInterval = 2 * time.Second
	sectorSize      = 512
)

// Virtual block devices never backed by hardware.
var skipPrefixes = []string{"loop", "ram", "zram", "dm-", "md", "nbd"}

// Adapter polls /sys/block for drives.
//
// Options:
//   - interval: poll interval (default 2s)
//   - include_system: also report non-removable drives
type Adapter struct {
	*adapter.Poller
	sys  fs.FS
	proc fs.FS
}

// New returns an adapter reading the host's /sys and /proc.
func New() *Adapter {
	return NewWithFS(os.DirFS("/sys"), os.DirFS("/proc"))
}

// NewWithFS returns an adapter reading sysfs and procfs from the given roots.
func NewWithFS(sys, proc fs.FS) *Adapter {
	a := &Adapter{sys: sys, proc: proc}
	a.Poller = adapter.NewPoller(ID, defaultInterval, func(ctx context.Context, opts adapter.Options) (any, error) {
		return a.Scan(ctx, opts)
	})
	return a
}

// Scan performs a single enumeration pass.
func (a *Adapter) Scan(ctx context.Context, opts adapter.Options) (device.Snapshot, error) {
	snap := device.Snapshot{Adapter: ID, ScannedAt: time.Now()}
	entries, err := fs.ReadDir(a.sys, "block")
	if err != nil {
		return snap, errors.Wrap(err, "standard: read block devices")
	}
	includeSystem := opts.Bool("include_system", false)
	mounts := a.mountpoints()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return snap, err
		}
		name := entry.Name()
		if skipDevice(name) {
			continue
		}
		dev, err := a.readDevice(name)
		if err != nil {
			return snap, err
		}
		if !dev.Removable && !includeSystem {
			continue
		}
		dev.Mountpoints = mounts.forDevice(name)
		snap.Devices = append(snap.Devices, dev)
	}
	sort.Slice(snap.Devices, func(i, j int) bool { return snap.Devices[i].Serial < snap.Devices[j].Serial })
	return snap, nil
}

func skipDevice(name string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func (a *Adapter) readDevice(name string) (device.Device, error) {
	base := path.Join("block", name)
	dev := device.Device{
		Serial:  name,
		Adapter: ID,
		Path:    "/dev/" + name,
		State:   "online",
	}
	sectors, err := a.readAttr(base, "size")
	if err != nil {
		return dev, errors.Wrapf(err, "standard: read size of %s", name)
	}
	if sectors != "" {
		n, err := strconv.ParseUint(sectors, 10, 64)
		if err != nil {
			return dev, errors.Wrapf(err, "standard: parse size of %s", name)
		}
		dev.Size = n * sectorSize
	}
	removable, _ := a.readAttr(base, "removable")
	dev.Removable = removable == "1"
	ro, _ := a.readAttr(base, "ro")
	dev.ReadOnly = ro == "1"

	vendor, _ := a.readAttr(base, "device/vendor")
	model, _ := a.readAttr(base, "device/model")
	if model == "" {
		// mmc block devices expose the card name instead of a model
		model, _ = a.readAttr(base, "device/name")
	}
	dev.Description = strings.TrimSpace(strings.Join([]string{vendor, model}, " "))
	return dev, nil
}

// readAttr returns the trimmed content of a sysfs attribute, or "" when the
// attribute does not exist.
func (a *Adapter) readAttr(base, attr string) (string, error) {
	raw, err := fs.ReadFile(a.sys, path.Join(base, attr))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

type mountTable map[string][]string

// mountpoints parses /proc/mounts into source -> mount targets. A missing
// procfs yields an empty table.
func (a *Adapter) mountpoints() mountTable {
	table := make(mountTable)
	if a.proc == nil {
		return table
	}
	raw, err := fs.ReadFile(a.proc, "mounts")
	if err != nil {
		return table
	}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "/dev/") {
			continue
		}
		source := strings.TrimPrefix(fields[0], "/dev/")
		table[source] = append(table[source], unescapeMount(fields[1]))
	}
	return table
}

// forDevice returns the mount targets of the disk and all its partitions.
func (t mountTable) forDevice(name string) []string {
	var out []string
	for source, targets := range t {
		if source == name || isPartitionOf(source, name) {
			out = append(out, targets...)
		}
	}
	sort.Strings(out)
	return out
}

// isPartitionOf reports whether part names a partition of disk, covering both
// sdb1 and nvme0n1p1/mmcblk0p1 naming.
func isPartitionOf(part, disk string) bool {
	if !strings.HasPrefix(part, disk) {
		return false
	}
	suffix := strings.TrimPrefix(part, disk)
	suffix = strings.TrimPrefix(suffix, "p")
	if suffix == "" {
		return false
	}
	_, err := strconv.Atoi(suffix)
	return err == nil
}

// unescapeMount decodes the octal escapes /proc/mounts uses for whitespace.
func unescapeMount(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+3 < len(s) {
			if n, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
