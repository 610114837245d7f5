// Package usbboot implements the "usbboot" adapter: devices sitting in their
// USB boot ROM, waiting for a bootloader to be pushed over USB.
package usbboot

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/DeviceScan/pkg/adapter"
	"github.com/httprunner/DeviceScan/pkg/device"
)

// ID is the registry identifier of this adapter.
const ID = "usbboot"

const defaultInterval = time.Second

// KnownIDs maps vendor:product pairs of supported boot ROMs to a description.
var KnownIDs = map[string]string{
	"0a5c:2763": "Broadcom BCM2837 boot ROM",
	"0a5c:2764": "Broadcom BCM2836 boot ROM",
	"0a5c:2711": "Broadcom BCM2711 boot ROM",
}

// Adapter polls /sys/bus/usb/devices for boot ROMs.
//
// Options:
//   - interval: poll interval (default 1s)
//   - ids: additional vid:pid pairs to match
type Adapter struct {
	*adapter.Poller
	sys fs.FS
}

// New returns an adapter reading the host's /sys.
func New() *Adapter {
	return NewWithFS(os.DirFS("/sys"))
}

// NewWithFS returns an adapter reading sysfs from the given root.
func NewWithFS(sys fs.FS) *Adapter {
	a := &Adapter{sys: sys}
	a.Poller = adapter.NewPoller(ID, defaultInterval, func(ctx context.Context, opts adapter.Options) (any, error) {
		return a.Scan(ctx, opts)
	})
	return a
}

// Scan performs a single enumeration pass.
func (a *Adapter) Scan(ctx context.Context, opts adapter.Options) (device.Snapshot, error) {
	snap := device.Snapshot{Adapter: ID, ScannedAt: time.Now()}
	entries, err := fs.ReadDir(a.sys, "bus/usb/devices")
	if err != nil {
		return snap, errors.Wrap(err, "usbboot: read usb devices")
	}
	match := matchers(opts.Strings("ids"))

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return snap, err
		}
		port := entry.Name()
		base := path.Join("bus/usb/devices", port)
		vendor := a.readAttr(base, "idVendor")
		product := a.readAttr(base, "idProduct")
		if vendor == "" || product == "" {
			// interfaces and root hubs without ids
			continue
		}
		key := strings.ToLower(vendor + ":" + product)
		desc, ok := match[key]
		if !ok {
			continue
		}
		dev := device.Device{
			Serial:      port,
			Adapter:     ID,
			Description: desc,
			State:       "boot",
			VendorID:    vendor,
			ProductID:   product,
			Removable:   true,
		}
		bus, errBus := strconv.Atoi(a.readAttr(base, "busnum"))
		num, errNum := strconv.Atoi(a.readAttr(base, "devnum"))
		if errBus == nil && errNum == nil {
			dev.Path = fmt.Sprintf("/dev/bus/usb/%03d/%03d", bus, num)
		}
		snap.Devices = append(snap.Devices, dev)
	}
	sort.Slice(snap.Devices, func(i, j int) bool { return snap.Devices[i].Serial < snap.Devices[j].Serial })
	return snap, nil
}

func (a *Adapter) readAttr(base, attr string) string {
	raw, err := fs.ReadFile(a.sys, path.Join(base, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}

func matchers(extra []string) map[string]string {
	out := make(map[string]string, len(KnownIDs)+len(extra))
	for k, v := range KnownIDs {
		out[k] = v
	}
	for _, id := range extra {
		id = strings.ToLower(strings.TrimSpace(id))
		if _, _, ok := strings.Cut(id, ":"); !ok {
			log.Warn().Str("id", id).Msg("usbboot: ignoring malformed vid:pid")
			continue
		}
		if _, exists := out[id]; !exists {
			out[id] = "USB boot device " + id
		}
	}
	return out
}
