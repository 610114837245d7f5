// Package adb implements the "adb" adapter: Android devices known to the
// local adb server.
package adb

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/httprunner/httprunner/v5/pkg/gadb"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/DeviceScan/pkg/adapter"
	"github.com/httprunner/DeviceScan/pkg/device"
)

// ID is the registry identifier of this adapter.
const ID = "adb"

const defaultInterval = 3 * time.Second

// Adapter polls the adb server.
//
// Options:
//   - interval: poll interval (default 3s)
//   - include_offline: also report devices that are not online
//   - fetch_meta: query the Android version once per online serial
type Adapter struct {
	*adapter.Poller

	mu     sync.Mutex
	lister Lister
	dial   func() (Lister, error)
	osVer  map[string]string
}

// New returns an adapter that connects to the adb server on first scan.
func New() *Adapter {
	return newAdapter(nil, Dial)
}

// NewWithLister returns an adapter backed by l.
func NewWithLister(l Lister) *Adapter {
	return newAdapter(l, nil)
}

func newAdapter(l Lister, dial func() (Lister, error)) *Adapter {
	a := &Adapter{lister: l, dial: dial, osVer: make(map[string]string)}
	a.Poller = adapter.NewPoller(ID, defaultInterval, func(ctx context.Context, opts adapter.Options) (any, error) {
		return a.Scan(ctx, opts)
	})
	return a
}

func (a *Adapter) ensureLister() (Lister, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lister != nil {
		return a.lister, nil
	}
	l, err := a.dial()
	if err != nil {
		return nil, err
	}
	a.lister = l
	return l, nil
}

// Scan performs a single enumeration pass.
func (a *Adapter) Scan(ctx context.Context, opts adapter.Options) (device.Snapshot, error) {
	snap := device.Snapshot{Adapter: ID, ScannedAt: time.Now()}
	lister, err := a.ensureLister()
	if err != nil {
		return snap, err
	}
	devs, err := lister.Devices(ctx)
	if err != nil {
		return snap, err
	}
	includeOffline := opts.Bool("include_offline", false)
	fetchMeta := opts.Bool("fetch_meta", false)

	sort.Slice(devs, func(i, j int) bool { return devs[i].Serial() < devs[j].Serial() })
	online := make(map[string]bool, len(devs))
	for _, d := range devs {
		serial := d.Serial()
		if serial == "" {
			continue
		}
		state := d.State()
		isOnline := state == string(gadb.StateOnline)
		online[serial] = isOnline
		if !isOnline && !includeOffline {
			continue
		}
		dev := device.Device{
			Serial:  serial,
			Adapter: ID,
			State:   state,
		}
		if isOnline && fetchMeta {
			dev.OSVersion = a.osVersion(d)
		}
		snap.Devices = append(snap.Devices, dev)
	}
	a.forgetMissing(online)
	return snap, nil
}

// osVersion returns the cached Android version of d, querying the device on
// first use.
func (a *Adapter) osVersion(d Device) string {
	serial := d.Serial()
	a.mu.Lock()
	v, ok := a.osVer[serial]
	a.mu.Unlock()
	if ok {
		return v
	}
	out, err := d.Shell("getprop", "ro.build.version.release")
	if err != nil {
		log.Warn().Err(err).Str("serial", serial).Msg("fetch android version failed")
		return ""
	}
	v = strings.TrimSpace(out)
	a.mu.Lock()
	a.osVer[serial] = v
	a.mu.Unlock()
	return v
}

// forgetMissing drops cached versions of devices that are gone or offline so
// a reconnect, possibly after an OS update, queries again.
func (a *Adapter) forgetMissing(online map[string]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for serial := range a.osVer {
		if !online[serial] {
			delete(a.osVer, serial)
		}
	}
}
