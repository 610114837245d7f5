package devrecorder

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/DeviceScan/pkg/adapter"
	"github.com/httprunner/DeviceScan/pkg/device"
	"github.com/httprunner/DeviceScan/pkg/scanner"
)

// Tracker keeps the last device set reported by every adapter and records
// connect, heartbeat and disconnect updates.
type Tracker struct {
	recorder     Recorder
	clock        func() time.Time
	offlineAfter time.Duration

	mu        sync.Mutex
	devices   map[string]map[string]*trackedDevice // adapter -> serial
	lastError map[string]string                    // adapter -> message
}

type trackedDevice struct {
	dev      device.Device
	lastSeen time.Time
}

// NewTracker returns a Tracker pushing to rec; a nil rec records nothing.
func NewTracker(rec Recorder) *Tracker {
	if rec == nil {
		rec = Noop{}
	}
	return &Tracker{
		recorder:  rec,
		clock:     time.Now,
		devices:   make(map[string]map[string]*trackedDevice),
		lastError: make(map[string]string),
	}
}

// SetOfflineAfter keeps a missing device tracked until it has been absent
// for d. Zero reports disconnects on the first snapshot without the device.
func (t *Tracker) SetOfflineAfter(d time.Duration) *Tracker {
	t.mu.Lock()
	t.offlineAfter = d
	t.mu.Unlock()
	return t
}

// Run consumes scanner events until ctx is done or events is closed.
func (t *Tracker) Run(ctx context.Context, events <-chan scanner.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := t.Handle(ctx, ev); err != nil {
				log.Error().Err(err).Msg("device recorder upsert failed")
			}
		}
	}
}

// Handle applies one scanner event. Events other than results and errors are
// ignored, as are results payloads that are not device snapshots.
func (t *Tracker) Handle(ctx context.Context, ev scanner.Event) error {
	switch ev := ev.(type) {
	case scanner.Results:
		snap, ok := asSnapshot(ev.Payload)
		if !ok {
			log.Debug().Interface("payload", ev.Payload).Msg("tracker: ignoring non-snapshot results")
			return nil
		}
		return t.apply(ctx, snap)
	case scanner.Error:
		return t.fail(ctx, ev.Err)
	}
	return nil
}

// Devices returns the tracked devices of adapterID sorted by serial.
func (t *Tracker) Devices(adapterID string) []device.Device {
	t.mu.Lock()
	defer t.mu.Unlock()
	set := t.devices[adapterID]
	out := make([]device.Device, 0, len(set))
	for _, tracked := range set {
		out = append(out, tracked.dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

func asSnapshot(payload any) (device.Snapshot, bool) {
	switch v := payload.(type) {
	case device.Snapshot:
		return v, true
	case *device.Snapshot:
		if v != nil {
			return *v, true
		}
	}
	return device.Snapshot{}, false
}

func (t *Tracker) apply(ctx context.Context, snap device.Snapshot) error {
	now := snap.ScannedAt
	if now.IsZero() {
		now = t.clock()
	}
	updates := make([]Update, 0, len(snap.Devices))
	seen := make(map[string]struct{}, len(snap.Devices))

	t.mu.Lock()
	delete(t.lastError, snap.Adapter)
	set := t.devices[snap.Adapter]
	if set == nil {
		set = make(map[string]*trackedDevice)
		t.devices[snap.Adapter] = set
	}
	for _, dev := range snap.Devices {
		serial := strings.TrimSpace(dev.Serial)
		if serial == "" {
			continue
		}
		seen[serial] = struct{}{}
		if _, exists := set[serial]; !exists {
			log.Info().Str("adapter", snap.Adapter).Str("serial", serial).Msg("device connected")
		}
		set[serial] = &trackedDevice{dev: dev, lastSeen: now}
		updates = append(updates, newUpdate(snap.Adapter, dev, statusOf(dev), now, ""))
	}
	for serial, tracked := range set {
		if _, ok := seen[serial]; ok {
			continue
		}
		if t.offlineAfter > 0 && now.Sub(tracked.lastSeen) < t.offlineAfter {
			continue
		}
		delete(set, serial)
		updates = append(updates, newUpdate(snap.Adapter, tracked.dev, StatusOffline, tracked.lastSeen, ""))
		log.Info().Str("adapter", snap.Adapter).Str("serial", serial).Msg("device disconnected")
	}
	t.mu.Unlock()

	return t.push(ctx, updates)
}

func (t *Tracker) fail(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var scanErr *adapter.ScanError
	if !errors.As(err, &scanErr) {
		log.Warn().Err(err).Msg("scanner error")
		return nil
	}
	msg := err.Error()
	log.Warn().Err(err).Str("adapter", scanErr.Adapter).Msg("adapter error")

	t.mu.Lock()
	if t.lastError[scanErr.Adapter] == msg {
		t.mu.Unlock()
		return nil
	}
	t.lastError[scanErr.Adapter] = msg
	set := t.devices[scanErr.Adapter]
	updates := make([]Update, 0, len(set))
	for _, tracked := range set {
		updates = append(updates, newUpdate(scanErr.Adapter, tracked.dev, statusOf(tracked.dev), tracked.lastSeen, msg))
	}
	t.mu.Unlock()

	sort.Slice(updates, func(i, j int) bool { return updates[i].Serial < updates[j].Serial })
	return t.push(ctx, updates)
}

func (t *Tracker) push(ctx context.Context, updates []Update) error {
	if len(updates) == 0 {
		return nil
	}
	return errors.Wrap(t.recorder.UpsertDevices(ctx, updates), "upsert devices")
}

func statusOf(dev device.Device) string {
	if s := strings.TrimSpace(dev.State); s != "" {
		return s
	}
	return StatusOnline
}

func newUpdate(adapterID string, dev device.Device, status string, seen time.Time, lastErr string) Update {
	return Update{
		Serial:      strings.TrimSpace(dev.Serial),
		Adapter:     adapterID,
		Status:      status,
		Description: dev.Description,
		Path:        dev.Path,
		Size:        dev.Size,
		OSVersion:   dev.OSVersion,
		LastError:   lastErr,
		LastSeenAt:  seen,
	}
}
