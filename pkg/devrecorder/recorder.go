// Package devrecorder turns scanner results into device state updates and
// pushes them to external stores.
package devrecorder

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status values recorded for devices that appeared or disappeared.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Update captures the latest known state of one device.
type Update struct {
	Serial      string
	Adapter     string
	Status      string
	Description string
	Path        string
	Size        uint64
	OSVersion   string
	LastError   string
	LastSeenAt  time.Time
}

// Recorder persists device updates to an external store (sqlite, Feishu
// bitable, ...).
type Recorder interface {
	UpsertDevices(ctx context.Context, devices []Update) error
}

// Noop is the default implementation when recording is disabled.
type Noop struct{}

func (Noop) UpsertDevices(ctx context.Context, devices []Update) error { return nil }

// Multi fans every update out to several recorders concurrently and returns
// the first error.
type Multi []Recorder

func (m Multi) UpsertDevices(ctx context.Context, devices []Update) error {
	if len(m) == 0 || len(devices) == 0 {
		return nil
	}
	group, ctx := errgroup.WithContext(ctx)
	for _, rec := range m {
		if rec == nil {
			continue
		}
		rec := rec
		group.Go(func() error {
			return rec.UpsertDevices(ctx, devices)
		})
	}
	return group.Wait()
}
