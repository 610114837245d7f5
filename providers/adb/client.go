package adb

import (
	"context"
	"strings"

	"github.com/httprunner/httprunner/v5/pkg/gadb"
	"github.com/pkg/errors"
)

// Device is one entry reported by the adb server.
type Device interface {
	Serial() string
	// State returns the adb state name, "unknown" when it cannot be read.
	State() string
	Shell(cmd string, args ...string) (string, error)
}

// Lister enumerates the devices known to an adb server.
type Lister interface {
	Devices(ctx context.Context) ([]Device, error)
}

// Dial connects to the local adb server.
func Dial() (Lister, error) {
	client, err := gadb.NewClient()
	if err != nil {
		return nil, errors.Wrap(err, "init adb client")
	}
	return serverLister{client: client}, nil
}

type serverLister struct {
	client gadb.Client
}

func (l serverLister) Devices(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	devs, err := l.client.DeviceList()
	if err != nil {
		return nil, errors.Wrap(err, "list adb devices")
	}
	out := make([]Device, 0, len(devs))
	for _, dev := range devs {
		if dev == nil {
			continue
		}
		out = append(out, gadbDevice{dev: dev})
	}
	return out, nil
}

type gadbDevice struct {
	dev *gadb.Device
}

func (d gadbDevice) Serial() string { return strings.TrimSpace(d.dev.Serial()) }

func (d gadbDevice) State() string {
	state, err := d.dev.State()
	if err != nil {
		return string(gadb.StateUnknown)
	}
	return string(state)
}

func (d gadbDevice) Shell(cmd string, args ...string) (string, error) {
	return d.dev.RunShellCommand(cmd, args...)
}
