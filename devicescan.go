// Package devicescan wires the built-in discovery adapters into a Scanner.
//
//	s, err := devicescan.NewScanner(scanner.Config{
//		Options: map[string]adapter.Options{"standard": {}, "adb": {"fetch_meta": true}},
//	})
//	s.On(func(ev scanner.Event) { ... })
//	s.Start()
//	defer s.Stop()
package devicescan

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/httprunner/DeviceScan/pkg/adapter"
	"github.com/httprunner/DeviceScan/pkg/scanner"
	"github.com/httprunner/DeviceScan/providers/adb"
	"github.com/httprunner/DeviceScan/providers/standard"
	"github.com/httprunner/DeviceScan/providers/usbboot"
)

// Built-in adapter ids.
const (
	AdapterStandard = standard.ID
	AdapterUSBBoot  = usbboot.ID
	AdapterADB      = adb.ID
)

var (
	defaultOnce     sync.Once
	defaultRegistry *adapter.Registry
)

// DefaultRegistry returns the process-wide registry of built-in adapters,
// creating it on first use. The adapter instances are shared by every
// Scanner built from it.
func DefaultRegistry() *adapter.Registry {
	defaultOnce.Do(func() {
		reg, err := adapter.NewRegistry(standard.New(), usbboot.New(), adb.New())
		if err != nil {
			// built-in ids are distinct constants
			log.Fatal().Err(err).Msg("build default adapter registry")
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}

// NewScanner builds a Scanner over the default registry.
func NewScanner(cfg scanner.Config) (*scanner.Scanner, error) {
	return scanner.New(DefaultRegistry(), cfg)
}
