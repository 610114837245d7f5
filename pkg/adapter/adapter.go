// Package adapter defines the contract every discovery mechanism implements,
// the immutable registry of built-in adapters, and Poller, the shared
// reference-counted polling implementation used by the built-in variants.
package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/httprunner/DeviceScan/pkg/events"
)

// Adapter is a discovery mechanism that can be started and stopped and that
// reports what it finds through the Handle returned by StartScan.
//
// Adapters obtained from a Registry are shared by every scanner in the
// process; StartScan and StopScan must tolerate calls from several
// independent owners.
type Adapter interface {
	// ID returns the stable identifier of the adapter variant.
	ID() string
	// StartScan begins scanning with adapter specific options. It returns
	// immediately; discovery results are delivered through the handle.
	StartScan(opts Options) Handle
	// StopScan stops scanning. Calling it while not scanning is a no-op.
	StopScan()
}

// Handle is the event source of a scanning adapter. Results payloads are
// adapter defined; errors are operational failures that never stop the
// adapter from being used again. OnResults and OnError may call fn before
// returning, for example to replay a cached payload.
type Handle interface {
	OnResults(fn func(any)) events.ListenerID
	OnError(fn func(error)) events.ListenerID
	// RemoveListener detaches a listener previously returned by OnResults or
	// OnError and reports whether it was attached.
	RemoveListener(id events.ListenerID) bool
}

// Options carries adapter specific settings. Only the adapter receiving the
// options interprets them; nil Options is valid and means defaults.
type Options map[string]any

// String returns the option under key as a trimmed string.
func (o Options) String(key, fallback string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
}

// Bool returns the option under key interpreted as a boolean.
func (o Options) Bool(key string, fallback bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}

// Duration returns the option under key as a duration. Strings are parsed
// with time.ParseDuration and bare numbers are taken as seconds.
func (o Options) Duration(key string, fallback time.Duration) time.Duration {
	var d time.Duration
	switch v := o[key].(type) {
	case time.Duration:
		d = v
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fallback
		}
		d = parsed
	case int:
		d = time.Duration(v) * time.Second
	case int64:
		d = time.Duration(v) * time.Second
	case float64:
		d = time.Duration(v * float64(time.Second))
	default:
		return fallback
	}
	if d <= 0 {
		return fallback
	}
	return d
}

// Strings returns the option under key as a string list. A single string is
// split on commas.
func (o Options) Strings(key string) []string {
	var raw []string
	switch v := o[key].(type) {
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
