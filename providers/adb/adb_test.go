package adb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/httprunner/httprunner/v5/pkg/gadb"

	"github.com/httprunner/DeviceScan/pkg/adapter"
)

type stubLister struct {
	mu     sync.Mutex
	states map[string]string
	err    error
	shells map[string]int
}

type stubDevice struct {
	lister *stubLister
	serial string
	state  string
}

func (d stubDevice) Serial() string { return d.serial }
func (d stubDevice) State() string  { return d.state }

func (d stubDevice) Shell(cmd string, args ...string) (string, error) {
	d.lister.mu.Lock()
	defer d.lister.mu.Unlock()
	if d.lister.shells == nil {
		d.lister.shells = make(map[string]int)
	}
	d.lister.shells[d.serial]++
	return "14\n", nil
}

func (l *stubLister) Devices(ctx context.Context) ([]Device, error) {
	if l.err != nil {
		return nil, l.err
	}
	out := make([]Device, 0, len(l.states))
	for serial, state := range l.states {
		out = append(out, stubDevice{lister: l, serial: serial, state: state})
	}
	return out, nil
}

func TestScanSkipsOfflineDevices(t *testing.T) {
	lister := &stubLister{states: map[string]string{
		"online-1":  string(gadb.StateOnline),
		"offline-1": string(gadb.StateOffline),
	}}
	snap, err := NewWithLister(lister).Scan(context.Background(), nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if serials := snap.Serials(); len(serials) != 1 || serials[0] != "online-1" {
		t.Fatalf("unexpected devices: %v", serials)
	}
	if snap.Devices[0].State != string(gadb.StateOnline) {
		t.Fatalf("state=%q", snap.Devices[0].State)
	}
}

func TestScanIncludeOffline(t *testing.T) {
	lister := &stubLister{states: map[string]string{
		"online-1":  string(gadb.StateOnline),
		"offline-1": string(gadb.StateOffline),
	}}
	snap, err := NewWithLister(lister).Scan(context.Background(), adapter.Options{"include_offline": true})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	serials := snap.Serials()
	if len(serials) != 2 || serials[0] != "offline-1" || serials[1] != "online-1" {
		t.Fatalf("unexpected devices: %v", serials)
	}
	if snap.Devices[0].State != "offline" {
		t.Fatalf("offline device status mismatch: %s", snap.Devices[0].State)
	}
}

func TestScanFetchesMetaOncePerSerial(t *testing.T) {
	lister := &stubLister{states: map[string]string{"online-1": string(gadb.StateOnline)}}
	a := NewWithLister(lister)
	opts := adapter.Options{"fetch_meta": true}
	for i := 0; i < 3; i++ {
		snap, err := a.Scan(context.Background(), opts)
		if err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		if snap.Devices[0].OSVersion != "14" {
			t.Fatalf("os version=%q", snap.Devices[0].OSVersion)
		}
	}
	if lister.shells["online-1"] != 1 {
		t.Fatalf("expected one getprop call, got %d", lister.shells["online-1"])
	}

	// A reconnect queries again.
	lister.states = map[string]string{}
	if _, err := a.Scan(context.Background(), opts); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	lister.states = map[string]string{"online-1": string(gadb.StateOnline)}
	if _, err := a.Scan(context.Background(), opts); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if lister.shells["online-1"] != 2 {
		t.Fatalf("expected getprop after reconnect, got %d", lister.shells["online-1"])
	}
}

func TestScanPropagatesListError(t *testing.T) {
	lister := &stubLister{err: errors.New("adb server not running")}
	if _, err := NewWithLister(lister).Scan(context.Background(), nil); err == nil {
		t.Fatal("expected list error")
	}
}

func TestLazyDialRetriesAfterFailure(t *testing.T) {
	attempts := 0
	a := newAdapter(nil, func() (Lister, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return &stubLister{states: map[string]string{}}, nil
	})
	if _, err := a.Scan(context.Background(), nil); err == nil {
		t.Fatal("expected dial error")
	}
	if _, err := a.Scan(context.Background(), nil); err != nil {
		t.Fatalf("second scan failed: %v", err)
	}
	if _, err := a.Scan(context.Background(), nil); err != nil {
		t.Fatalf("third scan failed: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts=%d", attempts)
	}
}
