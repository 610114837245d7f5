// Package device defines the payload shape emitted by the built-in adapters.
package device

import "time"

// Device describes one device visible to the host as reported by a single
// adapter pass.
type Device struct {
	// Serial is the identifier unique within the reporting adapter
	// (block device name, USB bus path or adb serial).
	Serial      string   `json:"serial" yaml:"serial"`
	Adapter     string   `json:"adapter" yaml:"adapter"`
	Path        string   `json:"path,omitempty" yaml:"path,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	State       string   `json:"state,omitempty" yaml:"state,omitempty"`
	Size        uint64   `json:"size,omitempty" yaml:"size,omitempty"`
	Removable   bool     `json:"removable,omitempty" yaml:"removable,omitempty"`
	ReadOnly    bool     `json:"read_only,omitempty" yaml:"read_only,omitempty"`
	Mountpoints []string `json:"mountpoints,omitempty" yaml:"mountpoints,omitempty"`
	VendorID    string   `json:"vendor_id,omitempty" yaml:"vendor_id,omitempty"`
	ProductID   string   `json:"product_id,omitempty" yaml:"product_id,omitempty"`
	OSVersion   string   `json:"os_version,omitempty" yaml:"os_version,omitempty"`
}

// Snapshot is the full set of devices an adapter saw in one scan pass.
type Snapshot struct {
	Adapter   string    `json:"adapter"`
	Devices   []Device  `json:"devices"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Serials returns the device serials in snapshot order.
func (s Snapshot) Serials() []string {
	out := make([]string, 0, len(s.Devices))
	for _, d := range s.Devices {
		out = append(out, d.Serial)
	}
	return out
}
