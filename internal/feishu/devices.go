package feishu

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/httprunner/DeviceScan/internal/env"
	"github.com/httprunner/DeviceScan/pkg/devrecorder"
)

// DeviceFields lists column names of the device inventory table. Empty
// names are not written.
type DeviceFields struct {
	Serial      string
	Adapter     string
	Status      string
	Description string
	Path        string
	OSVersion   string
	LastSeenAt  string
	LastError   string
}

// DefaultDeviceFields matches the column names of the shared device table.
var DefaultDeviceFields = DeviceFields{
	Serial:      "DeviceSerial",
	Adapter:     "Adapter",
	Status:      "Status",
	Description: "Description",
	Path:        "Path",
	OSVersion:   "OSVersion",
	LastSeenAt:  "LastSeenAt",
	LastError:   "LastError",
}

// DeviceFieldsFromEnv applies DEVICE_FIELD_* overrides to the defaults. An
// override set to "" disables the column.
func DeviceFieldsFromEnv() DeviceFields {
	fields := DefaultDeviceFields
	overrideFieldFromEnv("DEVICE_FIELD_SERIAL", &fields.Serial)
	overrideFieldFromEnv("DEVICE_FIELD_ADAPTER", &fields.Adapter)
	overrideFieldFromEnv("DEVICE_FIELD_STATUS", &fields.Status)
	overrideFieldFromEnv("DEVICE_FIELD_DESCRIPTION", &fields.Description)
	overrideFieldFromEnv("DEVICE_FIELD_PATH", &fields.Path)
	overrideFieldFromEnv("DEVICE_FIELD_OSVERSION", &fields.OSVersion)
	overrideFieldFromEnv("DEVICE_FIELD_LAST_SEEN_AT", &fields.LastSeenAt)
	overrideFieldFromEnv("DEVICE_FIELD_LAST_ERROR", &fields.LastError)
	return fields
}

func overrideFieldFromEnv(key string, target *string) {
	if val, ok := os.LookupEnv(key); ok {
		*target = strings.TrimSpace(val)
	}
}

// DeviceRecorder upserts device rows keyed by serial.
type DeviceRecorder struct {
	client *Client
	ref    BitableRef
	fields DeviceFields

	mu        sync.Mutex
	resolved  bool
	recordIDs map[string]string // serial -> record id
}

var _ devrecorder.Recorder = (*DeviceRecorder)(nil)

// NewDeviceRecorder returns a recorder writing to the bitable at rawURL.
func NewDeviceRecorder(client *Client, rawURL string, fields DeviceFields) (*DeviceRecorder, error) {
	if client == nil {
		return nil, errors.New("feishu: client is nil")
	}
	if strings.TrimSpace(fields.Serial) == "" {
		return nil, errors.New("feishu: device serial field cannot be empty")
	}
	ref, err := ParseBitableURL(rawURL)
	if err != nil {
		return nil, err
	}
	return &DeviceRecorder{
		client:    client,
		ref:       ref,
		fields:    fields,
		recordIDs: make(map[string]string),
	}, nil
}

// NewDeviceRecorderFromEnv builds a recorder from rawURL, falling back to
// DEVICE_BITABLE_URL. Without a URL it returns devrecorder.Noop.
func NewDeviceRecorderFromEnv(rawURL string) (devrecorder.Recorder, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		rawURL = env.String(env.BitableURL, "")
	}
	if rawURL == "" {
		return devrecorder.Noop{}, nil
	}
	client, err := NewClientFromEnv()
	if err != nil {
		return nil, err
	}
	return NewDeviceRecorder(client, rawURL, DeviceFieldsFromEnv())
}

// UpsertDevices implements devrecorder.Recorder. Rows are written one by
// one; the first failure aborts the batch.
func (r *DeviceRecorder) UpsertDevices(ctx context.Context, devices []devrecorder.Update) error {
	if r == nil || len(devices) == 0 {
		return nil
	}
	ref, err := r.tableRef(ctx)
	if err != nil {
		return err
	}
	for _, d := range devices {
		serial := strings.TrimSpace(d.Serial)
		if serial == "" {
			log.Warn().Str("status", d.Status).Msg("feishu recorder: skip device without serial")
			continue
		}
		payload := buildDevicePayload(d, r.fields)
		recordID, err := r.recordID(ctx, ref, serial)
		if err != nil {
			return err
		}
		if recordID != "" {
			if err := r.client.updateRecord(ctx, ref, recordID, payload); err != nil {
				return errors.Wrapf(err, "update device %s", serial)
			}
			continue
		}
		created, err := r.client.createRecord(ctx, ref, payload)
		if err != nil {
			return errors.Wrapf(err, "create device %s", serial)
		}
		r.mu.Lock()
		r.recordIDs[serial] = created
		r.mu.Unlock()
	}
	return nil
}

func (r *DeviceRecorder) tableRef(ctx context.Context) (BitableRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.resolved {
		if err := r.client.resolveAppToken(ctx, &r.ref); err != nil {
			return BitableRef{}, err
		}
		r.resolved = true
	}
	return r.ref, nil
}

func (r *DeviceRecorder) recordID(ctx context.Context, ref BitableRef, serial string) (string, error) {
	r.mu.Lock()
	id, ok := r.recordIDs[serial]
	r.mu.Unlock()
	if ok && id != "" {
		return id, nil
	}
	id, err := r.client.findRecordID(ctx, ref, r.fields.Serial, serial)
	if err != nil {
		return "", err
	}
	if id != "" {
		r.mu.Lock()
		r.recordIDs[serial] = id
		r.mu.Unlock()
	}
	return id, nil
}

func buildDevicePayload(d devrecorder.Update, fields DeviceFields) map[string]any {
	row := make(map[string]any)
	addOptionalField(row, fields.Serial, strings.TrimSpace(d.Serial))
	addOptionalField(row, fields.Adapter, d.Adapter)
	addOptionalField(row, fields.Status, d.Status)
	addOptionalField(row, fields.Description, d.Description)
	addOptionalField(row, fields.Path, d.Path)
	addOptionalField(row, fields.OSVersion, d.OSVersion)
	// LastError is always written so a recovered device clears it.
	if name := strings.TrimSpace(fields.LastError); name != "" {
		row[name] = d.LastError
	}
	if name := strings.TrimSpace(fields.LastSeenAt); name != "" && !d.LastSeenAt.IsZero() {
		row[name] = d.LastSeenAt.UTC().UnixMilli()
	}
	return row
}

func addOptionalField(row map[string]any, name, value string) {
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" || value == "" {
		return
	}
	row[name] = value
}
