// Package storage persists device updates to a local SQLite database.
package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/httprunner/DeviceScan/internal/env"
	"github.com/httprunner/DeviceScan/pkg/devrecorder"
)

const (
	defaultDBDirName  = ".devicescan"
	defaultDBFileName = "devices.sqlite"
)

const upsertDevice = `INSERT INTO devices
	(adapter, serial, status, description, path, size, os_version, last_error, last_seen_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(adapter, serial) DO UPDATE SET
	status = excluded.status,
	description = excluded.description,
	path = excluded.path,
	size = excluded.size,
	os_version = excluded.os_version,
	last_error = excluded.last_error,
	last_seen_at = excluded.last_seen_at,
	updated_at = excluded.updated_at`

// SQLiteRecorder implements devrecorder.Recorder on a devices table keyed by
// (adapter, serial).
type SQLiteRecorder struct {
	db    *sql.DB
	path  string
	clock func() time.Time
}

var _ devrecorder.Recorder = (*SQLiteRecorder)(nil)

// Row is one persisted device.
type Row struct {
	Adapter     string
	Serial      string
	Status      string
	Description string
	Path        string
	Size        uint64
	OSVersion   string
	LastError   string
	LastSeenAt  time.Time
	UpdatedAt   time.Time
}

// ResolveDatabasePath returns DEVICESCAN_DB_PATH or ~/.devicescan/devices.sqlite,
// creating the parent directory if necessary.
func ResolveDatabasePath() (string, error) {
	if custom := env.String(env.DBPath, ""); custom != "" {
		if err := ensureDirExists(filepath.Dir(custom)); err != nil {
			return "", err
		}
		return custom, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "storage: locate user home failed")
	}
	dir := filepath.Join(home, defaultDBDirName)
	if err := ensureDirExists(dir); err != nil {
		return "", err
	}
	return filepath.Join(dir, defaultDBFileName), nil
}

func ensureDirExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.Wrapf(err, "storage: create dir %s failed", path)
	}
	return nil
}

// Open opens (and migrates) the database at path; an empty path resolves
// the default location.
func Open(path string) (*SQLiteRecorder, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		resolved, err := ResolveDatabasePath()
		if err != nil {
			return nil, err
		}
		path = resolved
	} else if err := ensureDirExists(filepath.Dir(path)); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "storage: open sqlite database failed")
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("device database ready")
	return &SQLiteRecorder{db: db, path: path, clock: time.Now}, nil
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "storage: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	const createTable = `CREATE TABLE IF NOT EXISTS devices (
	adapter TEXT NOT NULL,
	serial TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	size INTEGER NOT NULL DEFAULT 0,
	os_version TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	last_seen_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (adapter, serial)
);`
	if _, err := db.Exec(createTable); err != nil {
		return errors.Wrap(err, "storage: create devices table failed")
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(status);`); err != nil {
		return errors.Wrap(err, "storage: create status index failed")
	}
	return nil
}

// UpsertDevices implements devrecorder.Recorder in a single transaction.
func (r *SQLiteRecorder) UpsertDevices(ctx context.Context, devices []devrecorder.Update) error {
	if r == nil || r.db == nil || len(devices) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "storage: begin transaction failed")
	}
	stmt, err := tx.PrepareContext(ctx, upsertDevice)
	if err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "storage: prepare device upsert failed")
	}
	defer stmt.Close()

	now := r.clock().UnixMilli()
	for _, d := range devices {
		serial := strings.TrimSpace(d.Serial)
		if serial == "" {
			log.Warn().Str("adapter", d.Adapter).Msg("storage: skip device without serial")
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			d.Adapter, serial, d.Status, d.Description, d.Path, int64(d.Size),
			d.OSVersion, d.LastError, unixMilli(d.LastSeenAt), now,
		); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "storage: upsert device %s/%s failed", d.Adapter, serial)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "storage: commit device upsert failed")
	}
	return nil
}

// Devices returns every persisted device ordered by adapter and serial.
func (r *SQLiteRecorder) Devices(ctx context.Context) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT adapter, serial, status, description, path, size,
	os_version, last_error, last_seen_at, updated_at FROM devices ORDER BY adapter, serial`)
	if err != nil {
		return nil, errors.Wrap(err, "storage: query devices failed")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row             Row
			size            int64
			seenAt, updated int64
		)
		if err := rows.Scan(&row.Adapter, &row.Serial, &row.Status, &row.Description, &row.Path, &size,
			&row.OSVersion, &row.LastError, &seenAt, &updated); err != nil {
			return nil, errors.Wrap(err, "storage: scan device row failed")
		}
		row.Size = uint64(size)
		if seenAt > 0 {
			row.LastSeenAt = time.UnixMilli(seenAt)
		}
		row.UpdatedAt = time.UnixMilli(updated)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "storage: iterate device rows failed")
	}
	return out, nil
}

// Path returns the database file path.
func (r *SQLiteRecorder) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Close releases the database handle.
func (r *SQLiteRecorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
