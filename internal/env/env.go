package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment keys read by the CLI and the recorders.
const (
	Config       = "DEVICESCAN_CONFIG"
	Adapters     = "DEVICESCAN_ADAPTERS"
	DBPath       = "DEVICESCAN_DB_PATH"
	BitableURL   = "DEVICE_BITABLE_URL"
	AppID        = "FEISHU_APP_ID"
	AppSecret    = "FEISHU_APP_SECRET"
	FeishuBase   = "FEISHU_BASE_URL"
	LogLevel     = "DEVICESCAN_LOG_LEVEL"
	ScanDuration = "DEVICESCAN_DURATION"
)

// String returns the trimmed environment variable or fallback when unset.
func String(key, fallback string) string {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// Duration parses a time duration from environment or returns fallback.
func Duration(key string, fallback time.Duration) time.Duration {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Int returns an integer environment variable or fallback when invalid.
func Int(key string, fallback int) int {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// Bool parses a boolean environment variable.
func Bool(key string, fallback bool) bool {
	_ = Ensure()
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		switch strings.ToLower(val) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return fallback
}

// List splits a comma separated variable, dropping empty items.
func List(key string) []string {
	raw := String(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
