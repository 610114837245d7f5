// Package config loads the scan configuration file.
//
// Config file locations (priority order):
//  1. the path passed to Load
//  2. $DEVICESCAN_CONFIG
//  3. ./devicescan.yaml
//  4. ~/.config/devicescan/config.yaml
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/httprunner/DeviceScan/internal/env"
	"github.com/httprunner/DeviceScan/pkg/adapter"
	"github.com/httprunner/DeviceScan/pkg/scanner"
)

// Config is the on-disk scan configuration.
//
//	adapters:
//	  standard: {include_system: false}
//	  adb: {interval: 5s, fetch_meta: true}
//	record:
//	  sqlite: true
//	  db_path: /var/lib/devicescan/devices.sqlite
//	  feishu_url: https://example.feishu.cn/base/app?table=tbl
type Config struct {
	// Adapters maps adapter id to its options. A key with no value enables
	// the adapter with defaults.
	Adapters map[string]adapter.Options `yaml:"adapters"`
	Record   RecordConfig               `yaml:"record"`
}

// RecordConfig selects where device updates are persisted.
type RecordConfig struct {
	SQLite    bool   `yaml:"sqlite"`
	DBPath    string `yaml:"db_path"`
	FeishuURL string `yaml:"feishu_url"`
}

// Load reads the config file and applies environment overrides. A missing
// file is not an error unless path was given explicitly.
func Load(path string) (*Config, string, error) {
	explicit := path != ""
	if path == "" {
		path = FindConfigPath()
	}
	cfg := &Config{}
	if path != "" {
		loaded, err := LoadFromPath(path)
		if err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, path, err
			}
		} else {
			cfg = loaded
		}
	}
	cfg.applyEnv()
	return cfg, path, nil
}

// LoadFromPath parses the YAML file at path without environment overrides.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return &cfg, nil
}

// FindConfigPath returns the first existing config file, or "".
func FindConfigPath() string {
	if p := env.String(env.Config, ""); p != "" {
		return p
	}
	candidates := []string{"devicescan.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "devicescan", "config.yaml"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func (c *Config) applyEnv() {
	for _, id := range env.List(env.Adapters) {
		c.Enable(id, nil)
	}
	if p := env.String(env.DBPath, ""); p != "" {
		c.Record.DBPath = p
		c.Record.SQLite = true
	}
	if c.Record.FeishuURL == "" {
		c.Record.FeishuURL = env.String(env.BitableURL, "")
	}
}

// Enable adds id with opts unless it is already configured.
func (c *Config) Enable(id string, opts adapter.Options) {
	if c.Adapters == nil {
		c.Adapters = make(map[string]adapter.Options)
	}
	if _, exists := c.Adapters[id]; !exists {
		c.Adapters[id] = opts
	}
}

// ScannerConfig returns the scanner configuration for the enabled adapters.
func (c *Config) ScannerConfig() scanner.Config {
	opts := make(map[string]adapter.Options, len(c.Adapters))
	for id, o := range c.Adapters {
		opts[id] = o
	}
	return scanner.Config{Options: opts}
}
