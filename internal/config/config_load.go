package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with the built-in defaults: a single
// listener on 6667, a loopback backend on 8080, and telemetry/cron
// both off.
func Default() *Config {
	return &Config{
		BackendHost:       "localhost",
		BackendPort:       "8080",
		BackendBinaryPath: "flow-backend",
		DatabaseDir:       "~/.lineproto-gateway/db",
		SchemaDir:         "~/.lineproto-gateway/schema",
		AttachmentDir:     "~/.lineproto-gateway/attachments",
		Ports:             FlexibleStringSlice{"6667"},
	}
}

// Load reads config from a JSON(5) file, then overlays environment
// variables, matching the precedence built-in-defaults < file < env
// (CLI flags are overlaid afterward by the caller in cmd/, which wins
// over all of these).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays environment variables onto the config.
// Env vars take precedence over file values but not over explicit CLI
// flags, which the caller applies after Load returns.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("LINEPROTO_BACKEND_HOST", &c.BackendHost)
	envStr("LINEPROTO_BACKEND_PORT", &c.BackendPort)
	envStr("LINEPROTO_BACKEND_BINARY", &c.BackendBinaryPath)
	envStr("LINEPROTO_BACKEND_URI", &c.BackendURI)
	envStr("LINEPROTO_DATABASE_DIR", &c.DatabaseDir)
	envStr("LINEPROTO_SCHEMA_DIR", &c.SchemaDir)
	envStr("LINEPROTO_ATTACHMENT_DIR", &c.AttachmentDir)
	envStr("LINEPROTO_USERNAME", &c.Username)
	envStr("LINEPROTO_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)

	if v := os.Getenv("LINEPROTO_PORTS"); v != "" {
		c.Ports = strings.Split(v, ",")
	}
	if v := os.Getenv("LINEPROTO_SHOW_TIMESTAMPS"); v != "" {
		c.ShowTimestamps = v == "true" || v == "1"
	}
	if v := os.Getenv("LINEPROTO_DEBUG"); v != "" {
		c.Debug = v == "true" || v == "1"
	}
	if v := os.Getenv("LINEPROTO_VERBOSE"); v != "" {
		c.Verbose = v == "true" || v == "1"
	}
	if v := os.Getenv("LINEPROTO_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	snap := cfg.Snapshot()
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 prefix of the config, which the watcher
// logs after every reload.
func (c *Config) Hash() string {
	snap := c.Snapshot()
	data, _ := json.Marshal(&snap)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
