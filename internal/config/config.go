// Package config loads the gateway's configuration from built-in
// defaults, a JSON(5) file, and environment variables, in that
// increasing order of precedence. CLI flags are overlaid on top by the
// caller in cmd/.
package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// FlexibleStringSlice accepts both ["6667","6668"] and [6667, 6668] in
// JSON, since a hand-edited config file commonly gives a port list as
// bare numbers.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the line-protocol gateway:
// backend connection parameters, the listener surface, and the
// optional telemetry/cron/persistence add-ons from the domain stack.
type Config struct {
	// Backend connection (identity — a live session cannot be
	// re-pointed at a different backend without a restart).
	BackendHost          string `json:"backend_host"`
	BackendPort          string `json:"backend_port"`
	BackendBinaryPath    string `json:"backend_binary_path"`
	BackendURI           string `json:"backend_uri"`
	DatabaseDir          string `json:"database_dir"`
	SchemaDir            string `json:"schema_dir"`
	AttachmentDir        string `json:"attachment_dir"`
	UseTLS               bool   `json:"use_tls,omitempty"`
	Username             string `json:"username"`

	// Listener and runtime surface (updated in place by the watcher;
	// see Watch for what that does and does not affect).
	Ports          FlexibleStringSlice `json:"ports"`
	ShowTimestamps bool                `json:"show_timestamps,omitempty"`
	Debug          bool                `json:"debug,omitempty"`
	Verbose        bool                `json:"verbose,omitempty"`
	Daemon         bool                `json:"daemon,omitempty"`

	// Optional persistence for the naming-collision ledger.
	StateDBPath string `json:"state_db_path,omitempty"`

	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	Cron      CronConfig      `json:"cron,omitempty"`

	mu sync.RWMutex
}

// TelemetryConfig configures OpenTelemetry trace export for the
// backend RPC client and the Notification Dispatcher.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Protocol    string `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool   `json:"insecure,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

// CronConfig configures the optional idle health-probe schedule:
// a cron expression that, when set, triggers a lightweight
// EnumerateLocalAccounts call between notification cycles.
type CronConfig struct {
	Enabled    bool   `json:"enabled,omitempty"`
	Expression string `json:"expression,omitempty"` // e.g. "*/5 * * * *"
}

// ProbeTimeout bounds each health-probe call, capped well under the
// shortest sane cron interval (one minute) so a stalled probe cannot
// pile up across ticks.
func (cc CronConfig) ProbeTimeout() time.Duration {
	return 10 * time.Second
}

// ReplaceFrom copies the hot-reloadable fields from src into c: the
// listener ports and the show-timestamps/debug/verbose flags.
// Backend connection identity (host/port/dirs/URI/username) is never
// copied here — re-pointing a live session at a different backend
// requires a restart.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Ports = src.Ports
	c.ShowTimestamps = src.ShowTimestamps
	c.Debug = src.Debug
	c.Verbose = src.Verbose
}

// IdentityDiffers reports whether src's backend-identity fields
// differ from c's, for the watcher to log-and-ignore rather than
// apply live.
func (c *Config) IdentityDiffers(src *Config) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.BackendHost != src.BackendHost ||
		c.BackendPort != src.BackendPort ||
		c.DatabaseDir != src.DatabaseDir ||
		c.SchemaDir != src.SchemaDir ||
		c.AttachmentDir != src.AttachmentDir ||
		c.BackendURI != src.BackendURI ||
		c.Username != src.Username
}

// Snapshot returns a copy of c safe to read without holding c's lock.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		BackendHost:       c.BackendHost,
		BackendPort:       c.BackendPort,
		BackendBinaryPath: c.BackendBinaryPath,
		BackendURI:        c.BackendURI,
		DatabaseDir:       c.DatabaseDir,
		SchemaDir:         c.SchemaDir,
		AttachmentDir:     c.AttachmentDir,
		UseTLS:            c.UseTLS,
		Username:          c.Username,
		Ports:             c.Ports,
		ShowTimestamps:    c.ShowTimestamps,
		Debug:             c.Debug,
		Verbose:           c.Verbose,
		Daemon:            c.Daemon,
		StateDBPath:       c.StateDBPath,
		Telemetry:         c.Telemetry,
		Cron:              c.Cron,
	}
}
