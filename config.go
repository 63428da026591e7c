package authkit

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds every engine setting. Zero values are replaced by defaults
// only through [DefaultConfig] and [LoadConfig]; a hand-built Config must be
// complete.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Permission PermissionConfig `yaml:"permission"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig configures the backend client.
type APIConfig struct {
	// BaseURL includes the API base path.
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend selects the durable credential store.
type StorageBackend string

const (
	// StorageMemory keeps the credential in process memory.
	StorageMemory StorageBackend = "memory"
	// StorageFile keeps the credential in a 0600 file.
	StorageFile StorageBackend = "file"
	// StorageRedis keeps the credential in Redis.
	StorageRedis StorageBackend = "redis"
)

// StorageConfig configures credential persistence.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend"`
	// Path is the credential file for [StorageFile].
	Path string `yaml:"path"`
	// RedisAddr is used when the builder has no Redis client.
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

/*
====================================
PERMISSION CONFIG
====================================
*/

// PermissionConfig configures capability caching.
type PermissionConfig struct {
	// CacheSystemPermissions keeps system descriptors once per role for the
	// lifetime of an identity.
	CacheSystemPermissions bool `yaml:"cache_system_permissions"`
}

// AuditConfig configures the async audit pipeline.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig configures in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// LogConfig configures the default zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a config pointing at a local backend with an
// in-memory credential store.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:   "http://localhost:8089/api/v1",
			Timeout:   15 * time.Second,
			UserAgent: "wareflow-authkit",
		},
		Storage: StorageConfig{
			Backend:     StorageMemory,
			RedisPrefix: "wareflow",
		},
		Permission: PermissionConfig{
			CacheSystemPermissions: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

/*
====================================
LOADING
====================================
*/

// Environment overrides applied by [LoadConfig].
const (
	EnvAPIBaseURL     = "WAREFLOW_API_BASE_URL"
	EnvStorageBackend = "WAREFLOW_STORAGE_BACKEND"
	EnvStoragePath    = "WAREFLOW_STORAGE_PATH"
	EnvRedisAddr      = "WAREFLOW_REDIS_ADDR"
	EnvLogLevel       = "WAREFLOW_LOG_LEVEL"
)

// LoadConfig reads YAML from path over the defaults, then overlays
// environment variables. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv(EnvAPIBaseURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(EnvStorageBackend); v != "" {
		cfg.Storage.Backend = StorageBackend(strings.ToLower(v))
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// API
	u, err := url.Parse(strings.TrimSpace(c.API.BaseURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}

	// Storage
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageFile:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("Storage Path required for file backend")
		}
	case StorageRedis:
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	// Log
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}

	return nil
}

// LintWarning is a non-fatal configuration observation.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of [Config.Lint].
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but likely unintended.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	if u, err := url.Parse(c.API.BaseURL); err == nil && u.Scheme == "http" && !isLoopbackHost(u.Hostname()) {
		ws = append(ws, LintWarning{
			Code:    "api_plaintext",
			Message: "API BaseURL uses plain http for a non-local host; refresh cookies travel unencrypted",
		})
	}
	if c.API.Timeout == 0 {
		ws = append(ws, LintWarning{
			Code:    "api_no_timeout",
			Message: "API Timeout is 0; requests may hang indefinitely",
		})
	}
	if c.Storage.Backend == StorageMemory {
		ws = append(ws, LintWarning{
			Code:    "storage_ephemeral",
			Message: "memory storage loses the credential on restart",
		})
	}
	if !c.Audit.Enabled {
		ws = append(ws, LintWarning{
			Code:    "audit_disabled",
			Message: "audit events are disabled",
		})
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull && c.Audit.BufferSize < 16 {
		ws = append(ws, LintWarning{
			Code:    "audit_blocking_small_buffer",
			Message: "blocking audit with a small buffer can stall sign-in and sign-out",
		})
	}
	if !c.Permission.CacheSystemPermissions {
		ws = append(ws, LintWarning{
			Code:    "system_permissions_uncached",
			Message: "every system permission read hits the backend",
		})
	}

	return ws
}

func isLoopbackHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
