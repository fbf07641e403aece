package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds all exporter configuration values.
type Config struct {
	Port         int           // GPU_EXPORTER_PORT, default: 9445
	PollInterval time.Duration // GPU_EXPORTER_POLL_INTERVAL, default: 15s
	InstanceID   string        // GPU_EXPORTER_INSTANCE_ID, default: random UUID
	Version      string        // set at build time, not from the environment

	// Device access
	NVMLLibraryPath string // GPU_EXPORTER_NVML_LIBRARY, default: "" (loader search path)
	FakeDevices     int    // GPU_EXPORTER_FAKE_DEVICES, default: 0 — >0 serves synthetic GPUs instead of NVML

	// Logging
	LogLevel slog.Level // GPU_EXPORTER_LOG_LEVEL, default: info

	// HTTP
	MetricsCompression bool // GPU_EXPORTER_METRICS_GZIP, default: true
	DebugEndpoints     bool // GPU_EXPORTER_DEBUG_ENDPOINTS, default: false — enables pprof/debug on the metrics port

	// ErrorTTL is how long a failure stays listed on /debug/errors after it
	// was last seen.
	ErrorTTL time.Duration // GPU_EXPORTER_ERROR_TTL, default: 5m
}

// Load reads configuration from environment variables and returns a Config
// with defaults applied for any unset values.
func Load() Config {
	cfg := Config{
		Port:               parseInt("GPU_EXPORTER_PORT", 9445),
		PollInterval:       parseDuration("GPU_EXPORTER_POLL_INTERVAL", 15*time.Second),
		InstanceID:         os.Getenv("GPU_EXPORTER_INSTANCE_ID"),
		NVMLLibraryPath:    envOrDefault("GPU_EXPORTER_NVML_LIBRARY", ""),
		FakeDevices:        parseInt("GPU_EXPORTER_FAKE_DEVICES", 0),
		LogLevel:           parseLevel("GPU_EXPORTER_LOG_LEVEL", slog.LevelInfo),
		MetricsCompression: parseBool("GPU_EXPORTER_METRICS_GZIP", true),
		DebugEndpoints:     parseBool("GPU_EXPORTER_DEBUG_ENDPOINTS", false),
		ErrorTTL:           parseDuration("GPU_EXPORTER_ERROR_TTL", 5*time.Minute),
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}

	return cfg
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	// Fallback: treat as integer seconds
	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// parseLevel accepts slog level names (debug, info, warn, error), case
// insensitive, with optional offsets such as "debug+2".
func parseLevel(key string, defaultVal slog.Level) slog.Level {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return l
}
