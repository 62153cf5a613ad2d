package config

import (
	"strings"
	"time"

	"github.com/marmos91/flashcore/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyDeviceDefaults(&cfg.Device)
	applyWearDefaults(&cfg.Wear)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	// Port defaults to 9090 if metrics are enabled
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyDeviceDefaults sets device geometry defaults.
//
// The defaults model a small SLC NAND part: 2KiB pages with a 64-byte OOB
// area, 64 pages per block, 1024 blocks (128MiB of user data).
func applyDeviceDefaults(cfg *DeviceConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 2 * bytesize.KiB
	}
	if cfg.OOBSize == 0 {
		cfg.OOBSize = 64 * bytesize.B
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = 128 * bytesize.KiB
	}
	if cfg.TotalBlocks == 0 {
		cfg.TotalBlocks = 1024
	}
}

// applyWearDefaults sets wear policy defaults.
// The erase ceiling matches typical SLC NAND endurance.
func applyWearDefaults(cfg *WearConfig) {
	if cfg.MaxEraseCount == 0 {
		cfg.MaxEraseCount = 100000
	}
	if cfg.WornThreshold == 0 {
		cfg.WornThreshold = 75000
	}
	if cfg.EraseTimeout == 0 {
		cfg.EraseTimeout = 5 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Logging: LoggingConfig{},
		Snapshot: SnapshotConfig{
			Dir: "/tmp/flashcore-snapshots",
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
