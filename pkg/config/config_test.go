package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/flashcore/internal/bytesize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return configPath
}

func TestLoad_DefaultsApplied(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: "INFO"

device:
  backend: memory
  total_blocks: 64
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Device.PageSize != 2*bytesize.KiB {
		t.Errorf("Expected default page size 2Ki, got %v", cfg.Device.PageSize)
	}
	if cfg.Wear.MaxEraseCount != 100000 {
		t.Errorf("Expected default erase ceiling 100000, got %d", cfg.Wear.MaxEraseCount)
	}
	if cfg.Wear.EraseTimeout != 5*time.Second {
		t.Errorf("Expected default erase timeout 5s, got %v", cfg.Wear.EraseTimeout)
	}
	if cfg.Device.TotalBlocks != 64 {
		t.Errorf("Expected 64 blocks from config file, got %d", cfg.Device.TotalBlocks)
	}
}

func TestLoad_ByteSizeStrings(t *testing.T) {
	configPath := writeConfig(t, `
device:
  backend: memory
  page_size: 4Ki
  oob_size: 128
  block_size: 256KiB
  total_blocks: 32
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Device.PageSize != 4*bytesize.KiB {
		t.Errorf("Expected page size 4Ki, got %v", cfg.Device.PageSize)
	}
	if cfg.Device.OOBSize != 128 {
		t.Errorf("Expected oob size 128, got %v", cfg.Device.OOBSize)
	}
	if cfg.Device.BlockSize != 256*bytesize.KiB {
		t.Errorf("Expected block size 256Ki, got %v", cfg.Device.BlockSize)
	}

	geo, err := cfg.Geometry()
	if err != nil {
		t.Fatalf("Geometry failed: %v", err)
	}
	if geo.PagesPerBlock() != 64 {
		t.Errorf("Expected 64 pages per block, got %d", geo.PagesPerBlock())
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config.
	nonExistentPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}

	if cfg.Device.Backend != "memory" {
		t.Errorf("Expected default backend 'memory', got %q", cfg.Device.Backend)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
logging:
  level: INFO
  invalid yaml here [[[
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_InvalidGeometry(t *testing.T) {
	// Block size not a multiple of page size.
	configPath := writeConfig(t, `
device:
  backend: memory
  page_size: 3000
  block_size: 100Ki
  total_blocks: 16
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected geometry validation error, got nil")
	}
}

func TestLoad_InvalidPolicy(t *testing.T) {
	// Worn threshold at the ceiling leaves no worn band.
	configPath := writeConfig(t, `
device:
  backend: memory
  total_blocks: 16

wear:
  max_erase_count: 1000
  worn_threshold: 1000
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected policy validation error, got nil")
	}
}

func TestLoad_FileBackendRequiresPath(t *testing.T) {
	configPath := writeConfig(t, `
device:
  backend: file
  total_blocks: 16
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for file backend without path, got nil")
	}
}

func TestLoad_InvalidDeviceID(t *testing.T) {
	configPath := writeConfig(t, `
device:
  backend: memory
  id: "not-a-uuid"
  total_blocks: 16
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for malformed device id, got nil")
	}
}

func TestDeviceID(t *testing.T) {
	cfg := GetDefaultConfig()

	// Empty id generates a fresh one.
	id, err := cfg.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID failed: %v", err)
	}
	if id.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("Expected generated device id, got nil uuid")
	}

	// Configured id is parsed verbatim.
	cfg.Device.ID = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"
	id, err = cfg.DeviceID()
	if err != nil {
		t.Fatalf("DeviceID failed: %v", err)
	}
	if id.String() != cfg.Device.ID {
		t.Errorf("Expected configured id %q, got %q", cfg.Device.ID, id)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Device.Backend != "memory" {
		t.Errorf("Expected default backend 'memory', got %q", cfg.Device.Backend)
	}
	if cfg.Device.BlockSize != 128*bytesize.KiB {
		t.Errorf("Expected default block size 128Ki, got %v", cfg.Device.BlockSize)
	}
	if cfg.Wear.WornThreshold != 75000 {
		t.Errorf("Expected default worn threshold 75000, got %d", cfg.Wear.WornThreshold)
	}
	if cfg.Snapshot.Dir == "" {
		t.Error("Expected default snapshot dir to be set")
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	_ = os.Setenv("FLASHCORE_LOGGING_LEVEL", "ERROR")
	_ = os.Setenv("FLASHCORE_METRICS_PORT", "9191")
	defer func() {
		_ = os.Unsetenv("FLASHCORE_LOGGING_LEVEL")
		_ = os.Unsetenv("FLASHCORE_METRICS_PORT")
	}()

	configPath := writeConfig(t, `
logging:
  level: "INFO"

metrics:
  enabled: true
  port: 9090

device:
  backend: memory
  total_blocks: 16
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify environment variables override config file
	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Metrics.Port != 9191 {
		t.Errorf("Expected port 9191 from env var, got %d", cfg.Metrics.Port)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Device.ID = "1b4e28ba-2fa1-11d2-883f-0016d3cca427"
	cfg.Device.TotalBlocks = 256

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Device.ID != cfg.Device.ID {
		t.Errorf("Device id = %q, want %q", loaded.Device.ID, cfg.Device.ID)
	}
	if loaded.Device.TotalBlocks != 256 {
		t.Errorf("Total blocks = %d, want 256", loaded.Device.TotalBlocks)
	}
	if loaded.Device.PageSize != cfg.Device.PageSize {
		t.Errorf("Page size = %v, want %v", loaded.Device.PageSize, cfg.Device.PageSize)
	}
}
