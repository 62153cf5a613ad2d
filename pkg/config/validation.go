package config

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/flashcore/pkg/flash"
)

var validate = validator.New()

// Validate checks the configuration for errors.
//
// Struct tags cover per-field constraints; the cross-field rules that the
// tags cannot express are checked explicitly:
//   - block size must be a whole multiple of page size
//   - page and OOB sizes must fit the geometry's 32-bit fields
//   - the worn threshold must be strictly below the erase ceiling
//   - the file backend requires a path
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := cfg.Geometry(); err != nil {
		return err
	}
	if err := cfg.Policy().Validate(); err != nil {
		return err
	}

	if cfg.Device.Backend == "file" && cfg.Device.Path == "" {
		return fmt.Errorf("device.path is required for the file backend")
	}

	return nil
}

// Geometry converts the device section to a flash geometry, validating it.
func (c *Config) Geometry() (flash.Geometry, error) {
	for _, f := range []struct {
		name string
		val  uint64
	}{
		{"device.page_size", c.Device.PageSize.Uint64()},
		{"device.oob_size", c.Device.OOBSize.Uint64()},
		{"device.block_size", c.Device.BlockSize.Uint64()},
	} {
		if f.val > math.MaxUint32 {
			return flash.Geometry{}, fmt.Errorf("%s %d does not fit a 32-bit field", f.name, f.val)
		}
	}

	return flash.NewGeometry(
		c.Device.PageSize.Uint32(),
		c.Device.OOBSize.Uint32(),
		c.Device.BlockSize.Uint32(),
		c.Device.TotalBlocks,
	)
}

// Policy converts the wear section to a flash policy.
func (c *Config) Policy() flash.Policy {
	return flash.Policy{
		MaxEraseCount: c.Wear.MaxEraseCount,
		WornThreshold: c.Wear.WornThreshold,
	}
}
