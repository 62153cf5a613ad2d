package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/marmos91/flashcore/internal/logger"
	"github.com/marmos91/flashcore/pkg/config"
	"github.com/marmos91/flashcore/pkg/flash/core"
	"github.com/marmos91/flashcore/pkg/medium"
	filemedium "github.com/marmos91/flashcore/pkg/medium/file"
	"github.com/marmos91/flashcore/pkg/medium/memory"
	"github.com/marmos91/flashcore/pkg/metrics"
	flashprom "github.com/marmos91/flashcore/pkg/metrics/prometheus"
	"github.com/marmos91/flashcore/pkg/snapshot"
	"github.com/prometheus/client_golang/prometheus"
)

// env bundles everything a device command needs: the loaded configuration,
// the assembled core, and optional snapshot and metrics plumbing.
type env struct {
	cfg      *config.Config
	core     *core.Core
	med      medium.Medium
	store    *snapshot.Store // nil when snapshots are disabled
	registry *prometheus.Registry
}

// initLogger initializes the structured logger from configuration.
func initLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// buildEnv loads configuration, opens the backing medium, assembles the
// core, and restores the latest persisted metadata snapshot when one exists.
func buildEnv(ctx context.Context) (*env, error) {
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return nil, err
	}
	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	geo, err := cfg.Geometry()
	if err != nil {
		return nil, err
	}
	deviceID, err := cfg.DeviceID()
	if err != nil {
		return nil, err
	}

	med, err := openMedium(cfg, geo.DeviceSpan())
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, med: med}

	var m metrics.FlashMetrics
	if cfg.Metrics.Enabled {
		e.registry = prometheus.NewRegistry()
		m = flashprom.NewFlashMetrics(e.registry, deviceID.String())
	}

	c, err := core.New(core.Config{
		Geometry: geo,
		Policy:   cfg.Policy(),
		Medium:   med,
		DeviceID: deviceID,
		Metrics:  m,
	})
	if err != nil {
		_ = med.Close()
		return nil, err
	}
	e.core = c

	if cfg.Snapshot.Dir != "" {
		store, err := snapshot.Open(cfg.Snapshot.Dir)
		if err != nil {
			_ = med.Close()
			return nil, err
		}
		e.store = store

		if err := e.restoreLatest(ctx); err != nil {
			_ = e.Close()
			return nil, err
		}
	}

	return e, nil
}

// restoreLatest loads the device's latest snapshot into the metadata table.
// A missing snapshot is not an error; the device just starts fresh.
func (e *env) restoreLatest(ctx context.Context) error {
	snap, err := e.store.Load(ctx, e.core.DeviceID())
	if errors.Is(err, snapshot.ErrNotFound) {
		logger.Info("no metadata snapshot found, starting fresh",
			"device", e.core.DeviceID().String())
		return nil
	}
	if err != nil {
		return err
	}

	if err := e.core.RestoreTable(snap); err != nil {
		return err
	}
	logger.Info("metadata table restored from snapshot",
		"device", e.core.DeviceID().String(), "taken_at", snap.TakenAt)
	return nil
}

// saveSnapshot persists the current metadata table if snapshots are enabled.
func (e *env) saveSnapshot(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.Save(ctx, e.core.DeviceID(), e.core.SnapshotTable()); err != nil {
		return fmt.Errorf("save metadata snapshot: %w", err)
	}
	logger.Info("metadata snapshot saved", "device", e.core.DeviceID().String())
	return nil
}

// Close releases the snapshot store and the backing medium.
func (e *env) Close() error {
	var first error
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			first = err
		}
	}
	if err := e.med.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// openMedium opens the configured backing medium.
func openMedium(cfg *config.Config, span uint64) (medium.Medium, error) {
	switch cfg.Device.Backend {
	case "memory":
		return memory.New(span), nil
	case "file":
		return filemedium.Open(cfg.Device.Path, span)
	default:
		return nil, fmt.Errorf("unknown device backend %q", cfg.Device.Backend)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// eraseCtx applies the configured erase timeout to a context.
func (e *env) eraseCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.Wear.EraseTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, e.cfg.Wear.EraseTimeout)
}

// deviceUUID is a convenience accessor used by output code.
func (e *env) deviceUUID() uuid.UUID {
	return e.core.DeviceID()
}
