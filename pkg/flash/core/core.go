// Package core composes the metadata table, bad-block manager,
// wear-leveling allocator, and page I/O engine into the operation surface
// a filesystem or translation layer consumes.
//
// The facade is also where failure policy lives: a failed program or a
// failed direct erase quarantines the block here, so the layers below stay
// single-purpose (the engine never mutates health state, the table never
// performs I/O).
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/flashcore/internal/logger"
	"github.com/marmos91/flashcore/pkg/flash"
	"github.com/marmos91/flashcore/pkg/flash/badblock"
	"github.com/marmos91/flashcore/pkg/flash/metadata"
	"github.com/marmos91/flashcore/pkg/flash/pageio"
	"github.com/marmos91/flashcore/pkg/flash/wear"
	"github.com/marmos91/flashcore/pkg/medium"
	"github.com/marmos91/flashcore/pkg/metrics"
)

// Config carries everything needed to assemble a core.
type Config struct {
	// Geometry is the physical device description.
	Geometry flash.Geometry

	// Policy is the wear-leveling policy.
	Policy flash.Policy

	// Medium is the raw handle; the core takes exclusive ownership.
	Medium medium.Medium

	// DeviceID identifies this device in snapshots and metrics.
	// A zero value gets a fresh random id.
	DeviceID uuid.UUID

	// Metrics collects operation metrics. Nil disables collection.
	Metrics metrics.FlashMetrics
}

// Core is the flash storage management core facade.
type Core struct {
	deviceID uuid.UUID
	geo      flash.Geometry
	table    *metadata.Table
	blocks   *badblock.Manager
	alloc    *wear.Allocator
	engine   *pageio.Engine
	metrics  metrics.FlashMetrics
}

// New assembles a core over the given medium. All blocks start good with
// zero counters; use RestoreTable to resume from persisted state.
func New(cfg Config) (*Core, error) {
	table, err := metadata.New(cfg.Geometry.TotalBlocks, cfg.Geometry.PagesPerBlock(), cfg.Policy)
	if err != nil {
		return nil, err
	}

	engine, err := pageio.New(cfg.Geometry, cfg.Medium, table)
	if err != nil {
		return nil, err
	}

	deviceID := cfg.DeviceID
	if deviceID == uuid.Nil {
		deviceID = uuid.New()
	}

	c := &Core{
		deviceID: deviceID,
		geo:      cfg.Geometry,
		table:    table,
		blocks:   badblock.New(table),
		alloc:    wear.New(table, engine),
		engine:   engine,
		metrics:  cfg.Metrics,
	}

	logger.Info("flash core initialized",
		"device", deviceID.String(),
		"blocks", cfg.Geometry.TotalBlocks,
		"pages_per_block", cfg.Geometry.PagesPerBlock(),
		"page_size", cfg.Geometry.PageSize)

	return c, nil
}

// DeviceID returns the device identity used for snapshots and metrics.
func (c *Core) DeviceID() uuid.UUID {
	return c.deviceID
}

// Geometry returns the device geometry.
func (c *Core) Geometry() flash.Geometry {
	return c.geo
}

// AllocateAndErase returns a freshly erased block ready for sequential
// programming. Blocks that fail their erase are quarantined and the
// allocation transparently retries on the remaining pool; the bounded
// retry surfaces ErrNoEligibleBlock when the device is exhausted.
func (c *Core) AllocateAndErase(ctx context.Context) (uint32, error) {
	start := time.Now()

	id, err := c.alloc.AllocateAndErase(ctx)
	if err != nil {
		if c.metrics != nil && errors.Is(err, flash.ErrEraseFailed) {
			c.metrics.IncEraseFailure()
		}
		return 0, err
	}

	if c.metrics != nil {
		c.metrics.ObserveErase(time.Since(start))
	}
	return id, nil
}

// ProgramPage programs one page (and optionally its OOB area). A physical
// program failure quarantines the block before the error is propagated, so
// the caller can reallocate and rewrite elsewhere.
func (c *Core) ProgramPage(ctx context.Context, blockID, pageIndex uint32, data, oob []byte) error {
	start := time.Now()

	err := c.engine.ProgramPage(ctx, blockID, pageIndex, data, oob)
	if err != nil {
		if errors.Is(err, flash.ErrProgramFailed) {
			c.quarantine(blockID, "program failed")
			if c.metrics != nil {
				c.metrics.IncProgramFailure()
			}
		}
		return err
	}

	if c.metrics != nil {
		c.metrics.ObserveProgram(len(data)+len(oob), time.Since(start))
	}
	return nil
}

// ReadPage reads one page and its OOB area into freshly allocated buffers.
// Quarantined blocks are refused; see RecoveryReadPage.
func (c *Core) ReadPage(ctx context.Context, blockID, pageIndex uint32) ([]byte, []byte, error) {
	return c.readPage(ctx, blockID, pageIndex, c.engine.ReadPage)
}

// RecoveryReadPage reads one page regardless of the block's health state,
// for salvage tooling running above this core.
func (c *Core) RecoveryReadPage(ctx context.Context, blockID, pageIndex uint32) ([]byte, []byte, error) {
	return c.readPage(ctx, blockID, pageIndex, c.engine.RecoveryReadPage)
}

func (c *Core) readPage(ctx context.Context, blockID, pageIndex uint32,
	read func(context.Context, uint32, uint32, []byte, []byte) error,
) ([]byte, []byte, error) {
	start := time.Now()

	data := make([]byte, c.geo.PageSize)
	var oob []byte
	if c.geo.OOBSize > 0 {
		oob = make([]byte, c.geo.OOBSize)
	}

	if err := read(ctx, blockID, pageIndex, data, oob); err != nil {
		if c.metrics != nil && errors.Is(err, flash.ErrReadFailed) {
			c.metrics.IncReadFailure()
		}
		return nil, nil, err
	}

	if c.metrics != nil {
		c.metrics.ObserveRead(len(data)+len(oob), time.Since(start))
	}
	return data, oob, nil
}

// EraseBlock erases a specific block directly, for integrators that manage
// block reuse themselves. A physical failure quarantines the block before
// the error is propagated; on success the erase is accounted as wear.
func (c *Core) EraseBlock(ctx context.Context, blockID uint32) error {
	start := time.Now()

	if err := c.engine.EraseBlock(ctx, blockID); err != nil {
		if errors.Is(err, flash.ErrEraseFailed) {
			c.quarantine(blockID, "erase failed")
			if c.metrics != nil {
				c.metrics.IncEraseFailure()
			}
		}
		return err
	}

	if err := c.table.RecordErase(blockID); err != nil {
		return err
	}

	if c.metrics != nil {
		c.metrics.ObserveErase(time.Since(start))
	}
	return nil
}

// MarkBad quarantines a block on behalf of a caller that detected
// corruption through its own ECC or checksums above this core.
func (c *Core) MarkBad(blockID uint32, reason string) error {
	if err := c.table.MarkBad(blockID, reason); err != nil {
		return err
	}
	logger.Warn("block quarantined by caller", "block", blockID, "reason", reason)
	if c.metrics != nil {
		c.metrics.IncBadBlock(reason)
	}
	return nil
}

// IsUsable reports whether a block may be targeted by program/erase.
func (c *Core) IsUsable(blockID uint32) bool {
	return c.blocks.IsUsable(blockID)
}

// BlockRecord returns a copy of one block's wear bookkeeping.
func (c *Core) BlockRecord(blockID uint32) (flash.BlockRecord, error) {
	return c.table.Get(blockID)
}

// ScanAll runs the destructive provisioning scan: every non-quarantined
// block is test-erased and failures are marked bad.
func (c *Core) ScanAll(ctx context.Context) (badblock.ScanReport, error) {
	report, err := c.blocks.ScanAll(ctx, c.engine)
	if err != nil {
		return report, fmt.Errorf("bad-block scan: %w", err)
	}
	c.publishGauges()
	return report, nil
}

// Statistics aggregates block states and erase counts for monitoring.
func (c *Core) Statistics() flash.Stats {
	stats := c.table.Stats()
	c.publishGaugesFrom(stats)
	return stats
}

// SnapshotTable captures the metadata table as plain structured data for
// persistence by the integrator.
func (c *Core) SnapshotTable() *metadata.Snapshot {
	return c.table.Snapshot()
}

// RestoreTable replaces the metadata table from a previously captured
// snapshot. Call at startup, before the core serves traffic.
func (c *Core) RestoreTable(snap *metadata.Snapshot) error {
	if err := c.table.Restore(snap); err != nil {
		return fmt.Errorf("restore metadata table: %w", err)
	}
	c.publishGauges()
	return nil
}

func (c *Core) quarantine(blockID uint32, reason string) {
	logger.Warn("block quarantined", "block", blockID, "reason", reason)
	if err := c.table.MarkBad(blockID, reason); err != nil {
		logger.Error("failed to quarantine block", "block", blockID, "error", err)
		return
	}
	if c.metrics != nil {
		c.metrics.IncBadBlock(reason)
	}
}

func (c *Core) publishGauges() {
	if c.metrics == nil {
		return
	}
	c.publishGaugesFrom(c.table.Stats())
}

func (c *Core) publishGaugesFrom(stats flash.Stats) {
	if c.metrics == nil {
		return
	}
	c.metrics.SetBlockStates(stats.GoodBlocks, stats.WornBlocks, stats.BadBlocks)
	c.metrics.SetAvgEraseCount(stats.AvgEraseCount)
}
