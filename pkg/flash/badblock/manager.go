// Package badblock decides which blocks may be used and discovers unusable
// ones. It owns no I/O of its own: the provisioning scan borrows the page
// I/O engine, and all health state lives in the metadata table.
package badblock

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/flashcore/internal/logger"
	"github.com/marmos91/flashcore/pkg/flash"
	"github.com/marmos91/flashcore/pkg/flash/metadata"
)

// Eraser is the slice of the page I/O engine the scan needs.
type Eraser interface {
	EraseBlock(ctx context.Context, blockID uint32) error
}

// Manager answers block eligibility questions against the metadata table.
type Manager struct {
	table *metadata.Table
}

// New creates a manager over the given table.
func New(table *metadata.Table) *Manager {
	return &Manager{table: table}
}

// IsUsable reports whether the block may be targeted by program/erase
// operations. Out-of-range blocks are not usable.
func (m *Manager) IsUsable(blockID uint32) bool {
	rec, err := m.table.Get(blockID)
	if err != nil {
		return false
	}
	return rec.State != flash.StateBad
}

// NextGoodBlock returns the first non-bad block at or after start, wrapping
// at the end of the device. The second return value is false when every
// block is bad: the device is exhausted, which is fatal for the whole
// core and must be surfaced, never retried.
func (m *Manager) NextGoodBlock(start uint32) (uint32, bool) {
	n := uint32(m.table.Len())
	for i := uint32(0); i < n; i++ {
		id := (start + i) % n
		rec, err := m.table.Get(id)
		if err != nil {
			continue
		}
		if rec.State != flash.StateBad {
			return id, true
		}
	}
	return 0, false
}

// ScanReport summarizes a provisioning scan.
type ScanReport struct {
	Good       uint32 `json:"good"`
	NewlyBad   uint32 `json:"newly_bad"`
	AlreadyBad uint32 `json:"already_bad"`
}

// ScanAll test-erases every block that is not already quarantined and marks
// the failures bad. The test erases are real, destructive erases and are
// accounted as wear; run this at provisioning time or on explicit request
// only, never as part of normal allocation.
func (m *Manager) ScanAll(ctx context.Context, io Eraser) (ScanReport, error) {
	var report ScanReport

	n := uint32(m.table.Len())
	for id := uint32(0); id < n; id++ {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("scan aborted at block %d: %w", id, err)
		}

		rec, err := m.table.Get(id)
		if err != nil {
			return report, err
		}
		if rec.State == flash.StateBad {
			report.AlreadyBad++
			continue
		}

		if err := io.EraseBlock(ctx, id); err != nil {
			if !errors.Is(err, flash.ErrEraseFailed) {
				return report, err
			}
			logger.Warn("scan quarantined block", "block", id, "error", err)
			if err := m.table.MarkBad(id, "erase failed during scan"); err != nil {
				return report, err
			}
			report.NewlyBad++
			continue
		}

		if err := m.table.RecordErase(id); err != nil {
			return report, err
		}

		// The test erase itself can retire a block at the erase ceiling.
		rec, err = m.table.Get(id)
		if err != nil {
			return report, err
		}
		if rec.State == flash.StateBad {
			report.NewlyBad++
		} else {
			report.Good++
		}
	}

	logger.Info("bad-block scan complete",
		"good", report.Good, "newly_bad", report.NewlyBad, "already_bad", report.AlreadyBad)
	return report, nil
}
