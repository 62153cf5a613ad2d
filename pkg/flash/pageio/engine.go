// Package pageio performs page-granular reads, programs, and block erases
// against the physical medium. The engine owns the medium handle
// exclusively; every access above this layer is expressed as (block, page)
// indices, never raw offsets.
//
// The engine validates bounds and quarantine state and reserves write
// cursors, but it never mutates block health itself: quarantining after a
// failed erase or program belongs to the allocator, the scanner, or the
// facade, so that wear tracking, bad-block handling, and physical I/O
// observe a single outcome in one place.
package pageio

import (
	"context"
	"fmt"

	"github.com/marmos91/flashcore/internal/logger"
	"github.com/marmos91/flashcore/pkg/flash"
	"github.com/marmos91/flashcore/pkg/flash/metadata"
	"github.com/marmos91/flashcore/pkg/medium"
)

// Engine drives page-granular I/O for one device.
type Engine struct {
	geo   flash.Geometry
	med   medium.Medium
	table *metadata.Table
}

// New creates an engine over the given medium. The medium must be at least
// as large as the device span the geometry describes.
func New(geo flash.Geometry, med medium.Medium, table *metadata.Table) (*Engine, error) {
	if med.Size() < geo.DeviceSpan() {
		return nil, fmt.Errorf("%w: medium is %d bytes, geometry needs %d",
			flash.ErrInvalidGeometry, med.Size(), geo.DeviceSpan())
	}
	if uint32(table.Len()) != geo.TotalBlocks || table.PagesPerBlock() != geo.PagesPerBlock() {
		return nil, fmt.Errorf("%w: metadata table tracks %d blocks × %d pages, geometry has %d × %d",
			flash.ErrInvalidGeometry, table.Len(), table.PagesPerBlock(), geo.TotalBlocks, geo.PagesPerBlock())
	}

	return &Engine{geo: geo, med: med, table: table}, nil
}

// Geometry returns the device geometry the engine was built with.
func (e *Engine) Geometry() flash.Geometry {
	return e.geo
}

// ReadPage reads a page's data and, when oob is non-nil, its OOB area.
// len(data) and len(oob) must not exceed the page and OOB sizes; shorter
// buffers read a prefix. Quarantined blocks are refused with ErrBadBlock;
// use RecoveryReadPage for salvage tooling. Reads never mutate metadata,
// and a read failure never condemns a block (reads can fail transiently).
func (e *Engine) ReadPage(ctx context.Context, blockID, pageIndex uint32, data, oob []byte) error {
	if err := e.checkPage(blockID, pageIndex, data, oob); err != nil {
		return err
	}

	rec, err := e.table.Get(blockID)
	if err != nil {
		return err
	}
	if rec.State == flash.StateBad {
		return fmt.Errorf("read block %d page %d: %w", blockID, pageIndex, flash.ErrBadBlock)
	}

	return e.readPage(ctx, blockID, pageIndex, data, oob)
}

// RecoveryReadPage reads a page regardless of the block's health state.
// Intended for salvage tooling running above this core; accesses to
// quarantined blocks are logged distinctly.
func (e *Engine) RecoveryReadPage(ctx context.Context, blockID, pageIndex uint32, data, oob []byte) error {
	if err := e.checkPage(blockID, pageIndex, data, oob); err != nil {
		return err
	}

	rec, err := e.table.Get(blockID)
	if err != nil {
		return err
	}
	if rec.State == flash.StateBad {
		logger.Warn("recovery read on quarantined block",
			"block", blockID, "page", pageIndex, "bad_reason", rec.BadReason)
	}

	return e.readPage(ctx, blockID, pageIndex, data, oob)
}

func (e *Engine) readPage(ctx context.Context, blockID, pageIndex uint32, data, oob []byte) error {
	if len(data) > 0 {
		if err := e.med.ReadAt(ctx, data, e.geo.PageOffset(blockID, pageIndex)); err != nil {
			return fmt.Errorf("read block %d page %d: %w: %w", blockID, pageIndex, flash.ErrReadFailed, err)
		}
	}
	if len(oob) > 0 {
		if err := e.med.ReadAt(ctx, oob, e.geo.OOBOffset(blockID, pageIndex)); err != nil {
			return fmt.Errorf("read block %d page %d oob: %w: %w", blockID, pageIndex, flash.ErrReadFailed, err)
		}
	}
	return nil
}

// ProgramPage programs a page's data and, when oob is non-nil, its OOB
// area. The page is reserved in the metadata table before the medium is
// touched, enforcing sequential one-shot programming per erase cycle
// (ErrNotErased, ErrBlockFull) and quarantine (ErrBadBlock). A physical
// failure is reported as ErrProgramFailed; the page stays consumed, since
// a partially programmed page is unusable until the block is erased.
func (e *Engine) ProgramPage(ctx context.Context, blockID, pageIndex uint32, data, oob []byte) error {
	if err := e.checkPage(blockID, pageIndex, data, oob); err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("program block %d page %d: empty data: %w", blockID, pageIndex, flash.ErrOutOfRange)
	}

	if err := e.table.RecordWriteAt(blockID, pageIndex); err != nil {
		return err
	}

	if err := e.med.WriteAt(ctx, data, e.geo.PageOffset(blockID, pageIndex)); err != nil {
		return fmt.Errorf("program block %d page %d: %w: %w", blockID, pageIndex, flash.ErrProgramFailed, err)
	}
	if len(oob) > 0 {
		if err := e.med.WriteAt(ctx, oob, e.geo.OOBOffset(blockID, pageIndex)); err != nil {
			return fmt.Errorf("program block %d page %d oob: %w: %w", blockID, pageIndex, flash.ErrProgramFailed, err)
		}
	}
	return nil
}

// EraseBlock physically erases a block. Quarantined blocks are refused
// with ErrBadBlock. A context done before the erase is issued returns the
// context error; once issued, any failure (including context expiry, since
// flash offers no safe abort for an in-progress erase) is reported as
// ErrEraseFailed. The engine records nothing: the caller decides whether
// the erase counts as wear (RecordErase) or condemns the block (MarkBad).
func (e *Engine) EraseBlock(ctx context.Context, blockID uint32) error {
	if !e.geo.ContainsBlock(blockID) {
		return fmt.Errorf("erase block %d: %w", blockID, flash.ErrOutOfRange)
	}

	rec, err := e.table.Get(blockID)
	if err != nil {
		return err
	}
	if rec.State == flash.StateBad {
		return fmt.Errorf("erase block %d: %w", blockID, flash.ErrBadBlock)
	}

	// A context already done before the erase is issued is the caller's
	// abort, not a physical failure; the block was never touched.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("erase block %d: %w", blockID, err)
	}

	if err := e.med.Erase(ctx, e.geo.BlockOffset(blockID), e.geo.BlockSpan()); err != nil {
		return fmt.Errorf("erase block %d: %w: %w", blockID, flash.ErrEraseFailed, err)
	}
	return nil
}

// checkPage validates indices and buffer sizes against the geometry.
func (e *Engine) checkPage(blockID, pageIndex uint32, data, oob []byte) error {
	if !e.geo.Contains(blockID, pageIndex) {
		return fmt.Errorf("block %d page %d: %w", blockID, pageIndex, flash.ErrOutOfRange)
	}
	if uint32(len(data)) > e.geo.PageSize {
		return fmt.Errorf("block %d page %d: buffer %d exceeds page size %d: %w",
			blockID, pageIndex, len(data), e.geo.PageSize, flash.ErrOutOfRange)
	}
	if uint32(len(oob)) > e.geo.OOBSize {
		return fmt.Errorf("block %d page %d: oob buffer %d exceeds oob size %d: %w",
			blockID, pageIndex, len(oob), e.geo.OOBSize, flash.ErrOutOfRange)
	}
	return nil
}
