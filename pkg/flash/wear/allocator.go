// Package wear selects where the next erase/write cycle lands. The policy
// is minimum-erase-count-first among good blocks, which bounds the spread
// between the most- and least-erased good blocks to one erase cycle under
// steady allocation. Worn blocks are held back until no good block remains,
// delaying their failure.
package wear

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/flashcore/internal/logger"
	"github.com/marmos91/flashcore/pkg/flash"
	"github.com/marmos91/flashcore/pkg/flash/metadata"
)

// Eraser is the slice of the page I/O engine the allocator needs.
type Eraser interface {
	EraseBlock(ctx context.Context, blockID uint32) error
}

// Allocator picks the least-worn eligible block and prepares it for
// sequential programming. A single allocator mutex serializes the
// select → erase → record sequence, so two concurrent allocations can
// never pick and erase the same block, and an erase failure is observed
// before any later operation is admitted on that block.
type Allocator struct {
	mu    sync.Mutex
	table *metadata.Table
	io    Eraser
}

// New creates an allocator over the given table and erase engine.
func New(table *metadata.Table, io Eraser) *Allocator {
	return &Allocator{table: table, io: io}
}

// SelectBlock returns the eligible block with the minimum erase count.
// Good blocks are considered first, ties broken by lowest block id for
// determinism; worn blocks are a fallback. Returns ErrNoEligibleBlock
// when every block is bad.
func (a *Allocator) SelectBlock() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selectLocked()
}

func (a *Allocator) selectLocked() (uint32, error) {
	var (
		bestGood, bestWorn           uint32
		bestGoodCount, bestWornCount uint32
		haveGood, haveWorn           bool
	)

	n := uint32(a.table.Len())
	for id := uint32(0); id < n; id++ {
		rec, err := a.table.Get(id)
		if err != nil {
			return 0, err
		}

		switch rec.State {
		case flash.StateGood:
			if !haveGood || rec.EraseCount < bestGoodCount {
				bestGood, bestGoodCount, haveGood = id, rec.EraseCount, true
			}
		case flash.StateWorn:
			if !haveWorn || rec.EraseCount < bestWornCount {
				bestWorn, bestWornCount, haveWorn = id, rec.EraseCount, true
			}
		}
	}

	if haveGood {
		return bestGood, nil
	}
	if haveWorn {
		return bestWorn, nil
	}
	return 0, flash.ErrNoEligibleBlock
}

// AllocateAndErase selects the least-worn eligible block, erases it, and
// records the wear, returning a block ready for sequential programming.
//
// An erase failure quarantines the block and the selection is retried on
// the remaining pool. Retries are bounded by the block count, so a cascade
// of failing blocks terminates with ErrNoEligibleBlock instead of looping.
//
// A context that expires mid-erase condemns the in-flight block only; no
// further erase is issued once the context is done, so blocks that were
// never attempted stay eligible.
func (a *Allocator) AllocateAndErase(ctx context.Context) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	attempts := a.table.Len()
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return 0, fmt.Errorf("allocation aborted: %w", err)
		}

		id, err := a.selectLocked()
		if err != nil {
			return 0, err
		}

		if err := a.io.EraseBlock(ctx, id); err != nil {
			if !errors.Is(err, flash.ErrEraseFailed) {
				return 0, err
			}
			logger.Warn("erase failed during allocation, quarantining block",
				"block", id, "error", err)
			if mbErr := a.table.MarkBad(id, "erase failed"); mbErr != nil {
				return 0, mbErr
			}
			continue
		}

		if err := a.table.RecordErase(id); err != nil {
			return 0, err
		}

		logger.Debug("allocated block", "block", id)
		return id, nil
	}

	return 0, fmt.Errorf("allocation gave up after %d attempts: %w", attempts, flash.ErrNoEligibleBlock)
}
