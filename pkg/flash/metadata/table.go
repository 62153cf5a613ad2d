// Package metadata owns the per-block wear and health bookkeeping. The
// Table is the single source of truth for block state; the bad-block
// manager and wear-leveling allocator mutate it, everything else reads it.
package metadata

import (
	"fmt"
	"sync"

	"github.com/marmos91/flashcore/pkg/flash"
)

// slot pairs one block record with its own lock, so mutations on unrelated
// blocks never contend and readers always observe a complete record.
type slot struct {
	mu  sync.Mutex
	rec flash.BlockRecord
}

// Table tracks erase counts, write cursors, and health state for every
// physical block. It is an owned instance handed to its consumers, not
// process-global state; all methods are safe for concurrent use.
type Table struct {
	policy        flash.Policy
	pagesPerBlock uint32
	slots         []slot
}

// New creates a table with one record per block, all good, zero counters.
func New(totalBlocks, pagesPerBlock uint32, policy flash.Policy) (*Table, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if totalBlocks == 0 || pagesPerBlock == 0 {
		return nil, fmt.Errorf("%w: total blocks %d, pages per block %d (both must be non-zero)",
			flash.ErrInvalidGeometry, totalBlocks, pagesPerBlock)
	}

	t := &Table{
		policy:        policy,
		pagesPerBlock: pagesPerBlock,
		slots:         make([]slot, totalBlocks),
	}
	for i := range t.slots {
		t.slots[i].rec = flash.BlockRecord{BlockID: uint32(i)}
	}
	return t, nil
}

// Len returns the number of tracked blocks.
func (t *Table) Len() int {
	return len(t.slots)
}

// PagesPerBlock returns the per-block page budget between erases.
func (t *Table) PagesPerBlock() uint32 {
	return t.pagesPerBlock
}

// Policy returns the wear-leveling policy the table enforces.
func (t *Table) Policy() flash.Policy {
	return t.policy
}

// Get returns a copy of the record for the given block. The copy is an
// atomic snapshot; callers never see a half-updated record.
func (t *Table) Get(blockID uint32) (flash.BlockRecord, error) {
	if int(blockID) >= len(t.slots) {
		return flash.BlockRecord{}, fmt.Errorf("block %d: %w", blockID, flash.ErrOutOfRange)
	}

	s := &t.slots[blockID]
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	return rec, nil
}

// RecordErase accounts for a successful physical erase: the erase count is
// incremented and the write cursor reset. Crossing the worn threshold
// demotes the block to worn; reaching the erase ceiling forces it bad with
// reason "erase limit exceeded".
//
// Returns ErrAlreadyBad if the block is quarantined; erases must never
// reach a bad block.
func (t *Table) RecordErase(blockID uint32) error {
	if int(blockID) >= len(t.slots) {
		return fmt.Errorf("block %d: %w", blockID, flash.ErrOutOfRange)
	}

	s := &t.slots[blockID]
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.State == flash.StateBad {
		return fmt.Errorf("block %d: %w", blockID, flash.ErrAlreadyBad)
	}

	s.rec.EraseCount++
	s.rec.WriteCount = 0

	switch {
	case s.rec.EraseCount >= t.policy.MaxEraseCount:
		s.rec.State = flash.StateBad
		s.rec.BadReason = "erase limit exceeded"
	case s.rec.EraseCount >= t.policy.WornThreshold:
		s.rec.State = flash.StateWorn
	}

	return nil
}

// RecordWriteAt reserves the given page for programming. Pages within a
// block must be programmed in increasing index order, exactly once per
// erase cycle; the write cursor (WriteCount) is the only page that is
// currently programmable.
//
// Returns ErrBadBlock for quarantined blocks, ErrBlockFull when the cursor
// is past the last page, and ErrNotErased when pageIndex does not match
// the cursor (re-program or out-of-order program).
func (t *Table) RecordWriteAt(blockID, pageIndex uint32) error {
	if int(blockID) >= len(t.slots) || pageIndex >= t.pagesPerBlock {
		return fmt.Errorf("block %d page %d: %w", blockID, pageIndex, flash.ErrOutOfRange)
	}

	s := &t.slots[blockID]
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.State == flash.StateBad {
		return fmt.Errorf("block %d: %w", blockID, flash.ErrBadBlock)
	}
	if s.rec.WriteCount >= t.pagesPerBlock {
		return fmt.Errorf("block %d: %w", blockID, flash.ErrBlockFull)
	}
	if pageIndex != s.rec.WriteCount {
		return fmt.Errorf("block %d page %d (next writable page is %d): %w",
			blockID, pageIndex, s.rec.WriteCount, flash.ErrNotErased)
	}

	s.rec.WriteCount++
	return nil
}

// MarkBad quarantines a block. Idempotent: marking an already-bad block
// succeeds without changing the recorded reason, so the first failure
// cause is preserved.
func (t *Table) MarkBad(blockID uint32, reason string) error {
	if int(blockID) >= len(t.slots) {
		return fmt.Errorf("block %d: %w", blockID, flash.ErrOutOfRange)
	}

	s := &t.slots[blockID]
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rec.State == flash.StateBad {
		return nil
	}

	s.rec.State = flash.StateBad
	s.rec.BadReason = reason
	return nil
}

// Stats aggregates state counts and erase-count statistics over all blocks.
func (t *Table) Stats() flash.Stats {
	stats := flash.Stats{TotalBlocks: uint32(len(t.slots))}

	var totalErases uint64
	for i := range t.slots {
		s := &t.slots[i]
		s.mu.Lock()
		rec := s.rec
		s.mu.Unlock()

		switch rec.State {
		case flash.StateGood:
			stats.GoodBlocks++
		case flash.StateWorn:
			stats.WornBlocks++
		case flash.StateBad:
			stats.BadBlocks++
		}

		totalErases += uint64(rec.EraseCount)
		if rec.EraseCount > stats.MaxEraseCount {
			stats.MaxEraseCount = rec.EraseCount
		}
	}

	stats.AvgEraseCount = float64(totalErases) / float64(len(t.slots))
	return stats
}
