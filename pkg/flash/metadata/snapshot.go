package metadata

import (
	"fmt"
	"time"

	"github.com/marmos91/flashcore/pkg/flash"
)

// Snapshot is the table's state as plain structured data, so integrators
// can persist it (for example in a reserved device region or an embedded
// store) without reaching into table internals.
type Snapshot struct {
	TakenAt       time.Time           `json:"taken_at" yaml:"taken_at"`
	TotalBlocks   uint32              `json:"total_blocks" yaml:"total_blocks"`
	PagesPerBlock uint32              `json:"pages_per_block" yaml:"pages_per_block"`
	Policy        flash.Policy        `json:"policy" yaml:"policy"`
	Blocks        []flash.BlockRecord `json:"blocks" yaml:"blocks"`
}

// Snapshot captures the current state of every block record.
func (t *Table) Snapshot() *Snapshot {
	snap := &Snapshot{
		TakenAt:       time.Now().UTC(),
		TotalBlocks:   uint32(len(t.slots)),
		PagesPerBlock: t.pagesPerBlock,
		Policy:        t.policy,
		Blocks:        make([]flash.BlockRecord, len(t.slots)),
	}

	for i := range t.slots {
		s := &t.slots[i]
		s.mu.Lock()
		snap.Blocks[i] = s.rec
		s.mu.Unlock()
	}

	return snap
}

// Restore replaces the table's records with a previously captured snapshot.
// Intended for startup, before the table is visible to any other goroutine;
// it does not coordinate with concurrent mutations.
func (t *Table) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	if snap.TotalBlocks != uint32(len(t.slots)) || len(snap.Blocks) != len(t.slots) {
		return fmt.Errorf("snapshot has %d blocks (%d records), table has %d",
			snap.TotalBlocks, len(snap.Blocks), len(t.slots))
	}
	if snap.PagesPerBlock != t.pagesPerBlock {
		return fmt.Errorf("snapshot has %d pages per block, table has %d",
			snap.PagesPerBlock, t.pagesPerBlock)
	}

	for i, rec := range snap.Blocks {
		if rec.BlockID != uint32(i) {
			return fmt.Errorf("snapshot record %d has block id %d", i, rec.BlockID)
		}
		if !rec.State.Valid() {
			return fmt.Errorf("snapshot record %d has invalid state %d", i, int(rec.State))
		}
		if rec.State == flash.StateBad && rec.BadReason == "" {
			return fmt.Errorf("snapshot record %d is bad without a reason", i)
		}
		if rec.WriteCount > snap.PagesPerBlock {
			return fmt.Errorf("snapshot record %d write count %d exceeds pages per block %d",
				i, rec.WriteCount, snap.PagesPerBlock)
		}
		// A snapshot taken under a laxer policy must not smuggle in records
		// this table's policy would already have demoted or retired.
		if rec.State != flash.StateBad && rec.EraseCount >= t.policy.MaxEraseCount {
			return fmt.Errorf("snapshot record %d is usable with erase count %d at or above the erase ceiling %d",
				i, rec.EraseCount, t.policy.MaxEraseCount)
		}
		if rec.State == flash.StateGood && rec.EraseCount >= t.policy.WornThreshold {
			return fmt.Errorf("snapshot record %d is good with erase count %d at or above the worn threshold %d",
				i, rec.EraseCount, t.policy.WornThreshold)
		}
	}

	for i := range t.slots {
		s := &t.slots[i]
		s.mu.Lock()
		s.rec = snap.Blocks[i]
		s.mu.Unlock()
	}

	return nil
}
