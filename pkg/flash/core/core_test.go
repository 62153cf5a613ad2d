package core

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/marmos91/flashcore/pkg/flash"
	"github.com/marmos91/flashcore/pkg/medium/memory"
)

func newTestCore(t *testing.T, totalBlocks uint32) (*Core, *memory.Medium, flash.Geometry) {
	t.Helper()

	// 4 bytes per page, 2 pages per block, 1 byte OOB.
	geo, err := flash.NewGeometry(4, 1, 8, totalBlocks)
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}

	med := memory.New(geo.DeviceSpan())
	c, err := New(Config{
		Geometry: geo,
		Policy:   flash.Policy{MaxEraseCount: 1000, WornThreshold: 500},
		Medium:   med,
	})
	if err != nil {
		t.Fatalf("core.New failed: %v", err)
	}
	return c, med, geo
}

func TestWearSpreadAcrossBlocks(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCore(t, 4)

	// Four failure-free allocations on a fresh 4-block device visit each
	// block exactly once, leaving every erase count at 1.
	seen := make(map[uint32]bool)
	for i := 0; i < 4; i++ {
		id, err := c.AllocateAndErase(ctx)
		if err != nil {
			t.Fatalf("AllocateAndErase %d failed: %v", i, err)
		}
		if seen[id] {
			t.Errorf("block %d allocated twice", id)
		}
		seen[id] = true
	}

	for id := uint32(0); id < 4; id++ {
		rec, err := c.BlockRecord(id)
		if err != nil {
			t.Fatalf("BlockRecord failed: %v", err)
		}
		if rec.EraseCount != 1 {
			t.Errorf("block %d erase count = %d, want 1", id, rec.EraseCount)
		}
	}
}

func TestAllocationCanceledContextCondemnsNothing(t *testing.T) {
	c, _, _ := newTestCore(t, 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A canceled caller is not a failing device: no erase was ever issued,
	// so every block must stay good and eligible.
	_, err := c.AllocateAndErase(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("AllocateAndErase returned %v, want context.Canceled", err)
	}

	stats := c.Statistics()
	if stats.GoodBlocks != 4 || stats.BadBlocks != 0 {
		t.Errorf("stats = %+v after canceled allocation, want 4 good and 0 bad", stats)
	}

	// The device still allocates normally afterwards.
	if _, err := c.AllocateAndErase(context.Background()); err != nil {
		t.Errorf("AllocateAndErase after cancellation failed: %v", err)
	}
}

func TestAllocationSkipsFailingBlock(t *testing.T) {
	ctx := context.Background()
	c, med, geo := newTestCore(t, 4)

	// Block 0 fails its first erase: the allocation quarantines it and
	// hands out block 1 instead.
	med.FailEraseAt(geo.BlockOffset(0), 1)

	id, err := c.AllocateAndErase(ctx)
	if err != nil {
		t.Fatalf("AllocateAndErase failed: %v", err)
	}
	if id != 1 {
		t.Errorf("allocation returned block %d, want 1", id)
	}

	rec, err := c.BlockRecord(0)
	if err != nil {
		t.Fatalf("BlockRecord failed: %v", err)
	}
	if rec.State != flash.StateBad {
		t.Errorf("block 0 state = %v, want bad", rec.State)
	}
	if rec.BadReason != "erase failed" {
		t.Errorf("block 0 reason = %q, want %q", rec.BadReason, "erase failed")
	}
	if c.IsUsable(0) {
		t.Error("quarantined block 0 reported usable")
	}
}

func TestAllocationExhaustsDevice(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCore(t, 4)

	for id := uint32(0); id < 4; id++ {
		if err := c.MarkBad(id, "test"); err != nil {
			t.Fatalf("MarkBad failed: %v", err)
		}
	}

	if _, err := c.AllocateAndErase(ctx); !errors.Is(err, flash.ErrNoEligibleBlock) {
		t.Errorf("AllocateAndErase returned %v, want ErrNoEligibleBlock", err)
	}
}

func TestProgramReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCore(t, 2)

	id, err := c.AllocateAndErase(ctx)
	if err != nil {
		t.Fatalf("AllocateAndErase failed: %v", err)
	}

	want := []byte{0x01, 0x02, 0x03, 0x04}
	wantOOB := []byte{0x7f}
	if err := c.ProgramPage(ctx, id, 0, want, wantOOB); err != nil {
		t.Fatalf("ProgramPage failed: %v", err)
	}

	data, oob, err := c.ReadPage(ctx, id, 0)
	if err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}
	if !bytes.Equal(data, want) {
		t.Errorf("read back %v, want %v", data, want)
	}
	if !bytes.Equal(oob, wantOOB) {
		t.Errorf("oob read back %v, want %v", oob, wantOOB)
	}
}

func TestProgramFailureQuarantinesBlock(t *testing.T) {
	ctx := context.Background()
	c, med, geo := newTestCore(t, 2)

	id, err := c.AllocateAndErase(ctx)
	if err != nil {
		t.Fatalf("AllocateAndErase failed: %v", err)
	}

	med.FailWriteAt(geo.PageOffset(id, 0), 1)

	err = c.ProgramPage(ctx, id, 0, []byte{1, 2, 3, 4}, nil)
	if !errors.Is(err, flash.ErrProgramFailed) {
		t.Fatalf("ProgramPage returned %v, want ErrProgramFailed", err)
	}

	rec, err := c.BlockRecord(id)
	if err != nil {
		t.Fatalf("BlockRecord failed: %v", err)
	}
	if rec.State != flash.StateBad {
		t.Errorf("block %d state = %v, want bad after program failure", id, rec.State)
	}
	if rec.BadReason != "program failed" {
		t.Errorf("block %d reason = %q, want %q", id, rec.BadReason, "program failed")
	}

	// Reads of the quarantined block are refused, recovery reads are not.
	if _, _, err := c.ReadPage(ctx, id, 0); !errors.Is(err, flash.ErrBadBlock) {
		t.Errorf("ReadPage returned %v, want ErrBadBlock", err)
	}
	if _, _, err := c.RecoveryReadPage(ctx, id, 0); err != nil {
		t.Errorf("RecoveryReadPage failed: %v", err)
	}
}

func TestDirectEraseFailureQuarantinesBlock(t *testing.T) {
	ctx := context.Background()
	c, med, geo := newTestCore(t, 2)

	med.FailEraseAt(geo.BlockOffset(1), 1)

	err := c.EraseBlock(ctx, 1)
	if !errors.Is(err, flash.ErrEraseFailed) {
		t.Fatalf("EraseBlock returned %v, want ErrEraseFailed", err)
	}

	rec, err := c.BlockRecord(1)
	if err != nil {
		t.Fatalf("BlockRecord failed: %v", err)
	}
	if rec.State != flash.StateBad {
		t.Errorf("block 1 state = %v, want bad", rec.State)
	}
	if rec.EraseCount != 0 {
		t.Errorf("block 1 erase count = %d, failed erase must not count as wear", rec.EraseCount)
	}
}

func TestEraseBlockCountsWear(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCore(t, 2)

	if err := c.EraseBlock(ctx, 0); err != nil {
		t.Fatalf("EraseBlock failed: %v", err)
	}

	rec, err := c.BlockRecord(0)
	if err != nil {
		t.Fatalf("BlockRecord failed: %v", err)
	}
	if rec.EraseCount != 1 {
		t.Errorf("erase count = %d, want 1", rec.EraseCount)
	}
}

func TestScanAllReportsFailures(t *testing.T) {
	ctx := context.Background()
	c, med, geo := newTestCore(t, 4)

	med.FailEraseAt(geo.BlockOffset(2), 1)
	if err := c.MarkBad(3, "factory marked"); err != nil {
		t.Fatalf("MarkBad failed: %v", err)
	}

	report, err := c.ScanAll(ctx)
	if err != nil {
		t.Fatalf("ScanAll failed: %v", err)
	}
	if report.Good != 2 || report.NewlyBad != 1 || report.AlreadyBad != 1 {
		t.Errorf("scan report = %+v, want 2 good, 1 newly bad, 1 already bad", report)
	}

	rec, _ := c.BlockRecord(2)
	if rec.BadReason != "erase failed during scan" {
		t.Errorf("block 2 reason = %q, want %q", rec.BadReason, "erase failed during scan")
	}
}

func TestStatistics(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCore(t, 4)

	if _, err := c.AllocateAndErase(ctx); err != nil {
		t.Fatalf("AllocateAndErase failed: %v", err)
	}
	if err := c.MarkBad(3, "test"); err != nil {
		t.Fatalf("MarkBad failed: %v", err)
	}

	stats := c.Statistics()
	if stats.TotalBlocks != 4 {
		t.Errorf("total blocks = %d, want 4", stats.TotalBlocks)
	}
	if stats.GoodBlocks != 3 {
		t.Errorf("good blocks = %d, want 3", stats.GoodBlocks)
	}
	if stats.BadBlocks != 1 {
		t.Errorf("bad blocks = %d, want 1", stats.BadBlocks)
	}
	if stats.MaxEraseCount != 1 {
		t.Errorf("max erase count = %d, want 1", stats.MaxEraseCount)
	}
	if stats.AvgEraseCount != 0.25 {
		t.Errorf("avg erase count = %v, want 0.25", stats.AvgEraseCount)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCore(t, 4)

	id, err := c.AllocateAndErase(ctx)
	if err != nil {
		t.Fatalf("AllocateAndErase failed: %v", err)
	}
	if err := c.ProgramPage(ctx, id, 0, []byte{1, 2, 3, 4}, nil); err != nil {
		t.Fatalf("ProgramPage failed: %v", err)
	}
	if err := c.MarkBad(3, "test"); err != nil {
		t.Fatalf("MarkBad failed: %v", err)
	}

	snap := c.SnapshotTable()

	// A second core over the same medium resumes from the snapshot.
	c2, _, _ := newTestCore(t, 4)
	if err := c2.RestoreTable(snap); err != nil {
		t.Fatalf("RestoreTable failed: %v", err)
	}

	rec, err := c2.BlockRecord(id)
	if err != nil {
		t.Fatalf("BlockRecord failed: %v", err)
	}
	if rec.EraseCount != 1 || rec.WriteCount != 1 {
		t.Errorf("restored record = %+v, want erase count 1 and write count 1", rec)
	}
	if !c2.IsUsable(id) {
		t.Errorf("restored block %d reported unusable", id)
	}
	if c2.IsUsable(3) {
		t.Error("restored bad block 3 reported usable")
	}
}

func TestDeviceIDAssigned(t *testing.T) {
	c, _, _ := newTestCore(t, 2)
	if c.DeviceID() == uuid.Nil {
		t.Error("core without an explicit device id got the nil uuid")
	}

	want := uuid.New()
	geo := c.Geometry()
	c2, err := New(Config{
		Geometry: geo,
		Policy:   flash.Policy{MaxEraseCount: 10, WornThreshold: 5},
		Medium:   memory.New(geo.DeviceSpan()),
		DeviceID: want,
	})
	if err != nil {
		t.Fatalf("core.New failed: %v", err)
	}
	if c2.DeviceID() != want {
		t.Errorf("device id = %v, want %v", c2.DeviceID(), want)
	}
}
