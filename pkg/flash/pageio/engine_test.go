package pageio

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/marmos91/flashcore/pkg/flash"
	"github.com/marmos91/flashcore/pkg/flash/metadata"
	"github.com/marmos91/flashcore/pkg/medium"
	"github.com/marmos91/flashcore/pkg/medium/memory"
)

// testGeometry: 4 blocks × 2 pages, 64-byte pages with 8-byte OOB.
func testSetup(t *testing.T) (*Engine, *metadata.Table, *memory.Medium) {
	t.Helper()

	geo, err := flash.NewGeometry(64, 8, 128, 4)
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}
	table, err := metadata.New(geo.TotalBlocks, geo.PagesPerBlock(), flash.Policy{MaxEraseCount: 100, WornThreshold: 50})
	if err != nil {
		t.Fatalf("metadata.New failed: %v", err)
	}
	med := memory.New(geo.DeviceSpan())
	t.Cleanup(func() { med.Close() })

	engine, err := New(geo, med, table)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return engine, table, med
}

func TestProgramAndReadPage(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := testSetup(t)

	data := bytes.Repeat([]byte{0x5A}, 64)
	oob := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	if err := engine.ProgramPage(ctx, 1, 0, data, oob); err != nil {
		t.Fatalf("ProgramPage failed: %v", err)
	}

	gotData := make([]byte, 64)
	gotOOB := make([]byte, 8)
	if err := engine.ReadPage(ctx, 1, 0, gotData, gotOOB); err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}

	if !bytes.Equal(gotData, data) {
		t.Error("page data does not round-trip")
	}
	if !bytes.Equal(gotOOB, oob) {
		t.Errorf("oob = %v, want %v", gotOOB, oob)
	}
}

func TestPagesDoNotOverlap(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := testSetup(t)

	first := bytes.Repeat([]byte{0x11}, 64)
	second := bytes.Repeat([]byte{0x22}, 64)

	if err := engine.ProgramPage(ctx, 0, 0, first, nil); err != nil {
		t.Fatalf("ProgramPage(0,0) failed: %v", err)
	}
	if err := engine.ProgramPage(ctx, 0, 1, second, nil); err != nil {
		t.Fatalf("ProgramPage(0,1) failed: %v", err)
	}

	got := make([]byte, 64)
	if err := engine.ReadPage(ctx, 0, 0, got, nil); err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}
	if !bytes.Equal(got, first) {
		t.Error("page 0 corrupted by programming page 1")
	}
}

func TestProgramOrdering(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := testSetup(t)

	data := make([]byte, 64)

	if err := engine.ProgramPage(ctx, 0, 1, data, nil); !errors.Is(err, flash.ErrNotErased) {
		t.Errorf("out-of-order program returned %v, want ErrNotErased", err)
	}

	if err := engine.ProgramPage(ctx, 0, 0, data, nil); err != nil {
		t.Fatalf("ProgramPage failed: %v", err)
	}
	if err := engine.ProgramPage(ctx, 0, 0, data, nil); !errors.Is(err, flash.ErrNotErased) {
		t.Errorf("re-program returned %v, want ErrNotErased", err)
	}
}

func TestProgramFullBlock(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := testSetup(t)

	data := make([]byte, 64)
	if err := engine.ProgramPage(ctx, 0, 0, data, nil); err != nil {
		t.Fatalf("ProgramPage failed: %v", err)
	}
	if err := engine.ProgramPage(ctx, 0, 1, data, nil); err != nil {
		t.Fatalf("ProgramPage failed: %v", err)
	}

	// Cursor is past the last page; a repeat of the final page reports full.
	if err := engine.ProgramPage(ctx, 0, 1, data, nil); !errors.Is(err, flash.ErrBlockFull) {
		t.Errorf("program on full block returned %v, want ErrBlockFull", err)
	}
}

func TestEraseResetsCursorAndContent(t *testing.T) {
	ctx := context.Background()
	engine, table, _ := testSetup(t)

	data := bytes.Repeat([]byte{0x00}, 64)
	if err := engine.ProgramPage(ctx, 2, 0, data, nil); err != nil {
		t.Fatalf("ProgramPage failed: %v", err)
	}

	if err := engine.EraseBlock(ctx, 2); err != nil {
		t.Fatalf("EraseBlock failed: %v", err)
	}
	// The engine records nothing; the caller accounts for wear.
	if err := table.RecordErase(2); err != nil {
		t.Fatalf("RecordErase failed: %v", err)
	}

	got := make([]byte, 64)
	if err := engine.ReadPage(ctx, 2, 0, got, nil); err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}
	for i, b := range got {
		if b != medium.ErasedByte {
			t.Fatalf("byte %d = %#x after erase, want %#x", i, b, medium.ErasedByte)
		}
	}

	// Page 0 is programmable again.
	if err := engine.ProgramPage(ctx, 2, 0, data, nil); err != nil {
		t.Errorf("ProgramPage after erase failed: %v", err)
	}
}

func TestEraseDoesNotTouchMetadata(t *testing.T) {
	ctx := context.Background()
	engine, table, _ := testSetup(t)

	if err := engine.EraseBlock(ctx, 0); err != nil {
		t.Fatalf("EraseBlock failed: %v", err)
	}

	rec, _ := table.Get(0)
	if rec.EraseCount != 0 {
		t.Errorf("erase count = %d after engine erase, want 0 (accounting is the caller's)", rec.EraseCount)
	}
}

func TestBadBlockRefused(t *testing.T) {
	ctx := context.Background()
	engine, table, _ := testSetup(t)

	if err := table.MarkBad(3, "test"); err != nil {
		t.Fatalf("MarkBad failed: %v", err)
	}

	data := make([]byte, 64)
	if err := engine.ProgramPage(ctx, 3, 0, data, nil); !errors.Is(err, flash.ErrBadBlock) {
		t.Errorf("ProgramPage on bad block returned %v, want ErrBadBlock", err)
	}
	if err := engine.EraseBlock(ctx, 3); !errors.Is(err, flash.ErrBadBlock) {
		t.Errorf("EraseBlock on bad block returned %v, want ErrBadBlock", err)
	}
	if err := engine.ReadPage(ctx, 3, 0, data, nil); !errors.Is(err, flash.ErrBadBlock) {
		t.Errorf("ReadPage on bad block returned %v, want ErrBadBlock", err)
	}

	// Recovery reads are still permitted.
	if err := engine.RecoveryReadPage(ctx, 3, 0, data, nil); err != nil {
		t.Errorf("RecoveryReadPage on bad block failed: %v", err)
	}
}

func TestBounds(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := testSetup(t)

	data := make([]byte, 64)
	cases := []struct {
		name string
		op   func() error
	}{
		{"read bad block index", func() error { return engine.ReadPage(ctx, 4, 0, data, nil) }},
		{"read bad page index", func() error { return engine.ReadPage(ctx, 0, 2, data, nil) }},
		{"program bad block index", func() error { return engine.ProgramPage(ctx, 4, 0, data, nil) }},
		{"erase bad block index", func() error { return engine.EraseBlock(ctx, 4) }},
		{"oversized data buffer", func() error { return engine.ProgramPage(ctx, 0, 0, make([]byte, 65), nil) }},
		{"oversized oob buffer", func() error { return engine.ProgramPage(ctx, 0, 0, data, make([]byte, 9)) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.op(); !errors.Is(err, flash.ErrOutOfRange) {
				t.Errorf("returned %v, want ErrOutOfRange", err)
			}
		})
	}
}

func TestEraseFailure(t *testing.T) {
	ctx := context.Background()
	engine, table, med := testSetup(t)

	med.FailEraseAt(0, 1)

	err := engine.EraseBlock(ctx, 0)
	if !errors.Is(err, flash.ErrEraseFailed) {
		t.Fatalf("EraseBlock returned %v, want ErrEraseFailed", err)
	}

	// The engine does not quarantine; that is the caller's decision.
	rec, _ := table.Get(0)
	if rec.State != flash.StateGood {
		t.Errorf("block state = %v after engine-level failure, want good", rec.State)
	}
}

func TestEraseCanceledBeforeIssueIsNotAFailure(t *testing.T) {
	engine, _, _ := testSetup(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The erase never reached the medium, so the error is the caller's
	// cancellation, not ErrEraseFailed, and no quarantine follows.
	err := engine.EraseBlock(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("EraseBlock returned %v, want context.Canceled", err)
	}
	if errors.Is(err, flash.ErrEraseFailed) {
		t.Error("cancellation before issue reported as a physical erase failure")
	}
}

func TestProgramFailure(t *testing.T) {
	ctx := context.Background()
	engine, _, med := testSetup(t)

	med.FailWriteAt(0, 1)

	err := engine.ProgramPage(ctx, 0, 0, make([]byte, 64), nil)
	if !errors.Is(err, flash.ErrProgramFailed) {
		t.Fatalf("ProgramPage returned %v, want ErrProgramFailed", err)
	}
}

func TestNewRejectsSmallMedium(t *testing.T) {
	geo, _ := flash.NewGeometry(64, 8, 128, 4)
	table, _ := metadata.New(4, 2, flash.Policy{MaxEraseCount: 100, WornThreshold: 50})

	med := memory.New(16) // far too small
	defer med.Close()

	if _, err := New(geo, med, table); !errors.Is(err, flash.ErrInvalidGeometry) {
		t.Errorf("New returned %v, want ErrInvalidGeometry", err)
	}
}
