package mm

import "testing"

func TestNewFrameAllocatorReservesFirstTwoFrames(t *testing.T) {
	fa := NewFrameAllocator()
	if !fa.IsAllocated(0) || !fa.IsAllocated(1) {
		t.Fatal("frames 0 and 1 must start allocated")
	}
	if fa.IsAllocated(2) {
		t.Fatal("frame 2 must start free")
	}
}

func TestFindFreeSkipsAllocatedWords(t *testing.T) {
	fa := NewFrameAllocator()
	if got := fa.FindFree(); got != 2 {
		t.Fatalf("FindFree() = %d, want 2", got)
	}

	for k := 2; k < FrameCount; k++ {
		fa.Allocate(k)
	}
	if got := fa.FindFree(); got != -1 {
		t.Fatalf("FindFree() = %d, want -1 once full", got)
	}
}

func TestAllocateRejectsDoubleAllocation(t *testing.T) {
	fa := NewFrameAllocator()
	if !fa.Allocate(5) {
		t.Fatal("Allocate(5) should succeed the first time")
	}
	if fa.Allocate(5) {
		t.Fatal("Allocate(5) should fail the second time")
	}
}

func TestFreeRefusesReservedFrames(t *testing.T) {
	fa := NewFrameAllocator()
	if fa.Free(0) || fa.Free(1) {
		t.Fatal("Free must refuse frames 0 and 1")
	}
	if fa.Free(FrameCount) || fa.Free(FrameCount + 10) {
		t.Fatal("Free must refuse out-of-range frames")
	}
}

func TestAddrFrameRoundTrip(t *testing.T) {
	for k := 0; k < FrameCount; k++ {
		addr := FrameToAddr(k)
		if got := AddrToFrame(addr); got != k {
			t.Fatalf("AddrToFrame(FrameToAddr(%d)) = %d", k, got)
		}
	}

	if AddrToFrame(ExtRAMBase - 1) != -1 {
		t.Fatal("address below ExtRAMBase must translate to -1")
	}
	if AddrToFrame(ExtRAMBase+ExtRAMLen) != -1 {
		t.Fatal("address at/above the end of RAM must translate to -1")
	}
}

func TestAllocateContiguousRollsBackOnFailure(t *testing.T) {
	fa := NewFrameAllocator()

	// Leave exactly 3 frames free (10-12), so a request for 5 frames can't
	// be satisfied without touching already-allocated frames.
	for k := 2; k < FrameCount; k++ {
		fa.Allocate(k)
	}
	fa.Free(10)
	fa.Free(11)
	fa.Free(12)

	if base := fa.AllocateContiguous(5); base != 0 {
		t.Fatalf("AllocateContiguous(5) = 0x%x, want 0 (not enough frames)", base)
	}

	// Rollback must have restored frames 10-12 to free.
	for _, k := range []int{10, 11, 12} {
		if fa.IsAllocated(k) {
			t.Fatalf("frame %d should have been rolled back to free", k)
		}
	}
}

func TestAllocateContiguousSucceeds(t *testing.T) {
	fa := NewFrameAllocator()
	base := fa.AllocateContiguous(4)
	if base == 0 {
		t.Fatal("AllocateContiguous(4) unexpectedly failed")
	}
	for k := AddrToFrame(base); k < AddrToFrame(base)+4; k++ {
		if !fa.IsAllocated(k) {
			t.Fatalf("frame %d should be allocated after AllocateContiguous", k)
		}
	}
}

func TestAllocateContiguousNoRollbackLeaksOnFailure(t *testing.T) {
	// Documents the reference kernel's original, non-strengthened behavior
	// (spec.md §9: "No rollback on partial contiguous allocation").
	fa := NewFrameAllocator()
	for k := 2; k < FrameCount; k++ {
		fa.Allocate(k)
	}
	fa.Free(10)

	if base := fa.allocateContiguousNoRollback(3); base != 0 {
		t.Fatalf("allocateContiguousNoRollback(3) = 0x%x, want 0", base)
	}
	if !fa.IsAllocated(10) {
		t.Fatal("reference behavior leaks the frame it already allocated on failure")
	}
}

func TestFreeContiguousAbortsOnFirstFailure(t *testing.T) {
	fa := NewFrameAllocator()
	fa.Allocate(20)
	// 21 left unallocated, so freeing it should fail and abort the run.

	if err := fa.FreeContiguous(2, FrameToAddr(20)); err == nil {
		t.Fatal("FreeContiguous should fail when a frame in the run isn't allocated")
	}
	if fa.IsAllocated(20) {
		t.Fatal("frame 20 should have been freed before the abort")
	}
}
