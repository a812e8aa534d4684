// Package mm implements the kernel's physical page allocator (component A)
// and per-thread address-space builder (component B). Both operate on a
// fixed external-RAM region divided into 1 MB frames, the way the teacher
// kernel's page.go carves up its RAM into PAGE_SIZE frames — except here a
// frame is a full MMU section (1 MB), matching the one-level, section-only
// table this kernel's MMU uses.
package mm

import "fmt"

const (
	// KB and MB are the usual binary units.
	KB = 1024
	MB = 1024 * KB

	// ExtRAMBase and ExtRAMLen bound the external RAM region the frame
	// allocator manages. Values match the reference kernel's util.h.
	ExtRAMBase uintptr = 0x20000000
	ExtRAMLen  uintptr = 64 * MB

	// FrameCount is the number of 1 MB frames in ExtRAMLen.
	FrameCount = int(ExtRAMLen / MB)

	// bitsPerWord is the width of one bitmap word.
	bitsPerWord = 32

	// reservedFrames is the number of frames pre-reserved for the kernel
	// itself (frames 0 and 1); free/allocate refuse to touch them.
	reservedFrames = 2
)

// FrameAllocator owns a bitmap of physical frames in the external RAM
// region. Bit set means allocated; bit clear means free. Frames 0 and 1
// start out (and must remain) permanently reserved.
type FrameAllocator struct {
	bitmap [FrameCount / bitsPerWord]uint32
}

// NewFrameAllocator returns an allocator with frames 0 and 1 pre-reserved,
// mirroring memmgmt_init_allocation_table's `alloc_table[0] = 0x3`.
func NewFrameAllocator() *FrameAllocator {
	fa := &FrameAllocator{}
	fa.bitmap[0] = 0x3
	return fa
}

// AddrToFrame translates a physical address to its frame index, or -1 if
// the address falls outside the managed RAM region.
func AddrToFrame(addr uintptr) int {
	if addr < ExtRAMBase || addr >= ExtRAMBase+ExtRAMLen {
		return -1
	}
	return int((addr - ExtRAMBase) / MB)
}

// FrameToAddr returns the base physical address of frame k.
func FrameToAddr(k int) uintptr {
	return ExtRAMBase + uintptr(k)*MB
}

// FindFree performs a first-fit scan over the bitmap, skipping fully
// allocated words, and returns the first free frame index or -1.
func (fa *FrameAllocator) FindFree() int {
	for i, word := range fa.bitmap {
		if word == 0xFFFFFFFF {
			continue
		}
		for b := 0; b < bitsPerWord; b++ {
			if word&(1<<uint(b)) == 0 {
				return i*bitsPerWord + b
			}
		}
	}
	return -1
}

// Allocate sets the bit for frame k. It fails (returns false) if the frame
// is already allocated or out of range.
func (fa *FrameAllocator) Allocate(k int) bool {
	if k < 0 || k >= FrameCount {
		return false
	}
	idx, bit := k/bitsPerWord, uint(k%bitsPerWord)
	mask := uint32(1) << bit
	if fa.bitmap[idx]&mask != 0 {
		return false
	}
	fa.bitmap[idx] |= mask
	return true
}

// Free clears the bit for frame k. It refuses to free reserved frames
// (k <= 1) or frames outside the table.
func (fa *FrameAllocator) Free(k int) bool {
	if k <= 1 || k >= FrameCount {
		return false
	}
	idx, bit := k/bitsPerWord, uint(k%bitsPerWord)
	mask := uint32(1) << bit
	if fa.bitmap[idx]&mask == 0 {
		return false
	}
	fa.bitmap[idx] &^= mask
	return true
}

// IsAllocated reports whether frame k's bit is set.
func (fa *FrameAllocator) IsAllocated(k int) bool {
	if k < 0 || k >= FrameCount {
		return false
	}
	idx, bit := k/bitsPerWord, uint(k%bitsPerWord)
	return fa.bitmap[idx]&(1<<bit) != 0
}

// AllocateContiguous repeatedly finds and allocates n frames, rolling back
// everything it allocated if it runs out of free frames partway through,
// and returns the base address of the run or 0 on failure.
//
// spec.md's §4.A describes the reference behavior — "on partial failure it
// currently returns 0 without rolling back" — as something implementers
// "must preserve ... unless strengthening it" (§9: "No rollback on partial
// contiguous allocation"). This implementation takes the strengthening
// option: it records every frame it allocates and frees them all before
// returning 0. allocateContiguousNoRollback below keeps the original,
// leaking behavior visible for anyone checking the gap.
func (fa *FrameAllocator) AllocateContiguous(n int) uintptr {
	if n <= 0 {
		return 0
	}

	allocated := make([]int, 0, n)
	for i := 0; i < n; i++ {
		k := fa.FindFree()
		if k == -1 || !fa.Allocate(k) {
			for _, f := range allocated {
				fa.Free(f)
			}
			return 0
		}
		allocated = append(allocated, k)
	}

	return FrameToAddr(allocated[0])
}

// allocateContiguousNoRollback is the reference's original, leaking
// behavior: on partial failure it returns 0 and leaves whatever frames it
// already allocated marked as used. Kept only for the test that documents
// this historical gap; production code should call AllocateContiguous.
func (fa *FrameAllocator) allocateContiguousNoRollback(n int) uintptr {
	var first uintptr
	for i := 0; i < n; i++ {
		k := fa.FindFree()
		if !fa.Allocate(k) {
			return 0
		}
		if i == 0 {
			first = FrameToAddr(k)
		}
	}
	return first
}

// FreeContiguous frees n consecutive frames starting at the frame
// containing base, aborting on the first failure.
func (fa *FrameAllocator) FreeContiguous(n int, base uintptr) error {
	k := AddrToFrame(base)
	if k == -1 {
		return fmt.Errorf("mm: FreeContiguous: base 0x%x outside managed RAM", base)
	}
	for i := 0; i < n; i++ {
		if !fa.Free(k + i) {
			return fmt.Errorf("mm: FreeContiguous: frame %d could not be freed", k+i)
		}
	}
	return nil
}
