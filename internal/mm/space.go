package mm

const (
	// TTBEntries is the number of entries in a section table, indexed by
	// the high 12 bits of a virtual address (one entry per 1 MB section).
	TTBEntries = 4096

	// TTBSize is the size, in bytes, of one thread's section table.
	TTBSize = TTBEntries * 4

	// TTBFirstAddr is the base of the reserved region holding per-thread
	// section tables, one per thread ID, TTBSize bytes apart.
	TTBFirstAddr = ExtRAMBase + 512*KB

	// sectionTypeDomain carries the fixed "this is a section descriptor,
	// domain 0" bits the reference kernel ORs into every non-empty entry
	// (memmgmt_section_descriptor's `options = 0x00000012`).
	sectionTypeDomain = 0x00000012

	// sectionAddrMask isolates the physical/virtual section base (high 12
	// bits) from an address or descriptor word.
	sectionAddrMask = 0xFFF00000

	// apShift is where the 2-bit access-permission field sits in a
	// section descriptor.
	apShift = 10
)

// The three access-permission encodings a section descriptor's 2-bit AP
// field can hold, matching memmgmt_section_descriptor: the kernel itself is
// always accessible to supervisor code regardless of these bits, which only
// gate user-mode access.
const (
	PermNone     uint32 = 1 // supervisor RW, no user access
	PermUserRead uint32 = 2 // supervisor RW, user read-only
	PermUserRW   uint32 = 3 // supervisor RW, user read-write
)

// permField returns the 2-bit access-permission encoding for a requested
// (read, write) pair. Write without read is promoted to read-only.
func permField(read, write bool) uint32 {
	switch {
	case read && write:
		return PermUserRW
	case read || write:
		return PermUserRead
	default:
		return PermNone
	}
}

// SectionTable is a thread's one-level translation table: 4096 entries,
// each either 0 (empty, causing an access fault) or a section descriptor.
type SectionTable [TTBEntries]uint32

// descriptor builds the section descriptor that maps a 1 MB section whose
// base is phys, with the given user access permissions.
func descriptor(phys uintptr, read, write bool) uint32 {
	base := uint32(phys) & sectionAddrMask
	return base | sectionTypeDomain | permField(read, write)<<apShift
}

// MapPage writes the section descriptor for page_num directly, mapping it
// to target's containing section. It is a no-op for an out-of-range
// page_num.
func MapPage(ttb *SectionTable, pageNum uint32, target uintptr, read, write bool) {
	if pageNum >= TTBEntries {
		return
	}
	ttb[pageNum] = descriptor(target, read, write)
}

// MapTo maps physical address fromPhys to virtual address toVirt, masking
// both to their containing section. It records the target frame as
// allocated in fa.
//
// This is idempotent at the table level (writing the same descriptor
// twice is harmless) but NOT idempotent at the bitmap level: spec.md §9
// ("Double-counting in map_to") calls out that MapTo allocates the target
// frame unconditionally, so mapping the same frame twice double-counts it.
// That is preserved here deliberately; callers that care should consult
// fa.IsAllocated before calling MapTo.
func MapTo(ttb *SectionTable, fa *FrameAllocator, fromPhys, toVirt uintptr, read, write bool) {
	fromPhys &^= MB - 1
	toVirt &^= MB - 1

	MapPage(ttb, uint32(toVirt/MB), fromPhys, read, write)

	if k := AddrToFrame(fromPhys); k != -1 {
		fa.Allocate(k)
	}
}

// MapAny maps fromVirt to a freshly allocated physical frame, refusing if
// the section is already mapped. It reports whether the mapping succeeded.
func MapAny(ttb *SectionTable, fa *FrameAllocator, fromVirt uintptr, read, write bool) bool {
	entry := uint32((fromVirt &^ (MB - 1)) / MB)
	if ttb[entry] != 0 {
		return false
	}

	k := fa.FindFree()
	if k == -1 {
		return false
	}
	fa.Allocate(k)

	MapPage(ttb, uint32(fromVirt/MB), FrameToAddr(k), read, write)
	return true
}

// UnmapPage zeroes the descriptor at page_num. The bitmap bit for the
// frame that had been mapped there is left set: freeing the frame is the
// caller's job, normally via CleanupThread (spec.md §8, round-trip
// properties: "asymmetry is intentional").
func UnmapPage(ttb *SectionTable, pageNum uint32) {
	if pageNum >= TTBEntries {
		return
	}
	ttb[pageNum] = 0
}

// Resolve returns the physical address virt maps to under ttb, or 0 if the
// entry is empty.
func Resolve(ttb *SectionTable, virt uintptr) uintptr {
	offset := virt & (MB - 1)
	index := virt / MB
	if index >= TTBEntries {
		return 0
	}

	entry := ttb[index]
	if entry == 0 {
		return 0
	}

	return uintptr(entry&sectionAddrMask) | offset
}

// SetupThread returns a fresh, zeroed section table for thread id, ready to
// be populated. The table is an ordinary Go value: it is not placed at the
// id-indexed address in the reserved TTB region, and id is not used here
// (ThreadTTBAddr computes that address separately).
func SetupThread(id uint32) *SectionTable {
	return &SectionTable{}
}

// ThreadTTBAddr returns the physical address a thread's section table
// would live at, for bookkeeping and for CleanupThread's self-frame-free
// step in a real target build.
func ThreadTTBAddr(id uint32) uintptr {
	return TTBFirstAddr + uintptr(id-1)*16*KB
}

// CleanupThread frees every frame a non-empty entry points to (skipping
// the two permanently reserved frames), then frees the frame housing the
// table itself.
func CleanupThread(ttb *SectionTable, fa *FrameAllocator, id uint32) {
	for _, entry := range ttb {
		if entry == 0 {
			continue
		}
		phys := uintptr(entry & sectionAddrMask)
		if k := AddrToFrame(phys); k > 1 {
			fa.Free(k)
		}
	}

	if k := AddrToFrame(ThreadTTBAddr(id) &^ (MB - 1)); k > 1 {
		fa.Free(k)
	}
}
