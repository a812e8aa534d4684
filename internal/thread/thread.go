// Package thread owns the thread control block table: the fixed 32-slot
// TCB array, the intrusive parent/first-child/next-sibling family tree,
// the thread lifecycle (create/exit/activate/deactivate), and the
// blocking/unblocking machinery for the three wait reasons (input, char,
// timer). It is a direct port of the reference kernel's sys/thread.c,
// keeping the blocking machinery alongside the table it mutates rather
// than splitting it into a separate package, since the original does the
// same (thread_block_for_input et al. live in thread.c, not a separate
// translation unit).
package thread

import (
	"fmt"

	"armkernel/internal/bitfield"
	"armkernel/internal/mm"
	"armkernel/internal/ring"
)

// Status is a TCB's lifecycle state.
type Status uint8

const (
	StatusInactive Status = iota
	StatusReady
	StatusRunning
	StatusBlocked
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusInactive:
		return "INACTIVE"
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusBlocked:
		return "BLOCKED"
	case StatusTerminated:
		return "TERMINATED"
	default:
		return "INVALID"
	}
}

// Flags is a TCB's bitset of {UNPRIVILEGED, PRIVILEGED, DRIVER, TASK}.
type Flags uint8

const (
	FlagUnprivileged Flags = 1 << iota
	FlagPrivileged
	FlagDriver
	FlagTask
)

// flagBits is the tagged view of Flags that internal/bitfield packs and
// unpacks, the same way the teacher packs PageFlags: one bool field per
// flag, in the declaration order that fixes FlagUnprivileged at bit 0
// through FlagTask at bit 3.
type flagBits struct {
	Unprivileged bool `bitfield:",1"`
	Privileged   bool `bitfield:",1"`
	Driver       bool `bitfield:",1"`
	Task         bool `bitfield:",1"`
}

// packFlags builds a Flags byte from its named components via bitfield.Pack.
func packFlags(b flagBits) Flags {
	packed, err := bitfield.Pack(&b, &bitfield.Config{NumBits: 8})
	if err != nil {
		panic("thread: packFlags: " + err.Error())
	}
	return Flags(packed)
}

// unpackFlags recovers the named components of f via bitfield.Unpack.
func unpackFlags(f Flags) flagBits {
	var b flagBits
	if err := bitfield.Unpack(uint64(f), &b); err != nil {
		panic("thread: unpackFlags: " + err.Error())
	}
	return b
}

// Register slot indices within TCB.Registers, matching the layout the
// interrupt frame is captured in: r0-r10 general purpose, then fp, ip, sp,
// lr, pc, cpsr.
const (
	RegFP   = 11
	RegIP   = 12
	RegSP   = 13
	RegLR   = 14
	RegPC   = 15
	RegCPSR = 16

	NumRegisters = 17
)

const (
	CPSRUserMode   uint32 = 0x00000010
	CPSRSystemMode uint32 = 0x0000001F
)

const (
	// MaxThreads is the fixed capacity of the TCB table.
	MaxThreads = 32

	// RoundRobinTimeSlice is the number of ticks a RUNNING thread gets
	// before the scheduler forces a switch.
	RoundRobinTimeSlice = 3

	// StackSizePerTask is the per-task-child stack allocation, subtracted
	// from TopOfUserSpace once per sibling.
	StackSizePerTask = mm.MB

	// TopOfUserSpace is the fixed top-of-stack virtual address every
	// non-task thread's stack starts at.
	TopOfUserSpace uintptr = 0xF0000000

	// PrioDefault is the advisory priority new threads start with; the
	// current scheduler policy never consults it.
	PrioDefault uint16 = 1000

	// DestroyCode is the exit code a fatal user-mode fault terminates a
	// thread with.
	DestroyCode int32 = -1

	// idleID is the reserved, fixed id of the idle thread.
	idleID uint32 = 1
)

// TCB is one thread's saved state.
type TCB struct {
	ID              uint32
	ParentID        uint32
	FirstChildID    uint32
	NextSiblingID   uint32
	NumTaskChildren uint32
	Registers       [NumRegisters]uint32
	ExitCode        int32
	Flags           Flags
	Status          Status
	Prio            uint16
	TTB             *mm.SectionTable
}

func (t *TCB) String() string {
	f := unpackFlags(t.Flags)
	return fmt.Sprintf("TCB{id=%d parent=%d status=%s flags={unpriv=%t priv=%t driver=%t task=%t} pc=%#x sp=%#x}",
		t.ID, t.ParentID, t.Status, f.Unprivileged, f.Privileged, f.Driver, f.Task,
		t.Registers[RegPC], t.Registers[RegSP])
}

// WaitKind names the reason a slot is parked, per the unified wait-reason
// redesign in spec.md §9: rather than three independent structures with
// no common shape, every blocked slot carries exactly one WaitKind, which
// is what lets Exit close the "forgot to remove from the I/O queues" gap
// the original left open.
type WaitKind uint8

const (
	WaitNone WaitKind = iota
	WaitInput
	WaitChar
	WaitTimer
)

// Table is the thread table: the 32 TCB slots, the scheduler's notion of
// which slot is current, and the wait-set bookkeeping for all three
// blocking reasons.
type Table struct {
	threads [MaxThreads]TCB
	curIdx  uint32

	reason    [MaxThreads]WaitKind
	cancelled [MaxThreads]bool

	waitInput *ring.Ring[uint32]
	waitChar  *ring.Ring[uint32]
	sleeping  [MaxThreads]int32
}

// NewTable builds an empty table, then creates and activates the idle
// thread (slot 0, id 1), mirroring thread_init_management.
func NewTable(idleEntryPC uintptr, fa *mm.FrameAllocator) *Table {
	t := &Table{
		waitInput: ring.New[uint32](MaxThreads),
		waitChar:  ring.New[uint32](MaxThreads),
	}
	for i := range t.sleeping {
		t.sleeping[i] = -1
	}

	idle, ok := t.Create(idleEntryPC, 0, false, true, fa)
	if !ok {
		panic("thread: failed to create idle thread")
	}
	t.Activate(idle.ID)
	return t
}

// Slot returns a pointer to the TCB occupying the given 0-based slot.
func (t *Table) Slot(i int) *TCB { return &t.threads[i] }

// bySlot returns the TCB for the 1-based id (slot = id-1).
func (t *Table) bySlot(id uint32) *TCB { return &t.threads[id-1] }

// CurrentSlot returns the 0-based index of the currently selected thread.
func (t *Table) CurrentSlot() uint32 { return t.curIdx }

// SetCurrentSlot updates the currently selected thread; used by the
// scheduler after Select picks a new slot.
func (t *Table) SetCurrentSlot(idx uint32) { t.curIdx = idx }

// Current returns the TCB of the currently selected thread.
func (t *Table) Current() *TCB { return &t.threads[t.curIdx] }

// Create allocates a free TCB slot and initializes it, mirroring
// thread_create. fa is used to map the new thread's stack (and, for a
// non-task thread, its kernel/user-library identity mappings).
func (t *Table) Create(entryPC uintptr, parentID uint32, isTask bool, isIdle bool, fa *mm.FrameAllocator) (*TCB, bool) {
	slot := -1
	for i := 0; i < MaxThreads; i++ {
		if t.threads[i].ID == 0 {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, false
	}

	if isTask {
		if parentID == 0 {
			return nil, false
		}
		if t.bySlot(parentID).Flags&FlagTask != 0 {
			return nil, false
		}
	}

	tcb := &t.threads[slot]
	*tcb = TCB{}

	if isIdle {
		tcb.ID = idleID
	} else {
		tcb.ID = uint32(slot + 1)
	}
	tcb.Registers[RegPC] = uint32(entryPC)

	if isTask {
		parent := t.bySlot(parentID)
		parent.NumTaskChildren++
		tcb.Registers[RegSP] = uint32(TopOfUserSpace) - parent.NumTaskChildren*uint32(StackSizePerTask)
	} else {
		tcb.Registers[RegSP] = uint32(TopOfUserSpace)
	}
	tcb.Registers[RegCPSR] = CPSRUserMode

	tcb.Flags = packFlags(flagBits{Unprivileged: true, Task: isTask})
	tcb.Prio = PrioDefault
	tcb.Status = StatusInactive
	tcb.ParentID = parentID

	if !isIdle {
		var parent *TCB
		if parentID == 0 {
			parent = &t.threads[0]
		} else {
			parent = t.bySlot(parentID)
		}

		if parent.FirstChildID != 0 {
			sib := t.bySlot(parent.FirstChildID)
			for sib.NextSiblingID != 0 {
				sib = t.bySlot(sib.NextSiblingID)
			}
			sib.NextSiblingID = tcb.ID
		} else {
			parent.FirstChildID = tcb.ID
		}
	}
	tcb.NextSiblingID = 0
	tcb.FirstChildID = 0

	sp := uintptr(tcb.Registers[RegSP])
	if isTask {
		tcb.TTB = t.bySlot(parentID).TTB
		mm.MapAny(tcb.TTB, fa, sp-mm.MB, true, true)
	} else {
		tcb.TTB = mm.SetupThread(tcb.ID)

		for i := uint32(0); i < 512; i++ {
			mm.MapPage(tcb.TTB, i, uintptr(i)*mm.MB, false, false)
		}
		mm.MapTo(tcb.TTB, fa, 0x20000000, 0x20000000, false, false)
		mm.MapTo(tcb.TTB, fa, 0x20100000, 0x20100000, true, false)
		mm.MapAny(tcb.TTB, fa, sp-mm.MB, true, true)

		for i := uint32(mm.TTBEntries - 256); i < mm.TTBEntries; i++ {
			mm.MapPage(tcb.TTB, i, uintptr(i)*mm.MB, false, false)
		}
	}

	return tcb, true
}

// Exit terminates tcb with the given exit code, mirroring thread_exit:
// it clears any timer wait prematurely, marks the slot TERMINATED,
// recursively exits every child with code 0, reclaims the slot if there
// is no parent to consume the code, and tears down the address space for
// a non-task thread.
//
// Unlike the reference kernel, exit also clears any pending input/char
// wait-queue membership for the exiting thread (spec.md §9's "Single-byte
// wait channels" redesign): the unified WaitKind means Exit always knows
// which, if any, wait set the thread is parked in and can tombstone it,
// closing the gap where the original left a terminated thread's slot
// index sitting in a FIFO queue.
func (t *Table) Exit(tcb *TCB, code int32, fa *mm.FrameAllocator) {
	id := tcb.ID

	t.UnblockForTimerPrematurely(tcb)
	if t.reason[id-1] == WaitInput || t.reason[id-1] == WaitChar {
		t.cancelled[id-1] = true
	}
	t.reason[id-1] = WaitNone

	tcb.Status = StatusTerminated
	tcb.ExitCode = code

	reclaim := tcb.ParentID == 0 || code == 0
	if reclaim {
		tcb.ID = 0
	}

	if tcb.FirstChildID != 0 {
		child := t.bySlot(tcb.FirstChildID)
		nextSibling := child.NextSiblingID
		t.Exit(child, 0, fa)
		for nextSibling != 0 {
			child = t.bySlot(nextSibling)
			nextSibling = child.NextSiblingID
			t.Exit(child, 0, fa)
		}
	}

	if tcb.Flags&FlagTask == 0 {
		mm.CleanupThread(tcb.TTB, fa, id)
	}
}

// Activate transitions thread id to READY.
func (t *Table) Activate(id uint32) { t.bySlot(id).Status = StatusReady }

// Deactivate transitions thread id to INACTIVE.
func (t *Table) Deactivate(id uint32) { t.bySlot(id).Status = StatusInactive }

// BlockForInput parks the currently selected thread on the input wait
// queue.
func (t *Table) BlockForInput(tcb *TCB) {
	tcb.Status = StatusBlocked
	t.reason[tcb.ID-1] = WaitInput
	t.waitInput.PushOne(t.curIdx)
}

// BlockForChar parks the currently selected thread on the char wait
// queue.
func (t *Table) BlockForChar(tcb *TCB) {
	tcb.Status = StatusBlocked
	t.reason[tcb.ID-1] = WaitChar
	t.waitChar.PushOne(t.curIdx)
}

// UnblockForInput dequeues and readies the next thread (if any) waiting
// for a full-line input read, skipping entries tombstoned by Exit.
func (t *Table) UnblockForInput() *TCB {
	for {
		slot, ok := t.waitInput.PopOne()
		if !ok {
			return nil
		}
		if t.cancelled[slot] {
			t.cancelled[slot] = false
			continue
		}
		tcb := &t.threads[slot]
		tcb.Status = StatusReady
		t.reason[slot] = WaitNone
		return tcb
	}
}

// UnblockForChar dequeues and readies the next thread (if any) waiting
// for a single character, skipping entries tombstoned by Exit.
func (t *Table) UnblockForChar() *TCB {
	for {
		slot, ok := t.waitChar.PopOne()
		if !ok {
			return nil
		}
		if t.cancelled[slot] {
			t.cancelled[slot] = false
			continue
		}
		tcb := &t.threads[slot]
		tcb.Status = StatusReady
		t.reason[slot] = WaitNone
		return tcb
	}
}

// BlockForTimer parks tcb in the timer array for the duration currently
// held in r7 (the SLEEP call's requested tick count).
func (t *Table) BlockForTimer(tcb *TCB) {
	tcb.Status = StatusBlocked
	t.reason[tcb.ID-1] = WaitTimer
	t.sleeping[tcb.ID-1] = int32(tcb.Registers[7])
}

// UnblockForTimer decrements every sleeping cell by one tick, readying
// any thread whose timer has reached zero with r7 cleared to 0.
func (t *Table) UnblockForTimer() {
	for i := 0; i < MaxThreads; i++ {
		if t.sleeping[i] == -1 {
			continue
		}
		t.sleeping[i]--
		if t.sleeping[i] == 0 {
			t.sleeping[i] = -1
			t.threads[i].Status = StatusReady
			t.threads[i].Registers[7] = 0
			t.reason[i] = WaitNone
		}
	}
}

// UnblockForTimerPrematurely wakes tcb early (e.g. on exit), reporting
// the ticks remaining in r7 instead of 0.
func (t *Table) UnblockForTimerPrematurely(tcb *TCB) {
	remaining := t.sleeping[tcb.ID-1]
	if remaining == -1 {
		return
	}
	tcb.Status = StatusReady
	tcb.Registers[7] = uint32(remaining)
	t.sleeping[tcb.ID-1] = -1
	t.reason[tcb.ID-1] = WaitNone
}

// WaitReasonOf reports the wait reason currently recorded for id, for
// testing the "BLOCKED iff in exactly one wait set" invariant.
func (t *Table) WaitReasonOf(id uint32) WaitKind { return t.reason[id-1] }
