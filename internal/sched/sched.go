// Package sched implements component E: the periodic-tick-driven
// round-robin scheduler. It holds the only mutable state the reference
// kernel's thread_switch_counter represents, and drives context switches
// through internal/ctxswitch against the table built by internal/thread.
package sched

import (
	"armkernel/internal/ctxswitch"
	"armkernel/internal/hal"
	"armkernel/internal/thread"
)

// Scheduler is the round-robin selector described in spec.md §4.E: a
// current slot (owned by the thread table) and a tick counter that resets
// on every reschedule.
type Scheduler struct {
	table       *thread.Table
	tickCounter uint8
}

// New returns a scheduler driving table.
func New(table *thread.Table) *Scheduler {
	return &Scheduler{table: table}
}

// Switch is called from the periodic tick handler. If the current thread
// is RUNNING and hasn't used up its time slice, it returns without
// switching; otherwise it saves the current thread, selects the next
// READY thread (falling back to idle), and restores it.
//
// The tickCounter++ < RoundRobinTimeSlice check is written as a literal
// post-increment comparison (check old value, then increment) to match
// thread_switch's `thread_switch_counter++ < THREAD_ROUND_ROBIN_TIME_SLOT`
// exactly: a thread gets one tick of grace beyond the nominal slice, just
// as the reference does.
func (s *Scheduler) Switch(tf *ctxswitch.TrapFrame, mmu hal.MMUControl) {
	cur := s.table.Current()

	if cur.Status == thread.StatusRunning {
		old := s.tickCounter
		s.tickCounter++
		if old < thread.RoundRobinTimeSlice {
			return
		}
		s.tickCounter = 0

		ctxswitch.Save(cur, tf)
		cur.Status = thread.StatusReady
	}

	s.Select()

	next := s.table.Current()
	ctxswitch.Restore(next, tf, mmu)
	next.Status = thread.StatusRunning
}

// Select scans slots (current+1)..(current+N) mod N, skipping slot 0,
// for the first non-empty READY thread, and makes it current. If none is
// found it falls back to slot 0, the idle thread.
func (s *Scheduler) Select() {
	s.tickCounter = 0

	cur := s.table.CurrentSlot()
	for i := uint32(1); i <= thread.MaxThreads; i++ {
		j := (cur + i) % thread.MaxThreads
		if j == 0 {
			continue
		}
		tcb := s.table.Slot(int(j))
		if tcb.ID != 0 && tcb.Status == thread.StatusReady {
			s.table.SetCurrentSlot(j)
			return
		}
	}
	s.table.SetCurrentSlot(0)
}
