package trap

import (
	"io"
	"testing"

	"armkernel/internal/ctxswitch"
	"armkernel/internal/hal"
	"armkernel/internal/klog"
	"armkernel/internal/mm"
	"armkernel/internal/sched"
	"armkernel/internal/thread"
)

// newScenarioKernel builds a Kernel around a fresh thread table, scheduler,
// frame allocator, and hal.Sim standing in for every peripheral at once.
func newScenarioKernel(t *testing.T) (*Kernel, *thread.Table, *mm.FrameAllocator, *hal.Sim) {
	t.Helper()
	fa := mm.NewFrameAllocator()
	tbl := thread.NewTable(0x1000, fa)
	s := sched.New(tbl)
	sim := hal.NewSim()
	log := klog.NewFormattedLogger(io.Discard)
	return New(tbl, s, fa, sim, sim, sim, sim, log), tbl, fa, sim
}

// Scenario 1: Echo. A thread looping `c = GETC(); STR_WRITE(&c, 1)` must
// reproduce an injected byte sequence on the wire in order.
func TestScenarioEcho(t *testing.T) {
	k, tbl, fa, sim := newScenarioKernel(t)
	var tf ctxswitch.TrapFrame

	worker, ok := tbl.Create(0x3000, 0, false, false, fa)
	if !ok {
		t.Fatal("failed to create echo worker")
	}
	tbl.Activate(worker.ID)

	input := []byte{0x41, 0x42, 0x43}

	for _, want := range input {
		tbl.SetCurrentSlot(worker.ID - 1)
		k.HandleSoftwareInterrupt(Getc, &tf, nil)
		if worker.Status != thread.StatusBlocked {
			t.Fatalf("worker should be BLOCKED awaiting a char, got %s", worker.Status)
		}

		sim.InjectRX([]byte{want})
		k.HandleInterrupt(&tf)
		if worker.Status != thread.StatusReady {
			t.Fatalf("worker should be READY after its char arrived, got %s", worker.Status)
		}
		if worker.Registers[7] != uint32(want) {
			t.Fatalf("worker r7 = %#x, want %#x", worker.Registers[7], want)
		}

		k.Sched.Select()
		if tbl.Current().ID != worker.ID {
			t.Fatalf("scheduler did not select the woken worker")
		}

		k.HandleSoftwareInterrupt(StrWrite, &tf, []byte{want})
		if worker.Registers[7] != 1 {
			t.Fatalf("STR_WRITE r7 = %d, want 1 byte enqueued", worker.Registers[7])
		}
		if !sim.TXReadyEnabled() {
			t.Fatal("STR_WRITE must enable the TX-ready interrupt")
		}

		k.HandleInterrupt(&tf) // drains the one queued byte onto the wire
	}

	if got := string(sim.Transmitted()); got != string(input) {
		t.Fatalf("transmitted = %q, want %q", got, string(input))
	}
}

// Scenario 2: Sleep ordering. Two threads sleep for different durations;
// the shorter sleeper must become READY strictly before the longer one,
// each at its exact expiry tick.
func TestScenarioSleepOrdering(t *testing.T) {
	k, tbl, fa, _ := newScenarioKernel(t)
	var tf ctxswitch.TrapFrame

	a, _ := tbl.Create(0x2000, 0, false, false, fa)
	tbl.Activate(a.ID)
	b, _ := tbl.Create(0x2100, 0, false, false, fa)
	tbl.Activate(b.ID)

	tbl.SetCurrentSlot(a.ID - 1)
	tf.R7 = 100
	k.HandleSoftwareInterrupt(Sleep, &tf, nil)
	if a.Status != thread.StatusBlocked {
		t.Fatalf("a should be BLOCKED, got %s", a.Status)
	}

	tbl.SetCurrentSlot(b.ID - 1)
	tf.R7 = 50
	k.HandleSoftwareInterrupt(Sleep, &tf, nil)
	if b.Status != thread.StatusBlocked {
		t.Fatalf("b should be BLOCKED, got %s", b.Status)
	}

	var aReadyAt, bReadyAt int
	for tick := 1; tick <= 100; tick++ {
		tbl.UnblockForTimer()
		if bReadyAt == 0 && b.Status == thread.StatusReady {
			bReadyAt = tick
		}
		if aReadyAt == 0 && a.Status == thread.StatusReady {
			aReadyAt = tick
		}
	}

	if bReadyAt != 50 {
		t.Fatalf("b became READY at tick %d, want 50", bReadyAt)
	}
	if aReadyAt != 100 {
		t.Fatalf("a became READY at tick %d, want 100", aReadyAt)
	}
	if bReadyAt >= aReadyAt {
		t.Fatalf("b (tick %d) must be scheduled before a (tick %d)", bReadyAt, aReadyAt)
	}
}

// Scenario 3: Fork-join lifetime. A parent creates a non-task child, then
// exits with code 0; every descendant must end TERMINATED with its slot
// reclaimed.
func TestScenarioForkJoinLifetime(t *testing.T) {
	k, tbl, fa, _ := newScenarioKernel(t)
	var tf ctxswitch.TrapFrame

	parent, _ := tbl.Create(0x4000, 0, false, false, fa)
	tbl.Activate(parent.ID)
	tbl.SetCurrentSlot(parent.ID - 1)

	tf.R7, tf.R8, tf.R9, tf.R10 = 0x5000, 0, 0, 0
	k.HandleSoftwareInterrupt(Create, &tf, nil)
	childID := tf.R7
	if childID == 0 {
		t.Fatal("CREATE failed")
	}
	child := tbl.Slot(int(childID - 1))
	if child.Status != thread.StatusReady {
		t.Fatalf("child status = %s, want READY", child.Status)
	}

	tbl.SetCurrentSlot(parent.ID - 1)
	tf.R7 = 0
	k.HandleSoftwareInterrupt(Exit, &tf, nil)

	if parent.Status != thread.StatusTerminated {
		t.Fatalf("parent status = %s, want TERMINATED", parent.Status)
	}
	if parent.ID != 0 {
		t.Fatal("parent slot should have been reclaimed (exit code 0)")
	}
	if child.Status != thread.StatusTerminated {
		t.Fatalf("child status = %s, want TERMINATED", child.Status)
	}
	if child.ID != 0 {
		t.Fatal("child slot should have been reclaimed")
	}
}

// Scenario 4: Address-space isolation. One thread MEM_MAPs a heap address
// and writes through it; a second thread reading the same virtual address
// under its own table must fault and be terminated, leaving the first
// thread untouched.
func TestScenarioAddressSpaceIsolation(t *testing.T) {
	k, tbl, fa, sim := newScenarioKernel(t)
	var tf ctxswitch.TrapFrame

	const heapAddr = mm.ExtRAMBase + 5*mm.MB

	x, _ := tbl.Create(0x6000, 0, false, false, fa)
	tbl.Activate(x.ID)
	tbl.SetCurrentSlot(x.ID - 1)

	tf.R7 = uint32(heapAddr)
	k.HandleSoftwareInterrupt(MemMap, &tf, nil)
	if x.Registers[7] != 1 {
		t.Fatalf("MEM_MAP for x failed, r7 = %d", x.Registers[7])
	}
	if mm.Resolve(x.TTB, heapAddr) == 0 {
		t.Fatal("heap address should resolve under x's table after MEM_MAP")
	}

	y, _ := tbl.Create(0x7000, 0, false, false, fa)
	tbl.Activate(y.ID)

	if mm.Resolve(y.TTB, heapAddr) != 0 {
		t.Fatal("y's table must not have x's mapping")
	}

	tbl.SetCurrentSlot(y.ID - 1)
	sim.SetFaultAddress(heapAddr)
	k.HandleDataAbort(&tf)

	if y.Status != thread.StatusTerminated {
		t.Fatalf("y status = %s, want TERMINATED", y.Status)
	}
	if y.ExitCode != thread.DestroyCode {
		t.Fatalf("y exit code = %d, want %d", y.ExitCode, thread.DestroyCode)
	}

	if x.Status == thread.StatusTerminated {
		t.Fatal("x must be unaffected by y's fault")
	}
	if mm.Resolve(x.TTB, heapAddr) == 0 {
		t.Fatal("x's mapping must survive y's fault")
	}
}

// Scenario 5: Idle fallback. With no other thread READY, every tick
// leaves the idle thread selected and RUNNING.
func TestScenarioIdleFallback(t *testing.T) {
	k, tbl, _, sim := newScenarioKernel(t)
	var tf ctxswitch.TrapFrame

	for i := 0; i < 3; i++ {
		sim.FireTick()
		k.HandleInterrupt(&tf)
		if tbl.CurrentSlot() != 0 {
			t.Fatalf("tick %d: current slot = %d, want 0 (idle)", i, tbl.CurrentSlot())
		}
		if tbl.Slot(0).Status != thread.StatusRunning {
			t.Fatalf("tick %d: idle status = %s, want RUNNING", i, tbl.Slot(0).Status)
		}
	}
}

// HandleInterrupt must drive real ack/EOI through the interrupt controller
// on every path: the early tick return and the combined RX/TX path.
func TestHandleInterruptSignalsEndOfInterrupt(t *testing.T) {
	k, _, _, sim := newScenarioKernel(t)
	var tf ctxswitch.TrapFrame

	sim.FireTick()
	k.HandleInterrupt(&tf)
	if got := len(sim.IRQAcked()); got != 1 {
		t.Fatalf("after tick interrupt, IRQAcked has %d entries, want 1", got)
	}

	sim.InjectRX([]byte{0x5A})
	k.HandleInterrupt(&tf)
	if got := len(sim.IRQAcked()); got != 2 {
		t.Fatalf("after RX interrupt, IRQAcked has %d entries, want 2", got)
	}
}

// Scenario 6: Stack growth per task. Three task children created in
// sequence off one parent, through the CREATE syscall, must each receive
// a stack one MB below the last, each backed by a distinct physical frame.
func TestScenarioTaskStackGrowth(t *testing.T) {
	k, tbl, fa, _ := newScenarioKernel(t)
	var tf ctxswitch.TrapFrame

	parent, _ := tbl.Create(0x4000, 0, false, false, fa)
	tbl.Activate(parent.ID)

	wantTop := thread.TopOfUserSpace
	seenFrames := map[uintptr]bool{}

	for i := 0; i < 3; i++ {
		tbl.SetCurrentSlot(parent.ID - 1)
		tf.R7, tf.R8 = 0x8000, 1 // is_task = 1
		k.HandleSoftwareInterrupt(Create, &tf, nil)
		childID := tf.R7
		if childID == 0 {
			t.Fatalf("task child %d: CREATE failed", i)
		}
		child := tbl.Slot(int(childID - 1))

		wantTop -= thread.StackSizePerTask
		if uintptr(child.Registers[thread.RegSP]) != wantTop {
			t.Fatalf("task child %d: sp = %#x, want %#x", i, child.Registers[thread.RegSP], wantTop)
		}

		phys := mm.Resolve(child.TTB, wantTop-mm.MB)
		if phys == 0 {
			t.Fatalf("task child %d: stack not mapped", i)
		}
		if seenFrames[phys] {
			t.Fatalf("task child %d: stack frame %#x reused", i, phys)
		}
		seenFrames[phys] = true
	}
}
