// Command kernel is the freestanding entry point linked into a bootable
// image, in the teacher kernel's own style: KernelMain is called from an
// assembly boot stub after the MMU and exception vectors are already
// installed, never from a hosted Go runtime. Like iansmith-mazarin's
// kernel.go, this file is scaffolding: it documents how the pieces wire
// together for a real target build and does not itself run without the
// assembly primitives internal/hal/qemu.go links against.
//
//go:build armkernel_qemu

package main

import (
	"armkernel/internal/hal"
	"armkernel/internal/klog"
	"armkernel/internal/mm"
	"armkernel/internal/sched"
	"armkernel/internal/thread"
	"armkernel/internal/trap"
)

// idleEntryPC is the address the linker places the idle thread's body
// at: a tight wait-for-interrupt loop, assembled separately and never
// exited.
const idleEntryPC = 0x00100000

// kernel is left as a package-level variable, not a local in KernelMain,
// so the exception vector stubs compiled alongside this file (outside
// this package, in the assembly boot glue) can reach it without a
// parameter-passing convention of their own.
var kernel *trap.Kernel

//go:nosplit
//go:noinline
func KernelMain(r0, r1, atags uint32) {
	_, _, _ = r0, r1, atags

	fa := mm.NewFrameAllocator()
	table := thread.NewTable(idleEntryPC, fa)
	scheduler := sched.New(table)

	tick := hal.QEMUTick{}
	serial := hal.QEMUSerial{}
	intc := hal.QEMUInterruptController{}
	mmu := hal.QEMUMMU{}

	kernel = trap.New(table, scheduler, fa, serial, tick, intc, mmu, klog.DefaultLogger())

	// From here, control never returns: the exception vectors call into
	// kernel.HandleSoftwareInterrupt/HandleInterrupt/HandleDataAbort/etc.
	// as traps arrive, and the idle thread's own wait-for-interrupt loop
	// is what's actually executing whenever nothing else is runnable.
	for {
	}
}
