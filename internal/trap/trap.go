// Package trap implements component F: the software-interrupt syscall
// dispatcher and the top-level interrupt/fault entry points. It is a
// direct port of the reference kernel's sys/swi.c (the nine syscall
// handlers and the swi_types/swi_functions dispatch table) and
// drivers/interrupt.c (isr_software_interrupt, isr_interrupt_request,
// isr_data_abort, and the logged-only fault paths), wired against the
// thread table, scheduler, frame allocator, and HAL this package treats
// as collaborators rather than owning itself.
//
// The reference kernel passes a syscall's buffer argument (r7) as a raw
// pointer into the caller's address space and dereferences it directly.
// This kernel's address-space model (internal/mm) tracks section-table
// permissions, not byte-addressable physical content, so there is no
// memory array here to dereference a pointer into. The interrupt entry
// stub — out of scope here the same way it is for internal/ctxswitch's
// TrapFrame — is responsible for resolving r7/r8 into a []byte view of
// the caller's buffer before calling into StrWrite/StrRead; every other
// syscall's arguments fit in registers as before.
package trap

import (
	"armkernel/internal/ctxswitch"
	"armkernel/internal/hal"
	"armkernel/internal/klog"
	"armkernel/internal/mm"
	"armkernel/internal/ring"
	"armkernel/internal/sched"
	"armkernel/internal/thread"
)

// Syscall numbers, matching swi.h's SWI_* defines exactly.
const (
	StrWrite     = 0x10
	StrRead      = 0x11
	StrReadFlush = 0x12
	Getc         = 0x1A

	Yield  = 0x20
	Exit   = 0x21
	Create = 0x22
	Sleep  = 0x23

	MemMap = 0x30
)

const (
	inputRingCapacity  = 512
	outputRingCapacity = 4096
)

// memMapFloor is swi_mem_map's rejection threshold, EXT_RAM + 5 MB:
// addresses below it fall inside the region reserved for the kernel,
// per-thread section tables, and thread stacks.
const memMapFloor = mm.ExtRAMBase + 5*mm.MB

// Kernel wires together every component the dispatcher and the top-level
// interrupt/fault entry points call into. It holds the two byte rings the
// reference kernel's io_dbgu_* functions wrap (sys/io.c), and one pending
// read buffer per thread slot, the adapted replacement for the pointer
// the original keeps in tcb->r[7] across a blocked STR_READ.
type Kernel struct {
	Table *thread.Table
	Sched *sched.Scheduler
	FA    *mm.FrameAllocator

	Serial hal.SerialDriver
	Tick   hal.TickSource
	Intc   hal.InterruptController
	MMU    hal.MMUControl

	Log *klog.Logger

	input  *ring.Ring[byte]
	output *ring.Ring[byte]

	pendingRead [thread.MaxThreads][]byte
}

// New builds a Kernel around the given collaborators, sizing the serial
// rings to match io_dbgu_init's IO_DBGU_INPUT_BUFFER/IO_DBGU_OUTPUT_BUFFER.
func New(table *thread.Table, s *sched.Scheduler, fa *mm.FrameAllocator, serial hal.SerialDriver, tick hal.TickSource, intc hal.InterruptController, mmu hal.MMUControl, log *klog.Logger) *Kernel {
	k := &Kernel{
		Table:  table,
		Sched:  s,
		FA:     fa,
		Serial: serial,
		Tick:   tick,
		Intc:   intc,
		MMU:    mmu,
		Log:    log,
		input:  ring.New[byte](inputRingCapacity),
		output: ring.New[byte](outputRingCapacity),
	}
	k.Log.Info("trap dispatcher ready", "input_capacity", inputRingCapacity, "output_capacity", outputRingCapacity)
	return k
}

type syscallHandler func(k *Kernel, tcb *thread.TCB, buf []byte)

// syscallTable mirrors swi_types[]/swi_functions[], scanned in order by
// HandleSoftwareInterrupt the same way isr_software_interrupt walks the
// parallel C arrays.
var syscallTable = []struct {
	num uint32
	fn  syscallHandler
}{
	{StrWrite, (*Kernel).doStrWrite},
	{StrRead, (*Kernel).doStrRead},
	{StrReadFlush, (*Kernel).doStrReadFlush},
	{Getc, (*Kernel).doGetc},
	{Yield, (*Kernel).doYield},
	{Exit, (*Kernel).doExit},
	{Create, (*Kernel).doCreate},
	{Sleep, (*Kernel).doSleep},
	{MemMap, (*Kernel).doMemMap},
}

// HandleSoftwareInterrupt is the SWI entry point. It always saves the
// faulting thread's context first (even for an unrecognized call number),
// looks callNumber up in syscallTable, and if found invokes the handler,
// re-reads the current thread (a handler may have switched it), marks it
// RUNNING, and restores its context into tf. buf is the resolved view of
// the caller's r7/r8 buffer argument for StrWrite/StrRead; every other
// handler ignores it.
//
// An unrecognized call number is logged and nothing else: the reference
// kernel returns from isr_software_interrupt without ever calling
// thread_restore_context on that path, which — because saving only
// copies into the TCB and never touches the live register file — leaves
// the caller's registers exactly as they were. Not calling Restore here
// reproduces that "unchanged register file" guarantee directly: tf is
// simply never written to.
func (k *Kernel) HandleSoftwareInterrupt(callNumber uint32, tf *ctxswitch.TrapFrame, buf []byte) {
	tcb := k.Table.Current()
	ctxswitch.Save(tcb, tf)

	for _, entry := range syscallTable {
		if entry.num != callNumber {
			continue
		}
		entry.fn(k, tcb, buf)

		tcb = k.Table.Current()
		tcb.Status = thread.StatusRunning
		ctxswitch.Restore(tcb, tf, k.MMU)
		return
	}

	klog.PutsISR(k.Serial, "Unknown software interrupt 0x")
	klog.PutHexISR(k.Serial, callNumber)
	klog.PutsISR(k.Serial, " detected.\n")
}

// doStrWrite enqueues buf into the output ring and enables the TX-ready
// interrupt so the bytes actually get drained onto the wire. It never
// blocks: bytes beyond the ring's free space are silently dropped, same
// as io_dbgu_write_output_string's underlying ring_write.
func (k *Kernel) doStrWrite(tcb *thread.TCB, buf []byte) {
	n := k.output.Write(buf)
	k.Serial.EnableTXReady()
	tcb.Registers[7] = uint32(n)
}

// doStrRead drains up to len(buf) bytes from the input ring into buf. An
// empty request (buf has zero length) returns 0 immediately without
// blocking, matching swi_str_read's `if (!length)` guard. If the ring is
// currently empty, the caller blocks on the input wait queue; buf is
// retained in pendingRead so the interrupt path can complete the read
// later via resumeStrRead.
func (k *Kernel) doStrRead(tcb *thread.TCB, buf []byte) {
	if len(buf) == 0 {
		tcb.Registers[7] = 0
		return
	}

	if n := k.input.Read(buf); n != 0 {
		tcb.Registers[7] = uint32(n)
		return
	}

	k.pendingRead[tcb.ID-1] = buf
	k.Table.BlockForInput(tcb)
	k.Sched.Select()
}

// resumeStrRead completes a blocked STR_READ once a byte has arrived,
// mirroring swi_str_read_resume: the read is guaranteed to succeed
// because it only runs right after a byte was pushed into the ring.
func (k *Kernel) resumeStrRead(tcb *thread.TCB) {
	buf := k.pendingRead[tcb.ID-1]
	k.pendingRead[tcb.ID-1] = nil
	n := k.input.Read(buf)
	tcb.Registers[7] = uint32(n)
}

func (k *Kernel) doStrReadFlush(tcb *thread.TCB, buf []byte) {
	k.input.Flush()
}

// doGetc always blocks the caller on the char wait queue; the interrupt
// path resumes it with the received byte in r7.
func (k *Kernel) doGetc(tcb *thread.TCB, buf []byte) {
	k.Table.BlockForChar(tcb)
	k.Sched.Select()
}

func (k *Kernel) doYield(tcb *thread.TCB, buf []byte) {
	k.Sched.Select()
}

func (k *Kernel) doExit(tcb *thread.TCB, buf []byte) {
	code := int32(tcb.Registers[7])
	k.Table.Exit(tcb, code, k.FA)
	k.Sched.Select()
}

// doCreate spawns a child thread, seeds its r0/r1 from the caller's
// r9/r10, activates it, and returns its id in r7 (0 on failure).
func (k *Kernel) doCreate(tcb *thread.TCB, buf []byte) {
	entry := uintptr(tcb.Registers[7])
	isTask := tcb.Registers[8] != 0

	child, ok := k.Table.Create(entry, tcb.ID, isTask, false, k.FA)
	if !ok {
		tcb.Registers[7] = 0
		return
	}

	child.Registers[0] = tcb.Registers[9]
	child.Registers[1] = tcb.Registers[10]
	k.Table.Activate(child.ID)

	tcb.Registers[7] = child.ID
}

func (k *Kernel) doSleep(tcb *thread.TCB, buf []byte) {
	k.Table.BlockForTimer(tcb)
	k.Sched.Select()
}

// doMemMap rejects any address below memMapFloor, then maps the caller's
// requested virtual address to a freshly allocated frame with full
// read-write access, reporting success/failure in r7.
func (k *Kernel) doMemMap(tcb *thread.TCB, buf []byte) {
	from := uintptr(tcb.Registers[7])
	if from < memMapFloor {
		tcb.Registers[7] = 0
		return
	}

	if mm.MapAny(tcb.TTB, k.FA, from, true, true) {
		tcb.Registers[7] = 1
	} else {
		tcb.Registers[7] = 0
	}
}

// HandleInterrupt is the shared IRQ entry point for the tick, serial-RX,
// and serial-TX conditions, matching isr_interrupt_request's three
// guards exactly — including that a pending tick returns immediately
// without checking RX/TX, since the reference does the same. Every path
// acknowledges the interrupt at entry and signals end-of-interrupt to the
// controller before returning, the way a real AIC-driven isr_interrupt_request
// would bracket its three guards.
func (k *Kernel) HandleInterrupt(tf *ctxswitch.TrapFrame) {
	id := k.Intc.Acknowledge()

	if k.Tick.Pending() {
		k.Table.UnblockForTimer()
		k.Sched.Switch(tf, k.MMU)
		k.Intc.EndOfInterrupt(id)
		return
	}

	if k.Serial.RXAvailable() {
		b := k.Serial.ReadByte()
		k.input.PushOne(b)

		if t := k.Table.UnblockForInput(); t != nil {
			k.resumeStrRead(t)
		}
		for t := k.Table.UnblockForChar(); t != nil; t = k.Table.UnblockForChar() {
			t.Registers[7] = uint32(b)
		}
	}

	if k.Serial.TXWritable() {
		if b, ok := k.output.PopOne(); ok {
			k.Serial.WriteByte(b)
		} else {
			k.Serial.DisableTXReady()
		}
	}

	k.Intc.EndOfInterrupt(id)
}

// HandleDataAbort saves the faulting thread's context, logs the fault
// address, terminates the thread with DestroyCode, and reschedules —
// isr_data_abort's save/log/thread_print_info/exit/switch sequence,
// minus thread_print_info's separate dump (folded into the one log call).
//
// The log call runs with the faulting thread already saved but before any
// other thread is scheduled, the same context isr_data_abort's printf_isr
// call runs in ("Use only in the IRQ Interrupt Service Routine!"), so it
// goes through the ISR-safe path rather than the allocating structured
// logger.
func (k *Kernel) HandleDataAbort(tf *ctxswitch.TrapFrame) {
	tcb := k.Table.Current()
	ctxswitch.Save(tcb, tf)

	addr := k.MMU.FaultAddress()
	klog.PutsISR(k.Serial, "Data abort by thread 0x")
	klog.PutHexISR(k.Serial, tcb.ID)
	klog.PutsISR(k.Serial, " for attempted access of 0x")
	klog.PutHexISR(k.Serial, uint32(addr))
	klog.PutsISR(k.Serial, ".\n")

	k.Table.Exit(tcb, thread.DestroyCode, k.FA)
	k.Sched.Switch(tf, k.MMU)
}

// HandleUndefinedInstruction logs and returns without touching thread
// state, matching isr_undefined.
func (k *Kernel) HandleUndefinedInstruction(addr uintptr, instruction uint32) {
	klog.PutsISR(k.Serial, "Undefined instruction 0x")
	klog.PutHexISR(k.Serial, instruction)
	klog.PutsISR(k.Serial, " detected at address 0x")
	klog.PutHexISR(k.Serial, uint32(addr))
	klog.PutsISR(k.Serial, ".\n")
}

// HandlePrefetchAbort logs and returns, matching isr_prefetch_abort.
func (k *Kernel) HandlePrefetchAbort(addr uintptr) {
	klog.PutsISR(k.Serial, "Prefetch abort detected at address 0x")
	klog.PutHexISR(k.Serial, uint32(addr))
	klog.PutsISR(k.Serial, ".\n")
}

// HandleFastInterruptRequest logs and returns, matching
// isr_fast_interrupt_request: FIQ has no assigned use in this kernel.
func (k *Kernel) HandleFastInterruptRequest(addr uintptr) {
	klog.PutsISR(k.Serial, "Fast interrupt request detected during execution at address 0x")
	klog.PutHexISR(k.Serial, uint32(addr))
	klog.PutsISR(k.Serial, ".\n")
}

// HandleReset matches isr_reset's "something is seriously broken": the
// reference spins forever, which has no sane hosted-process equivalent,
// so this logs through the ISR-safe path and panics instead.
func (k *Kernel) HandleReset() {
	klog.PutsISR(k.Serial, "Reset detected.\n")
	panic("armkernel/internal/trap: reset trap reached")
}
