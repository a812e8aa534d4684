// Package hal defines the peripheral and processor-control interfaces the
// kernel core treats as opaque external collaborators: the tick source,
// the serial port, the interrupt controller, and the MMU-control
// primitives. Spec §1 explicitly places these drivers out of scope ("the
// spec references these through the operations the core invokes on them
// ... but does not prescribe their internals"); these interfaces are that
// boundary, named after the operations §6 lists.
//
// Two implementations live alongside the interfaces: qemu.go, a
// register-level stub in the teacher kernel's own go:nosplit/go:linkname
// idiom (not runnable without the teacher's assembly primitives, same as
// the teacher's own *_qemu.go files), and sim.go, a pure-Go in-process
// simulation the tests and the hosted demo harness run against.
package hal

import "armkernel/internal/mm"

// TickSource is the periodic interrupt source driving the scheduler.
type TickSource interface {
	// Pending reports whether a tick fired since the last call, clearing
	// the edge (matches tick_pending()'s "edge-cleared on read").
	Pending() bool
}

// SerialDriver is the debug UART's four primitive operations.
type SerialDriver interface {
	RXAvailable() bool
	TXWritable() bool
	ReadByte() byte
	WriteByte(b byte)

	// EnableTXReady/DisableTXReady toggle the TX-ready interrupt; the core
	// enables it when the output ring becomes non-empty and disables it
	// once drained (spec §6).
	EnableTXReady()
	DisableTXReady()
}

// InterruptController is the opaque primitive for acknowledging and
// clearing interrupts at the controller level; the core itself decodes
// which condition (tick, serial) woke it via TickSource/SerialDriver.
type InterruptController interface {
	Acknowledge() uint32
	EndOfInterrupt(id uint32)
}

// MMUControl groups the processor-control helpers context switching calls
// on every restore: setting the active section table, enabling the MMU,
// and invalidating caches/TLB after the table changes. Spec §6 notes these
// "have no semantic content for this specification beyond their names".
type MMUControl interface {
	WriteTranslationTableBase(ttb *mm.SectionTable)
	Enable()
	InvalidateCaches()
	InvalidateTLB()
	// FaultAddress returns the last recorded fault address, for a data
	// abort handler to report.
	FaultAddress() uintptr
}
