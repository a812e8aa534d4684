//go:build armkernel_qemu

package hal

// This file is scaffolding, not a buildable target: like the teacher
// kernel's own *_qemu.go files, it links against assembly primitives
// (set_ttbr0, enable/disable_irqs, the CP15 helpers) that live outside
// this module and are never assembled here. It documents the shape a
// real register-level HAL implementation would take for this kernel's
// target (a QEMU "virt"-style board: a GICv2 interrupt controller, a
// PL011-like UART, and a generic timer), the way iansmith-mazarin's
// gic_qemu.go/timer_qemu.go/uart_qemu.go/exceptions.go document theirs.

import (
	"unsafe"

	"armkernel/internal/mm"
)

const (
	gicDistBase = 0x08000000
	gicCPUBase  = 0x08010000

	gicdCtlr  = gicDistBase + 0x000
	giccCtlr  = gicCPUBase + 0x000
	giccPMR   = gicCPUBase + 0x004
	giccIAR   = gicCPUBase + 0x00C
	giccEOIR  = gicCPUBase + 0x010

	uartBase = 0x09000000
	uartDR   = uartBase + 0x00
	uartFR   = uartBase + 0x18

	uartFRRXFE = 1 << 4
	uartFRTXFF = 1 << 5
)

//go:linkname mmio_read mmio_read
//go:nosplit
func mmio_read(addr uintptr) uint32

//go:linkname mmio_write mmio_write
//go:nosplit
func mmio_write(addr uintptr, value uint32)

//go:linkname write_ttbr0 write_ttbr0
//go:nosplit
func write_ttbr0(addr uintptr)

//go:linkname enable_mmu enable_mmu
//go:nosplit
func enable_mmu()

//go:linkname invalidate_caches invalidate_caches
//go:nosplit
func invalidate_caches()

//go:linkname invalidate_tlb invalidate_tlb
//go:nosplit
func invalidate_tlb()

//go:linkname read_far read_far
//go:nosplit
func read_far() uintptr

//go:linkname read_cntv_ctl read_cntv_ctl
//go:nosplit
func read_cntv_ctl() uint32

// QEMUTick reads the generic timer's control register and reports
// whether the ISTATUS bit (bit 2) is set. It only reads the register:
// nothing here clears or re-arms the pending condition.
type QEMUTick struct{}

func (QEMUTick) Pending() bool {
	ctl := read_cntv_ctl()
	return ctl&(1<<2) != 0
}

// QEMUSerial drives a PL011-style UART via raw MMIO.
type QEMUSerial struct{}

func (QEMUSerial) RXAvailable() bool   { return mmio_read(uartFR)&uartFRRXFE == 0 }
func (QEMUSerial) TXWritable() bool    { return mmio_read(uartFR)&uartFRTXFF == 0 }
func (QEMUSerial) ReadByte() byte      { return byte(mmio_read(uartDR)) }
func (QEMUSerial) WriteByte(b byte)    { mmio_write(uartDR, uint32(b)) }
func (QEMUSerial) EnableTXReady()      { mmio_write(giccCtlr, mmio_read(giccCtlr)|1) }
func (QEMUSerial) DisableTXReady()     { mmio_write(giccCtlr, mmio_read(giccCtlr)&^1) }

// QEMUInterruptController drives a GICv2 CPU interface.
type QEMUInterruptController struct{}

func (QEMUInterruptController) Acknowledge() uint32    { return mmio_read(giccIAR) }
func (QEMUInterruptController) EndOfInterrupt(id uint32) { mmio_write(giccEOIR, id) }

func gicInit() {
	mmio_write(gicdCtlr, 0)
	mmio_write(giccCtlr, 0)
	mmio_write(giccPMR, 0xFF)
}

// QEMUMMU drives the CP15/TTBR0-equivalent processor-control helpers
// directly; ttb here is already the thread's physical table address in a
// real build (unsafe.Pointer bridges the in-process *mm.SectionTable back
// to a bare address the way the teacher's page tables do).
type QEMUMMU struct{}

func (QEMUMMU) WriteTranslationTableBase(ttb *mm.SectionTable) {
	write_ttbr0(uintptr(unsafe.Pointer(ttb)))
}
func (QEMUMMU) Enable()             { enable_mmu() }
func (QEMUMMU) InvalidateCaches()   { invalidate_caches() }
func (QEMUMMU) InvalidateTLB()      { invalidate_tlb() }
func (QEMUMMU) FaultAddress() uintptr { return read_far() }
