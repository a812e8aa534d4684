// Package ctxswitch implements component D: capturing and restoring a
// thread's register file across the interrupt boundary.
//
// The reference kernel's thread_save_context/thread_restore_context read
// and write the live interrupt stack frame through in-band assembly
// (computing fp-6, stm/ldm of r4-r10, the banked-register stm/ldm trick
// for r13/r14). spec.md §9 calls this out for redesign: "Replace with a
// clearly delimited trap-frame record written by the interrupt entry
// stub; the core logic in §4.D becomes pure data movement between that
// record and the TCB." TrapFrame is that record, and Save/Restore are
// pure data movement — the interrupt entry stub (outside this package,
// part of the out-of-scope boot/ISR glue) is responsible for actually
// populating and consuming it.
package ctxswitch

import (
	"armkernel/internal/hal"
	"armkernel/internal/thread"
)

// TrapFrame is the register state an interrupt entry stub captures before
// calling into the kernel, and installs before returning to user code.
// The field set mirrors the reference's r[17] layout exactly so Save and
// Restore are straight copies.
type TrapFrame struct {
	R0, R1, R2, R3             uint32
	R4, R5, R6, R7, R8, R9, R10 uint32
	FP, IP                     uint32 // r11, r12
	SP, LR                     uint32 // r13, r14, banked to the caller's mode
	PC                         uint32 // r15
	CPSR                       uint32 // the caller-mode saved status register
}

// Save copies the captured trap frame into tcb's register slots.
func Save(tcb *thread.TCB, tf *TrapFrame) {
	tcb.Registers[0] = tf.R0
	tcb.Registers[1] = tf.R1
	tcb.Registers[2] = tf.R2
	tcb.Registers[3] = tf.R3
	tcb.Registers[4] = tf.R4
	tcb.Registers[5] = tf.R5
	tcb.Registers[6] = tf.R6
	tcb.Registers[7] = tf.R7
	tcb.Registers[8] = tf.R8
	tcb.Registers[9] = tf.R9
	tcb.Registers[10] = tf.R10
	tcb.Registers[thread.RegFP] = tf.FP
	tcb.Registers[thread.RegIP] = tf.IP
	tcb.Registers[thread.RegSP] = tf.SP
	tcb.Registers[thread.RegLR] = tf.LR
	tcb.Registers[thread.RegPC] = tf.PC
	tcb.Registers[thread.RegCPSR] = tf.CPSR
}

// Restore switches the MMU to tcb's address space and writes tcb's saved
// registers back into the trap frame the interrupt entry stub will
// eventually return through. mmu is the out-of-scope processor-control
// primitive (§6); Restore is the only place component D touches it,
// matching thread_restore_context's ttb switch, register reload, and
// cache/TLB invalidation sequence.
func Restore(tcb *thread.TCB, tf *TrapFrame, mmu hal.MMUControl) {
	mmu.WriteTranslationTableBase(tcb.TTB)
	mmu.Enable()

	tf.R0 = tcb.Registers[0]
	tf.R1 = tcb.Registers[1]
	tf.R2 = tcb.Registers[2]
	tf.R3 = tcb.Registers[3]
	tf.R4 = tcb.Registers[4]
	tf.R5 = tcb.Registers[5]
	tf.R6 = tcb.Registers[6]
	tf.R7 = tcb.Registers[7]
	tf.R8 = tcb.Registers[8]
	tf.R9 = tcb.Registers[9]
	tf.R10 = tcb.Registers[10]
	tf.FP = tcb.Registers[thread.RegFP]
	tf.IP = tcb.Registers[thread.RegIP]
	tf.SP = tcb.Registers[thread.RegSP]
	tf.LR = tcb.Registers[thread.RegLR]
	tf.PC = tcb.Registers[thread.RegPC]
	tf.CPSR = tcb.Registers[thread.RegCPSR]

	mmu.InvalidateCaches()
	mmu.InvalidateTLB()
}
