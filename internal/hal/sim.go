package hal

import "armkernel/internal/mm"

// Sim is a pure-Go, in-process stand-in for the real peripherals and
// processor-control primitives. It backs the unit tests and the hosted
// demo harness (cmd/kernelsim); nothing here touches real memory-mapped
// registers.
type Sim struct {
	tickPending bool

	rx []byte
	tx []byte

	txReadyEnabled bool

	ttb       *mm.SectionTable
	lastFault uintptr

	irqAcked []uint32
}

// NewSim returns a freshly reset simulation.
func NewSim() *Sim {
	return &Sim{}
}

// FireTick marks a tick as pending, as if the timer peripheral's counter
// had just reached zero.
func (s *Sim) FireTick() { s.tickPending = true }

// Pending implements TickSource.
func (s *Sim) Pending() bool {
	fired := s.tickPending
	s.tickPending = false
	return fired
}

// InjectRX appends bytes to the simulated wire, as if they had just
// arrived at the UART's receive FIFO.
func (s *Sim) InjectRX(bs []byte) { s.rx = append(s.rx, bs...) }

// RXAvailable implements SerialDriver.
func (s *Sim) RXAvailable() bool { return len(s.rx) > 0 }

// TXWritable implements SerialDriver. The simulated UART never backs up.
func (s *Sim) TXWritable() bool { return true }

// ReadByte implements SerialDriver.
func (s *Sim) ReadByte() byte {
	b := s.rx[0]
	s.rx = s.rx[1:]
	return b
}

// WriteByte implements SerialDriver.
func (s *Sim) WriteByte(b byte) { s.tx = append(s.tx, b) }

// EnableTXReady/DisableTXReady implement SerialDriver.
func (s *Sim) EnableTXReady()  { s.txReadyEnabled = true }
func (s *Sim) DisableTXReady() { s.txReadyEnabled = false }

// TXReadyEnabled reports whether the TX-ready interrupt is currently
// enabled, for tests asserting the enable/disable-on-drain contract.
func (s *Sim) TXReadyEnabled() bool { return s.txReadyEnabled }

// Transmitted returns every byte written to the wire so far, in order.
func (s *Sim) Transmitted() []byte { return s.tx }

// Acknowledge/EndOfInterrupt implement InterruptController.
func (s *Sim) Acknowledge() uint32 { return 0 }
func (s *Sim) EndOfInterrupt(id uint32) {
	s.irqAcked = append(s.irqAcked, id)
}

// IRQAcked returns every id passed to EndOfInterrupt so far, in order, for
// tests asserting the dispatcher signals completion to the controller.
func (s *Sim) IRQAcked() []uint32 { return s.irqAcked }

// WriteTranslationTableBase/Enable/InvalidateCaches/InvalidateTLB
// implement MMUControl.
func (s *Sim) WriteTranslationTableBase(ttb *mm.SectionTable) { s.ttb = ttb }
func (s *Sim) Enable()                                        {}
func (s *Sim) InvalidateCaches()                               {}
func (s *Sim) InvalidateTLB()                                 {}

// FaultAddress implements MMUControl.
func (s *Sim) FaultAddress() uintptr { return s.lastFault }

// SetFaultAddress lets a test simulate a data abort's fault-address
// register contents before the handler reads it.
func (s *Sim) SetFaultAddress(addr uintptr) { s.lastFault = addr }

// ActiveTTB returns the section table most recently installed via
// WriteTranslationTableBase, for tests asserting the right address space
// was switched in.
func (s *Sim) ActiveTTB() *mm.SectionTable { return s.ttb }
