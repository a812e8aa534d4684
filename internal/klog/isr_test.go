package klog

import (
	"testing"

	"armkernel/internal/hal"
)

func TestPutsISRWritesExactBytes(t *testing.T) {
	sim := hal.NewSim()
	PutsISR(sim, "hi")
	if got := string(sim.Transmitted()); got != "hi" {
		t.Fatalf("Transmitted() = %q, want %q", got, "hi")
	}
}

func TestPutUint32ISRWritesDecimal(t *testing.T) {
	sim := hal.NewSim()
	PutUint32ISR(sim, 1234)
	if got := string(sim.Transmitted()); got != "1234" {
		t.Fatalf("Transmitted() = %q, want %q", got, "1234")
	}
}

func TestPutUint32ISRZero(t *testing.T) {
	sim := hal.NewSim()
	PutUint32ISR(sim, 0)
	if got := string(sim.Transmitted()); got != "0" {
		t.Fatalf("Transmitted() = %q, want %q", got, "0")
	}
}

func TestPutHexISRWritesEightDigits(t *testing.T) {
	sim := hal.NewSim()
	PutHexISR(sim, 0xCAFEBABE)
	if got := string(sim.Transmitted()); got != "cafebabe" {
		t.Fatalf("Transmitted() = %q, want %q", got, "cafebabe")
	}
}

func TestPutHexISRPadsLeadingZeros(t *testing.T) {
	sim := hal.NewSim()
	PutHexISR(sim, 0xFF)
	if got := string(sim.Transmitted()); got != "000000ff" {
		t.Fatalf("Transmitted() = %q, want %q", got, "000000ff")
	}
}
