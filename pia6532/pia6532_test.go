package pia6532

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/jmchacon/atari2600core/memory"
)

const (
	ioReadPortA      = uint16(0x00)
	ioReadPortADDR   = uint16(0x01)
	ioReadPortB      = uint16(0x02)
	ioReadPortBDDR   = uint16(0x03)
	ioReadTimerNoInt = uint16(0x04)
	ioReadInt        = uint16(0x05)

	ioWritePortA    = uint16(0x00)
	ioWritePortADDR = uint16(0x01)
	ioWritePortB    = uint16(0x02)
	ioWritePortBDDR = uint16(0x03)
	ioWritePosInt   = uint16(0x0F)
	ioWriteNegInt   = uint16(0x0E)
	ioWriteTim1T    = uint16(0x14) // TIM1T, no interrupt, divide by 1.
	ioWriteTim1TInt = uint16(0x1C) // TIM1T, interrupt enabled, divide by 1.
)

// varInput is a settable io.PortIn8/io.PortIn1 for tests.
type varInput struct {
	val uint8
}

func (v *varInput) Input() uint8 {
	return v.val
}

func step(p *Chip) {
	if err := p.Tick(); err != nil {
		panic(err)
	}
	p.TickDone()
}

func newTestChip(t *testing.T) *Chip {
	t.Helper()
	p, err := Init(&ChipDef{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p
}

func TestRAMReadWrite(t *testing.T) {
	p := newTestChip(t)
	p.Write(0x10, 0x5A)
	if got := p.Read(0x10); got != 0x5A {
		t.Errorf("Read(0x10) = %#x, want 0x5A", got)
	}
	if got := p.DatabusVal(); got != 0x5A {
		t.Errorf("DatabusVal() = %#x, want 0x5A", got)
	}
}

func TestPortADDRControlsOutputVsInput(t *testing.T) {
	in := &varInput{val: 0x00}
	p, err := Init(&ChipDef{PortA: in})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Drive every pin as output and assert a 1 pattern. The DDR write must
	// land (via a Tick/TickDone boundary) before the data write, since the
	// data write masks against the DDR value as seen at write time.
	p.IO().Write(ioWritePortADDR, 0xFF)
	step(p)
	p.IO().Write(ioWritePortA, 0xAA)
	step(p)
	if got := p.PortA().Output(); got != 0xAA {
		t.Errorf("PortA().Output() = %#x, want 0xAA", got)
	}
	// Reading back through the register should show the driven value, not
	// the (irrelevant, since DDR is all-output) input pins.
	if got := p.IO().Read(ioReadPortA); got != 0xAA {
		t.Errorf("Read(PA) = %#x, want 0xAA", got)
	}
}

func TestPortBInputPassesThroughWhenDDRIsInput(t *testing.T) {
	in := &varInput{val: 0x3C}
	p, err := Init(&ChipDef{PortB: in})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	p.IO().Write(ioWritePortBDDR, 0x00) // all input
	step(p)
	if got := p.IO().Read(ioReadPortB); got != 0x3C {
		t.Errorf("Read(PB) = %#x, want 0x3C (input pins passed through)", got)
	}
}

func TestTimer1TLoadIsVisibleOnNextCycle(t *testing.T) {
	p := newTestChip(t)
	p.IO().Write(ioWriteTim1T, 0x40)
	step(p) // the tick following the write performs the load.
	if got := p.IO().Read(ioReadTimerNoInt); got != 0x40 {
		t.Errorf("INTIM after load = %#x, want 0x40", got)
	}
}

func TestTimer1TCountsDownOncePerTick(t *testing.T) {
	p := newTestChip(t)
	p.IO().Write(ioWriteTim1T, 0x05)
	step(p) // load
	for i := 0; i < 3; i++ {
		step(p)
	}
	if got := p.IO().Read(ioReadTimerNoInt); got != 0x02 {
		t.Errorf("INTIM after 3 ticks = %#x, want 0x02", got)
	}
}

func TestTimer1TWrapsAndRaisesInterruptWhenEnabled(t *testing.T) {
	p := newTestChip(t)
	p.IO().Write(ioWriteTim1TInt, 0x01)
	step(p) // load, timer == 1
	step(p) // decrements to 0
	if p.Raised() {
		t.Fatal("Raised() true before timer has wrapped past zero")
	}
	step(p) // wraps 0 -> 0xFF, interrupt fires here
	if !p.Raised() {
		t.Fatal("Raised() false after timer wrapped to 0xFF with interrupts enabled")
	}
	if got := p.IO().Read(ioReadInt); got&0x80 == 0 {
		t.Errorf("INTFLAG = %#x, want bit 7 (timer) set", got)
	}
}

func TestEdgeDetectSetsInterruptFlag(t *testing.T) {
	in := &varInput{val: 0x80}
	p, err := Init(&ChipDef{PortA: in})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	p.IO().Write(ioWritePortADDR, 0x00) // PA7 is an input pin.
	p.IO().Write(ioWritePosInt, 0x00)   // enable edge interrupts.
	step(p)                             // latch the initial high value.
	in.val = 0x00
	step(p) // falling transition on PA7 triggers the configured edge.
	if !p.Raised() {
		t.Fatal("Raised() false after the configured PA7 edge")
	}
	if got := p.IO().Read(ioReadInt); got&0x40 == 0 {
		t.Errorf("INTFLAG = %#x, want bit 6 (edge) set", got)
	}
}

func TestResetClearsPortsAndDDR(t *testing.T) {
	p := newTestChip(t)
	p.IO().Write(ioWritePortADDR, 0xFF)
	p.IO().Write(ioWritePortA, 0xFF)
	step(p)
	p.Reset()
	if diff := deep.Equal(p.portADDR, uint8(0x00)); diff != nil {
		t.Errorf("portADDR after Reset diff: %v", diff)
	}
	if diff := deep.Equal(p.portAOutput.data, uint8(0x00)); diff != nil {
		t.Errorf("portAOutput after Reset diff: %v", diff)
	}
}

func TestTickWithoutTickDoneErrors(t *testing.T) {
	p := newTestChip(t)
	if err := p.Tick(); err != nil {
		t.Fatalf("first Tick(): %v", err)
	}
	if err := p.Tick(); err == nil {
		t.Error("second Tick() without an intervening TickDone() should error")
	}
}

func TestParentIsReturnedForBusSnooping(t *testing.T) {
	parent := newTestChip(t)
	p, err := Init(&ChipDef{Parent: parent})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if p.Parent() != memory.Bank(parent) {
		t.Error("Parent() did not return the configured parent bank")
	}
}
