package tia

import (
	"image"
	"testing"

	"github.com/go-test/deep"
)

func newTestChip(t *testing.T) *Chip {
	t.Helper()
	c, err := Init(&ChipDef{Mode: NTSC})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c
}

// runToColumn ticks the chip until H reaches HBLANK+col (the start of the
// requested visible column) within the current scanline.
func runToColumn(c *Chip, col int) {
	for c.h != HBLANK+col {
		c.Tick()
	}
}

func runScanline(c *Chip) {
	start := c.scanline
	for c.scanline == start {
		c.Tick()
	}
}

func TestCXCLRZeroesAllCollisionRegisters(t *testing.T) {
	c := newTestChip(t)
	for i := range c.collision {
		c.collision[i] = 0xFF
	}
	c.Write(wCXCLR, 0x00)
	for i, v := range c.collision {
		if v != 0 {
			t.Errorf("collision[%d] = %#x, want 0 after CXCLR", i, v)
		}
	}
}

func TestHMCLRThenHMOVELeavesPositionsUnchanged(t *testing.T) {
	c := newTestChip(t)
	c.Write(wRESP0, 0)
	c.p0.pos = 42
	c.Write(wHMP0, 0x70) // nonzero motion latched...
	c.Write(wHMCLR, 0)   // ...but cleared before HMOVE fires.
	c.Write(wHMOVE, 0)
	if c.p0.pos != 42 {
		t.Errorf("p0.pos = %d, want 42 (HMCLR then HMOVE must be a no-op)", c.p0.pos)
	}
}

func TestRESPDuringHBLANKLatchesColumnZero(t *testing.T) {
	c := newTestChip(t)
	c.h = 10 // inside HBLANK
	c.resetObject(&c.p0)
	if c.p0.pos != 0 {
		t.Errorf("pos = %d, want 0 for a RESP during HBLANK", c.p0.pos)
	}
}

func TestRESPDuringVisibleAppliesFiveClockDelay(t *testing.T) {
	c := newTestChip(t)
	c.h = HBLANK + 40
	c.resetObject(&c.p0)
	if want := 40 + 5; c.p0.pos != want {
		t.Errorf("pos = %d, want %d (H-68+5 delay)", c.p0.pos, want)
	}
}

func TestHMOVEShiftsPositionBySignedOffset(t *testing.T) {
	c := newTestChip(t)
	c.h = HBLANK + 80
	c.resetObject(&c.p0)
	base := c.p0.pos
	c.Write(wHMP0, 0x10) // nibble 1 -> signed offset +1 -> 1 pixel left.
	c.Write(wHMOVE, 0)
	want := wrapColumn(base - 1)
	if c.p0.pos != want {
		t.Errorf("after HMOVE pos = %d, want %d (base %d shifted 1 left)", c.p0.pos, want, base)
	}
}

func TestCollisionP0Playfield(t *testing.T) {
	c := newTestChip(t)
	// Solid playfield across the whole line.
	c.pf0, c.pf1, c.pf2 = 0xF0, 0xFF, 0xFF
	c.Write(wCOLUPF, 0x1E)
	c.Write(wGRP0, 0x80)
	c.h = HBLANK
	c.resetObject(&c.p0)
	c.p0.pos = 0
	c.renderColumn(0)
	if c.collision[2]&0x80 == 0 {
		t.Errorf("CXP0FB bit 7 not set after P0/PF overlap")
	}
	c.Write(wCXCLR, 0)
	if got := c.Read(rCXP0FB); got != 0 {
		t.Errorf("CXP0FB = %#x after CXCLR, want 0", got)
	}
}

func TestNoObjectCollidesWithItself(t *testing.T) {
	c := newTestChip(t)
	c.accumulateCollisions(true, false, false, false, false, false)
	for i, v := range c.collision {
		if v != 0 {
			t.Errorf("collision[%d] = %#x, want 0 (single object can't collide with itself)", i, v)
		}
	}
}

func TestWSYNCStallsUntilNextScanline(t *testing.T) {
	c := newTestChip(t)
	c.Write(wWSYNC, 0)
	if !c.Raised() {
		t.Fatal("Raised() false immediately after WSYNC write")
	}
	runScanline(c)
	if c.Raised() {
		t.Error("Raised() still true after a full scanline elapsed")
	}
}

func TestPlayfieldScoreModeSplitsColors(t *testing.T) {
	c := newTestChip(t)
	c.ctrlpf = 0x02 // score mode
	c.Write(wCOLUP0, 0x20)
	c.Write(wCOLUP1, 0x40)
	c.pf0, c.pf1, c.pf2 = 0xF0, 0xFF, 0xFF // solid playfield
	if got := c.pfColor(10, true); got != c.colup0 {
		t.Errorf("left half color = %#x, want COLUP0 %#x", got, c.colup0)
	}
	if got := c.pfColor(100, true); got != c.colup1 {
		t.Errorf("right half color = %#x, want COLUP1 %#x", got, c.colup1)
	}
}

func TestPlayfieldReflectMirrorsRightHalf(t *testing.T) {
	c := newTestChip(t)
	c.ctrlpf = 0x01 // reflect
	c.pf0 = 0x10    // only pattern bit 0 set (leftmost column group)
	left := c.playfieldBit(0)
	rightMirror := c.playfieldBit(159)
	if !left || !rightMirror {
		t.Errorf("reflect: leftmost bit (%v) should mirror to rightmost column (%v)", left, rightMirror)
	}
}

func TestScanlineDoneCallbackFiresOncePerLine(t *testing.T) {
	count := 0
	c, err := Init(&ChipDef{
		Mode:         NTSC,
		ScanlineDone: func(int, [VisibleColumns]uint8) { count++ },
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 3; i++ {
		runScanline(c)
	}
	if count != 3 {
		t.Errorf("ScanlineDone fired %d times, want 3", count)
	}
}

func TestFrameDoneFiresOnVSYNCFallingEdge(t *testing.T) {
	var got *image.NRGBA
	c, err := Init(&ChipDef{
		Mode:      NTSC,
		FrameDone: func(img *image.NRGBA) { got = img },
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	c.Write(wVSYNC, 0x02)
	c.Write(wVSYNC, 0x00)
	if got == nil {
		t.Fatal("FrameDone never called on VSYNC 1->0 transition")
	}
}

func TestAudioSampleReturnsRawVolumeRegisters(t *testing.T) {
	c := newTestChip(t)
	c.Write(wAUDV0, 0x0A)
	c.Write(wAUDV1, 0x03)
	v0, v1 := c.AudioSample()
	if v0 != 0x0A || v1 != 0x03 {
		t.Errorf("AudioSample() = (%d,%d), want (10,3)", v0, v1)
	}
}

func TestVDELP0PromotionTiming(t *testing.T) {
	c := newTestChip(t)
	c.Write(wVDELP0, 0x01) // enable vertical delay for P0
	c.Write(wGRP0, 0xAA)   // new value; old is still 0 until a GRP1 write.
	if got := pickGRP0(c); got != 0 {
		t.Errorf("pickGRP0() = %#x before any GRP1 write, want 0 (old value)", got)
	}
	c.Write(wGRP1, 0x55) // promotes GRP0's new -> old.
	if got := pickGRP0(c); got != 0xAA {
		t.Errorf("pickGRP0() = %#x after promoting GRP1 write, want 0xAA", got)
	}
	if diff := deep.Equal(c.grp0New, uint8(0xAA)); diff != nil {
		t.Errorf("grp0New diff: %v", diff)
	}
}
