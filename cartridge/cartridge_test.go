package cartridge

import (
	"testing"
)

func romOfSize(n int, fill func(i int) uint8) []uint8 {
	rom := make([]uint8, n)
	for i := range rom {
		rom[i] = fill(i)
	}
	return rom
}

func TestSingleBankMirrors2k(t *testing.T) {
	rom := romOfSize(2048, func(i int) uint8 { return uint8(i) })
	c, err := New(TagSingleBank, rom, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Upper 2k window should mirror the lower 2k.
	for _, addr := range []uint16{0x1000, 0x17FF} {
		got := c.Read(addr)
		want := c.Read(addr + 0x0800)
		if got != want {
			t.Errorf("Read(%.4X)=%.2X Read(%.4X)=%.2X want equal (mirrored)", addr, got, addr+0x0800, want)
		}
	}
}

func TestF8SwitchBeforeRead(t *testing.T) {
	rom := make([]uint8, 8192)
	for i := 0; i < 4096; i++ {
		rom[i] = 0xAA
	}
	for i := 4096; i < 8192; i++ {
		rom[i] = 0xBB
	}
	c, err := New(TagF8, rom, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Read(0x1000); got != 0xAA {
		t.Fatalf("initial bank read = %.2X want 0xAA", got)
	}
	// Accessing the hotspot itself must already reflect the new bank.
	if got := c.Read(0x1FF9); got != 0xBB {
		t.Errorf("hotspot read = %.2X want 0xBB (switched bank's byte)", got)
	}
	if got := c.Read(0x1000); got != 0xBB {
		t.Errorf("post-switch read = %.2X want 0xBB", got)
	}
}

func TestF6FourBanks(t *testing.T) {
	rom := make([]uint8, 16384)
	for b := 0; b < 4; b++ {
		for i := 0; i < 4096; i++ {
			rom[b*4096+i] = uint8(b)
		}
	}
	c, err := New(TagF6, rom, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		hotspot uint16
		want    uint8
	}{
		{0x1FF6, 0}, {0x1FF7, 1}, {0x1FF8, 2}, {0x1FF9, 3},
	}
	for _, test := range tests {
		c.Read(test.hotspot)
		if got := c.Read(0x1000); got != test.want {
			t.Errorf("bank after hotspot %.4X = %d want %d", test.hotspot, got, test.want)
		}
	}
}

func TestCBSRamWriteThenRead(t *testing.T) {
	rom := make([]uint8, 12288)
	c, err := New(TagCBS, rom, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.Write(0x1050, 0x42)
	if got := c.Read(0x1150); got != 0x42 {
		t.Errorf("RAM read-back = %.2X want 0x42", got)
	}
}

func TestFEBankFollowsStackWrite(t *testing.T) {
	rom := make([]uint8, 8192)
	for i := 0; i < 4096; i++ {
		rom[i] = 0x01
	}
	for i := 4096; i < 8192; i++ {
		rom[i] = 0x02
	}
	bank, err := New(TagFE, rom, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l, ok := bank.(Listener)
	if !ok {
		t.Fatalf("fe cartridge does not implement Listener")
	}
	if got := bank.Read(0x1000); got != 0x01 {
		t.Fatalf("initial bank = %.2X want 0x01", got)
	}
	l.Listen(0x01FE, 0x20, true) // bit 5 set selects bank 1
	if got := bank.Read(0x1000); got != 0x02 {
		t.Errorf("bank after stack-sampled switch = %.2X want 0x02", got)
	}
	l.Listen(0x01FE, 0x00, true) // bit 5 clear selects bank 0
	if got := bank.Read(0x1000); got != 0x01 {
		t.Errorf("bank after stack-sampled switch back = %.2X want 0x01", got)
	}
}

func TestUnknownTag(t *testing.T) {
	if _, err := New(Tag("bogus"), nil, nil); err == nil {
		t.Error("expected error for unknown cartridge tag, got nil")
	}
}

func TestMalformedROMSize(t *testing.T) {
	if _, err := New(TagF8, make([]uint8, 100), nil); err == nil {
		t.Error("expected error for wrong-sized f8 ROM, got nil")
	}
}
