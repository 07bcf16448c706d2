package atari2600

import (
	"testing"

	"github.com/jmchacon/atari2600core/cartridge"
	"github.com/jmchacon/atari2600core/io"
	"github.com/jmchacon/atari2600core/tia"
)

type fixedSwitch bool

func (f fixedSwitch) Input() bool { return bool(f) }

func minimalDef(rom []uint8, tag cartridge.Tag) *VCSDef {
	return &VCSDef{
		Mode:       tia.NTSC,
		Difficulty: [2]io.PortIn1{fixedSwitch(false), fixedSwitch(false)},
		ColorBW:    fixedSwitch(true),
		GameSelect: fixedSwitch(false),
		Reset:      fixedSwitch(false),
		CartTag:    tag,
		Rom:        rom,
	}
}

func nopROM() []uint8 {
	rom := make([]uint8, 2048)
	for i := range rom {
		rom[i] = 0xEA // NOP
	}
	rom[0x7FC] = 0x00 // reset vector -> $1000
	rom[0x7FD] = 0x10
	return rom
}

func TestInitRejectsMissingConsoleSwitches(t *testing.T) {
	def := minimalDef(nopROM(), cartridge.TagSingleBank)
	def.Reset = nil
	if _, err := Init(def); err == nil {
		t.Error("expected an error when Reset is nil")
	}
}

func TestInitRejectsJoysticksAndPaddlesTogether(t *testing.T) {
	def := minimalDef(nopROM(), cartridge.TagSingleBank)
	def.Joysticks[0] = &Joystick{
		Up: fixedSwitch(false), Down: fixedSwitch(false),
		Left: fixedSwitch(false), Right: fixedSwitch(false),
	}
	def.Paddles[0] = &Paddle{Charged: fixedSwitch(false), Button: fixedSwitch(false)}
	if _, err := Init(def); err == nil {
		t.Error("expected an error when both joysticks and paddles are defined")
	}
}

func TestTickAdvancesCPUEveryThirdMasterClock(t *testing.T) {
	vcs, err := Init(minimalDef(nopROM(), cartridge.TagSingleBank))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	startPC := vcs.memory.cpu.PC
	for i := 0; i < 2; i++ {
		if err := vcs.Tick(); err != nil {
			t.Fatalf("Tick() %d: %v", i, err)
		}
	}
	if vcs.clock.Master() != 2 {
		t.Fatalf("Master() = %d, want 2", vcs.clock.Master())
	}
	if vcs.memory.cpu.PC != startPC {
		t.Errorf("CPU.PC advanced before the 3rd master clock")
	}
	if err := vcs.Tick(); err != nil {
		t.Fatalf("Tick() 3rd: %v", err)
	}
	if vcs.clock.Master() != 3 {
		t.Fatalf("Master() = %d, want 3", vcs.clock.Master())
	}
}

func TestStepCompletesOneInstructionAtATime(t *testing.T) {
	vcs, err := Init(minimalDef(nopROM(), cartridge.TagSingleBank))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	startPC := vcs.memory.cpu.PC
	if err := vcs.Step(); err != nil {
		t.Fatalf("Step(): %v", err)
	}
	if !vcs.memory.cpu.InstructionDone() {
		t.Fatal("InstructionDone() false immediately after Step() returns")
	}
	if vcs.memory.cpu.PC != startPC+1 {
		t.Errorf("PC after one NOP = %#x, want %#x", vcs.memory.cpu.PC, startPC+1)
	}
	// NOP takes 2 CPU cycles == 6 master clocks.
	if vcs.clock.Master() != 6 {
		t.Errorf("Master() after one Step() = %d, want 6", vcs.clock.Master())
	}
}

func TestControllerDecodesCartPIAAndTIARegions(t *testing.T) {
	vcs, err := Init(minimalDef(nopROM(), cartridge.TagSingleBank))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	c := vcs.memory
	// Cartridge space mirrors the ROM.
	if got := c.Read(0x1000); got != 0xEA {
		t.Errorf("cart Read(0x1000) = %#x, want 0xEA", got)
	}
	// RIOT RAM: bit 7 set, bit 9 clear.
	c.Write(0x0080, 0x42)
	if got := c.Read(0x0080); got != 0x42 {
		t.Errorf("RIOT RAM Read(0x0080) = %#x, want 0x42", got)
	}
	// TIA: neither bit 12 nor bit 7 set.
	c.Write(uint16(0x06), 0x1E) // COLUP0
	if c.tia.DatabusVal() != 0x1E {
		t.Errorf("TIA DatabusVal() = %#x, want 0x1E after a TIA-region write", c.tia.DatabusVal())
	}
}

func TestControllerParentChainReachesCartridgeDatabus(t *testing.T) {
	vcs, err := Init(minimalDef(nopROM(), cartridge.TagSingleBank))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if vcs.memory.Parent() != nil {
		t.Error("controller.Parent() should be nil (it's the top of the chain)")
	}
	vcs.memory.cart.Write(0x1000, 0x00) // single_bank ROM write is a no-op but still updates databus.
	if got := vcs.memory.DatabusVal(); got != 0x00 {
		t.Errorf("DatabusVal() = %#x, want 0x00", got)
	}
}

func TestFEBankSwitchIsVisibleThroughController(t *testing.T) {
	rom := make([]uint8, 8192)
	for i := 0; i < 4096; i++ {
		rom[i] = 0xEA
	}
	for i := 4096; i < 8192; i++ {
		rom[i] = 0x4C // JMP, distinguishable from bank 0's NOPs
	}
	rom[0x7FC], rom[0x7FD] = 0x00, 0x10
	vcs, err := Init(minimalDef(rom, cartridge.TagFE))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Writing to the stack page (as a JSR would) samples bit 5 to switch banks.
	vcs.memory.Write(0x01FE, 0x20)
	if got := vcs.memory.Read(0x1000); got != 0x4C {
		t.Errorf("Read(0x1000) after fe bank switch = %#x, want 0x4C", got)
	}
}

func TestClockExposesMasterCounter(t *testing.T) {
	vcs, err := Init(minimalDef(nopROM(), cartridge.TagSingleBank))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if vcs.Clock().Master() != 0 {
		t.Fatalf("Master() = %d, want 0 before any Tick", vcs.Clock().Master())
	}
	vcs.Tick()
	if vcs.Clock().Master() != 1 {
		t.Errorf("Master() = %d, want 1 after one Tick", vcs.Clock().Master())
	}
}

func TestStateRoundTripsCPURegisters(t *testing.T) {
	vcs, err := Init(minimalDef(nopROM(), cartridge.TagSingleBank))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := vcs.Step(); err != nil {
			t.Fatalf("Step() %d: %v", i, err)
		}
	}
	s := vcs.State()
	if s.CPU.PC != vcs.memory.cpu.PC {
		t.Errorf("State().CPU.PC = %#x, want %#x", s.CPU.PC, vcs.memory.cpu.PC)
	}
	if s.Clock != vcs.clock.Master() {
		t.Errorf("State().Clock = %d, want %d", s.Clock, vcs.clock.Master())
	}
}
