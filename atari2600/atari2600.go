// Package atari2600 is the scheduler that pulls the CPU, TIA, RIOT, master
// clock and cartridge memory map together into a runnable machine. The
// individual chips are implemented in their own packages; this package's
// job is exactly the "dependency order, leaves first" wiring the core
// design calls for, plus the per-master-clock drive loop that keeps the
// CPU's cycle count and the TIA's color-clock count in the required 1:3
// relationship.
package atari2600

import (
	"errors"
	"fmt"
	"image"
	"log"

	"github.com/davecgh/go-spew/spew"

	"github.com/jmchacon/atari2600core/cartridge"
	"github.com/jmchacon/atari2600core/clock"
	"github.com/jmchacon/atari2600core/cpu"
	"github.com/jmchacon/atari2600core/io"
	"github.com/jmchacon/atari2600core/memory"
	"github.com/jmchacon/atari2600core/pia6532"
	"github.com/jmchacon/atari2600core/tia"
)

// Joystick defines a classic digital joystick with 4 directions and a
// single button. For each direction true == pressed.
type Joystick struct {
	Up     io.PortIn1
	Down   io.PortIn1
	Left   io.PortIn1
	Right  io.PortIn1
	Button io.PortIn1
}

// Paddle defines an Atari 2600 paddle controller where the internal RC
// circuit is either charged or not. Corresponds to reads on INPT0-3. The
// button is routed through port A on the RIOT and true == pressed.
type Paddle struct {
	Charged io.PortIn1
	Button  io.PortIn1
}

type portA struct {
	joysticks [2]*Joystick
	paddles   [4]*Paddle
}

type portB struct {
	difficulty [2]io.PortIn1
	colorBW    io.PortIn1
	gameSelect io.PortIn1
	reset      io.PortIn1
}

// Input implements io.PortIn8 for port A, mapping the two joysticks (or,
// mutually exclusively, up to four paddle buttons) onto SWCHA's bit layout:
// bit 7 = P0 right, 6 = P0 left, 5 = P0 down, 4 = P0 up, bits 3-0 mirror for P1.
func (p *portA) Input() uint8 {
	out := uint8(0x00)
	// NOTE: these are all active low on real hardware (0 means pressed); a
	// disassembled joystick could physically produce Up+Down simultaneously
	// and the 2600 never tried to prevent it, so neither do we.
	if p.joysticks[0] != nil {
		if !p.joysticks[0].Up.Input() {
			out |= 0x10
		}
		if !p.joysticks[0].Down.Input() {
			out |= 0x20
		}
		if !p.joysticks[0].Left.Input() {
			out |= 0x40
		}
		if !p.joysticks[0].Right.Input() {
			out |= 0x80
		}
	}
	if p.joysticks[1] != nil {
		if !p.joysticks[1].Up.Input() {
			out |= 0x01
		}
		if !p.joysticks[1].Down.Input() {
			out |= 0x02
		}
		if !p.joysticks[1].Left.Input() {
			out |= 0x04
		}
		if !p.joysticks[1].Right.Input() {
			out |= 0x08
		}
	}
	if p.paddles[0] != nil && !p.paddles[0].Button.Input() {
		out |= 0x80
	}
	if p.paddles[1] != nil && !p.paddles[1].Button.Input() {
		out |= 0x40
	}
	if p.paddles[2] != nil && !p.paddles[2].Button.Input() {
		out |= 0x08
	}
	if p.paddles[3] != nil && !p.paddles[3].Button.Input() {
		out |= 0x04
	}
	return out
}

// Input implements io.PortIn8 for port B, mapping the console switches onto
// SWCHB: bit 0 = game reset (active low), bit 1 = game select (active low),
// bit 3 = color/BW, bits 6-7 = the two difficulty switches.
func (p *portB) Input() uint8 {
	out := uint8(0x00)
	if !p.reset.Input() {
		out |= 0x01
	}
	if !p.gameSelect.Input() {
		out |= 0x02
	}
	if p.colorBW.Input() {
		out |= 0x08
	}
	if p.difficulty[0].Input() {
		out |= 0x40
	}
	if p.difficulty[1].Input() {
		out |= 0x80
	}
	return out
}

// VCS is a fully wired Atari 2600: clock, CPU, TIA, RIOT and cartridge
// memory map. The zero value is not useful; construct with Init.
type VCS struct {
	portA *portA
	portB *portB

	clock  *clock.Clock
	memory *controller

	debug bool

	// unimplementedLogged tracks whether the one-time diagnostic for an
	// UnimplementedOpcode has already fired, per §7.
	unimplementedLogged bool
}

// controller is the CPU-visible memory map: it decodes the 13 address pins
// into RIOT RAM/IO, TIA registers, or the cartridge, exactly per §3's
// decode table. It owns the cartridge (a memory.Bank) and holds
// non-owning references to the RIOT and TIA.
type controller struct {
	cpu  *cpu.Chip
	pia  *pia6532.Chip
	tia  *tia.Chip
	cart memory.Bank
}

// VCSDef defines the pieces needed to set up a basic Atari 2600, assuming
// up to 2 joysticks or 4 paddles (the two are mutually exclusive on real
// hardware since both live on port A).
type VCSDef struct {
	Mode tia.TIAMode

	Joysticks [2]*Joystick
	Paddles   [4]*Paddle
	// PaddleGround is called whenever the paddle input ports (INPT0-3) are
	// grounded by a VBLANK write (discharging the RC timing circuit).
	PaddleGround func()

	// Difficulty defines the 2 player difficulty switches (false ==
	// Beginner, true == Advanced).
	Difficulty [2]io.PortIn1
	// ColorBW selects color (true) or black & white (false) mode.
	ColorBW io.PortIn1
	// GameSelect is the game-select console switch (true == pressed).
	GameSelect io.PortIn1
	// Reset is the game-reset console switch (true == pressed).
	Reset io.PortIn1

	// ScanlineDone is called once per completed scanline with its raw
	// 160-entry palette-index pixel array and scanline number.
	ScanlineDone func(scanline int, pixels [tia.VisibleColumns]uint8)
	// FrameDone is called on every VSYNC 1->0 transition with the
	// completed frame rendered through Mode's palette.
	FrameDone func(*image.NRGBA)

	// CartTag selects the bank-switching format of Rom; see the cartridge
	// package for the full supported set.
	CartTag cartridge.Tag
	// Rom is the raw ROM image to load, sized per CartTag's requirements.
	Rom []uint8

	// Debug if true emits Debug() output from the RIOT, CPU and TIA chips.
	Debug bool
}

// Init validates def and returns a powered-on VCS.
func Init(def *VCSDef) (*VCS, error) {
	if def.Difficulty[0] == nil || def.Difficulty[1] == nil {
		return nil, errors.New("both difficulty switches must be non-nil in def")
	}
	if def.ColorBW == nil {
		return nil, errors.New("ColorBW must be non-nil in def")
	}
	if def.GameSelect == nil {
		return nil, errors.New("GameSelect must be non-nil in def")
	}
	if def.Reset == nil {
		return nil, errors.New("Reset must be non-nil in def")
	}

	var ch [4]io.PortIn1
	var paddles bool
	for i, p := range def.Paddles {
		if p != nil {
			if p.Charged == nil || p.Button == nil {
				return nil, fmt.Errorf("paddle %d cannot be defined with a nil Charged or Button: %#v", i, p)
			}
			ch[i] = p.Charged
			paddles = true
		}
	}

	var b [2]io.PortIn1
	for i, j := range def.Joysticks {
		if j != nil {
			if paddles {
				return nil, errors.New("cannot have paddles and joysticks defined at the same time")
			}
			if j.Up == nil || j.Down == nil || j.Left == nil || j.Right == nil {
				return nil, fmt.Errorf("cannot pass in a Joystick for Joystick[%d] with nil members: %#v", i, j)
			}
			b[i] = j.Button
		}
	}

	tiaChip, err := tia.Init(&tia.ChipDef{
		Mode:         def.Mode,
		Port0:        ch[0],
		Port1:        ch[1],
		Port2:        ch[2],
		Port3:        ch[3],
		Port4:        b[0],
		Port5:        b[1],
		IoPortGnd:    def.PaddleGround,
		ScanlineDone: def.ScanlineDone,
		FrameDone:    def.FrameDone,
		Debug:        def.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("can't initialize TIA: %w", err)
	}

	cart, err := cartridge.New(def.CartTag, def.Rom, nil)
	if err != nil {
		return nil, fmt.Errorf("can't initialize cartridge: %w", err)
	}

	a := &VCS{
		portA: &portA{
			joysticks: def.Joysticks,
			paddles:   def.Paddles,
		},
		portB: &portB{
			difficulty: def.Difficulty,
			colorBW:    def.ColorBW,
			gameSelect: def.GameSelect,
			reset:      def.Reset,
		},
		clock: clock.New(),
		memory: &controller{
			tia:  tiaChip,
			cart: cart,
		},
		debug: def.Debug,
	}

	pia, err := pia6532.Init(&pia6532.ChipDef{
		PortA: a.portA,
		PortB: a.portB,
		Debug: def.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("can't initialize RIOT: %w", err)
	}
	a.memory.pia = pia

	// No IRQ/NMI source in the VCS; RDY is wired to the TIA's WSYNC latch.
	c, err := cpu.Init(&cpu.ChipDef{
		Cpu:   cpu.CPU_NMOS,
		Ram:   a.memory,
		Rdy:   tiaChip,
		Debug: def.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("can't initialize cpu: %w", err)
	}
	a.memory.cpu = c
	return a, nil
}

const (
	kAddressMask = uint16(0x1FFF) // 13 address pins.

	kCartMask  = uint16(0x1000) // bit 12: cartridge.
	kPIAMask   = uint16(0x0080) // bit 7: RIOT RAM or I/O.
	kPIAIOMask = uint16(0x0280) // bit 9 (with bit 7): RIOT I/O vs RAM.
)

// Read implements memory.Ram, decoding a CPU address into RIOT RAM/IO, TIA,
// or cartridge space per §3's table.
func (c *controller) Read(addr uint16) uint8 {
	addr &= kAddressMask

	if l, ok := c.cart.(cartridge.Listener); ok {
		l.Listen(addr, c.cart.DatabusVal(), false)
	}

	switch {
	case (addr & kCartMask) == kCartMask:
		return c.cart.Read(addr)
	case (addr & kPIAMask) == kPIAMask:
		if (addr & kPIAIOMask) == kPIAIOMask {
			return c.pia.IO().Read(addr)
		}
		return c.pia.Read(addr)
	}
	return c.tia.Read(addr)
}

// Write implements memory.Ram, decoding a CPU address the same way Read
// does. Cartridge writes fall through to the cartridge (a no-op for pure
// ROM variants, RAM-window writes for the few variants that carry RAM).
func (c *controller) Write(addr uint16, val uint8) {
	addr &= kAddressMask

	if l, ok := c.cart.(cartridge.Listener); ok {
		l.Listen(addr, val, true)
	}

	switch {
	case (addr & kCartMask) == kCartMask:
		c.cart.Write(addr, val)
		return
	case (addr & kPIAMask) == kPIAMask:
		if (addr & kPIAIOMask) == kPIAIOMask {
			c.pia.IO().Write(addr, val)
			return
		}
		c.pia.Write(addr, val)
		return
	}
	c.tia.Write(addr, val)
}

// PowerOn implements memory.Ram. The controller itself holds no state to
// reset; its constituent chips were already powered on during Init.
func (c *controller) PowerOn() {}

// Parent implements memory.Bank; the controller sits at the top of its
// chain so it has no parent.
func (c *controller) Parent() memory.Bank { return nil }

// DatabusVal implements memory.Bank by returning the cartridge's last
// sampled bus value, since the cartridge is the chain's deepest member most
// bank-switch hotspot logic (the `fe` format in particular) needs to see.
func (c *controller) DatabusVal() uint8 { return c.cart.DatabusVal() }

// Tick advances the whole machine by one master color clock: the TIA ticks
// every call; the RIOT and CPU tick every third call, which keeps
// clock.Clock's invariant (CPU cycle boundaries land on multiples of 3
// master clocks) without either chip needing its own clock reference.
// Errors from chip Tick() calls are wrapped with which chip produced them;
// per §7 no error here is meant to be fatal to the overall run except ones
// the embedding harness chooses to treat that way (InvalidCPUState, a halt
// on an illegal opcode the CPU package chooses not to emulate, etc).
func (a *VCS) Tick() error {
	if err := a.memory.tia.Tick(); err != nil {
		return fmt.Errorf("TIA tick error: %w", err)
	}
	cpuBoundary := a.clock.Tick()

	if cpuBoundary {
		if a.debug {
			if d := a.memory.pia.Debug(); d != "" {
				log.Printf("RIOT: %s", d)
			}
			if d := a.memory.cpu.Debug(); d != "" {
				log.Printf("CPU: %s", d)
			}
			if d := a.memory.tia.Debug(); d != "" {
				log.Printf("TIA: %s", d)
			}
		}
		if err := a.memory.pia.Tick(); err != nil {
			return fmt.Errorf("RIOT tick error: %w", err)
		}
		if err := a.memory.cpu.Tick(); err != nil {
			a.logHalt(err)
			return fmt.Errorf("CPU tick error: %w", err)
		}
		a.memory.pia.TickDone()
		a.memory.cpu.TickDone()
	}
	a.memory.tia.TickDone()
	return nil
}

// Step runs master clocks until the CPU has retired exactly one
// instruction (cpu.Chip.InstructionDone reports true at an instruction
// boundary), matching the "per-instruction driver" shape §4.7 describes:
// fetch/decode/execute one instruction, then the caller can inspect
// framebuffer/audio state before calling Step again. WSYNC stalls are
// transparent here: the CPU's RDY line holds it at the boundary of the
// stalling instruction while the TIA keeps advancing underneath, so Step
// simply keeps ticking master clocks through the stall.
func (a *VCS) Step() error {
	for {
		if err := a.Tick(); err != nil {
			return err
		}
		if a.clock.Phase() == 0 && a.memory.cpu.InstructionDone() {
			return nil
		}
	}
}

// Clock exposes the master color-clock counter driving this VCS, primarily
// for save-state capture and for harnesses enforcing a stop_clock cap.
func (a *VCS) Clock() *clock.Clock {
	return a.clock
}

// State is a flat, implementation-defined snapshot of the whole machine:
// the master clock, every chip's register state, RIOT RAM, and the
// cartridge's live bank selection (plus onboard RAM for the formats that
// have it). Per §6 exact byte compatibility is explicitly not required; this
// exists to support the round-trip invariant (save immediately followed by
// restore must behave identically for the next 1,000,000 master clocks), not
// cross-version persistence.
type State struct {
	Clock uint64
	CPU   cpu.State
	TIA   tia.State
	RIOT  pia6532.State

	// CartBank is the cartridge's bank-select/RAM snapshot. Present only if
	// the cartridge format has mutable state (see cartridge.Stateful); the
	// zero value is correct for the fixed single_bank format.
	CartBank    cartridge.BankState
	HasCartBank bool
}

// State captures a full snapshot of the machine. Must only be called between
// instructions (immediately after Step returns with a nil error).
func (a *VCS) State() State {
	s := State{
		Clock: a.clock.Master(),
		CPU:   a.memory.cpu.State(),
		TIA:   a.memory.tia.State(),
		RIOT:  a.memory.pia.State(),
	}
	if sf, ok := a.memory.cart.(cartridge.Stateful); ok {
		s.CartBank = sf.BankState()
		s.HasCartBank = true
	}
	return s
}

// Restore reinstates a snapshot previously returned by State.
func (a *VCS) Restore(s State) {
	a.clock.Set(s.Clock)
	a.memory.cpu.Restore(s.CPU)
	a.memory.tia.Restore(s.TIA)
	a.memory.pia.Restore(s.RIOT)
	if s.HasCartBank {
		if sf, ok := a.memory.cart.(cartridge.Stateful); ok {
			sf.RestoreBankState(s.CartBank)
		}
	}
}

// logHalt emits a one-time go-spew structural dump of the CPU's state when
// a CPU Tick returns an error (such as a halt on an illegal opcode that the
// CPU package does not execute as a documented undocumented instruction).
// It only logs when the VCS was built with Debug set, and never more than
// once per VCS so a program that gets stuck in a halt loop doesn't flood
// the log.
func (a *VCS) logHalt(err error) {
	if !a.debug || a.unimplementedLogged {
		return
	}
	a.unimplementedLogged = true
	log.Printf("CPU halted: %v\n%s", err, spew.Sdump(a.memory.cpu))
}
