// Package cartridge implements the bank-switched ROM (and, for some
// formats, onboard RAM) that a 2600 program lives in. Each cartridge
// format is its own memory.Bank implementation; Read on a hotspot
// address performs the bank switch before computing the returned byte,
// matching how the real hardware's address decoder works.
package cartridge

import (
	"fmt"
	"math"

	"github.com/jmchacon/atari2600core/memory"
)

const (
	k2KMask = uint16(0x07FF)
	k4KMask = uint16(0x0FFF)
	// romMask picks off the cartridge-select address line (A12) shared
	// by every variant: addresses $1000-$1FFF decode to the cartridge.
	romMask = uint16(0x1000)
)

// Tag enumerates the cartridge formats this package supports, named
// after the identifiers a ROM-loading collaborator is expected to pass in.
type Tag string

const (
	TagSingleBank Tag = "single_bank"
	TagF8         Tag = "default"
	TagF8Alt      Tag = "f8"
	TagF6         Tag = "super"
	TagF6Alt      Tag = "f6"
	TagF4         Tag = "f4"
	TagCBS        Tag = "cbs"
	TagCBSAlt     Tag = "fa"
	TagE          Tag = "e"
	TagPB         Tag = "pb"
	TagFE         Tag = "fe"
	TagMNetwork   Tag = "mnet"
)

// UnknownCartridgeTypeError is returned when New is given a tag it
// doesn't recognize.
type UnknownCartridgeTypeError struct {
	Tag string
}

func (e UnknownCartridgeTypeError) Error() string {
	return fmt.Sprintf("unknown cartridge type: %q", e.Tag)
}

// MalformedROMError is returned when the ROM image's size doesn't match
// what the requested cartridge type requires.
type MalformedROMError struct {
	Tag      string
	Got      int
	Expected string
}

func (e MalformedROMError) Error() string {
	return fmt.Sprintf("malformed ROM for cartridge type %q: got %d bytes, expected %s", e.Tag, e.Got, e.Expected)
}

// Listener is implemented by cartridges that need to observe bus
// traffic outside their own decoded address range (the `fe` format
// watches writes to the stack page to decide which bank is live).
// The memory map calls Listen on every CPU bus access regardless of
// which device the address actually decodes to.
type Listener interface {
	Listen(addr uint16, val uint8, write bool)
}

// Stateful is implemented by cartridge banks whose live bank selection (and
// onboard RAM, if any) must survive a save-state round trip. Cartridges with
// no mutable state (the fixed 2k/4k single_bank format) don't implement it;
// callers building a save-state record should type-assert for it and skip
// banks that don't.
type Stateful interface {
	// BankState returns a serialization-free snapshot of the bank's mutable
	// state: enough to restore Read/Write behavior exactly, not a byte format.
	BankState() BankState
	// RestoreBankState reinstates a snapshot previously returned by BankState.
	RestoreBankState(BankState)
}

// BankState is a flat record of a cartridge's mutable state: the live bank
// selector(s) plus a copy of any onboard RAM. Unused fields are left at
// their zero value for cartridge kinds that don't need them.
type BankState struct {
	Bank    uint16
	Segment [4]uint8
	RAM     [][]uint8
}

// New constructs the cartridge implementation matching tag and wires it
// to parent for data-bus-sampling purposes (may be nil at the top of a chain).
func New(tag Tag, rom []uint8, parent memory.Bank) (memory.Bank, error) {
	switch tag {
	case TagSingleBank:
		return newBasicCart(rom, parent)
	case TagF8, TagF8Alt:
		return newHotspotBankCart(rom, parent, "f8", 8192, 2, 0x1FF8)
	case TagF6, TagF6Alt:
		return newHotspotBankCart(rom, parent, "f6", 16384, 4, 0x1FF6)
	case TagF4:
		return newHotspotBankCart(rom, parent, "f4", 32768, 8, 0x1FF4)
	case TagCBS, TagCBSAlt:
		return newCBSCart(rom, parent)
	case TagE:
		return newParkerBrosAltCart(rom, parent)
	case TagPB:
		return newParkerBrosCart(rom, parent)
	case TagFE:
		return newFECart(rom, parent)
	case TagMNetwork:
		return newMNetworkCart(rom, parent)
	}
	return nil, UnknownCartridgeTypeError{Tag: string(tag)}
}

// basicCart implements a non-bank-switched 2k-4k ROM. 2k ROMs mirror
// into the upper half of the 4k address window.
type basicCart struct {
	rom        []uint8
	mask       uint16
	parent     memory.Bank
	databusVal uint8
}

func newBasicCart(rom []uint8, parent memory.Bank) (memory.Bank, error) {
	got := len(rom)
	if got == 0 || got&(got-1) != 0 || got > 4096 {
		return nil, MalformedROMError{Tag: string(TagSingleBank), Got: got, Expected: "a power of 2 up to 4096 bytes"}
	}
	mask := k4KMask >> uint(math.Log2(float64(4096/got)))
	return &basicCart{rom: rom, mask: mask, parent: parent}, nil
}

func (b *basicCart) Read(addr uint16) uint8 {
	if (addr & romMask) == romMask {
		val := b.rom[addr&b.mask]
		b.databusVal = val
		return val
	}
	b.databusVal = 0
	return 0
}

func (b *basicCart) Write(addr uint16, val uint8) { b.databusVal = val }
func (b *basicCart) PowerOn()                     {}
func (b *basicCart) Parent() memory.Bank          { return b.parent }
func (b *basicCart) DatabusVal() uint8            { return b.databusVal }

// hotspotBankCart implements the common Atari bank-switching shape shared
// by f8 (2x4k), f6 (4x4k) and f4 (8x4k): bankCount 4k banks, selected by
// reading or writing one of bankCount consecutive hotspot addresses
// starting at hotspotBase. The bank switch happens before the byte for
// that same access is computed, so a hotspot read returns the new bank's
// data, matching the real address decoder.
type hotspotBankCart struct {
	name        string
	rom         []uint8
	bank        uint16
	bankCount   uint16
	hotspotBase uint16
	parent      memory.Bank
	databusVal  uint8
}

func newHotspotBankCart(rom []uint8, parent memory.Bank, name string, size int, bankCount int, hotspotBase uint16) (memory.Bank, error) {
	if len(rom) != size {
		return nil, MalformedROMError{Tag: name, Got: len(rom), Expected: fmt.Sprintf("%d bytes", size)}
	}
	return &hotspotBankCart{
		name:        name,
		rom:         rom,
		bankCount:   uint16(bankCount),
		hotspotBase: hotspotBase,
		parent:      parent,
	}, nil
}

func (f *hotspotBankCart) maybeSwitch(addr uint16) {
	a := addr & 0x1FFF
	if a >= f.hotspotBase && a < f.hotspotBase+f.bankCount {
		f.bank = a - f.hotspotBase
	}
}

func (f *hotspotBankCart) Read(addr uint16) uint8 {
	if (addr & romMask) == romMask {
		f.maybeSwitch(addr)
		val := f.rom[(addr&k4KMask)+f.bank*4096]
		f.databusVal = val
		return val
	}
	f.databusVal = 0
	return 0
}

func (f *hotspotBankCart) Write(addr uint16, val uint8) {
	f.databusVal = val
	if (addr & romMask) == romMask {
		f.maybeSwitch(addr)
	}
}

func (f *hotspotBankCart) PowerOn()            {}
func (f *hotspotBankCart) Parent() memory.Bank { return f.parent }
func (f *hotspotBankCart) DatabusVal() uint8   { return f.databusVal }

func (f *hotspotBankCart) BankState() BankState        { return BankState{Bank: f.bank} }
func (f *hotspotBankCart) RestoreBankState(s BankState) { f.bank = s.Bank }

// cbsCart implements the CBS RAM Plus (fa) format: 12k of ROM in 3 4k
// banks switched via $1FF8-$1FFA, plus 256 bytes of RAM mapped into the
// first 512 bytes of the 4k window (write port at $000-$0FF, read port at
// $100-$1FF, mirroring the SuperChip convention).
type cbsCart struct {
	rom        []uint8
	bank       uint16
	ram        memory.Bank
	parent     memory.Bank
	databusVal uint8
}

func newCBSCart(rom []uint8, parent memory.Bank) (memory.Bank, error) {
	if len(rom) != 12288 {
		return nil, MalformedROMError{Tag: string(TagCBS), Got: len(rom), Expected: "12288 bytes"}
	}
	c := &cbsCart{rom: rom, parent: parent}
	var err error
	if c.ram, err = memory.New8BitRAMBank(256, c); err != nil {
		return nil, fmt.Errorf("can't initialize CBS RAM: %w", err)
	}
	return c, nil
}

func (f *cbsCart) maybeSwitch(addr uint16) {
	switch addr & 0x1FFF {
	case 0x1FF8:
		f.bank = 0
	case 0x1FF9:
		f.bank = 1
	case 0x1FFA:
		f.bank = 2
	}
}

func (f *cbsCart) Read(addr uint16) uint8 {
	if (addr & romMask) != romMask {
		f.databusVal = 0
		return 0
	}
	f.maybeSwitch(addr)
	a := addr & k4KMask
	switch {
	case a < 0x0100:
		// Write port: reading here has the side effect of writing the
		// most recent databus value, same trick the SuperChip RAM uses.
		val := memory.LatestDatabusVal(f)
		f.ram.Write(a, val)
		f.databusVal = val
		return val
	case a < 0x0200:
		val := f.ram.Read(a & 0xFF)
		f.databusVal = val
		return val
	}
	val := f.rom[(addr&k4KMask)+f.bank*4096]
	f.databusVal = val
	return val
}

func (f *cbsCart) Write(addr uint16, val uint8) {
	f.databusVal = val
	if (addr & romMask) != romMask {
		return
	}
	f.maybeSwitch(addr)
	a := addr & k4KMask
	if a < 0x0100 {
		f.ram.Write(a, val)
	}
}

func (f *cbsCart) PowerOn()            { f.ram.PowerOn() }
func (f *cbsCart) Parent() memory.Bank { return f.parent }
func (f *cbsCart) DatabusVal() uint8   { return f.databusVal }

func (f *cbsCart) BankState() BankState {
	return BankState{Bank: f.bank, RAM: [][]uint8{dumpRAM(f.ram, 256)}}
}

func (f *cbsCart) RestoreBankState(s BankState) {
	f.bank = s.Bank
	if len(s.RAM) > 0 {
		loadRAM(f.ram, s.RAM[0])
	}
}

// dumpRAM reads every byte out of a memory.Bank-backed RAM of the given
// size through its public Read interface; there's no way to get at the
// backing slice directly since memory.ram is unexported.
func dumpRAM(b memory.Bank, size int) []uint8 {
	out := make([]uint8, size)
	for i := range out {
		out[i] = b.Read(uint16(i))
	}
	return out
}

func loadRAM(b memory.Bank, data []uint8) {
	for i, v := range data {
		b.Write(uint16(i), v)
	}
}

// newParkerBrosAltCart implements the "e" format: an 8k 2-bank cart
// switched by the hotspot pair at offset $FF8 of the window
// ($1FF8/$1FF9), the same pair f8 uses.
func newParkerBrosAltCart(rom []uint8, parent memory.Bank) (memory.Bank, error) {
	return newHotspotBankCart(rom, parent, string(TagE), 8192, 2, 0x1FF8)
}

// parkerBrosCart implements the Parker Brothers format: a 16k ROM
// (16 1k segments) mapped into the cartridge's 4k window as four
// independently-switchable 1k slots. Sixteen hotspots at $1FE0-$1FEF
// select, for slot = (hotspot-0x1FE0)/4, which of the 4 segments
// assigned to that slot is currently mapped.
type parkerBrosCart struct {
	rom        []uint8
	segment    [4]uint8 // which of 4 candidate 1k chunks is live in each of the 4 slots
	parent     memory.Bank
	databusVal uint8
}

func newParkerBrosCart(rom []uint8, parent memory.Bank) (memory.Bank, error) {
	if len(rom) != 16384 {
		return nil, MalformedROMError{Tag: string(TagPB), Got: len(rom), Expected: "16384 bytes"}
	}
	return &parkerBrosCart{rom: rom, parent: parent}, nil
}

func (f *parkerBrosCart) maybeSwitch(addr uint16) {
	a := addr & 0x1FFF
	if a >= 0x1FE0 && a <= 0x1FEF {
		idx := a - 0x1FE0
		slot := idx / 4
		f.segment[slot] = uint8(idx % 4)
	}
}

func (f *parkerBrosCart) Read(addr uint16) uint8 {
	if (addr & romMask) != romMask {
		f.databusVal = 0
		return 0
	}
	f.maybeSwitch(addr)
	a := addr & k4KMask
	slot := a / 1024
	off := a % 1024
	chunk := uint16(slot)*4 + uint16(f.segment[slot])
	val := f.rom[chunk*1024+off]
	f.databusVal = val
	return val
}

func (f *parkerBrosCart) Write(addr uint16, val uint8) {
	f.databusVal = val
	if (addr & romMask) == romMask {
		f.maybeSwitch(addr)
	}
}

func (f *parkerBrosCart) PowerOn()            {}
func (f *parkerBrosCart) Parent() memory.Bank { return f.parent }
func (f *parkerBrosCart) DatabusVal() uint8   { return f.databusVal }

func (f *parkerBrosCart) BankState() BankState        { return BankState{Segment: f.segment} }
func (f *parkerBrosCart) RestoreBankState(s BankState) { f.segment = s.Segment }

// feCart implements the Activision "fe" format: an 8k 2-bank cart whose
// bank selection is never driven by a cartridge-address hotspot at all.
// Instead it watches every CPU write to the stack page ($01FE/$01FF,
// which happens as JSR pushes the return address) and samples bit 5 of
// the byte landing on the data bus to decide which bank is live. The
// cartridge itself never decodes those addresses; the memory map must
// notify it of the access via Listen.
type feCart struct {
	rom        []uint8
	bank       uint16
	parent     memory.Bank
	databusVal uint8
}

func newFECart(rom []uint8, parent memory.Bank) (memory.Bank, error) {
	if len(rom) != 8192 {
		return nil, MalformedROMError{Tag: string(TagFE), Got: len(rom), Expected: "8192 bytes"}
	}
	return &feCart{rom: rom, parent: parent}, nil
}

// Listen implements cartridge.Listener. addr is the full CPU address,
// val the byte crossing the bus, write whether this was a write.
func (f *feCart) Listen(addr uint16, val uint8, write bool) {
	if !write {
		return
	}
	if a := addr & 0x01FF; a == 0x01FE || a == 0x01FF {
		if val&0x20 == 0 {
			f.bank = 0
		} else {
			f.bank = 1
		}
	}
}

func (f *feCart) Read(addr uint16) uint8 {
	if (addr & romMask) == romMask {
		val := f.rom[(addr&k4KMask)+f.bank*4096]
		f.databusVal = val
		return val
	}
	f.databusVal = 0
	return 0
}

func (f *feCart) Write(addr uint16, val uint8) { f.databusVal = val }
func (f *feCart) PowerOn()                     {}
func (f *feCart) Parent() memory.Bank          { return f.parent }
func (f *feCart) DatabusVal() uint8            { return f.databusVal }

func (f *feCart) BankState() BankState        { return BankState{Bank: f.bank} }
func (f *feCart) RestoreBankState(s BankState) { f.bank = s.Bank }

// mNetworkCart implements the M-Network format: 16k of ROM as eight 2k
// segments. The lower 2k of the cartridge window ($1000-$17FF) shows
// whichever segment was last selected via hotspots $1FE0-$1FE7; the
// upper 2k ($1800-$1FFF) is permanently the final segment except for a
// 256 byte RAM window (one of two physical 256 byte chips, selected via
// $1FE8/$1FE9) mapped with the write port in the first half of its 512
// byte span and the read port in the second half.
type mNetworkCart struct {
	rom        []uint8
	lowSegment uint16
	ramBank    int
	ram        [2]memory.Bank
	parent     memory.Bank
	databusVal uint8
}

func newMNetworkCart(rom []uint8, parent memory.Bank) (memory.Bank, error) {
	if len(rom) != 16384 {
		return nil, MalformedROMError{Tag: string(TagMNetwork), Got: len(rom), Expected: "16384 bytes"}
	}
	m := &mNetworkCart{rom: rom, parent: parent}
	for i := range m.ram {
		var err error
		if m.ram[i], err = memory.New8BitRAMBank(256, m); err != nil {
			return nil, fmt.Errorf("can't initialize M-Network RAM %d: %w", i, err)
		}
	}
	return m, nil
}

func (f *mNetworkCart) maybeSwitch(addr uint16) {
	a := addr & 0x1FFF
	switch {
	case a >= 0x1FE0 && a <= 0x1FE7:
		f.lowSegment = a - 0x1FE0
	case a == 0x1FE8:
		f.ramBank = 0
	case a == 0x1FE9:
		f.ramBank = 1
	}
}

func (f *mNetworkCart) Read(addr uint16) uint8 {
	if (addr & romMask) != romMask {
		f.databusVal = 0
		return 0
	}
	f.maybeSwitch(addr)
	a := addr & 0x1FFF
	switch {
	case a < 0x1800:
		val := f.rom[f.lowSegment*2048+(a-0x1000)]
		f.databusVal = val
		return val
	case a >= 0x1900 && a < 0x1A00:
		val := f.ram[f.ramBank].Read(a - 0x1900)
		f.databusVal = val
		return val
	case a >= 0x1800 && a < 0x1900:
		val := memory.LatestDatabusVal(f)
		f.ram[f.ramBank].Write(a-0x1800, val)
		f.databusVal = val
		return val
	}
	// Upper fixed segment (last 2k).
	val := f.rom[7*2048+(a-0x1000)%2048]
	f.databusVal = val
	return val
}

func (f *mNetworkCart) Write(addr uint16, val uint8) {
	f.databusVal = val
	if (addr & romMask) != romMask {
		return
	}
	f.maybeSwitch(addr)
	a := addr & 0x1FFF
	if a >= 0x1800 && a < 0x1900 {
		f.ram[f.ramBank].Write(a-0x1800, val)
	}
}

func (f *mNetworkCart) PowerOn() {
	for _, b := range f.ram {
		b.PowerOn()
	}
}
func (f *mNetworkCart) Parent() memory.Bank { return f.parent }
func (f *mNetworkCart) DatabusVal() uint8   { return f.databusVal }

func (f *mNetworkCart) BankState() BankState {
	return BankState{
		Bank:    uint16(f.ramBank),
		Segment: [4]uint8{uint8(f.lowSegment)},
		RAM:     [][]uint8{dumpRAM(f.ram[0], 256), dumpRAM(f.ram[1], 256)},
	}
}

func (f *mNetworkCart) RestoreBankState(s BankState) {
	f.ramBank = int(s.Bank)
	f.lowSegment = uint16(s.Segment[0])
	for i := range f.ram {
		if i < len(s.RAM) {
			loadRAM(f.ram[i], s.RAM[i])
		}
	}
}
