// Package tia implements the Television Interface Adapter used in an Atari
// 2600: the chip that turns register writes issued by the CPU into a
// 160x192 visible picture, collision latches, and a pair of 4 bit audio
// volume samples. There is no frame buffer in the real chip and none here:
// every visible pixel is produced as a side effect of the scanline/column
// counters advancing one master color clock at a time, exactly the way the
// 6532 in pia6532.Chip advances its own prescaler one Tick() at a time.
package tia

import (
	"fmt"
	"image"
	"image/color"

	"github.com/jmchacon/atari2600core/io"
	"github.com/jmchacon/atari2600core/palette"
)

// TIAMode selects the color standard. It changes nothing about clock timing
// (the chip is driven by its embedder one master color clock per Tick() call
// regardless of mode) and only selects which palette.Table a caller building
// a visible image should draw through.
type TIAMode int

const (
	// NTSC is the standard US/Japan color standard: 262 scanlines/frame.
	NTSC TIAMode = iota
	// PAL is the European color standard: 312 scanlines/frame.
	PAL
	// SECAM is the French/Russian color standard; shares PAL line counts.
	SECAM
)

func (m TIAMode) String() string {
	switch m {
	case NTSC:
		return "NTSC"
	case PAL:
		return "PAL"
	case SECAM:
		return "SECAM"
	default:
		return "UNKNOWN"
	}
}

// Palette returns the color table matching this mode.
func (m TIAMode) Palette() palette.Table {
	switch m {
	case PAL:
		return palette.PAL
	case SECAM:
		return palette.SECAM
	default:
		return palette.NTSC
	}
}

const (
	// HBLANK is the count of master color clocks at the start of a scanline
	// during which no visible pixel is produced.
	HBLANK = 68
	// VisibleColumns is the number of visible pixels in a scanline.
	VisibleColumns = 160
	// ClocksPerScanline is the total master color clock count of one scanline.
	ClocksPerScanline = HBLANK + VisibleColumns
)

// ChipDef defines the parameters needed to create a new TIA. Mirrors the
// shape of pia6532.ChipDef: ports in, a debug toggle, and callbacks for the
// collaborators the core hands pixels/frames to rather than owning them.
type ChipDef struct {
	// Mode selects the color standard. Affects only palette selection.
	Mode TIAMode

	// Port0-Port3 are the four paddle charge inputs (INPT0-3).
	Port0, Port1, Port2, Port3 io.PortIn1
	// Port4/Port5 are the two joystick trigger inputs (INPT4/5).
	Port4, Port5 io.PortIn1

	// IoPortGnd is called whenever VBLANK grounds I0-I3 (paddle discharge).
	IoPortGnd func()

	// ScanlineDone is invoked once per completed scanline with the 160
	// palette-index pixels just rendered and the scanline's index within the
	// current frame (0 based, counting from the last VSYNC 1->0 transition).
	// This is the framebuffer stream described for external consumers: raw
	// indices, no color interpretation.
	ScanlineDone func(scanline int, pixels [VisibleColumns]uint8)

	// FrameDone is invoked on every VSYNC 1->0 transition with a fully
	// assembled image.NRGBA of everything rendered since the previous call,
	// using Mode's palette table. A convenience for harnesses that draw
	// through image.Image (the teacher's own vcs_main.go blits an
	// image.Image-shaped buffer rather than walking raw indices).
	FrameDone func(*image.NRGBA)

	// Debug if true causes Debug() to return a formatted summary of the
	// current register/position state after each Tick().
	Debug bool
}

// objectPos tracks a single movable object's (player/missile/ball) column
// position and the per-HMOVE signed offset latched against it.
type objectPos struct {
	pos    int   // 0-159, set by the RESx strobe.
	hm     int8  // signed offset range -8..7, set by HMxx writes.
	active bool  // false until the first RESx strobe; undrawn until then.
}

// Chip is a fully initialized TIA. All exported behavior goes through
// Read/Write (register access from the CPU's memory map), Tick/TickDone
// (the scheduler's per-master-clock drive), and Raised (the RDY/WSYNC line
// the CPU polls before starting its next instruction).
type Chip struct {
	mode TIAMode

	// Player/missile/ball graphics and control. Each of GRP0/GRP1/ENABL has a
	// "new" register (what was last written) and an "old" register (what the
	// previous write promoted into); VDELPx/VDELBL select which one is drawn.
	// Writing GRP1 promotes P0 and the ball (new->old); writing GRP0 promotes
	// P1 and the ball (new->old); see pickGRP0/pickGRP1/pickENABL and §4.5.
	grp0New, grp0Old   uint8
	grp1New, grp1Old   uint8
	enablNew, enablOld bool
	vdelp0, vdelp1     bool
	vdelbl             bool
	enam0, enam1       bool
	refp0, refp1       bool
	nusiz0, nusiz1     uint8
	resmp0, resmp1     bool

	p0, p1, m0, m1, bl objectPos

	pf0, pf1, pf2 uint8
	ctrlpf        uint8

	colup0, colup1, colupf, colubk uint8

	audc [2]uint8
	audf [2]uint8
	audv [2]uint8

	collision [8]uint8

	vsync, vblank bool
	wsync         bool // true => RDY held, CPU stalled until H wraps to 0.

	hmoveArmed   bool // HMOVE strobed during HBLANK of this line: blank the comb region.
	hmoveComb    int  // remaining clocks (from H=HBLANK) to force black for the comb effect.

	h        int // 0..ClocksPerScanline-1, master-clock position within the scanline.
	scanline int // scanline index since the last VSYNC 1->0 transition.

	line  [VisibleColumns]uint8
	frame *image.NRGBA

	inputPorts    [6]io.PortIn1
	outputLatches [2]bool
	latches       bool
	groundInput   bool
	ioPortGnd     func()

	scanlineDone func(int, [VisibleColumns]uint8)
	frameDone    func(*image.NRGBA)

	databusVal uint8
	debug      bool
}

// Init returns a fully initialized and powered-on TIA.
func Init(def *ChipDef) (*Chip, error) {
	t := &Chip{
		mode:         def.Mode,
		inputPorts:   [6]io.PortIn1{def.Port0, def.Port1, def.Port2, def.Port3, def.Port4, def.Port5},
		ioPortGnd:    def.IoPortGnd,
		scanlineDone: def.ScanlineDone,
		frameDone:    def.FrameDone,
		debug:        def.Debug,
	}
	t.PowerOn()
	return t, nil
}

// PowerOn resets the TIA to its power-on state: all registers zeroed,
// horizontal/scanline counters at the start of a frame, RDY not held.
func (t *Chip) PowerOn() {
	*t = Chip{
		mode:         t.mode,
		inputPorts:   t.inputPorts,
		ioPortGnd:    t.ioPortGnd,
		scanlineDone: t.scanlineDone,
		frameDone:    t.frameDone,
		debug:        t.debug,
	}
	t.frame = image.NewNRGBA(image.Rect(0, 0, VisibleColumns, 262))
}

// Register offsets, write side ($00-$2C on the CPU bus, masked to 6 bits).
const (
	wVSYNC  = 0x00
	wVBLANK = 0x01
	wWSYNC  = 0x02
	wRSYNC  = 0x03
	wNUSIZ0 = 0x04
	wNUSIZ1 = 0x05
	wCOLUP0 = 0x06
	wCOLUP1 = 0x07
	wCOLUPF = 0x08
	wCOLUBK = 0x09
	wCTRLPF = 0x0A
	wREFP0  = 0x0B
	wREFP1  = 0x0C
	wPF0    = 0x0D
	wPF1    = 0x0E
	wPF2    = 0x0F
	wRESP0  = 0x10
	wRESP1  = 0x11
	wRESM0  = 0x12
	wRESM1  = 0x13
	wRESBL  = 0x14
	wAUDC0  = 0x15
	wAUDC1  = 0x16
	wAUDF0  = 0x17
	wAUDF1  = 0x18
	wAUDV0  = 0x19
	wAUDV1  = 0x1A
	wGRP0   = 0x1B
	wGRP1   = 0x1C
	wENAM0  = 0x1D
	wENAM1  = 0x1E
	wENABL  = 0x1F
	wHMP0   = 0x20
	wHMP1   = 0x21
	wHMM0   = 0x22
	wHMM1   = 0x23
	wHMBL   = 0x24
	wVDELP0 = 0x25
	wVDELP1 = 0x26
	wVDELBL = 0x27
	wRESMP0 = 0x28
	wRESMP1 = 0x29
	wHMOVE  = 0x2A
	wHMCLR  = 0x2B
	wCXCLR  = 0x2C
)

// Register offsets, read side ($00-$0D, mirrored every 16 bytes).
const (
	rCXM0P  = 0x00
	rCXM1P  = 0x01
	rCXP0FB = 0x02
	rCXP1FB = 0x03
	rCXM0FB = 0x04
	rCXM1FB = 0x05
	rCXBLPF = 0x06
	rCXPPMM = 0x07
	rINPT0  = 0x08
	rINPT1  = 0x09
	rINPT2  = 0x0A
	rINPT3  = 0x0B
	rINPT4  = 0x0C
	rINPT5  = 0x0D
)

const kReadMask = uint8(0xC0) // Only D7/D6 are driven on input/collision reads.

// Read implements the TIA's read-only register range. Address is masked to
// 4 bits (mirrors every 16 bytes as the chip only decodes that many pins).
func (t *Chip) Read(addr uint16) uint8 {
	addr &= 0x0F
	var ret uint8
	switch addr {
	case rCXM0P:
		ret = t.collision[0]
	case rCXM1P:
		ret = t.collision[1]
	case rCXP0FB:
		ret = t.collision[2]
	case rCXP1FB:
		ret = t.collision[3]
	case rCXM0FB:
		ret = t.collision[4]
	case rCXM1FB:
		ret = t.collision[5]
	case rCXBLPF:
		ret = t.collision[6]
	case rCXPPMM:
		ret = t.collision[7]
	case rINPT0, rINPT1, rINPT2, rINPT3:
		idx := int(addr) - rINPT0
		if !t.groundInput && t.inputPorts[idx] != nil && t.inputPorts[idx].Input() {
			ret = 0x80
		}
	case rINPT4, rINPT5:
		idx := int(addr) - rINPT4
		if t.latches && t.outputLatches[idx] {
			ret = 0x80
		} else if t.inputPorts[idx+4] != nil && t.inputPorts[idx+4].Input() {
			ret = 0x80
		}
	default:
		ret = 0xFF
	}
	t.databusVal = ret & kReadMask
	return t.databusVal
}

// Write implements the TIA's write-only register range. Address is masked
// to 6 bits (the chip decodes $00-$3F, though only $00-$2C are defined).
func (t *Chip) Write(addr uint16, val uint8) {
	addr &= 0x3F
	t.databusVal = val

	switch addr {
	case wVSYNC:
		t.setVSYNC((val & 0x02) != 0)
	case wVBLANK:
		t.vblank = (val & 0x02) != 0
		l := (val & 0x40) != 0
		if l && !t.latches {
			t.outputLatches[0] = true
			t.outputLatches[1] = true
		}
		t.latches = l
		grounded := (val & 0x80) != 0
		if grounded && !t.groundInput && t.ioPortGnd != nil {
			t.ioPortGnd()
		}
		t.groundInput = grounded
	case wWSYNC:
		t.wsync = true
	case wRSYNC:
		t.h = ClocksPerScanline - 3
	case wNUSIZ0:
		t.nusiz0 = val & 0x37
	case wNUSIZ1:
		t.nusiz1 = val & 0x37
	case wCOLUP0:
		t.colup0 = val & 0xFE
	case wCOLUP1:
		t.colup1 = val & 0xFE
	case wCOLUPF:
		t.colupf = val & 0xFE
	case wCOLUBK:
		t.colubk = val & 0xFE
	case wCTRLPF:
		t.ctrlpf = val & 0x37
	case wREFP0:
		t.refp0 = (val & 0x08) != 0
	case wREFP1:
		t.refp1 = (val & 0x08) != 0
	case wPF0:
		t.pf0 = val & 0xF0
	case wPF1:
		t.pf1 = val
	case wPF2:
		t.pf2 = val
	case wRESP0:
		t.resetObject(&t.p0)
	case wRESP1:
		t.resetObject(&t.p1)
	case wRESM0:
		t.resetObject(&t.m0)
	case wRESM1:
		t.resetObject(&t.m1)
	case wRESBL:
		t.resetObject(&t.bl)
	case wAUDC0:
		t.audc[0] = val & 0x0F
	case wAUDC1:
		t.audc[1] = val & 0x0F
	case wAUDF0:
		t.audf[0] = val & 0x1F
	case wAUDF1:
		t.audf[1] = val & 0x1F
	case wAUDV0:
		t.audv[0] = val & 0x0F
	case wAUDV1:
		t.audv[1] = val & 0x0F
	case wGRP0:
		// Writing GRP0 promotes P1's and the ball's "new" into "old".
		t.grp1Old = t.grp1New
		t.enablOld = t.enablNew
		t.grp0New = val
	case wGRP1:
		// Writing GRP1 promotes P0's and the ball's "new" into "old".
		t.grp0Old = t.grp0New
		t.enablOld = t.enablNew
		t.grp1New = val
	case wENAM0:
		t.enam0 = (val & 0x02) != 0
	case wENAM1:
		t.enam1 = (val & 0x02) != 0
	case wENABL:
		t.enablNew = (val & 0x02) != 0
	case wHMP0:
		t.p0.hm = hmNibble(val)
	case wHMP1:
		t.p1.hm = hmNibble(val)
	case wHMM0:
		t.m0.hm = hmNibble(val)
	case wHMM1:
		t.m1.hm = hmNibble(val)
	case wHMBL:
		t.bl.hm = hmNibble(val)
	case wVDELP0:
		t.vdelp0 = (val & 0x01) != 0
	case wVDELP1:
		t.vdelp1 = (val & 0x01) != 0
	case wVDELBL:
		t.vdelbl = (val & 0x01) != 0
	case wRESMP0:
		t.resmp0 = (val & 0x02) != 0
	case wRESMP1:
		t.resmp1 = (val & 0x02) != 0
	case wHMOVE:
		t.strobeHMOVE()
	case wHMCLR:
		t.p0.hm, t.p1.hm, t.m0.hm, t.m1.hm, t.bl.hm = 0, 0, 0, 0, 0
	case wCXCLR:
		for i := range t.collision {
			t.collision[i] = 0
		}
	default:
		// Undriven address: open bus, write silently dropped per §7.
	}
}

func hmNibble(val uint8) int8 {
	n := int8(val>>4) & 0x0F
	if n >= 8 {
		n -= 16
	}
	return n
}

func (t *Chip) setVSYNC(v bool) {
	if t.vsync && !v {
		// Falling edge: frame complete.
		if t.frameDone != nil {
			t.frameDone(t.frame)
		}
		t.frame = image.NewNRGBA(image.Rect(0, 0, VisibleColumns, t.scanline+1))
		t.scanline = 0
	}
	t.vsync = v
}

// resetObject latches an object's horizontal position to the current
// column. Writes during HBLANK latch column 0; writes during the visible
// region latch (H - HBLANK) plus the 5 clock TIA strobe-decode delay,
// following Stella's reference RESP timing convention (see SPEC_FULL.md for
// the Open Question this resolves).
func (t *Chip) resetObject(o *objectPos) {
	o.active = true
	if t.h < HBLANK {
		o.pos = 0
		return
	}
	col := t.h - HBLANK + 5
	if col >= VisibleColumns {
		col -= VisibleColumns
	}
	o.pos = col
}

// strobeHMOVE applies every object's latched HM offset and, if HMOVE was
// struck during this line's HBLANK, arms the "comb" blanking at the start of
// the next visible region (the well known HMOVE glitch that blacks out a
// few clocks at the far left when motion is applied).
func (t *Chip) strobeHMOVE() {
	for _, o := range []*objectPos{&t.p0, &t.p1, &t.m0, &t.m1, &t.bl} {
		o.pos = wrapColumn(o.pos - int(o.hm))
	}
	if t.h < HBLANK {
		t.hmoveArmed = true
	}
}

func wrapColumn(c int) int {
	c %= VisibleColumns
	if c < 0 {
		c += VisibleColumns
	}
	return c
}

// nusizTable maps a 3 bit NUSIZ code to (copies, size-in-clocks-per-bit, gap
// between successive copy starts in columns). A gap of 0 with copies==1
// means "no repeat", matching the "-" entries in spec §4.5.
var nusizTable = [8]struct{ copies, size, gap int }{
	0: {1, 1, 0},
	1: {2, 1, 8},
	2: {2, 1, 24},
	3: {3, 1, 8},
	4: {2, 1, 56},
	5: {1, 2, 0},
	6: {3, 1, 24},
	7: {1, 4, 0},
}

// playerPixel reports whether the player object o (graphics byte grp,
// reflected if refl) is opaque at visible column col, given its NUSIZ code.
func playerPixel(o *objectPos, grp uint8, refl bool, nusiz uint8, col int) bool {
	if !o.active {
		return false
	}
	cfg := nusizTable[nusiz&0x07]
	width := 8 * cfg.size
	for k := 0; k < cfg.copies; k++ {
		start := wrapColumn(o.pos + k*cfg.gap)
		off := col - start
		if off < 0 {
			off += VisibleColumns
		}
		if off >= width {
			continue
		}
		bit := off / cfg.size
		if refl {
			bit = 7 - bit
		}
		// Graphics byte is stored MSB-first left to right on real hardware.
		if grp&(0x80>>uint(bit)) != 0 {
			return true
		}
	}
	return false
}

// missileWidth decodes the 2 bit width field (bits 4-5) of a NUSIZ register
// into a clock count: 0->1, 1->2, 2->4, 3->8.
func missileWidth(nusiz uint8) int {
	return 1 << ((nusiz >> 4) & 0x03)
}

func missilePixel(o *objectPos, enabled bool, nusiz uint8, col int) bool {
	if !enabled || !o.active {
		return false
	}
	cfg := nusizTable[nusiz&0x07]
	width := missileWidth(nusiz)
	for k := 0; k < cfg.copies; k++ {
		start := wrapColumn(o.pos + k*cfg.gap)
		off := col - start
		if off < 0 {
			off += VisibleColumns
		}
		if off < width {
			return true
		}
	}
	return false
}

func ballPixel(o *objectPos, enabled bool, ctrlpf uint8, col int) bool {
	if !enabled || !o.active {
		return false
	}
	width := 1 << ((ctrlpf >> 4) & 0x03)
	off := col - o.pos
	if off < 0 {
		off += VisibleColumns
	}
	return off < width
}

// playfieldBit assembles the 40-bit (well, 20-bit visible across a
// potentially-mirrored 160 column line, 4 pixels per bit) playfield pattern
// from PF0/PF1/PF2 and reports whether column col is opaque.
func (t *Chip) playfieldBit(col int) bool {
	half := col
	if half >= 80 {
		half -= 80
	}
	bitIdx := half / 4 // 0..19

	var bit bool
	switch {
	case bitIdx < 4:
		// PF0 bits 4-7, reversed: bit 0 of pattern is PF0 bit4.
		bit = t.pf0&(0x10<<uint(bitIdx)) != 0
	case bitIdx < 12:
		n := bitIdx - 4
		bit = t.pf1&(0x80>>uint(n)) != 0
	default:
		n := bitIdx - 12
		bit = t.pf2&(0x01<<uint(n)) != 0
	}

	if col >= 80 {
		reflect := (t.ctrlpf & 0x01) != 0
		if reflect {
			// Right half mirrors the left: recompute using the mirrored bit index.
			mirroredIdx := 19 - bitIdx
			switch {
			case mirroredIdx < 4:
				bit = t.pf0&(0x10<<uint(mirroredIdx)) != 0
			case mirroredIdx < 12:
				n := mirroredIdx - 4
				bit = t.pf1&(0x80>>uint(n)) != 0
			default:
				n := mirroredIdx - 12
				bit = t.pf2&(0x01<<uint(n)) != 0
			}
		}
		// Non-reflected: right half repeats the same pattern, already computed above.
	}
	return bit
}

// renderColumn computes the final color and collision contributions for one
// visible column and writes it into the line buffer.
func (t *Chip) renderColumn(col int) {
	if t.vblank {
		t.line[col] = t.colubk
		return
	}
	if t.hmoveArmed && col < 8 {
		t.line[col] = 0 // palette index 0 is black
		return
	}

	p0 := playerPixel(&t.p0, pickGRP0(t), t.refp0, t.nusiz0, col)
	p1 := playerPixel(&t.p1, pickGRP1(t), t.refp1, t.nusiz1, col)
	m0 := missilePixel(&t.m0, t.enam0 && !t.resmp0, t.nusiz0, col)
	m1 := missilePixel(&t.m1, t.enam1 && !t.resmp1, t.nusiz1, col)
	bl := ballPixel(&t.bl, pickENABL(t), t.ctrlpf, col)
	pf := t.playfieldBit(col)

	t.accumulateCollisions(p0, p1, m0, m1, bl, pf)

	priority := (t.ctrlpf & 0x04) != 0
	scoreMode := (t.ctrlpf & 0x02) != 0

	var color uint8
	var opaque bool
	setIf := func(cond bool, c uint8) {
		if cond && !opaque {
			color, opaque = c, true
		}
	}

	if priority {
		setIf(pf, t.pfColor(col, scoreMode))
		setIf(bl, t.pfColor(col, scoreMode))
		setIf(p0, t.colup0)
		setIf(m0, t.colup0)
		setIf(p1, t.colup1)
		setIf(m1, t.colup1)
	} else {
		setIf(p0, t.colup0)
		setIf(m0, t.colup0)
		setIf(p1, t.colup1)
		setIf(m1, t.colup1)
		setIf(pf, t.pfColor(col, scoreMode))
		setIf(bl, t.pfColor(col, scoreMode))
	}
	if !opaque {
		color = t.colubk
	}
	t.line[col] = color
}

func (t *Chip) pfColor(col int, scoreMode bool) uint8 {
	if scoreMode {
		if col < 80 {
			return t.colup0
		}
		return t.colup1
	}
	return t.colupf
}

func pickGRP0(t *Chip) uint8 {
	if t.vdelp0 {
		return t.grp0Old
	}
	return t.grp0New
}

func pickGRP1(t *Chip) uint8 {
	if t.vdelp1 {
		return t.grp1Old
	}
	return t.grp1New
}

func pickENABL(t *Chip) bool {
	if t.vdelbl {
		return t.enablOld
	}
	return t.enablNew
}

// accumulateCollisions sets the sticky collision bits for every pair that is
// simultaneously opaque at this pixel. Bits persist until CXCLR; an object
// is never checked against itself.
func (t *Chip) accumulateCollisions(p0, p1, m0, m1, bl, pf bool) {
	if m0 && p1 {
		t.collision[0] |= 0x80
	}
	if m0 && p0 {
		t.collision[0] |= 0x40
	}
	if m1 && p0 {
		t.collision[1] |= 0x80
	}
	if m1 && p1 {
		t.collision[1] |= 0x40
	}
	if p0 && pf {
		t.collision[2] |= 0x80
	}
	if p0 && bl {
		t.collision[2] |= 0x40
	}
	if p1 && pf {
		t.collision[3] |= 0x80
	}
	if p1 && bl {
		t.collision[3] |= 0x40
	}
	if m0 && pf {
		t.collision[4] |= 0x80
	}
	if m0 && bl {
		t.collision[4] |= 0x40
	}
	if m1 && pf {
		t.collision[5] |= 0x80
	}
	if m1 && bl {
		t.collision[5] |= 0x40
	}
	if bl && pf {
		t.collision[6] |= 0x80
	}
	if p0 && p1 {
		t.collision[7] |= 0x80
	}
	if m0 && m1 {
		t.collision[7] |= 0x40
	}
}

// Raised implements irq.Sender: true means the CPU's RDY line is held and it
// must not start its next instruction (the WSYNC stall).
func (t *Chip) Raised() bool {
	return t.wsync
}

// Tick advances the TIA by one master color clock: renders the current
// visible column (if any), advances H, and handles end-of-scanline and
// end-of-HMOVE-comb bookkeeping. The scheduler is expected to call this
// once per master color clock and call the CPU/RIOT's Tick() once every
// third call (see atari2600.VCS.Tick), which keeps system_clock%3==0 at
// every CPU instruction boundary without this package needing its own
// clock.Clock reference.
func (t *Chip) Tick() error {
	if t.h >= HBLANK {
		col := t.h - HBLANK
		if col == 0 && t.hmoveArmed {
			t.hmoveComb = 8
		}
		t.renderColumn(col)
		if t.hmoveComb > 0 {
			t.hmoveComb--
			if t.hmoveComb == 0 {
				t.hmoveArmed = false
			}
		}
	}

	t.h++
	if t.h >= ClocksPerScanline {
		t.h = 0
		t.wsync = false
		if t.scanlineDone != nil {
			t.scanlineDone(t.scanline, t.line)
		}
		t.blitLine()
		t.scanline++
	}
	return nil
}

// blitLine copies the just-completed scanline into the accumulating frame
// image using the active mode's palette, growing the backing image if the
// program runs more lines than the previous frame did.
func (t *Chip) blitLine() {
	if t.scanline >= t.frame.Rect.Dy() {
		grown := image.NewNRGBA(image.Rect(0, 0, VisibleColumns, t.scanline+1))
		draw(grown, t.frame)
		t.frame = grown
	}
	pal := t.mode.Palette()
	for x, idx := range t.line {
		c := pal.Lookup(idx)
		t.frame.SetNRGBA(x, t.scanline, color.NRGBA{c.R, c.G, c.B, c.A})
	}
}

func draw(dst, src *image.NRGBA) {
	b := src.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, src.At(x, y))
		}
	}
}

// TickDone is a no-op hook kept for symmetry with cpu.Chip.TickDone and
// pia6532.Chip.TickDone: some chips need a second pass to commit combinational
// state after every dependency has seen the first half of a Tick. The TIA's
// state is fully committed inside Tick itself, so there is nothing to do
// here, but the method exists so atari2600.VCS.Tick can call it uniformly.
func (t *Chip) TickDone() {}

// DatabusVal returns the last byte that crossed the TIA's side of the bus.
func (t *Chip) DatabusVal() uint8 {
	return t.databusVal
}

// Debug returns a formatted summary of the TIA's current position/register
// state, or the empty string if Debug was false at Init time.
func (t *Chip) Debug() string {
	if !t.debug {
		return ""
	}
	return fmt.Sprintf("H: %3d SL: %3d VSYNC: %v VBLANK: %v WSYNC: %v P0@%d P1@%d M0@%d M1@%d BL@%d",
		t.h, t.scanline, t.vsync, t.vblank, t.wsync, t.p0.pos, t.p1.pos, t.m0.pos, t.m1.pos, t.bl.pos)
}

// AudioSample returns the current raw 4 bit AUDV0/AUDV1 volume registers.
// Turning these into actual noise/pulse waveform samples (AUDC/AUDF driven
// synthesis) is the excluded audio-output collaborator's job per §1; the
// core only exposes the pull interface the spec calls for.
func (t *Chip) AudioSample() (vol0, vol1 uint8) {
	return t.audv[0], t.audv[1]
}

// ObjectState is a snapshot of one player/missile/ball's position latch.
type ObjectState struct {
	Pos    int
	HM     int8
	Active bool
}

func (o objectPos) snapshot() ObjectState {
	return ObjectState{Pos: o.pos, HM: o.hm, Active: o.active}
}

func (o *objectPos) restore(s ObjectState) {
	o.pos, o.hm, o.active = s.Pos, s.HM, s.Active
}

// State is a flat snapshot of every TIA register and the in-progress
// scanline position, enough to resume rendering mid-frame exactly where a
// save-state was captured.
type State struct {
	GRP0New, GRP0Old     uint8
	GRP1New, GRP1Old     uint8
	ENABLNew, ENABLOld   bool
	VDELP0, VDELP1       bool
	VDELBL               bool
	ENAM0, ENAM1         bool
	REFP0, REFP1         bool
	NUSIZ0, NUSIZ1       uint8
	RESMP0, RESMP1       bool
	P0, P1, M0, M1, BL   ObjectState
	PF0, PF1, PF2        uint8
	CTRLPF               uint8
	COLUP0, COLUP1       uint8
	COLUPF, COLUBK       uint8
	AUDC, AUDF, AUDV     [2]uint8
	Collision            [8]uint8
	VSYNC, VBLANK        bool
	WSYNC                bool
	HMoveArmed           bool
	HMoveComb            int
	H, Scanline          int
}

// State returns a snapshot of the TIA's full register and position state.
func (t *Chip) State() State {
	return State{
		GRP0New: t.grp0New, GRP0Old: t.grp0Old,
		GRP1New: t.grp1New, GRP1Old: t.grp1Old,
		ENABLNew: t.enablNew, ENABLOld: t.enablOld,
		VDELP0: t.vdelp0, VDELP1: t.vdelp1,
		VDELBL: t.vdelbl,
		ENAM0:  t.enam0, ENAM1: t.enam1,
		REFP0: t.refp0, REFP1: t.refp1,
		NUSIZ0: t.nusiz0, NUSIZ1: t.nusiz1,
		RESMP0: t.resmp0, RESMP1: t.resmp1,
		P0: t.p0.snapshot(), P1: t.p1.snapshot(),
		M0: t.m0.snapshot(), M1: t.m1.snapshot(), BL: t.bl.snapshot(),
		PF0: t.pf0, PF1: t.pf1, PF2: t.pf2,
		CTRLPF: t.ctrlpf,
		COLUP0: t.colup0, COLUP1: t.colup1,
		COLUPF: t.colupf, COLUBK: t.colubk,
		AUDC: t.audc, AUDF: t.audf, AUDV: t.audv,
		Collision:  t.collision,
		VSYNC:      t.vsync,
		VBLANK:     t.vblank,
		WSYNC:      t.wsync,
		HMoveArmed: t.hmoveArmed,
		HMoveComb:  t.hmoveComb,
		H:          t.h,
		Scanline:   t.scanline,
	}
}

// Restore reinstates a snapshot previously returned by State. The current
// in-progress scanline's pixel buffer and frame image are not part of the
// snapshot; rendering resumes cleanly from the restored H position on the
// next Tick.
func (t *Chip) Restore(s State) {
	t.grp0New, t.grp0Old = s.GRP0New, s.GRP0Old
	t.grp1New, t.grp1Old = s.GRP1New, s.GRP1Old
	t.enablNew, t.enablOld = s.ENABLNew, s.ENABLOld
	t.vdelp0, t.vdelp1 = s.VDELP0, s.VDELP1
	t.vdelbl = s.VDELBL
	t.enam0, t.enam1 = s.ENAM0, s.ENAM1
	t.refp0, t.refp1 = s.REFP0, s.REFP1
	t.nusiz0, t.nusiz1 = s.NUSIZ0, s.NUSIZ1
	t.resmp0, t.resmp1 = s.RESMP0, s.RESMP1
	t.p0.restore(s.P0)
	t.p1.restore(s.P1)
	t.m0.restore(s.M0)
	t.m1.restore(s.M1)
	t.bl.restore(s.BL)
	t.pf0, t.pf1, t.pf2 = s.PF0, s.PF1, s.PF2
	t.ctrlpf = s.CTRLPF
	t.colup0, t.colup1 = s.COLUP0, s.COLUP1
	t.colupf, t.colubk = s.COLUPF, s.COLUBK
	t.audc, t.audf, t.audv = s.AUDC, s.AUDF, s.AUDV
	t.collision = s.Collision
	t.vsync, t.vblank = s.VSYNC, s.VBLANK
	t.wsync = s.WSYNC
	t.hmoveArmed = s.HMoveArmed
	t.hmoveComb = s.HMoveComb
	t.h, t.scanline = s.H, s.Scanline
}
