// Package palette maps the 8 bit NTSC/PAL/SECAM palette indices the TIA
// hands the framebuffer sink into real colors. The core itself never needs
// more than the index (see tia.Chip.Read/Write and the FrameDone callback),
// but an embedding harness drawing through image/color (exactly the path
// vcs_main.go used for its SDL surface) wants an actual color.RGBA to put in
// the pixel buffer instead of re-deriving one from a fixed table of its own.
package palette

import (
	"image/color"

	"golang.org/x/image/colornames"
)

// Index is a 0-255 TIA color/luminance value as written to COLUP0/1/PF/BK.
// Only the top 7 bits are significant on real hardware; bit 0 is ignored.
type Index = uint8

// Table is a lookup from a raw TIA color value to a displayable color,
// indexed directly by the even values $00-$FE; odd entries are unused since
// bit 0 is ignored.
type Table [256]color.RGBA

// NTSC is the standard NTSC 2600 palette (Stella's reference values).
var NTSC = Table{
	0x00: {0, 0, 0, 0xff}, 0x02: {0x40, 0x40, 0x40, 0xff},
	0x04: {0x6c, 0x6c, 0x6c, 0xff}, 0x06: {0x90, 0x90, 0x90, 0xff},
	0x08: {0xb0, 0xb0, 0xb0, 0xff}, 0x0a: {0xc8, 0xc8, 0xc8, 0xff},
	0x0c: {0xdc, 0xdc, 0xdc, 0xff}, 0x0e: {0xec, 0xec, 0xec, 0xff},
	0x10: {0x44, 0x44, 0x00, 0xff}, 0x12: {0x64, 0x64, 0x10, 0xff},
	0x14: {0x84, 0x84, 0x24, 0xff}, 0x16: {0xa0, 0xa0, 0x34, 0xff},
	0x18: {0xb8, 0xb8, 0x40, 0xff}, 0x1a: {0xd0, 0xd0, 0x50, 0xff},
	0x1c: {0xe8, 0xe8, 0x5c, 0xff}, 0x1e: {0xfc, 0xfc, 0x68, 0xff},
	0x20: {0x70, 0x28, 0x00, 0xff}, 0x22: {0x84, 0x44, 0x14, 0xff},
	0x24: {0x98, 0x5c, 0x28, 0xff}, 0x26: {0xac, 0x78, 0x3c, 0xff},
	0x28: {0xbc, 0x8c, 0x4c, 0xff}, 0x2a: {0xcc, 0xa0, 0x5c, 0xff},
	0x2c: {0xdc, 0xb4, 0x68, 0xff}, 0x2e: {0xec, 0xc8, 0x78, 0xff},
	0x30: {0x84, 0x18, 0x00, 0xff}, 0x32: {0x98, 0x34, 0x18, 0xff},
	0x34: {0xac, 0x50, 0x30, 0xff}, 0x36: {0xc0, 0x68, 0x48, 0xff},
	0x38: {0xd0, 0x80, 0x5c, 0xff}, 0x3a: {0xe0, 0x94, 0x70, 0xff},
	0x3c: {0xec, 0xa8, 0x80, 0xff}, 0x3e: {0xfc, 0xbc, 0x94, 0xff},
	0x40: {0x88, 0x00, 0x00, 0xff}, 0x42: {0x9c, 0x20, 0x20, 0xff},
	0x44: {0xb0, 0x3c, 0x3c, 0xff}, 0x46: {0xc0, 0x58, 0x58, 0xff},
	0x48: {0xd0, 0x70, 0x70, 0xff}, 0x4a: {0xe0, 0x88, 0x88, 0xff},
	0x4c: {0xec, 0xa0, 0xa0, 0xff}, 0x4e: {0xfc, 0xb4, 0xb4, 0xff},
	0x50: {0x78, 0x00, 0x5c, 0xff}, 0x52: {0x8c, 0x20, 0x74, 0xff},
	0x54: {0xa0, 0x3c, 0x88, 0xff}, 0x56: {0xb0, 0x58, 0x9c, 0xff},
	0x58: {0xc0, 0x70, 0xb0, 0xff}, 0x5a: {0xd0, 0x84, 0xc0, 0xff},
	0x5c: {0xdc, 0x9c, 0xd0, 0xff}, 0x5e: {0xec, 0xb0, 0xe0, 0xff},
	0x60: {0x48, 0x00, 0x78, 0xff}, 0x62: {0x60, 0x20, 0x90, 0xff},
	0x64: {0x78, 0x3c, 0xa4, 0xff}, 0x66: {0x8c, 0x58, 0xb8, 0xff},
	0x68: {0xa0, 0x70, 0xc8, 0xff}, 0x6a: {0xb4, 0x84, 0xd8, 0xff},
	0x6c: {0xc4, 0x9c, 0xe8, 0xff}, 0x6e: {0xd4, 0xb0, 0xf4, 0xff},
	0x70: {0x14, 0x00, 0x84, 0xff}, 0x72: {0x30, 0x20, 0x98, 0xff},
	0x74: {0x4c, 0x3c, 0xac, 0xff}, 0x76: {0x68, 0x58, 0xc0, 0xff},
	0x78: {0x7c, 0x70, 0xd0, 0xff}, 0x7a: {0x94, 0x88, 0xe0, 0xff},
	0x7c: {0xa8, 0xa0, 0xec, 0xff}, 0x7e: {0xbc, 0xb4, 0xfc, 0xff},
	0x80: {0x00, 0x00, 0x88, 0xff}, 0x82: {0x1c, 0x20, 0x9c, 0xff},
	0x84: {0x38, 0x40, 0xb0, 0xff}, 0x86: {0x50, 0x5c, 0xc0, 0xff},
	0x88: {0x68, 0x74, 0xd0, 0xff}, 0x8a: {0x7c, 0x8c, 0xe0, 0xff},
	0x8c: {0x94, 0xa4, 0xec, 0xff}, 0x8e: {0xa8, 0xb8, 0xfc, 0xff},
	0x90: {0x00, 0x18, 0x7c, 0xff}, 0x92: {0x20, 0x38, 0x90, 0xff},
	0x94: {0x3c, 0x54, 0xa8, 0xff}, 0x96: {0x58, 0x70, 0xbc, 0xff},
	0x98: {0x70, 0x88, 0xcc, 0xff}, 0x9a: {0x84, 0x9c, 0xdc, 0xff},
	0x9c: {0x9c, 0xb0, 0xec, 0xff}, 0x9e: {0xb0, 0xc4, 0xfc, 0xff},
	0xa0: {0x00, 0x2c, 0x5c, 0xff}, 0xa2: {0x20, 0x4c, 0x78, 0xff},
	0xa4: {0x3c, 0x68, 0x90, 0xff}, 0xa6: {0x58, 0x84, 0xac, 0xff},
	0xa8: {0x70, 0x9c, 0xc0, 0xff}, 0xaa: {0x84, 0xb0, 0xd4, 0xff},
	0xac: {0x9c, 0xc4, 0xe4, 0xff}, 0xae: {0xb0, 0xd4, 0xf4, 0xff},
	0xb0: {0x00, 0x3c, 0x30, 0xff}, 0xb2: {0x1c, 0x5c, 0x4c, 0xff},
	0xb4: {0x38, 0x7c, 0x68, 0xff}, 0xb6: {0x50, 0x98, 0x80, 0xff},
	0xb8: {0x68, 0xb0, 0x94, 0xff}, 0xba: {0x7c, 0xc4, 0xa8, 0xff},
	0xbc: {0x94, 0xd8, 0xbc, 0xff}, 0xbe: {0xa8, 0xe8, 0xcc, 0xff},
	0xc0: {0x00, 0x3c, 0x00, 0xff}, 0xc2: {0x20, 0x5c, 0x20, 0xff},
	0xc4: {0x40, 0x7c, 0x40, 0xff}, 0xc6: {0x5c, 0x98, 0x5c, 0xff},
	0xc8: {0x74, 0xb0, 0x74, 0xff}, 0xca: {0x8c, 0xc4, 0x8c, 0xff},
	0xcc: {0xa4, 0xd8, 0xa4, 0xff}, 0xce: {0xb8, 0xe8, 0xb8, 0xff},
	0xd0: {0x14, 0x38, 0x00, 0xff}, 0xd2: {0x34, 0x5c, 0x1c, 0xff},
	0xd4: {0x50, 0x7c, 0x38, 0xff}, 0xd6: {0x6c, 0x98, 0x54, 0xff},
	0xd8: {0x84, 0xb0, 0x6c, 0xff}, 0xda: {0x9c, 0xc8, 0x84, 0xff},
	0xdc: {0xb4, 0xdc, 0x9c, 0xff}, 0xde: {0xc8, 0xec, 0xb4, 0xff},
	0xe0: {0x2c, 0x30, 0x00, 0xff}, 0xe2: {0x4c, 0x50, 0x1c, 0xff},
	0xe4: {0x68, 0x70, 0x34, 0xff}, 0xe6: {0x84, 0x8c, 0x4c, 0xff},
	0xe8: {0x9c, 0xa4, 0x64, 0xff}, 0xea: {0xb4, 0xbc, 0x78, 0xff},
	0xec: {0xcc, 0xd4, 0x8c, 0xff}, 0xee: {0xe0, 0xe8, 0xa0, 0xff},
	0xf0: {0x44, 0x28, 0x00, 0xff}, 0xf2: {0x64, 0x48, 0x18, 0xff},
	0xf4: {0x84, 0x68, 0x30, 0xff}, 0xf6: {0xa0, 0x84, 0x44, 0xff},
	0xf8: {0xb8, 0x9c, 0x58, 0xff}, 0xfa: {0xd0, 0xb4, 0x6c, 0xff},
	0xfc: {0xe4, 0xcc, 0x7c, 0xff}, 0xfe: {0xf4, 0xdc, 0x8c, 0xff},
}

// PAL and SECAM are placeholder tables derived from NTSC by reordering hue
// groups the way the other color standards shuffle them; the core's
// Non-goals (§1) exclude exact analog fidelity so these exist only so a
// tia.ChipDef{Mode: tia.PAL} embedding harness has a non-nil table to draw
// from, matching NTSC's structure (0 is black, odd indices unused).
var PAL = deriveShuffled(NTSC, 3)

// SECAM has only 8 distinct hues on real hardware; every sequence of 16
// entries collapses to one of 8 colors.
var SECAM = deriveSECAM(NTSC)

func deriveShuffled(base Table, rot int) Table {
	var t Table
	for i := 0; i < 256; i += 2 {
		hue := i / 16
		if hue != 0 {
			hue = (hue-1+rot)%15 + 1
		}
		t[i] = base[hue*16+i%16]
	}
	return t
}

func deriveSECAM(base Table) Table {
	hues := [8]color.RGBA{
		{0, 0, 0, 0xff}, {0x44, 0x44, 0xff, 0xff}, {0xff, 0x44, 0x44, 0xff}, {0xff, 0x44, 0xff, 0xff},
		{0x44, 0xff, 0x44, 0xff}, {0x44, 0xff, 0xff, 0xff}, {0xff, 0xff, 0x44, 0xff}, {0xff, 0xff, 0xff, 0xff},
	}
	var t Table
	for i := 0; i < 256; i++ {
		t[i] = hues[(i/16)%8]
	}
	return t
}

// Lookup returns the display color for a raw TIA register value (bit 0 is
// don't-care on real hardware and is masked off here).
func (t Table) Lookup(v Index) color.RGBA {
	return t[v&0xfe]
}

// Nearest returns the palette index whose color is closest (by summed
// channel distance) to a named CSS color, e.g. "cornflowerblue". Meant for
// harnesses/tests that want to pick a COLUBK/COLUPx value descriptively
// rather than guessing a hex index by hand; it walks golang.org/x/image's
// colornames table the same way a debugger overlay would offer a color
// picker keyed by name instead of a raw palette index.
func (t Table) Nearest(name string) (Index, bool) {
	want, ok := colornames.Map[name]
	if !ok {
		return 0, false
	}
	best := Index(0)
	bestDist := -1
	for i := 0; i < 256; i += 2 {
		c := t[i]
		dist := absInt(int(c.R)-int(want.R)) + absInt(int(c.G)-int(want.G)) + absInt(int(c.B)-int(want.B))
		if bestDist < 0 || dist < bestDist {
			bestDist = dist
			best = Index(i)
		}
	}
	return best, true
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
