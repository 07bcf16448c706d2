// Package io defines the basic interfaces for working
// with a 6502 family based I/O port (generally bi-directional).
// It's intended that implementors of I/O (such as a 6532) call
// the input callback (if provided) on every clock tick and properly
// account for the fact that output won't mirror input for a clock
// cycle (to account for latches being loaded)
package io

// PortIn8 defines an 8 bit I/O input port.
type PortIn8 interface {
	// Input will return the current value being set on the given input port.
	Input() uint8
}

// PortIn1 defines a single bit input port such as a console switch
// or joystick/paddle fire button.
type PortIn1 interface {
	// Input returns the current boolean value on the line.
	Input() bool
}

// PortOut8 defines an 8 bit output port.
type PortOut8 interface {
	// Output returns the current value being driven on the given output port.
	Output() uint8
}

// PortOut1 defines a single bit output port.
type PortOut1 interface {
	// Output returns the current boolean value being driven on the line.
	Output() bool
}
