// Package led contains the color and strip buffer types shared by the
// daemon and the firmware.
package led

import "unsafe"

// RGBColor is a single LED color. Channels are ordered red, green, blue.
type RGBColor [3]uint8

// Pack packs the color into a single value as 0x00RRGGBB. This matches the
// channel order that the wire protocol and the strip hardware expect.
func (c RGBColor) Pack() uint32 {
	return uint32(c[0])<<16 | uint32(c[1])<<8 | uint32(c[2])
}

// LEDs describes a strip of LEDs. It is a preallocated slice of RGBColor.
type LEDs []RGBColor

// NewLEDs creates a new strip of LEDs. Colors are initialized to black
// (off).
func NewLEDs(numLEDs int) LEDs {
	return make(LEDs, numLEDs)
}

// AsPixels returns the LED strip as a slice of uint8 values. Each LED is
// represented by three values, one for each color channel.
func (l LEDs) AsPixels() []uint8 {
	return unsafe.Slice((*uint8)(unsafe.Pointer(&l[0])), 3*len(l))
}

// Set sets the color of the LED at the given index.
func (l LEDs) Set(i int, c RGBColor) {
	l[i] = c
}

// Clear turns every LED in the strip off.
func (l LEDs) Clear() {
	for i := range l {
		l[i] = RGBColor{}
	}
}
