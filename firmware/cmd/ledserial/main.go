// Command ledserial is the controller firmware for the fireflyjar daemon.
// It receives pixel frames over the serial line and clocks them out to a
// WS2812 strip. All of the firefly logic stays on the host.
package main

import "machine"

// stripPin is the data pin the WS2812 strip hangs off of.
const stripPin = machine.GPIO27

func main() {
	d := NewDevice(machine.Serial, stripPin)
	d.Run()
}
