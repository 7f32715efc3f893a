// Command jar runs the firefly jar entirely on-device: no host, no serial
// protocol, just a WS2812 strip on one pin. This is the shape the project
// originally shipped in, kept for jars that do not sit next to a computer.
package main

import (
	"machine"
	"math/rand"
	"runtime/interrupt"
	"time"

	"github.com/photinus/fireflyjar/firefly"
	"github.com/photinus/fireflyjar/internal/led"
	"tinygo.org/x/drivers/ws2812"
)

const (
	stripPin     = machine.GPIO27
	numFireflies = 10
)

func main() {
	stripPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	surface := &stripSurface{
		led:  ws2812.New(stripPin),
		leds: led.NewLEDs(numFireflies),
	}
	surface.Flush() // all dark before the first flash

	profile := firefly.PPyralisProfile()
	profile.FlushEveryStep = true

	jar := firefly.NewJar(
		numFireflies, surface,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		profile,
	)

	for {
		now := time.Now()
		jar.Sweep(now)

		if wait := time.Until(jar.NextDue()); wait > 0 {
			time.Sleep(wait)
		}
	}
}

// stripSurface is the firefly.Surface backed directly by the strip.
type stripSurface struct {
	led  ws2812.Device
	leds led.LEDs
}

var _ firefly.Surface = (*stripSurface)(nil)

func (s *stripSurface) Set(index int, c led.RGBColor) {
	s.leds.Set(index, c)
}

func (s *stripSurface) Flush() error {
	// The WS2812 bitstream is timing sensitive; an interrupt mid-write
	// glitches the strip.
	state := interrupt.Disable()
	for _, c := range s.leds {
		s.led.WriteByte(c[0])
		s.led.WriteByte(c[1])
		s.led.WriteByte(c[2])
	}
	interrupt.Restore(state)
	return nil
}
