package main

import (
	"fmt"
	"machine"
	"runtime/interrupt"

	"github.com/photinus/fireflyjar/firmware/internal/serialio"
	"github.com/photinus/fireflyjar/ledserial"
	"tinygo.org/x/drivers/ws2812"
)

// Device stores the current state of the controller.
type Device struct {
	serial serialio.ReadWriter
	led    ws2812.Device

	numLEDs uint16
}

// NewDevice creates a new device driving the strip on ledPin.
func NewDevice(serial machine.Serialer, ledPin machine.Pin) *Device {
	ledPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &Device{
		serial: serialio.Wrap(serial),
		led:    ws2812.New(ledPin),
	}
}

// Run runs the device loop forever.
func (d *Device) Run() {
	for {
		p, err := ledserial.ReadHostPacket(d.serial, ledserial.ReadContext{
			NumLEDs: d.numLEDs,
		})
		if err != nil {
			d.logError(err)
			continue
		}

		if err := d.handlePacket(p); err != nil {
			d.logError(err)
		}
	}
}

func (d *Device) logError(err error) {
	d.sendPacket(ledserial.ErrorPacket{Message: err.Error()})
}

func (d *Device) sendPacket(p ledserial.ControllerPacket) {
	ledserial.WriteControllerPacket(d.serial, p)
}

func (d *Device) handlePacket(p ledserial.HostPacket) error {
	switch p := p.(type) {
	case ledserial.InitializePacket:
		if p.NumLEDs < 1 {
			return fmt.Errorf("invalid number of LEDs: %d", p.NumLEDs)
		}
		d.numLEDs = p.NumLEDs
		d.clearLEDs()

	case ledserial.ClearPacket:
		d.clearLEDs()

	case ledserial.SetPacket:
		if len(p.Pix) != 3*int(d.numLEDs) {
			return fmt.Errorf("invalid number of pixels: %d", len(p.Pix)/3)
		}
		critical(func() {
			for _, b := range p.Pix {
				d.led.WriteByte(b)
			}
		})

	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	d.sendPacket(ledserial.AckPacket{
		HostPacketType: p.Type(),
	})
	return nil
}

func (d *Device) clearLEDs() {
	critical(func() {
		for i := 0; i < 3*int(d.numLEDs); i++ {
			d.led.WriteByte(0)
		}
	})
}

// critical runs f with interrupts disabled. The WS2812 bitstream is timing
// sensitive; an interrupt mid-write glitches the strip.
func critical(f func()) {
	state := interrupt.Disable()
	f()
	interrupt.Restore(state)
}
