package firefly

import "github.com/photinus/fireflyjar/internal/led"

// Weights scales each color channel by a factor in [0.0, 1.0]. A set of
// weights describes the emission color of one species: take the RGB value of
// the color and divide each channel by 255.
type Weights struct {
	R float64
	G float64
	B float64
}

// PPyralis approximates the 562 nm peak emission of Photinus pyralis, the
// common eastern firefly. That wavelength is roughly rgb(201, 255, 0), a
// yellow-green.
var PPyralis = Weights{R: 0.788, G: 1.0, B: 0.0}

// Shade computes the strip color for a single brightness value. Scaling all
// three channels by the same weights keeps the hue constant while only the
// brightness changes. Each channel is floor(brightness × weight).
func Shade(brightness uint8, w Weights) led.RGBColor {
	return led.RGBColor{
		uint8(float64(brightness) * w.R),
		uint8(float64(brightness) * w.G),
		uint8(float64(brightness) * w.B),
	}
}
