package fireflyjar

import (
	"encoding"
	"fmt"
	"io"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/photinus/fireflyjar/firefly"
	"github.com/pkg/errors"
)

// FlushMode selects when the daemon pushes the pixel buffer to the
// controller.
type FlushMode string

const (
	// FlushStep flushes after every firefly brightness step. This is the
	// most faithful cadence but also the chattiest on the wire.
	FlushStep FlushMode = "step"
	// FlushSweep flushes at most once per scheduler sweep, paced by the
	// configured rate.
	FlushSweep FlushMode = "sweep"
)

// Config is the configuration for the fireflyjar daemon.
type Config struct {
	// Device is the path to the serial device of the LED controller.
	// This is usually /dev/ttyUSB0 or /dev/ttyACM0.
	Device string `toml:"device"`
	// Baud is the baud rate for the serial connection.
	Baud int `toml:"baud"`
	// Count is the number of fireflies in the jar, one per LED.
	Count int `toml:"count"`
	// Flush is when pixel data is pushed to the controller.
	// Defaults to FlushStep.
	Flush FlushMode `toml:"flush,omitempty"`
	// Rate caps the flushes per second in FlushSweep mode.
	Rate int `toml:"rate,omitempty"`
	// Seed seeds the randomness source. Zero means seed from the clock;
	// any other value makes a run reproducible.
	Seed int64 `toml:"seed,omitempty"`
	// Species is the flash profile shared by all fireflies.
	// Defaults to Photinus pyralis.
	Species *SpeciesConfig `toml:"species,omitempty"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("no serial device configured")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.Count < 1 || c.Count > 0xFFFF {
		return fmt.Errorf("firefly count %d out of range [1, 65535]", c.Count)
	}

	switch c.Flush {
	case FlushStep:
	case FlushSweep:
		if c.Rate <= 0 {
			return fmt.Errorf("flush mode %q needs a positive rate, got %d", c.Flush, c.Rate)
		}
	default:
		return fmt.Errorf("unknown flush mode %q", c.Flush)
	}

	if c.Species != nil {
		if err := c.Species.Validate(); err != nil {
			return errors.Wrap(err, "invalid species")
		}
	}

	return nil
}

// Profile returns the firefly profile described by the configuration,
// falling back to the Photinus pyralis defaults when no species is set.
func (c *Config) Profile() firefly.Profile {
	p := firefly.PPyralisProfile()
	if c.Species != nil {
		p = c.Species.profile()
	}
	p.FlushEveryStep = c.Flush == FlushStep
	return p
}

// SpeciesConfig describes the flash behavior of a firefly species: its
// emission color as per-channel weights and the ranges its cycle delays are
// drawn from.
type SpeciesConfig struct {
	// Name labels the profile in logs. Purely informational.
	Name string `toml:"name,omitempty"`
	// Weights are the R, G, B channel multipliers, each in [0.0, 1.0].
	Weights [3]float64 `toml:"weights"`
	// DarkDelay is the range of the pause between flashes.
	DarkDelay DelayRange `toml:"dark_delay"`
	// RisingDelay and FallingDelay are the ranges of the per-step pacing
	// while brightening and dimming.
	RisingDelay  DelayRange `toml:"rising_delay"`
	FallingDelay DelayRange `toml:"falling_delay"`
}

// Validate validates the species configuration.
func (s *SpeciesConfig) Validate() error {
	for i, w := range s.Weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("weight %d is %v, not in [0.0, 1.0]", i, w)
		}
	}

	for _, r := range []struct {
		name  string
		delay DelayRange
	}{
		{"dark_delay", s.DarkDelay},
		{"rising_delay", s.RisingDelay},
		{"falling_delay", s.FallingDelay},
	} {
		if r.delay.Min < 0 || r.delay.Max <= r.delay.Min {
			return fmt.Errorf("%s range [%v, %v) is empty or negative",
				r.name, time.Duration(r.delay.Min), time.Duration(r.delay.Max))
		}
	}

	return nil
}

func (s *SpeciesConfig) profile() firefly.Profile {
	return firefly.Profile{
		Weights: firefly.Weights{
			R: s.Weights[0],
			G: s.Weights[1],
			B: s.Weights[2],
		},
		DarkDelay:    s.DarkDelay.Range(),
		RisingDelay:  s.RisingDelay.Range(),
		FallingDelay: s.FallingDelay.Range(),
	}
}

// DelayRange is a half-open duration interval in the configuration file.
type DelayRange struct {
	Min TOMLDuration `toml:"min"`
	Max TOMLDuration `toml:"max"`
}

// Range converts the interval to a firefly.Range.
func (d DelayRange) Range() firefly.Range {
	return firefly.Range{
		Min: time.Duration(d.Min),
		Max: time.Duration(d.Max),
	}
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader. Omitted optional fields
// get their defaults; the result still needs Validate.
func ParseConfig(r io.Reader) (*Config, error) {
	config := Config{
		Flush: FlushStep,
	}
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
