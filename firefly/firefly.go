// Package firefly implements the flash cycle of a simulated firefly.
//
// Each Firefly is an independent state machine bound to one slot of an LED
// strip. Its brightness ramps from 0 to 255 and back down, then the firefly
// goes dark for a few seconds before flashing again. All of the timing is
// randomized per cycle so that a strip of them never moves in lockstep.
//
// There is no goroutine per firefly. A firefly suspends itself by recording
// a resume deadline and returning; Step is a no-op until that deadline has
// passed. This makes the suspension point a plain time comparison, so any
// number of fireflies can share a single scheduling goroutine (see Jar).
package firefly

import (
	"time"

	"github.com/photinus/fireflyjar/internal/led"
)

// Surface is the addressable output that fireflies write to. Each firefly
// writes only its own slot; Flush pushes the entire current buffer to the
// hardware, not just the touched slot.
//
// A Flush error means the frame was dropped. Fireflies never retry it and
// advance their state regardless.
type Surface interface {
	Set(index int, c led.RGBColor)
	Flush() error
}

// Rand is the source of randomness for re-rolling cycle timing. It must
// return a uniform value in [0, n). *math/rand.Rand satisfies it.
type Rand interface {
	Int63n(n int64) int64
}

// Range is a half-open duration interval [Min, Max) that cycle delays are
// rolled from.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// roll draws from the interval. Spans are drawn in int64 nanoseconds; an int
// would overflow a multi-second span on 32-bit microcontroller targets.
func (r Range) roll(rng Rand) time.Duration {
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)))
}

// Profile describes the flash behavior of one species: its emission color
// and the ranges its per-cycle delays are drawn from.
type Profile struct {
	Weights Weights

	// DarkDelay is how long the firefly stays dark between flashes.
	DarkDelay Range
	// RisingDelay and FallingDelay pace the individual brightness steps.
	// P. pyralis brightens faster than it dims, so the two differ.
	RisingDelay  Range
	FallingDelay Range

	// FlushEveryStep pushes the strip to hardware after every brightness
	// step. When false, flushing is left to whoever drives the fireflies,
	// typically on a fixed frame cadence.
	FlushEveryStep bool
}

// PPyralisProfile returns the timing and color of Photinus pyralis.
func PPyralisProfile() Profile {
	return Profile{
		Weights:      PPyralis,
		DarkDelay:    Range{4000 * time.Millisecond, 7000 * time.Millisecond},
		RisingDelay:  Range{1000 * time.Microsecond, 1300 * time.Microsecond},
		FallingDelay: Range{1500 * time.Microsecond, 2000 * time.Microsecond},
	}
}

const maxBrightness = 255

// Firefly is a single simulated firefly bound to one LED slot. It is not
// safe for concurrent use; all fireflies of a strip are meant to be stepped
// from one goroutine.
type Firefly struct {
	index   int
	surface Surface
	rng     Rand
	profile Profile

	brightness int
	rising     bool

	darkDelay    time.Duration
	risingDelay  time.Duration
	fallingDelay time.Duration

	resumeAt time.Time
}

// New creates a firefly that owns the given slot of the surface. The first
// cycle runs with each delay at the minimum of its range; every later cycle
// re-rolls them.
func New(index int, surface Surface, rng Rand, profile Profile) *Firefly {
	return &Firefly{
		index:   index,
		surface: surface,
		rng:     rng,
		profile: profile,

		rising: true,

		darkDelay:    profile.DarkDelay.Min,
		risingDelay:  profile.RisingDelay.Min,
		fallingDelay: profile.FallingDelay.Min,
	}
}

// Index returns the output slot this firefly controls.
func (f *Firefly) Index() int { return f.index }

// NextDue returns the time at which the firefly is next willing to step.
// The zero time means it is due immediately.
func (f *Firefly) NextDue() time.Time { return f.resumeAt }

// Step advances the firefly by at most one brightness increment. It reports
// whether the firefly actually advanced: a firefly that is still suspended
// returns false without touching its state or the surface.
//
// Each advancing step writes the new color to the firefly's slot and then
// suspends the firefly until its next step is due. Crossing a brightness
// boundary flips the phase; reaching dark additionally re-rolls the cycle
// timing and schedules the long dark-phase suspension.
func (f *Firefly) Step(now time.Time) bool {
	if now.Before(f.resumeAt) {
		return false
	}

	// The guard keeps brightness in [0, 255] even if a step lands on a
	// boundary that has not transitioned yet.
	if f.rising {
		if f.brightness < maxBrightness {
			f.brightness++
		}
	} else {
		if f.brightness > 0 {
			f.brightness--
		}
	}

	f.surface.Set(f.index, Shade(uint8(f.brightness), f.profile.Weights))
	if f.profile.FlushEveryStep {
		// Best effort. A dropped frame is repainted by the next step.
		_ = f.surface.Flush()
	}

	// Phase transitions are evaluated after the color write so that the
	// boundary value itself is displayed.
	switch {
	case f.brightness == maxBrightness && f.rising:
		f.rising = false
	case f.brightness == 0 && !f.rising:
		f.rising = true
		f.reroll()
		f.resumeAt = now.Add(f.darkDelay)
	}

	// The per-step delay composes with the dark delay above: the firefly
	// must not become eligible before the later of the two deadlines.
	step := f.fallingDelay
	if f.rising {
		step = f.risingDelay
	}
	if until := now.Add(step); until.After(f.resumeAt) {
		f.resumeAt = until
	}

	return true
}

// reroll draws fresh timing for the next cycle. Called once per cycle, on
// the falling→rising transition.
func (f *Firefly) reroll() {
	f.darkDelay = f.profile.DarkDelay.roll(f.rng)
	f.risingDelay = f.profile.RisingDelay.roll(f.rng)
	f.fallingDelay = f.profile.FallingDelay.roll(f.rng)
}
