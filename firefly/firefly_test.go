package firefly

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/photinus/fireflyjar/internal/led"
)

// fakeSurface records every slot write and flush.

type setCall struct {
	Index int
	Color led.RGBColor
}

type fakeSurface struct {
	sets     []setCall
	flushes  int
	flushErr error
}

func (s *fakeSurface) Set(index int, c led.RGBColor) {
	s.sets = append(s.sets, setCall{Index: index, Color: c})
}

func (s *fakeSurface) Flush() error {
	s.flushes++
	return s.flushErr
}

var _ Surface = (*fakeSurface)(nil)

// countingRand wraps a real source and counts draws, so tests can tell
// exactly when a re-roll happened.
type countingRand struct {
	src   *rand.Rand
	calls int
}

func (r *countingRand) Int63n(n int64) int64 {
	r.calls++
	return r.src.Int63n(n)
}

func newCountingRand(seed int64) *countingRand {
	return &countingRand{src: rand.New(rand.NewSource(seed))}
}

func TestStep_Rising(t *testing.T) {
	surface := &fakeSurface{}
	profile := PPyralisProfile()
	profile.FlushEveryStep = true

	f := New(3, surface, newCountingRand(1), profile)

	start := time.Unix(1000, 0)
	if !f.Step(start) {
		t.Fatal("fresh firefly did not step")
	}

	if f.brightness != 1 {
		t.Errorf("brightness = %d, want 1", f.brightness)
	}
	if !f.rising {
		t.Error("firefly stopped rising after one step")
	}

	wantSets := []setCall{{Index: 3, Color: Shade(1, PPyralis)}}
	if diff := cmp.Diff(wantSets, surface.sets); diff != "" {
		t.Errorf("surface writes mismatch (-want +got):\n%s", diff)
	}
	if surface.flushes != 1 {
		t.Errorf("flushes = %d, want 1", surface.flushes)
	}

	// The first cycle runs unrolled, at the minimum of each range.
	wantDue := start.Add(profile.RisingDelay.Min)
	if !f.NextDue().Equal(wantDue) {
		t.Errorf("NextDue = %v, want %v", f.NextDue(), wantDue)
	}
}

func TestStep_PeakFlipsToFalling(t *testing.T) {
	surface := &fakeSurface{}
	rng := newCountingRand(1)
	f := New(0, surface, rng, PPyralisProfile())
	f.brightness = 255
	f.rising = true

	now := time.Unix(1000, 0)
	if !f.Step(now) {
		t.Fatal("firefly did not step")
	}

	if f.brightness != 255 {
		t.Errorf("brightness = %d, want 255 (boundary must not overflow)", f.brightness)
	}
	if f.rising {
		t.Error("firefly still rising at peak brightness")
	}
	if rng.calls != 0 {
		t.Errorf("rising→falling re-rolled timing: %d draws", rng.calls)
	}

	wantDue := now.Add(f.fallingDelay)
	if !f.NextDue().Equal(wantDue) {
		t.Errorf("NextDue = %v, want %v", f.NextDue(), wantDue)
	}
}

func TestStep_DarkRerollsAndSuspends(t *testing.T) {
	surface := &fakeSurface{}
	rng := newCountingRand(42)
	profile := PPyralisProfile()
	f := New(0, surface, rng, profile)
	f.brightness = 1
	f.rising = false

	now := time.Unix(1000, 0)
	if !f.Step(now) {
		t.Fatal("firefly did not step")
	}

	if f.brightness != 0 {
		t.Errorf("brightness = %d, want 0", f.brightness)
	}
	if !f.rising {
		t.Error("firefly not rising again after going dark")
	}
	if rng.calls != 3 {
		t.Errorf("re-roll drew %d values, want 3", rng.calls)
	}

	for _, d := range []struct {
		name  string
		value time.Duration
		rng   Range
	}{
		{"dark", f.darkDelay, profile.DarkDelay},
		{"rising", f.risingDelay, profile.RisingDelay},
		{"falling", f.fallingDelay, profile.FallingDelay},
	} {
		if d.value < d.rng.Min || d.value >= d.rng.Max {
			t.Errorf("%s delay %v outside [%v, %v)", d.name, d.value, d.rng.Min, d.rng.Max)
		}
	}

	// The dark delay dominates the per-step rising delay, so the composed
	// suspension is the dark one.
	wantDue := now.Add(f.darkDelay)
	if !f.NextDue().Equal(wantDue) {
		t.Errorf("NextDue = %v, want %v", f.NextDue(), wantDue)
	}
}

func TestStep_ComposedSuspensionPicksLaterDeadline(t *testing.T) {
	// A pathological profile where the per-step delay outlasts the dark
	// delay. The firefly must stay ineligible until the later deadline.
	profile := Profile{
		Weights:      PPyralis,
		DarkDelay:    Range{1 * time.Millisecond, 2 * time.Millisecond},
		RisingDelay:  Range{1 * time.Second, 2 * time.Second},
		FallingDelay: Range{1 * time.Second, 2 * time.Second},
	}

	f := New(0, &fakeSurface{}, newCountingRand(1), profile)
	f.brightness = 1
	f.rising = false

	now := time.Unix(1000, 0)
	f.Step(now)

	wantDue := now.Add(f.risingDelay)
	if !f.NextDue().Equal(wantDue) {
		t.Errorf("NextDue = %v, want %v (the later of dark and rising)", f.NextDue(), wantDue)
	}
}

func TestStep_SuspendedIsNoOp(t *testing.T) {
	surface := &fakeSurface{}
	profile := PPyralisProfile()
	profile.FlushEveryStep = true
	f := New(0, surface, newCountingRand(1), profile)

	start := time.Unix(1000, 0)
	f.Step(start)

	before := *f
	sets, flushes := len(surface.sets), surface.flushes

	early := f.NextDue().Add(-time.Microsecond)
	if f.Step(early) {
		t.Fatal("suspended firefly stepped before its deadline")
	}

	if *f != before {
		t.Error("suspended step changed firefly state")
	}
	if len(surface.sets) != sets || surface.flushes != flushes {
		t.Error("suspended step touched the surface")
	}

	// At the deadline exactly, the firefly is eligible again.
	if !f.Step(f.NextDue()) {
		t.Error("firefly not eligible at its own deadline")
	}
}

func TestFullCycle(t *testing.T) {
	surface := &fakeSurface{}
	rng := newCountingRand(7)
	f := New(0, surface, rng, PPyralisProfile())

	// Always step at the firefly's own deadline, simulating a punctual
	// scheduler.
	stepAtDue := func() {
		if !f.Step(f.NextDue()) {
			t.Fatal("firefly refused to step at its own deadline")
		}
		if f.brightness < 0 || f.brightness > 255 {
			t.Fatalf("brightness %d escaped [0, 255]", f.brightness)
		}
	}

	for i := 0; i < 255; i++ {
		if rng.calls != 0 {
			t.Fatalf("re-roll happened mid-ramp, after %d steps", i)
		}
		stepAtDue()
	}
	if f.brightness != 255 {
		t.Fatalf("brightness = %d after 255 steps, want 255", f.brightness)
	}
	if f.rising {
		t.Fatal("firefly still rising at peak")
	}

	for i := 0; i < 255; i++ {
		if rng.calls != 0 {
			t.Fatalf("re-roll happened mid-descent, after %d steps", i)
		}
		stepAtDue()
	}
	if f.brightness != 0 {
		t.Fatalf("brightness = %d after full cycle, want 0", f.brightness)
	}
	if !f.rising {
		t.Fatal("firefly not rising after going dark")
	}
	if rng.calls != 3 {
		t.Fatalf("cycle end drew %d random values, want 3", rng.calls)
	}
}

func TestReroll_StaysWithinRanges(t *testing.T) {
	profile := PPyralisProfile()
	f := New(0, &fakeSurface{}, newCountingRand(99), profile)

	for cycle := 0; cycle < 50; cycle++ {
		for i := 0; i < 510; i++ {
			f.Step(f.NextDue())
		}

		for _, d := range []struct {
			name  string
			value time.Duration
			rng   Range
		}{
			{"dark", f.darkDelay, profile.DarkDelay},
			{"rising", f.risingDelay, profile.RisingDelay},
			{"falling", f.fallingDelay, profile.FallingDelay},
		} {
			if d.value < d.rng.Min || d.value >= d.rng.Max {
				t.Fatalf("cycle %d: %s delay %v outside [%v, %v)",
					cycle, d.name, d.value, d.rng.Min, d.rng.Max)
			}
		}
	}
}

func TestStep_FlushFailureDoesNotPerturbState(t *testing.T) {
	profile := PPyralisProfile()
	profile.FlushEveryStep = true

	healthy := New(0, &fakeSurface{}, newCountingRand(5), profile)
	broken := New(0, &fakeSurface{flushErr: errFlush}, newCountingRand(5), profile)

	for i := 0; i < 600; i++ {
		healthy.Step(healthy.NextDue())
		broken.Step(broken.NextDue())

		if healthy.brightness != broken.brightness ||
			healthy.rising != broken.rising ||
			!healthy.resumeAt.Equal(broken.resumeAt) {
			t.Fatalf("step %d: state diverged on flush failure", i)
		}
	}
}

var errFlush = errFlushType{}

type errFlushType struct{}

func (errFlushType) Error() string { return "flush failed" }

func TestStep_NoFlushWhenDisabled(t *testing.T) {
	surface := &fakeSurface{}
	profile := PPyralisProfile()
	profile.FlushEveryStep = false

	f := New(0, surface, newCountingRand(1), profile)
	f.Step(time.Unix(1000, 0))

	if surface.flushes != 0 {
		t.Errorf("flushes = %d, want 0 when per-step flushing is off", surface.flushes)
	}
	if len(surface.sets) != 1 {
		t.Errorf("slot writes = %d, want 1", len(surface.sets))
	}
}
