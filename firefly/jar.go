package firefly

import "time"

// Jar holds a fixed set of fireflies and steps them cooperatively on the
// caller's goroutine. Fireflies are visited in slot order on every sweep;
// independence comes from each firefly skipping itself until its own
// deadline, not from concurrency.
type Jar struct {
	flies []*Firefly
}

// NewJar creates count fireflies bound to slots 0..count-1 of the surface,
// all sharing the same randomness source and profile.
func NewJar(count int, surface Surface, rng Rand, profile Profile) *Jar {
	flies := make([]*Firefly, count)
	for i := range flies {
		flies[i] = New(i, surface, rng, profile)
	}
	return &Jar{flies: flies}
}

// Len returns the number of fireflies in the jar.
func (j *Jar) Len() int { return len(j.flies) }

// Sweep gives every firefly one turn, in fixed round-robin order, and
// returns how many of them actually advanced. Suspended fireflies cost one
// time comparison each.
func (j *Jar) Sweep(now time.Time) int {
	var stepped int
	for _, f := range j.flies {
		if f.Step(now) {
			stepped++
		}
	}
	return stepped
}

// NextDue returns the earliest time any firefly is willing to step again.
// Callers may sleep until then between sweeps; sweeping earlier or later is
// harmless, only less efficient or less punctual.
func (j *Jar) NextDue() time.Time {
	var min time.Time
	for _, f := range j.flies {
		if due := f.NextDue(); min.IsZero() || due.Before(min) {
			min = due
		}
	}
	return min
}
