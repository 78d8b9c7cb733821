// Package barclock maps playback seconds to musical bar positions.
package barclock

import (
	"math"
	"time"
)

// Clock converts between seconds and bars for one tempo and time signature.
// The zero value is unusable; tempo validation happens where tracks are built.
type Clock struct {
	secondsPerBar float64
}

// SecondsPerBar returns 60 * beatsPerBar / bpm.
func SecondsPerBar(bpm float64, beatsPerBar int) float64 {
	return 60 * float64(beatsPerBar) / bpm
}

func New(bpm float64, beatsPerBar int) Clock {
	return Clock{secondsPerBar: SecondsPerBar(bpm, beatsPerBar)}
}

func (c Clock) SecondsPerBar() float64 { return c.secondsPerBar }

// TimeOfBar returns the playback offset of bar. Fractional bars are allowed.
func (c Clock) TimeOfBar(bar float64) float64 {
	return bar * c.secondsPerBar
}

// BarOfTime returns the (fractional) bar playing at seconds.
func (c Clock) BarOfTime(seconds float64) float64 {
	return seconds / c.secondsPerBar
}

// BarsIn returns how many bars fit in duration.
func (c Clock) BarsIn(duration float64) float64 {
	return duration / c.secondsPerBar
}

// CurrentBar is the integral bar containing pos.
func (c Clock) CurrentBar(pos float64) int {
	return int(math.Floor(c.BarOfTime(pos)))
}

// NextBarDelay is the time left until the next integral bar boundary after
// pos. A position sitting exactly on a boundary yields 0; the result is
// never negative.
func (c Clock) NextBarDelay(pos float64) float64 {
	next := math.Ceil(c.BarOfTime(pos)) * c.secondsPerBar
	if d := next - pos; d > 0 {
		return d
	}
	return 0
}

// Phase is the time elapsed since the last bar boundary.
func (c Clock) Phase(pos float64) float64 {
	p := math.Mod(pos, c.secondsPerBar)
	if p < 0 {
		p += c.secondsPerBar
	}
	return p
}

// Period is one bar as a time.Duration.
func (c Clock) Period() time.Duration {
	return Duration(c.secondsPerBar)
}

// Duration converts fractional seconds to a time.Duration.
func Duration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
