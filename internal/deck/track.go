package deck

import (
	"math"

	"github.com/pkg/errors"

	"soundscape/internal/barclock"
)

// ErrInvalidTempo rejects a non-positive bpm or time signature.
var ErrInvalidTempo = errors.New("invalid tempo")

// Track is an immutable song descriptor. Loading a new song replaces the
// Track wholesale.
type Track struct {
	name        string
	path        string
	duration    float64
	bpm         float64
	beatsPerBar int
	clock       barclock.Clock
}

func NewTrack(name, path string, duration, bpm float64, beatsPerBar int) (*Track, error) {
	if !(bpm > 0) || math.IsInf(bpm, 1) {
		return nil, errors.Wrapf(ErrInvalidTempo, "bpm %v", bpm)
	}
	if beatsPerBar < 1 {
		return nil, errors.Wrapf(ErrInvalidTempo, "time signature %d", beatsPerBar)
	}
	if duration < 0 || math.IsNaN(duration) {
		return nil, errors.Errorf("track %s: invalid duration %v", name, duration)
	}
	return &Track{
		name:        name,
		path:        path,
		duration:    duration,
		bpm:         bpm,
		beatsPerBar: beatsPerBar,
		clock:       barclock.New(bpm, beatsPerBar),
	}, nil
}

func (t *Track) Name() string              { return t.name }
func (t *Track) Path() string              { return t.path }
func (t *Track) Duration() float64         { return t.duration }
func (t *Track) BPM() float64              { return t.bpm }
func (t *Track) BeatsPerBar() int          { return t.beatsPerBar }
func (t *Track) Clock() barclock.Clock     { return t.clock }
func (t *Track) SecondsPerBar() float64    { return t.clock.SecondsPerBar() }
func (t *Track) Bars() float64             { return t.clock.BarsIn(t.duration) }
func (t *Track) TimeOfBar(bar int) float64 { return t.clock.TimeOfBar(float64(bar)) }

// Contains reports whether bar starts within the track.
func (t *Track) Contains(bar int) bool {
	return bar >= 0 && t.TimeOfBar(bar) <= t.duration
}
