// Package deck holds the two playback slots a session crossfades between.
package deck

import (
	"github.com/pkg/errors"
)

// ErrNoTrack is returned when a deck is asked to play before Load.
var ErrNoTrack = errors.New("deck has no track")

// Output is the audio slot behind a Deck. Implementations must be safe to
// call from any goroutine.
type Output interface {
	Load(t *Track) error
	Play(from float64) error
	Stop()
	SetVolume(v float64)
	Position() float64
	Close() error
}

// Deck is one playback unit: a loaded track, its position, volume and
// running flag. Decks are reloaded and repositioned, never recreated per
// transition.
type Deck struct {
	out     Output
	track   *Track
	volume  float64
	running bool
}

func New(out Output) *Deck {
	return &Deck{out: out, volume: 1}
}

func (d *Deck) Load(t *Track) error {
	if d.running {
		d.out.Stop()
		d.running = false
	}
	if err := d.out.Load(t); err != nil {
		return errors.Wrapf(err, "load %s", t.Path())
	}
	d.track = t
	return nil
}

// Preload loads t into the output without touching the deck's own state, so
// a slow decode can run outside the lock that guards the deck. The returned
// commit records t as the deck's track and must run under that lock.
func (d *Deck) Preload(t *Track) (commit func(), err error) {
	if err := d.out.Load(t); err != nil {
		return nil, errors.Wrapf(err, "load %s", t.Path())
	}
	return func() {
		d.track = t
		d.running = false
	}, nil
}

// PlayFrom starts playback at seconds, clamped to the track.
func (d *Deck) PlayFrom(seconds float64) error {
	if d.track == nil {
		return ErrNoTrack
	}
	if seconds < 0 {
		seconds = 0
	}
	if seconds > d.track.Duration() {
		seconds = d.track.Duration()
	}
	if err := d.out.Play(seconds); err != nil {
		return errors.Wrapf(err, "play %s at %.3fs", d.track.Name(), seconds)
	}
	d.running = true
	return nil
}

func (d *Deck) Stop() {
	if d.track == nil {
		return
	}
	d.out.Stop()
	d.running = false
}

// SetVolume sets a linear gain clamped to [0,1].
func (d *Deck) SetVolume(v float64) {
	switch {
	case v < 0:
		v = 0
	case v > 1:
		v = 1
	}
	d.volume = v
	d.out.SetVolume(v)
}

func (d *Deck) Volume() float64 { return d.volume }
func (d *Deck) Running() bool   { return d.running }
func (d *Deck) Track() *Track   { return d.track }

func (d *Deck) Position() float64 {
	if d.track == nil {
		return 0
	}
	return d.out.Position()
}

func (d *Deck) Close() error {
	d.running = false
	return d.out.Close()
}
