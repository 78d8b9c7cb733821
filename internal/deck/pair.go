package deck

import (
	"github.com/pkg/errors"
)

// Pair owns exactly two decks and tracks which one is audible. Swapping
// roles flips an index; no audio data moves.
type Pair struct {
	decks  [2]*Deck
	active int
}

func NewPair(a, b Output) *Pair {
	return &Pair{decks: [2]*Deck{New(a), New(b)}}
}

func (p *Pair) Active() *Deck    { return p.decks[p.active] }
func (p *Pair) Standby() *Deck   { return p.decks[1-p.active] }
func (p *Pair) ActiveIndex() int { return p.active }
func (p *Pair) Deck(i int) *Deck { return p.decks[i] }
func (p *Pair) Swap()            { p.active = 1 - p.active }

// Load puts t on both decks and resets roles: deck 0 active at full volume,
// deck 1 silent.
func (p *Pair) Load(t *Track) error {
	p.StopAll()
	for i, d := range p.decks {
		if err := d.Load(t); err != nil {
			return errors.Wrapf(err, "deck %d", i)
		}
	}
	p.active = 0
	p.Active().SetVolume(1)
	p.Standby().SetVolume(0)
	return nil
}

// TotalBars is the bar count of the active deck's track.
func (p *Pair) TotalBars() float64 {
	t := p.Active().Track()
	if t == nil {
		return 0
	}
	return t.Bars()
}

func (p *Pair) StopAll() {
	for _, d := range p.decks {
		d.Stop()
	}
}

func (p *Pair) Close() error {
	var first error
	for _, d := range p.decks {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
