package player

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"soundscape/pkg/spec"
)

// Phase is the session lifecycle. Transitions only exist while Playing.
type Phase int

const (
	Unloaded Phase = iota
	Loaded
	Playing
)

func (p Phase) String() string {
	switch p {
	case Loaded:
		return "LOADED"
	case Playing:
		return "PLAYING"
	default:
		return "UNLOADED"
	}
}

// Mode selects how a transition lines up with the music.
type Mode int

const (
	// OnNextBar waits for the active deck's next bar boundary.
	OnNextBar Mode = iota
	// Immediate starts now and carries the current phase into the target bar.
	Immediate
	modeLoop
)

func (m Mode) String() string {
	switch m {
	case Immediate:
		return spec.ModeNow
	case modeLoop:
		return "LOOP"
	default:
		return spec.ModeNextBar
	}
}

// ParseMode accepts the wire names NEXT and NOW.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", spec.ModeNextBar:
		return OnNextBar, nil
	case spec.ModeNow:
		return Immediate, nil
	}
	return 0, errors.Errorf("unknown transition mode %q", s)
}

type TransitionKind int

const (
	Idle TransitionKind = iota
	Scheduled
	Fading
)

func (k TransitionKind) String() string {
	switch k {
	case Scheduled:
		return "SCHEDULED"
	case Fading:
		return "FADING"
	default:
		return "IDLE"
	}
}

// Transition is the single in-flight transition, if any. FireAt is set while
// Scheduled, Offset while Fading.
type Transition struct {
	Kind   TransitionKind
	Bar    int
	Mode   Mode
	FireAt time.Time
	Offset float64

	// ticket identifies one request so a stale timer or ramp can tell it
	// has been superseded
	ticket uint64
}

type loopRegion struct {
	start int
	bars  int
}

func (l loopRegion) active() bool { return l.bars > 0 }
