package player

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"soundscape/internal/barclock"
	"soundscape/internal/deck"
	"soundscape/internal/events"
	"soundscape/pkg/spec"
)

type fade struct {
	bar      int
	mode     Mode
	ticket   uint64
	steps    int
	interval time.Duration
}

// fadeLength is the configured duration capped at half a bar of t.
func (s *Session) fadeLength(t *deck.Track) time.Duration {
	d := s.fadeDuration
	if limit := barclock.Duration(t.SecondsPerBar() / 2); d > limit {
		d = limit
	}
	return d
}

// beginCrossfadeLocked starts the standby deck silent at bar+offset and puts
// the session in Fading. On error the transition state is cleared and the
// active deck keeps playing alone.
func (s *Session) beginCrossfadeLocked(bar int, offset float64, mode Mode, ticket uint64) (fade, error) {
	active, standby := s.pair.Active(), s.pair.Standby()
	start := standby.Track().TimeOfBar(bar) + offset

	standby.SetVolume(0)
	if err := standby.PlayFrom(start); err != nil {
		s.trans = Transition{}
		return fade{}, errors.Wrapf(err, "start standby at bar %d", bar)
	}
	active.SetVolume(1)

	s.trans = Transition{
		Kind:   Fading,
		Bar:    bar,
		Mode:   mode,
		Offset: offset,
		ticket: ticket,
	}

	length := s.fadeLength(active.Track())
	f := fade{
		bar:      bar,
		mode:     mode,
		ticket:   ticket,
		steps:    s.fadeSteps,
		interval: length / time.Duration(s.fadeSteps),
	}

	s.log.WithFields(logrus.Fields{
		"bar":    bar,
		"mode":   mode,
		"offset": offset,
		"fade":   length,
	}).Debug("crossfade started")
	s.publish(events.Event{Type: spec.EventTransitionStarted, Bar: bar, Mode: mode.String()})
	return f, nil
}

// ramp moves the volumes in f.steps equal, opposite increments and then
// completes the swap. Every step re-checks the run token and ticket under mu
// before touching a deck.
func (s *Session) ramp(ctx context.Context, f fade) {
	var tick <-chan time.Time
	if f.interval > 0 {
		t := time.NewTicker(f.interval)
		defer t.Stop()
		tick = t.C
	}

	for i := 1; i <= f.steps; i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		}

		s.mu.Lock()
		if !s.fadingLocked(ctx, f.ticket) {
			s.mu.Unlock()
			return
		}
		v := float64(i) / float64(f.steps)
		s.pair.Active().SetVolume(1 - v)
		s.pair.Standby().SetVolume(v)
		s.mu.Unlock()
	}

	s.complete(ctx, f)
}

// complete stops the outgoing deck, swaps roles, corrects the heartbeat and
// returns to Idle. When the swap crosses into the cued song the outgoing deck
// is reloaded with mu released; the session stays Fading meanwhile, so
// commands are refused and halt waits for it like any other task.
func (s *Session) complete(ctx context.Context, f fade) {
	s.mu.Lock()
	if !s.fadingLocked(ctx, f.ticket) {
		s.mu.Unlock()
		return
	}

	old := s.pair.Active()
	old.Stop()
	old.SetVolume(0)
	s.pair.Swap()

	active := s.pair.Active()
	active.SetVolume(1)
	t := active.Track()

	if old.Track() != t {
		s.cued = nil
		s.song.Store(t.Name())
		s.mu.Unlock()

		// the outgoing deck follows the new song so later bar jumps stay
		// inside it
		commit, err := old.Preload(t)

		s.mu.Lock()
		if err != nil {
			s.log.WithError(err).Error("reload outgoing deck")
		} else {
			commit()
		}
		if !s.fadingLocked(ctx, f.ticket) {
			s.mu.Unlock()
			return
		}
		if s.loop.active() {
			s.stopLoopLocked()
			s.log.Info("loop cleared by song change")
		}
	}

	s.hb.SetPeriod(t.Clock().Period())
	s.hb.SetBar(f.bar)
	s.trans = Transition{}

	s.log.WithFields(logrus.Fields{
		"bar":    f.bar,
		"mode":   f.mode,
		"active": s.pair.ActiveIndex(),
	}).Info("transition completed")
	s.publish(events.Event{Type: spec.EventTransitionCompleted, Bar: f.bar, Mode: f.mode.String()})
	s.mu.Unlock()
}

func (s *Session) fadingLocked(ctx context.Context, ticket uint64) bool {
	return ctx.Err() == nil && s.trans.Kind == Fading && s.trans.ticket == ticket
}
