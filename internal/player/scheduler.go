package player

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"soundscape/internal/barclock"
	"soundscape/internal/events"
	"soundscape/pkg/spec"
)

// Transition moves playback to bar of the standby deck's track using mode.
func (s *Session) Transition(bar int, mode Mode) error {
	switch mode {
	case OnNextBar:
		return s.RequestOnNextBar(bar)
	case Immediate:
		return s.RequestImmediately(bar)
	}
	return errors.Errorf("unsupported transition mode %v", mode)
}

// validateLocked checks a user transition request. The order matters: an
// out of range bar is reported whether or not the session is playing.
func (s *Session) validateLocked(bar int) error {
	if s.phase == Unloaded {
		return ErrSongNotLoaded
	}
	if s.trans.Kind != Idle {
		return errors.Wrapf(ErrAlreadyTransitioning, "%s to bar %d", s.trans.Kind, s.trans.Bar)
	}
	dest := s.pair.Standby().Track()
	if bar < 0 || !dest.Contains(bar) {
		return errors.Wrapf(ErrBarOutOfBounds, "bar %d of %.2f", bar, dest.Bars())
	}
	if s.phase != Playing {
		return ErrSongNotPlaying
	}
	return nil
}

// RequestOnNextBar arms a one-shot timer for the active deck's next bar
// boundary; the crossfade into bar starts when it fires. On a boundary the
// delay is 0 and the timer fires at once.
func (s *Session) RequestOnNextBar(bar int) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validateLocked(bar); err != nil {
		return err
	}

	active := s.pair.Active()
	pos := active.Position()
	delay := active.Track().Clock().NextBarDelay(pos)
	d := barclock.Duration(delay)

	s.cancelPendingLocked()
	s.endLoopLocked(bar)
	s.ticket++
	ticket := s.ticket
	ctx := s.run
	s.trans = Transition{
		Kind:   Scheduled,
		Bar:    bar,
		Mode:   OnNextBar,
		FireAt: time.Now().Add(d),
		ticket: ticket,
	}

	s.tasks.Add(1)
	s.pending = s.after(d, func() {
		defer s.tasks.Done()
		s.fire(ctx, bar, ticket)
	})

	s.log.WithFields(logrus.Fields{
		"bar":      bar,
		"position": pos,
		"delay":    d,
	}).Info("transition scheduled")
	s.publish(events.Event{
		Type:   spec.EventTransitionScheduled,
		Bar:    bar,
		Mode:   OnNextBar.String(),
		FireIn: delay,
	})
	return nil
}

// RequestImmediately starts the crossfade now. The standby deck enters bar at
// the same phase the active deck is at within its current bar, scaled to
// the destination tempo.
func (s *Session) RequestImmediately(bar int) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validateLocked(bar); err != nil {
		return err
	}

	active := s.pair.Active()
	src := active.Track()
	dest := s.pair.Standby().Track()
	phase := src.Clock().Phase(active.Position())
	offset := phase / src.SecondsPerBar() * dest.SecondsPerBar()

	s.cancelPendingLocked()
	s.endLoopLocked(bar)
	s.ticket++
	f, err := s.beginCrossfadeLocked(bar, offset, Immediate, s.ticket)
	if err != nil {
		return err
	}

	ctx := s.run
	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		s.ramp(ctx, f)
	}()
	return nil
}

// CancelPending revokes a scheduled transition. It reports whether there was
// one; a transition already fading runs to completion.
func (s *Session) CancelPending() bool {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trans.Kind != Scheduled {
		return false
	}
	bar := s.trans.Bar
	s.cancelPendingLocked()
	s.log.WithField("bar", bar).Info("scheduled transition cancelled")
	return true
}

func (s *Session) cancelPendingLocked() {
	if s.pending != nil {
		// a timer stopped before firing never runs its Done
		if s.pending.Stop() {
			s.tasks.Done()
		}
		s.pending = nil
	}
	if s.trans.Kind == Scheduled {
		s.trans = Transition{}
	}
}

// fire runs on the timer goroutine. The ticket check drops a timer that
// raced a cancel or was superseded.
func (s *Session) fire(ctx context.Context, bar int, ticket uint64) {
	s.mu.Lock()
	if ctx.Err() != nil || s.trans.Kind != Scheduled || s.trans.ticket != ticket {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	f, err := s.beginCrossfadeLocked(bar, 0, OnNextBar, ticket)
	s.mu.Unlock()
	if err != nil {
		s.log.WithError(err).WithField("bar", bar).Error("scheduled transition failed")
		return
	}
	s.ramp(ctx, f)
}
