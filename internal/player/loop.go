package player

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"soundscape/internal/barclock"
	"soundscape/internal/deck"
	"soundscape/internal/events"
	"soundscape/internal/heartbeat"
	"soundscape/pkg/spec"
)

type wallTicker struct{ t *time.Ticker }

func (w wallTicker) C() <-chan time.Time { return w.t.C }
func (w wallTicker) Stop()               { w.t.Stop() }

func newWallTicker(d time.Duration) heartbeat.Ticker {
	return wallTicker{t: time.NewTicker(d)}
}

// startLoopLocked restarts playback at start every bars bars of t. The loop
// task lives under the run token; stopLoopLocked ends it early.
func (s *Session) startLoopLocked(t *deck.Track, start, bars int) {
	ctx, cancel := context.WithCancel(s.run)
	s.loop = loopRegion{start: start, bars: bars}
	s.loopCancel = cancel

	period := barclock.Duration(t.TimeOfBar(bars))
	if period < heartbeat.MinPeriod {
		period = heartbeat.MinPeriod
	}
	tk := s.loopTicker(period)

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C():
				s.restartLoop(ctx, start)
			}
		}
	}()
}

func (s *Session) stopLoopLocked() {
	if s.loopCancel != nil {
		s.loopCancel()
		s.loopCancel = nil
	}
	s.loop = loopRegion{}
}

// endLoopLocked drops the loop once a user transition to bar is accepted.
// Restarts driven by the loop itself go through restartLoop and keep it.
func (s *Session) endLoopLocked(bar int) {
	if !s.loop.active() {
		return
	}
	s.log.WithFields(logrus.Fields{
		"loop_start": s.loop.start,
		"loop_bars":  s.loop.bars,
		"bar":        bar,
	}).Info("loop cleared by transition")
	s.stopLoopLocked()
}

// restartLoop crossfades back to start. It shares the transition guard with
// user requests but never fails: with a transition in flight it reports
// false and does nothing.
func (s *Session) restartLoop(ctx context.Context, start int) bool {
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if s.trans.Kind != Idle {
		s.log.WithFields(logrus.Fields{
			"loop_start": start,
			"transition": s.trans.Kind,
		}).Info("transition in flight, loop restart skipped")
		s.mu.Unlock()
		return false
	}
	s.ticket++
	f, err := s.beginCrossfadeLocked(start, 0, modeLoop, s.ticket)
	if err != nil {
		s.mu.Unlock()
		s.log.WithError(err).Warn("loop restart failed")
		return false
	}
	s.publish(events.Event{Type: spec.EventLoopRestarted, Bar: start})
	s.mu.Unlock()

	s.ramp(ctx, f)
	return true
}
