// Package player owns the playback session: two decks, the bar heartbeat
// and at most one transition between them.
package player

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"soundscape/internal/catalog"
	"soundscape/internal/deck"
	"soundscape/internal/events"
	"soundscape/internal/heartbeat"
	"soundscape/pkg/spec"
)

const (
	DefaultCrossfadeDuration = 500 * time.Millisecond
	DefaultCrossfadeSteps    = 50
)

// Library resolves song names. *catalog.Library satisfies it.
type Library interface {
	Lookup(name string) (catalog.Song, error)
}

// Timer is a pending one-shot action. Stop reports whether it prevented the
// action from running.
type Timer interface {
	Stop() bool
}

type Config struct {
	Library Library
	Decks   [2]deck.Output
	Sink    events.Sink
	Log     *logrus.Entry

	// CrossfadeDuration is the wall-clock length of a fade. It is capped
	// at half a bar of the outgoing track.
	CrossfadeDuration time.Duration
	CrossfadeSteps    int

	// Test hooks.
	AfterFunc       func(d time.Duration, f func()) Timer
	HeartbeatTicker func(time.Duration) heartbeat.Ticker
	LoopTicker      func(time.Duration) heartbeat.Ticker
}

// Session is the player aggregate. Public commands are serialised by cmdMu;
// mu guards decks and transition state against the deferred tasks (pending
// timer, crossfade ramp, loop ticker).
type Session struct {
	id         string
	lib        Library
	sink       events.Sink
	log        *logrus.Entry
	hb         *heartbeat.Emitter
	after      func(time.Duration, func()) Timer
	loopTicker func(time.Duration) heartbeat.Ticker

	fadeDuration time.Duration
	fadeSteps    int
	song         atomic.Value

	cmdMu sync.Mutex

	mu         sync.Mutex
	phase      Phase
	pair       *deck.Pair
	cued       *deck.Track
	trans      Transition
	ticket     uint64
	pending    Timer
	loop       loopRegion
	loopCancel context.CancelFunc
	run        context.Context
	cancel     context.CancelFunc

	tasks sync.WaitGroup
}

func New(cfg Config) *Session {
	if cfg.Sink == nil {
		cfg.Sink = events.Discard
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.CrossfadeDuration <= 0 {
		cfg.CrossfadeDuration = DefaultCrossfadeDuration
	}
	if cfg.CrossfadeSteps < 1 {
		cfg.CrossfadeSteps = DefaultCrossfadeSteps
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if cfg.LoopTicker == nil {
		cfg.LoopTicker = newWallTicker
	}
	for i, out := range cfg.Decks {
		if out == nil {
			cfg.Decks[i] = deck.NewSimulated()
		}
	}

	s := &Session{
		id:           uuid.New().String(),
		lib:          cfg.Library,
		sink:         cfg.Sink,
		after:        cfg.AfterFunc,
		loopTicker:   cfg.LoopTicker,
		fadeDuration: cfg.CrossfadeDuration,
		fadeSteps:    cfg.CrossfadeSteps,
		pair:         deck.NewPair(cfg.Decks[0], cfg.Decks[1]),
	}
	s.log = cfg.Log.WithFields(logrus.Fields{"component": "player", "session": s.id})
	s.song.Store("")

	var hbOpts []heartbeat.Option
	if cfg.HeartbeatTicker != nil {
		hbOpts = append(hbOpts, heartbeat.WithTicker(cfg.HeartbeatTicker))
	}
	s.hb = heartbeat.New(events.SinkFunc(s.publish), cfg.Log, hbOpts...)
	return s
}

func (s *Session) ID() string { return s.id }

// publish stamps e with the session and current song. It never takes mu, so
// it is safe from under the heartbeat lock.
func (s *Session) publish(e events.Event) {
	e.Session = s.id
	if e.Song == "" {
		e.Song = s.song.Load().(string)
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.sink.Publish(e)
}

func (s *Session) resolve(name string) (*deck.Track, error) {
	if s.lib == nil {
		return nil, errors.Wrap(ErrSongNotFound, "no library")
	}
	song, err := s.lib.Lookup(name)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	t, err := deck.NewTrack(song.Name, song.Path, song.Duration, song.BPM, song.BeatsPerBar)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", name)
	}
	return t, nil
}

// Load puts name on both decks. Any playback, pending transition and the
// heartbeat are stopped first. A lookup or tempo failure leaves the current
// session untouched.
func (s *Session) Load(name string) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	t, err := s.resolve(name)
	if err != nil {
		return err
	}

	s.halt()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pair.Load(t); err != nil {
		s.phase = Unloaded
		s.song.Store("")
		return errors.Wrap(err, "load decks")
	}
	s.phase = Loaded
	s.cued = nil
	s.song.Store(t.Name())

	s.log.WithFields(logrus.Fields{
		"song":     t.Name(),
		"bpm":      t.BPM(),
		"bars":     t.Bars(),
		"duration": t.Duration(),
	}).Info("song loaded")
	s.publish(events.Event{Type: spec.EventSongLoaded})
	return nil
}

// Cue puts a different song on the standby deck so the next transition
// crosses into it.
func (s *Session) Cue(name string) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	t, err := s.resolve(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Unloaded {
		return ErrSongNotLoaded
	}
	if s.trans.Kind != Idle {
		return ErrAlreadyTransitioning
	}
	standby := s.pair.Standby()
	standby.Stop()
	if err := standby.Load(t); err != nil {
		return errors.Wrap(err, "cue")
	}
	standby.SetVolume(0)
	s.cued = t
	if s.loop.active() {
		// the next restart would cross into the cued song
		s.stopLoopLocked()
	}

	s.log.WithField("song", t.Name()).Info("song cued")
	s.publish(events.Event{Type: spec.EventSongCued, Song: t.Name()})
	return nil
}

// Play starts the active deck at startBar. loopBars > 0 restarts at startBar
// every loopBars bars; a loop that would end past the track is refused.
// Playing again restarts from the new position.
func (s *Session) Play(startBar, loopBars int) error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	if s.phase == Unloaded {
		s.mu.Unlock()
		return ErrSongNotLoaded
	}
	t := s.pair.Active().Track()
	if startBar < 0 || !t.Contains(startBar) {
		s.mu.Unlock()
		return errors.Wrapf(ErrBarOutOfBounds, "start bar %d of %.2f", startBar, t.Bars())
	}
	if loopBars < 0 {
		s.mu.Unlock()
		return errors.Wrapf(ErrBarOutOfBounds, "loop of %d bars", loopBars)
	}
	// the loop's end bar line must still be inside the track
	if loopBars > 0 && !t.Contains(startBar+loopBars) {
		s.mu.Unlock()
		return errors.Wrapf(ErrBarOutOfBounds, "loop %d+%d past %.2f bars", startBar, loopBars, t.Bars())
	}
	wasPlaying := s.phase == Playing
	s.mu.Unlock()

	if wasPlaying {
		s.halt()
	}

	s.mu.Lock()
	s.run, s.cancel = context.WithCancel(context.Background())
	active := s.pair.Active()
	t = active.Track()
	s.pair.Standby().SetVolume(0)
	active.SetVolume(1)
	if err := active.PlayFrom(t.TimeOfBar(startBar)); err != nil {
		s.cancel()
		s.cancel = nil
		s.mu.Unlock()
		return errors.Wrap(err, "play")
	}
	s.phase = Playing
	s.trans = Transition{}
	if loopBars > 0 {
		s.startLoopLocked(t, startBar, loopBars)
	}
	s.mu.Unlock()

	s.hb.Start(startBar, t.Clock().Period())
	s.log.WithFields(logrus.Fields{"bar": startBar, "loop": loopBars}).Info("playing")
	s.publish(events.Event{Type: spec.EventPlaying, Bar: startBar})
	return nil
}

// Stop cancels every deferred task, waits for them, then stops the decks.
func (s *Session) Stop() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()
	if phase == Unloaded {
		return ErrSongNotLoaded
	}
	if phase != Playing {
		return nil
	}

	s.halt()
	s.log.Info("stopped")
	s.publish(events.Event{Type: spec.EventStopped})
	return nil
}

// Teardown stops everything and releases the decks. The session is unusable
// afterwards.
func (s *Session) Teardown() error {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	s.halt()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = Unloaded
	s.song.Store("")
	return s.pair.Close()
}

// halt revokes the run token under mu, waits for the heartbeat and every
// deferred task to exit, and only then stops the decks. Callers hold cmdMu.
func (s *Session) halt() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.cancelPendingLocked()
	s.trans = Transition{}
	s.stopLoopLocked()
	s.mu.Unlock()

	s.hb.Stop()
	s.tasks.Wait()

	s.mu.Lock()
	s.pair.StopAll()
	if s.phase == Playing {
		s.phase = Loaded
	}
	s.mu.Unlock()
}
