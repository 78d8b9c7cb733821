package audio

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"soundscape/internal/deck"
	"soundscape/pkg/spec"
)

// silenceBelow is the linear gain under which a channel is muted outright.
const silenceBelow = 0.001

// Engine owns the speaker. There is one per process.
type Engine struct {
	rate beep.SampleRate
	log  *logrus.Entry
}

// NewEngine opens the speaker at the frame file rate with a 100ms buffer.
func NewEngine(log *logrus.Entry) (*Engine, error) {
	sr := beep.SampleRate(spec.SampleRate)
	if err := speaker.Init(sr, sr.N(time.Millisecond*100)); err != nil {
		return nil, errors.Wrap(err, "speaker init")
	}
	log.WithField("rate", int(sr)).Info("speaker ready")
	return &Engine{rate: sr, log: log}, nil
}

// Channel returns a new deck output mixed into the speaker.
func (e *Engine) Channel(name string) *Channel {
	return &Channel{engine: e, log: e.log.WithField("channel", name), gain: 1}
}

func (e *Engine) Close() {
	speaker.Clear()
	speaker.Close()
}

// Channel is a deck.Output backed by a beep pipeline:
// source -> resampler -> volume -> ctrl. Fields touched by the speaker
// goroutine are only changed under speaker.Lock.
type Channel struct {
	engine *Engine
	log    *logrus.Entry

	src    beep.StreamSeekCloser
	format beep.Format
	vol    *effects.Volume
	ctrl   *beep.Ctrl
	gain   float64

	// queued is the ctrl currently inside the speaker mixer, if any.
	queued atomic.Pointer[beep.Ctrl]
}

var _ deck.Output = (*Channel)(nil)

func (c *Channel) Load(t *deck.Track) error {
	src, format, err := Decode(t.Path())
	if err != nil {
		return err
	}

	var s beep.Streamer = src
	if format.SampleRate != c.engine.rate {
		s = beep.Resample(4, format.SampleRate, c.engine.rate, src)
	}
	vol := &effects.Volume{Streamer: s, Base: 2}
	applyGain(vol, c.gain)
	ctrl := &beep.Ctrl{Streamer: vol, Paused: true}

	speaker.Lock()
	old, oldCtrl := c.src, c.ctrl
	if oldCtrl != nil {
		// ends the old Seq on the next buffer
		oldCtrl.Streamer = nil
	}
	c.src, c.format, c.vol, c.ctrl = src, format, vol, ctrl
	speaker.Unlock()

	if old != nil {
		old.Close()
	}
	c.log.WithFields(logrus.Fields{
		"track": t.Name(),
		"rate":  int(format.SampleRate),
	}).Debug("channel loaded")
	return nil
}

func (c *Channel) Play(from float64) error {
	speaker.Lock()
	if c.src == nil {
		speaker.Unlock()
		return deck.ErrNoTrack
	}
	p := c.format.SampleRate.N(time.Duration(from * float64(time.Second)))
	if n := c.src.Len(); p > n {
		p = n
	}
	if err := c.src.Seek(p); err != nil {
		speaker.Unlock()
		return errors.Wrap(err, "seek")
	}
	c.ctrl.Paused = false
	ctrl := c.ctrl
	speaker.Unlock()

	if c.queued.Load() != ctrl {
		c.queued.Store(ctrl)
		speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
			c.queued.CompareAndSwap(ctrl, nil)
		})))
	}
	return nil
}

func (c *Channel) Stop() {
	speaker.Lock()
	if c.ctrl != nil {
		c.ctrl.Paused = true
	}
	speaker.Unlock()
}

// SetVolume maps a linear gain onto the base-2 volume effect.
func (c *Channel) SetVolume(v float64) {
	speaker.Lock()
	c.gain = v
	if c.vol != nil {
		applyGain(c.vol, v)
	}
	speaker.Unlock()
}

func applyGain(vol *effects.Volume, v float64) {
	if v < silenceBelow {
		vol.Silent = true
		vol.Volume = math.Log2(silenceBelow)
		return
	}
	vol.Silent = false
	vol.Volume = math.Log2(v)
}

func (c *Channel) Position() float64 {
	speaker.Lock()
	defer speaker.Unlock()
	if c.src == nil {
		return 0
	}
	return c.format.SampleRate.D(c.src.Position()).Seconds()
}

func (c *Channel) Close() error {
	speaker.Lock()
	src := c.src
	if c.ctrl != nil {
		c.ctrl.Streamer = nil
	}
	c.src, c.ctrl, c.vol = nil, nil, nil
	speaker.Unlock()

	if src != nil {
		return src.Close()
	}
	return nil
}
