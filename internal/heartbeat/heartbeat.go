// Package heartbeat publishes the active deck's bar counter once per bar.
package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"soundscape/internal/events"
	"soundscape/pkg/spec"
)

// MinPeriod bounds the tick interval for absurd tempos.
const MinPeriod = time.Millisecond

// Emitter is a single periodic task: Stopped -> Running -> Stopped. The
// counter is advanced by ticks and overwritten by SetBar; both publish
// under the same lock so the sink sees them in the order they happened.
type Emitter struct {
	sink      events.Sink
	log       *logrus.Entry
	newTicker func(time.Duration) Ticker

	mu      sync.Mutex
	bar     int
	period  time.Duration
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	reset   chan time.Duration
}

type Option func(*Emitter)

// WithTicker replaces the wall-clock ticker, mostly for tests.
func WithTicker(f func(time.Duration) Ticker) Option {
	return func(e *Emitter) { e.newTicker = f }
}

func New(sink events.Sink, log *logrus.Entry, opts ...Option) *Emitter {
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Emitter{
		sink:      sink,
		log:       log.WithField("component", "heartbeat"),
		newTicker: newRealTicker,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start publishes from immediately and then from+1, from+2... every period.
// It returns false, doing nothing, when the emitter is already running.
func (e *Emitter) Start(from int, period time.Duration) bool {
	if period < MinPeriod {
		period = MinPeriod
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		e.log.Debug("start ignored, already running")
		return false
	}
	e.running = true
	e.bar = from
	e.period = period
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.done = make(chan struct{})
	e.reset = make(chan time.Duration, 1)

	e.publishLocked(false)
	go e.run(e.ctx, e.newTicker(period), e.reset, e.done)

	e.log.WithFields(logrus.Fields{"bar": from, "period": period}).Debug("heartbeat started")
	return true
}

func (e *Emitter) run(ctx context.Context, t Ticker, reset <-chan time.Duration, done chan<- struct{}) {
	defer close(done)
	defer func() { t.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			e.tick(ctx)
		case p := <-reset:
			t.Stop()
			t = e.newTicker(p)
		}
	}
}

func (e *Emitter) tick(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// a tick that raced Stop must not publish
	if ctx.Err() != nil {
		return
	}
	e.bar++
	e.publishLocked(false)
}

func (e *Emitter) publishLocked(corrected bool) {
	e.sink.Publish(events.Event{
		Type:      spec.EventBarChanged,
		Bar:       e.bar,
		Corrected: corrected,
		At:        time.Now(),
	})
}

// SetBar overwrites the counter. While running it publishes the corrected
// value at once; the next tick continues from n.
func (e *Emitter) SetBar(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bar = n
	if e.running {
		e.publishLocked(true)
	}
}

// SetPeriod changes the tick interval, restarting the schedule only when the
// interval actually differs.
func (e *Emitter) SetPeriod(period time.Duration) {
	if period < MinPeriod {
		period = MinPeriod
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if period == e.period {
		return
	}
	e.period = period
	if !e.running {
		return
	}
	select {
	case <-e.reset:
	default:
	}
	e.reset <- period
}

// Stop ends the task, waits for its goroutine and resets the counter to 0.
func (e *Emitter) Stop() {
	e.mu.Lock()
	if !e.running {
		e.bar = 0
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	done := e.done
	e.mu.Unlock()

	<-done

	e.mu.Lock()
	if !e.running {
		e.bar = 0
	}
	e.mu.Unlock()
	e.log.Debug("heartbeat stopped")
}

func (e *Emitter) Bar() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bar
}

func (e *Emitter) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Emitter) Period() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.period
}
