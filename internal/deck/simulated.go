package deck

import (
	"sync"
	"time"
)

// Simulated is a silent Output whose position advances with its clock. The
// server uses it in headless mode; tests drive it with a fake clock.
type Simulated struct {
	mu      sync.Mutex
	now     func() time.Time
	track   *Track
	from    float64
	started time.Time
	running bool
	volume  float64
}

func NewSimulated() *Simulated {
	return NewSimulatedClock(time.Now)
}

func NewSimulatedClock(now func() time.Time) *Simulated {
	return &Simulated{now: now, volume: 1}
}

func (s *Simulated) Load(t *Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = t
	s.from = 0
	s.running = false
	return nil
}

func (s *Simulated) Play(from float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return ErrNoTrack
	}
	s.from = from
	s.started = s.now()
	s.running = true
	return nil
}

func (s *Simulated) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.from = s.positionLocked()
	s.running = false
}

func (s *Simulated) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
}

func (s *Simulated) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Simulated) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Simulated) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked()
}

func (s *Simulated) positionLocked() float64 {
	if !s.running || s.track == nil {
		return s.from
	}
	p := s.from + s.now().Sub(s.started).Seconds()
	if d := s.track.Duration(); p > d {
		p = d
	}
	return p
}

func (s *Simulated) Close() error {
	s.Stop()
	return nil
}
