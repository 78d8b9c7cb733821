package player

// Status is a point-in-time snapshot for STATUS.
type Status struct {
	Session       string  `json:"session"`
	Phase         string  `json:"phase"`
	Song          string  `json:"song,omitempty"`
	Cued          string  `json:"cued,omitempty"`
	Loaded        bool    `json:"loaded"`
	Playing       bool    `json:"playing"`
	Transitioning bool    `json:"transitioning"`
	Transition    string  `json:"transition"`
	TargetBar     *int    `json:"target_bar,omitempty"`
	CurrentBar    int     `json:"current_bar"`
	TotalBars     float64 `json:"total_bars"`
	Duration      float64 `json:"duration"`
	BPM           float64 `json:"bpm"`
	BeatsPerBar   int     `json:"time_signature"`
	ActiveDeck    int     `json:"active_deck"`
	Position      float64 `json:"position"`
	LoopStart     int     `json:"loop_start,omitempty"`
	LoopBars      int     `json:"loop_bars,omitempty"`
}

// SongInfo answers SONG: the loaded song as the catalog and deck see it.
type SongInfo struct {
	Name        string  `json:"name"`
	Duration    float64 `json:"duration"`
	BeatsPerBar int     `json:"time_signature"`
	BarCount    float64 `json:"bar_count"`
	BPM         float64 `json:"bpm"`
	Playing     bool    `json:"playing"`
	CurrentBar  int     `json:"current_bar"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Session:       s.id,
		Phase:         s.phase.String(),
		Loaded:        s.phase != Unloaded,
		Playing:       s.phase == Playing,
		Transitioning: s.trans.Kind != Idle,
		Transition:    s.trans.Kind.String(),
		ActiveDeck:    s.pair.ActiveIndex(),
	}
	if s.trans.Kind != Idle {
		bar := s.trans.Bar
		st.TargetBar = &bar
	}
	if s.loop.active() {
		st.LoopStart = s.loop.start
		st.LoopBars = s.loop.bars
	}
	if s.cued != nil {
		st.Cued = s.cued.Name()
	}
	if s.phase == Unloaded {
		return st
	}

	active := s.pair.Active()
	t := active.Track()
	st.Song = t.Name()
	st.TotalBars = t.Bars()
	st.Duration = t.Duration()
	st.BPM = t.BPM()
	st.BeatsPerBar = t.BeatsPerBar()
	st.Position = active.Position()
	st.CurrentBar = s.currentBarLocked()
	return st
}

// currentBarLocked prefers the heartbeat counter, which transitions
// correct, and falls back to the active deck position when stopped.
func (s *Session) currentBarLocked() int {
	if s.hb.Running() {
		return s.hb.Bar()
	}
	active := s.pair.Active()
	return active.Track().Clock().CurrentBar(active.Position())
}

// Song describes the loaded song.
func (s *Session) Song() (SongInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Unloaded {
		return SongInfo{}, ErrSongNotLoaded
	}
	t := s.pair.Active().Track()
	return SongInfo{
		Name:        t.Name(),
		Duration:    t.Duration(),
		BeatsPerBar: t.BeatsPerBar(),
		BarCount:    t.Bars(),
		BPM:         t.BPM(),
		Playing:     s.phase == Playing,
		CurrentBar:  s.currentBarLocked(),
	}, nil
}
