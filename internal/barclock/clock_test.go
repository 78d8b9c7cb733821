package barclock

import (
	"math"
	"testing"
	"time"
)

const epsilon = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < epsilon }

func TestSecondsPerBar(t *testing.T) {
	cases := []struct {
		bpm  float64
		sig  int
		want float64
	}{
		{120, 4, 2.0},
		{60, 4, 4.0},
		{90, 3, 2.0},
		{152, 4, 60.0 * 4 / 152},
		{174.5, 7, 60.0 * 7 / 174.5},
	}
	for _, c := range cases {
		if got := New(c.bpm, c.sig).SecondsPerBar(); !near(got, c.want) {
			t.Errorf("bpm=%v sig=%d: expected %v, got %v", c.bpm, c.sig, c.want, got)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, bpm := range []float64{40, 60, 99.5, 120, 152, 200, 333.3} {
		for sig := 1; sig <= 12; sig++ {
			c := New(bpm, sig)
			for _, bar := range []float64{0, 0.25, 1, 3.5, 17, 255, 1024.75} {
				got := c.BarOfTime(c.TimeOfBar(bar))
				if math.Abs(got-bar) > 1e-9*math.Max(1, bar) {
					t.Fatalf("bpm=%v sig=%d bar=%v: round trip gave %v", bpm, sig, bar, got)
				}
			}
		}
	}
}

func TestSecondsPerBarMonotonic(t *testing.T) {
	prev := math.Inf(1)
	for bpm := 30.0; bpm <= 300; bpm += 7.5 {
		spb := SecondsPerBar(bpm, 4)
		if !(spb < prev) {
			t.Fatalf("expected seconds per bar to decrease with bpm, bpm=%v spb=%v prev=%v", bpm, spb, prev)
		}
		prev = spb
	}

	prev = 0
	for sig := 1; sig <= 16; sig++ {
		spb := SecondsPerBar(120, sig)
		if !(spb > prev) {
			t.Fatalf("expected seconds per bar to increase with time signature, sig=%d spb=%v prev=%v", sig, spb, prev)
		}
		prev = spb
	}
}

func TestBarsIn(t *testing.T) {
	c := New(120, 4)
	if got := c.BarsIn(20); !near(got, 10) {
		t.Fatalf("expected 10 bars in 20s, got %v", got)
	}
	if got := c.BarsIn(21); !near(got, 10.5) {
		t.Fatalf("expected 10.5 bars in 21s, got %v", got)
	}
}

func TestNextBarDelay(t *testing.T) {
	c := New(120, 4) // 2s per bar
	cases := []struct {
		pos  float64
		want float64
	}{
		{0, 0},
		{0.5, 1.5},
		{2.0, 0},
		{3.0, 1.0},
		{3.999, 0.001},
		{19.25, 0.75},
	}
	for _, tc := range cases {
		got := c.NextBarDelay(tc.pos)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("pos=%v: expected delay %v, got %v", tc.pos, tc.want, got)
		}
		if got < 0 {
			t.Errorf("pos=%v: negative delay %v", tc.pos, got)
		}
	}
}

func TestPhaseAndCurrentBar(t *testing.T) {
	c := New(120, 4)
	if got := c.Phase(5.5); !near(got, 1.5) {
		t.Fatalf("expected phase 1.5, got %v", got)
	}
	if got := c.Phase(4); !near(got, 0) {
		t.Fatalf("expected phase 0 on a boundary, got %v", got)
	}
	if got := c.CurrentBar(5.5); got != 2 {
		t.Fatalf("expected bar 2, got %d", got)
	}
}

func TestPeriod(t *testing.T) {
	if got := New(120, 4).Period(); got != 2*time.Second {
		t.Fatalf("expected 2s, got %v", got)
	}
	if got := New(6000, 4).Period(); got != 40*time.Millisecond {
		t.Fatalf("expected 40ms, got %v", got)
	}
}
