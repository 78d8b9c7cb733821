package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"soundscape/pkg/spec"
)

func TestLineEncoding(t *testing.T) {
	e := Event{Type: spec.EventBarChanged, Bar: 0, At: time.Unix(0, 0).UTC()}
	line := e.Line()
	if !strings.HasPrefix(line, "EVENT ") {
		t.Fatalf("missing prefix: %q", line)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "EVENT ")), &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if got["type"] != spec.EventBarChanged {
		t.Fatalf("unexpected type %v", got["type"])
	}
	if _, ok := got["bar"]; !ok {
		t.Fatal("bar 0 must still be serialised")
	}
	if _, ok := got["song"]; ok {
		t.Fatal("empty song should be omitted")
	}
}

func TestBroadcasterPreservesOrder(t *testing.T) {
	b := NewBroadcaster(nil)
	ch, cancel := b.Subscribe(16)
	defer cancel()

	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: spec.EventBarChanged, Bar: i})
	}
	for i := 0; i < 10; i++ {
		select {
		case e := <-ch:
			if e.Bar != i {
				t.Fatalf("event %d out of order: bar %d", i, e.Bar)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)
	slow, cancelSlow := b.Subscribe(2)
	defer cancelSlow()
	fast, cancelFast := b.Subscribe(10)
	defer cancelFast()

	for i := 0; i < 5; i++ {
		b.Publish(Event{Type: spec.EventBarChanged, Bar: i})
	}
	if len(slow) != 2 {
		t.Fatalf("slow subscriber should hold 2 events, has %d", len(slow))
	}
	if len(fast) != 5 {
		t.Fatalf("fast subscriber should hold 5 events, has %d", len(fast))
	}
	if b.Dropped() != 3 {
		t.Fatalf("expected 3 drops, got %d", b.Dropped())
	}
	if e := <-slow; e.Bar != 0 {
		t.Fatalf("slow subscriber should keep the oldest events, got bar %d", e.Bar)
	}
}

func TestCancelAndClose(t *testing.T) {
	b := NewBroadcaster(nil)
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after cancel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", b.Subscribers())
	}

	other, _ := b.Subscribe(1)
	b.Close()
	if _, ok := <-other; ok {
		t.Fatal("channel should be closed after Close")
	}
	b.Publish(Event{Type: spec.EventStopped})

	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatal("subscribing to a closed broadcaster should yield a closed channel")
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	var s Sink = &r
	s.Publish(Event{Type: spec.EventBarChanged, Bar: 3})
	s.Publish(Event{Type: spec.EventStopped})
	s.Publish(Event{Type: spec.EventBarChanged, Bar: 4})

	bars := r.Bars(spec.EventBarChanged)
	if len(bars) != 2 || bars[0] != 3 || bars[1] != 4 {
		t.Fatalf("unexpected bars %v", bars)
	}
	if len(r.Events()) != 3 {
		t.Fatalf("expected 3 events, got %d", len(r.Events()))
	}
	r.Reset()
	if len(r.Events()) != 0 {
		t.Fatal("reset should drop everything")
	}
}
