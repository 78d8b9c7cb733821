// Package events carries session notifications from the player to whoever
// listens on the control socket.
package events

import (
	"encoding/json"
	"time"

	"soundscape/pkg/spec"
)

// Event is one notification. Bar is always serialised; 0 is a real bar.
type Event struct {
	Type      string    `json:"type"`
	Session   string    `json:"session,omitempty"`
	Song      string    `json:"song,omitempty"`
	Bar       int       `json:"bar"`
	Corrected bool      `json:"corrected,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	FireIn    float64   `json:"fire_in,omitempty"`
	At        time.Time `json:"at"`
}

// Line encodes e the way the control socket writes it: "EVENT {json}".
func (e Event) Line() string {
	b, _ := json.Marshal(e)
	return spec.EventPrefix + string(b)
}

// Sink receives events. Publish must not block for long; the heartbeat and
// the crossfade ramp call it while a bar is ticking.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(Event) {})
