package coordinator

import (
	"time"

	"github.com/teslashibe/go-rave/pkg/analysis"
)

// EventKind names a journal event.
type EventKind string

const (
	EventDanceStarted   EventKind = "dance_started"
	EventDanceStopped   EventKind = "dance_stopped"
	EventPattern        EventKind = "pattern"
	EventClassification EventKind = "classification"
	EventMotionFault    EventKind = "motion_fault"
)

// Event is something worth keeping after the process exits.
type Event struct {
	Kind      EventKind          `json:"kind"`
	At        time.Time          `json:"at"`
	SessionID string             `json:"session_id,omitempty"`
	Stream    time.Duration      `json:"stream"`
	AudioType analysis.AudioType `json:"audio_type"`

	Confidence float64 `json:"confidence"`
	BPM        float64 `json:"bpm"`
	Energy     float64 `json:"energy"`
	Pattern    string  `json:"pattern,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// EventSink receives events. Record must not block.
type EventSink interface {
	Record(Event)
}

// Sinks fans an event out to several sinks.
type Sinks []EventSink

// Record passes ev to every sink.
func (s Sinks) Record(ev Event) {
	for _, sink := range s {
		sink.Record(ev)
	}
}
