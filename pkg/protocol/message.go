// Package protocol defines the JSON messages go-rave exchanges with the
// outside world: mic audio from the robot, status snapshots for dashboards
// and MQTT subscribers, and operator commands.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of message
type MessageType string

const (
	// Robot → rave
	TypeMic MessageType = "mic" // Microphone audio

	// rave → observers
	TypeStatus MessageType = "status" // Status snapshot
	TypeEvent  MessageType = "event"  // Dance/classification event

	// Operator → rave
	TypeCommand MessageType = "command" // Control command

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into v
func (m *Message) ParseData(v any) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// Audio payload formats
const (
	FormatPCM16 = "pcm16"
	FormatOpus  = "opus"
)

// MicData contains microphone audio
type MicData struct {
	Format     string `json:"format"`      // "pcm16", "opus"
	SampleRate int    `json:"sample_rate"` // e.g., 48000
	Channels   int    `json:"channels"`    // 1 for mono
	Data       string `json:"data"`        // base64 encoded
}

// Command actions
const (
	ActionToggleAuto  = "toggle_auto"
	ActionForward     = "forward"
	ActionBackward    = "backward"
	ActionLeft        = "left"
	ActionRight       = "right"
	ActionStop        = "stop"
	ActionResetFault  = "reset_fault"
	ActionSensitivity = "sensitivity"
	ActionGain        = "gain"
	ActionEyes        = "eyes"
	ActionSpecial     = "special"
)

// CommandData is an operator command.
// Value carries the number for sensitivity/gain; Name carries the
// expression or special animation for eyes/special.
type CommandData struct {
	Action string `json:"action"`
	Value  *int   `json:"value,omitempty"`
	Name   string `json:"name,omitempty"`
}

// EventData describes something that happened in the pipeline
type EventData struct {
	Kind    string `json:"kind"` // "dance_started", "dance_stopped", "audio_type", "motion_fault"
	Detail  string `json:"detail,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	BPM     int    `json:"bpm,omitempty"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
