package protocol

import (
	"encoding/base64"
	"fmt"
)

// NewMicMessage creates a mono PCM16 microphone message
func NewMicMessage(pcmData []byte, sampleRate int) (*Message, error) {
	return NewMessage(TypeMic, MicData{
		Format:     FormatPCM16,
		SampleRate: sampleRate,
		Channels:   1,
		Data:       base64.StdEncoding.EncodeToString(pcmData),
	})
}

// NewOpusMicMessage creates a microphone message carrying one Opus packet
func NewOpusMicMessage(packet []byte, sampleRate, channels int) (*Message, error) {
	return NewMessage(TypeMic, MicData{
		Format:     FormatOpus,
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       base64.StdEncoding.EncodeToString(packet),
	})
}

// NewStatusMessage wraps a status snapshot
func NewStatusMessage(snapshot any) (*Message, error) {
	return NewMessage(TypeStatus, snapshot)
}

// NewEventMessage creates an event message
func NewEventMessage(ev EventData) (*Message, error) {
	return NewMessage(TypeEvent, ev)
}

// NewCommandMessage creates a command message
func NewCommandMessage(cmd CommandData) (*Message, error) {
	return NewMessage(TypeCommand, cmd)
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// GetMicData extracts mic data from a message
func (m *Message) GetMicData() (*MicData, error) {
	if m.Type != TypeMic {
		return nil, fmt.Errorf("protocol: expected %s message, got %s", TypeMic, m.Type)
	}
	var data MicData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeMicData decodes the base64 audio data
func (mic *MicData) DecodeMicData() ([]byte, error) {
	return base64.StdEncoding.DecodeString(mic.Data)
}

// GetCommand extracts a command from a message
func (m *Message) GetCommand() (*CommandData, error) {
	if m.Type != TypeCommand {
		return nil, fmt.Errorf("protocol: expected %s message, got %s", TypeCommand, m.Type)
	}
	var data CommandData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.Action == "" {
		return nil, fmt.Errorf("protocol: command without action")
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
