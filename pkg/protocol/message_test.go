package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
	}{
		{"mic message", TypeMic, MicData{Format: FormatPCM16, SampleRate: 48000, Channels: 1}},
		{"command message", TypeCommand, CommandData{Action: ActionStop}},
		{"nil data", TypePing, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if err != nil {
				t.Fatalf("NewMessage() error = %v", err)
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp not set")
			}
			if tt.data == nil && msg.Data != nil {
				t.Error("NewMessage() nil data should leave Data empty")
			}
		})
	}
}

func TestParseMessage_Errors(t *testing.T) {
	if _, err := ParseMessage([]byte("{not json")); err == nil {
		t.Error("expected error for invalid json")
	}
	if _, err := ParseMessage([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for missing type")
	}
}

func TestMicMessage(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	msg, err := NewMicMessage(pcm, 16000)
	if err != nil {
		t.Fatalf("NewMicMessage() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	mic, err := parsed.GetMicData()
	if err != nil {
		t.Fatalf("GetMicData() error = %v", err)
	}
	if mic.Format != FormatPCM16 || mic.SampleRate != 16000 || mic.Channels != 1 {
		t.Errorf("unexpected mic header: %+v", mic)
	}

	decoded, err := mic.DecodeMicData()
	if err != nil {
		t.Fatalf("DecodeMicData() error = %v", err)
	}
	if string(decoded) != string(pcm) {
		t.Errorf("decoded = %v, want %v", decoded, pcm)
	}
}

func TestGetMicData_WrongType(t *testing.T) {
	msg, _ := NewCommandMessage(CommandData{Action: ActionStop})
	if _, err := msg.GetMicData(); err == nil {
		t.Error("expected error extracting mic data from a command")
	}
}

func TestCommandMessage(t *testing.T) {
	v := 75
	msg, err := NewCommandMessage(CommandData{Action: ActionSensitivity, Value: &v})
	if err != nil {
		t.Fatalf("NewCommandMessage() error = %v", err)
	}

	cmd, err := msg.GetCommand()
	if err != nil {
		t.Fatalf("GetCommand() error = %v", err)
	}
	if cmd.Action != ActionSensitivity || cmd.Value == nil || *cmd.Value != 75 {
		t.Errorf("unexpected command: %+v", cmd)
	}
}

func TestCommandMessage_MissingAction(t *testing.T) {
	msg := &Message{Type: TypeCommand, Data: json.RawMessage(`{"name":"happy"}`)}
	if _, err := msg.GetCommand(); err == nil {
		t.Error("expected error for command without action")
	}
}

func TestPongLatency(t *testing.T) {
	msg, err := NewPongMessage("abc", 1000, 1042)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	var pong PongData
	if err := msg.ParseData(&pong); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if pong.LatencyMs != 42 {
		t.Errorf("LatencyMs = %d, want 42", pong.LatencyMs)
	}
}
