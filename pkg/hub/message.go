// Package hub fans websocket messages out to any number of clients using
// a single owner goroutine for the client set. Slow clients are dropped
// rather than allowed to stall the broadcaster.
package hub

import (
	"github.com/teslashibe/go-rave/pkg/protocol"
)

// Message is one pre-encoded text frame.
type Message struct {
	Type protocol.MessageType
	Data []byte
}

// Encode builds a Message from a protocol message.
func Encode(msg *protocol.Message) (Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msg.Type, Data: data}, nil
}

// Handler answers a message read from a client. A nil reply sends
// nothing back.
type Handler func(msg *protocol.Message) (reply *protocol.Message, err error)
