package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-rave/pkg/protocol"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds client input; clients only send commands and pings.
	maxMessageSize = 16 * 1024
)

// Conn is the part of a websocket connection a Client uses.
// *websocket.Conn from gofiber/websocket satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// Client is one websocket connection.
type Client struct {
	hub   *Hub
	conn  Conn
	send  chan Message // closed by the hub
	reply chan Message // answers to this client only
}

// NewClient creates a client and registers it with the hub. It returns
// nil when the hub has stopped.
func NewClient(h *Hub, conn Conn) *Client {
	c := &Client{
		hub:   h,
		conn:  conn,
		send:  make(chan Message, h.cfg.ClientBuffer),
		reply: make(chan Message, 4),
	}
	select {
	case h.register <- c:
		return c
	case <-h.done:
		return nil
	}
}

// Run starts the write pump and reads until the connection closes.
// Call it from the websocket handler; it blocks.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		c.hub.logger.Debug("ignoring client message", "error", err)
		return
	}

	var reply *protocol.Message
	switch {
	case msg.Type == protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return
		}
		reply, err = protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())
		if err != nil {
			return
		}
	case c.hub.handler != nil:
		reply, err = c.hub.handler(msg)
		if err != nil {
			c.hub.logger.Debug("client message rejected", "type", msg.Type, "error", err)
			reply = errorReply(err)
		}
	}
	if reply == nil {
		return
	}

	m, err := Encode(reply)
	if err != nil {
		return
	}
	select {
	case c.reply <- m:
	default:
	}
}

func errorReply(err error) *protocol.Message {
	msg, merr := protocol.NewMessage(protocol.TypeEvent, protocol.EventData{Kind: "error", Detail: err.Error()})
	if merr != nil {
		return nil
	}
	return msg
}

// writePump is the only goroutine writing to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		var (
			msg Message
			ok  = true
		)
		select {
		case msg, ok = <-c.send:
		case msg = <-c.reply:
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if !ok {
			// Hub closed the channel.
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
			return
		}
	}
}
