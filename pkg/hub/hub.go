package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-rave/pkg/protocol"
)

// Config tunes a Hub.
type Config struct {
	// Buffer is the broadcast queue length. Default: 64
	Buffer int `yaml:"buffer" json:"buffer"`

	// ClientBuffer is each client's send queue length; a client that falls
	// this far behind is dropped. Default: 32
	ClientBuffer int `yaml:"client_buffer" json:"client_buffer"`
}

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{Buffer: 64, ClientBuffer: 32}
}

// Stats are cumulative hub counters.
type Stats struct {
	Clients   int    `json:"clients"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Evicted   uint64 `json:"evicted"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	name    string
	cfg     Config
	logger  *slog.Logger
	handler Handler

	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	count     atomic.Int64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
	running   atomic.Bool
	stopOnce  sync.Once
}

// Option configures a Hub.
type Option func(*Hub)

// WithHandler answers messages clients send. Without one, client input is
// read and discarded.
func WithHandler(h Handler) Option {
	return func(hub *Hub) {
		hub.handler = h
	}
}

// New creates a hub. Call Run to start it.
func New(name string, cfg Config, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Buffer < 1 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	if cfg.ClientBuffer < 1 {
		cfg.ClientBuffer = DefaultConfig().ClientBuffer
	}
	h := &Hub{
		name:       name,
		cfg:        cfg,
		logger:     logger.With("component", "hub", "hub", name),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, cfg.Buffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run owns the client set until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.stopOnce.Do(func() { close(h.done) })
		for c := range h.clients {
			h.remove(c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Info("client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.remove(c)
				h.logger.Info("client disconnected", "clients", len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
					h.delivered.Add(1)
				default:
					h.remove(c)
					h.evicted.Add(1)
					h.logger.Warn("dropped slow client", "clients", len(h.clients))
				}
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// Broadcast queues msg for every client. It never blocks; a full queue
// drops the message.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Debug("broadcast queue full, dropping message", "type", msg.Type)
	}
}

// Publish encodes data as a protocol message of type t and broadcasts it.
func (h *Hub) Publish(t protocol.MessageType, data any) error {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		return err
	}
	m, err := Encode(msg)
	if err != nil {
		return err
	}
	h.Broadcast(m)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Stats returns the counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients:   h.ClientCount(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
		Evicted:   h.evicted.Load(),
	}
}
