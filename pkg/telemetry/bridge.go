// Package telemetry bridges the robot to an MQTT broker: it publishes
// status snapshots and pipeline events and accepts operator commands.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-rave/pkg/coordinator"
	"github.com/teslashibe/go-rave/pkg/protocol"
	"github.com/teslashibe/go-rave/pkg/status"
)

// ErrDisabled is returned by Dial when no broker is configured.
var ErrDisabled = errors.New("telemetry: no broker configured")

// Config configures the MQTT bridge.
type Config struct {
	// Broker URL, e.g. tcp://localhost:1883. Empty disables telemetry.
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`

	// Prefix is the topic root: <prefix>/status, <prefix>/event,
	// <prefix>/command, <prefix>/availability. Default: "rave"
	Prefix string `yaml:"prefix" json:"prefix"`

	// PublishInterval is the status cadence. Default: 1s
	PublishInterval time.Duration `yaml:"publish_interval" json:"publish_interval"`

	// ConnectTimeout bounds the initial connect. Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// PublishTimeout bounds each publish. Default: 2s
	PublishTimeout time.Duration `yaml:"publish_timeout" json:"publish_timeout"`

	// QoS for every publish and the command subscription. Default: 0
	QoS byte `yaml:"qos" json:"qos"`
}

// DefaultConfig returns the telemetry defaults with no broker.
func DefaultConfig() Config {
	return Config{
		ClientID:        "go-rave",
		Prefix:          "rave",
		PublishInterval: time.Second,
		ConnectTimeout:  10 * time.Second,
		PublishTimeout:  2 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.Broker == "":
		return nil
	case c.Prefix == "":
		return errors.New("telemetry: prefix is required")
	case c.PublishInterval <= 0:
		return errors.New("telemetry: publish_interval must be positive")
	case c.PublishTimeout <= 0 || c.ConnectTimeout <= 0:
		return errors.New("telemetry: timeouts must be positive")
	case c.QoS > 2:
		return fmt.Errorf("telemetry: qos %d not in [0, 2]", c.QoS)
	}
	return nil
}

// Client is the part of mqtt.Client the bridge uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

// Controller is what remote commands act on.
type Controller interface {
	Status() status.Snapshot
	Apply(cmd protocol.CommandData) error
}

// Dial connects to cfg.Broker. The broker marks the robot offline through
// the last will if the connection drops.
func Dial(cfg Config, logger *slog.Logger) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telemetry")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetWill(cfg.Prefix+"/availability", "offline", 1, true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	// Command handlers publish replies; ordered delivery would deadlock.
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		c.Publish(cfg.Prefix+"/availability", 1, true, "online")
		logger.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("telemetry: connect %s: timeout after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("telemetry: connect %s: %w", cfg.Broker, err)
	}
	return client, nil
}

// Stats are cumulative bridge counters.
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Commands  uint64 `json:"commands"`
	Rejected  uint64 `json:"rejected"`
	Dropped   uint64 `json:"dropped"`
}

// Bridge publishes status and events and applies remote commands.
type Bridge struct {
	client Client
	ctrl   Controller
	cfg    Config
	logger *slog.Logger

	events chan protocol.EventData

	lastWarn time.Time

	published atomic.Uint64
	failed    atomic.Uint64
	commands  atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64
}

var _ coordinator.EventSink = (*Bridge)(nil)

// NewBridge creates a bridge over a connected client.
func NewBridge(client Client, ctrl Controller, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client: client,
		ctrl:   ctrl,
		cfg:    cfg,
		logger: logger.With("component", "telemetry"),
		events: make(chan protocol.EventData, 64),
	}
}

func (b *Bridge) topic(name string) string { return b.cfg.Prefix + "/" + name }

// Run subscribes to commands and publishes until ctx is done, then marks
// the robot offline and disconnects.
func (b *Bridge) Run(ctx context.Context) error {
	token := b.client.Subscribe(b.topic("command"), b.cfg.QoS, b.handleCommand)
	if !token.WaitTimeout(b.cfg.PublishTimeout) {
		return fmt.Errorf("telemetry: subscribe %s: timeout", b.topic("command"))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("telemetry: subscribe %s: %w", b.topic("command"), err)
	}
	b.logger.Info("telemetry bridge started", "prefix", b.cfg.Prefix, "interval", b.cfg.PublishInterval)

	ticker := time.NewTicker(b.cfg.PublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.client.Unsubscribe(b.topic("command")).WaitTimeout(b.cfg.PublishTimeout)
			b.publishRaw(b.topic("availability"), true, []byte("offline"))
			b.client.Disconnect(250)
			b.logger.Info("telemetry bridge stopped", "published", b.published.Load())
			return nil
		case <-ticker.C:
			b.publish(b.topic("status"), protocol.TypeStatus, b.ctrl.Status())
		case ev := <-b.events:
			b.publish(b.topic("event"), protocol.TypeEvent, ev)
		}
	}
}

// Record queues a pipeline event for publishing. It never blocks.
func (b *Bridge) Record(ev coordinator.Event) {
	data := protocol.EventData{
		Kind:    string(ev.Kind),
		Detail:  ev.Reason,
		Pattern: ev.Pattern,
		BPM:     int(math.Round(ev.BPM)),
	}
	if ev.Kind == coordinator.EventClassification {
		data.Detail = ev.AudioType.String()
	}
	select {
	case b.events <- data:
	default:
		b.dropped.Add(1)
	}
}

func (b *Bridge) publish(topic string, t protocol.MessageType, data any) {
	msg, err := protocol.NewMessage(t, data)
	if err != nil {
		b.logger.Warn("encode telemetry message failed", "type", t, "error", err)
		return
	}
	payload, err := msg.Bytes()
	if err != nil {
		return
	}
	b.publishRaw(topic, false, payload)
}

func (b *Bridge) publishRaw(topic string, retained bool, payload []byte) {
	if !b.client.IsConnected() {
		b.failed.Add(1)
		return
	}
	token := b.client.Publish(topic, b.cfg.QoS, retained, payload)
	switch {
	case !token.WaitTimeout(b.cfg.PublishTimeout):
		b.fail(topic, errors.New("publish timeout"))
	case token.Error() != nil:
		b.fail(topic, token.Error())
	default:
		b.published.Add(1)
	}
}

func (b *Bridge) fail(topic string, err error) {
	b.failed.Add(1)
	if time.Since(b.lastWarn) > 5*time.Second {
		b.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
		b.lastWarn = time.Now()
	}
}

// handleCommand runs on the paho callback goroutine.
func (b *Bridge) handleCommand(_ mqtt.Client, m mqtt.Message) {
	msg, err := protocol.ParseMessage(m.Payload())
	if err == nil {
		var cmd *protocol.CommandData
		if cmd, err = msg.GetCommand(); err == nil {
			err = b.ctrl.Apply(*cmd)
		}
	}
	if err != nil {
		b.rejected.Add(1)
		b.logger.Warn("mqtt command rejected", "topic", m.Topic(), "error", err)
		b.Record(coordinator.Event{Kind: "error", Reason: err.Error()})
		return
	}
	b.commands.Add(1)
}

// Stats returns the counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Failed:    b.failed.Load(),
		Commands:  b.commands.Load(),
		Rejected:  b.rejected.Load(),
		Dropped:   b.dropped.Load(),
	}
}
