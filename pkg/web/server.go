// Package web serves the HTTP control surface and the live status
// websocket.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-rave/pkg/dance"
	"github.com/teslashibe/go-rave/pkg/hub"
	"github.com/teslashibe/go-rave/pkg/journal"
	"github.com/teslashibe/go-rave/pkg/protocol"
	"github.com/teslashibe/go-rave/pkg/status"
)

// Controller is the control API the server drives.
type Controller interface {
	Status() status.Snapshot
	SetSensitivity(v int) error
	SetGain(v int) error
	ToggleAutonomous() bool
	Manual(direction string) error
	SetEyes(name string) error
	TriggerSpecial(name string) error
	ClearMotionFault()
	Apply(cmd protocol.CommandData) error
}

// SessionStore lists recorded dance sessions.
type SessionStore interface {
	Sessions(ctx context.Context, limit int) ([]journal.Session, error)
}

// Config configures the server.
type Config struct {
	// Addr is the listen address. Default: ":8080"
	Addr string `yaml:"addr" json:"addr"`

	// StatusInterval is how often the status stream pushes a snapshot.
	// Default: 100ms
	StatusInterval time.Duration `yaml:"status_interval" json:"status_interval"`

	// AllowOrigins is the CORS origin list. Default: "*"
	AllowOrigins string `yaml:"allow_origins" json:"allow_origins"`

	// Static is an optional directory served at "/".
	Static string `yaml:"static" json:"static"`

	Hub hub.Config `yaml:"hub" json:"hub"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		StatusInterval: 100 * time.Millisecond,
		AllowOrigins:   "*",
		Hub:            hub.DefaultConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("web: addr is required")
	}
	if c.StatusInterval <= 0 {
		return errors.New("web: status_interval must be positive")
	}
	return nil
}

// Server is the control surface.
type Server struct {
	app      *fiber.App
	cfg      Config
	ctrl     Controller
	catalog  *dance.Catalog
	sessions SessionStore
	logger   *slog.Logger

	statusHub *hub.Hub
}

// NewServer creates the server. sessions may be nil when the journal is
// disabled.
func NewServer(ctrl Controller, catalog *dance.Catalog, sessions SessionStore, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		catalog:  catalog,
		sessions: sessions,
		logger:   logger.With("component", "web"),
	}
	s.statusHub = hub.New("status", cfg.Hub, logger, hub.WithHandler(s.handleWSMessage))

	app := fiber.New(fiber.Config{
		AppName:               "go-rave",
		DisableStartupMessage: true,
		// Route params are handed to the controller, which keeps them
		// past the request.
		Immutable:             true,
		ErrorHandler:          s.handleError,
	})

	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))

	if cfg.Static != "" {
		app.Static("/", cfg.Static)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/control/:cmd", s.handleControl)
	api.Post("/sens/:val", s.handleSensitivity)
	api.Post("/gain/:val", s.handleGain)
	api.Post("/eyes/special/:type", s.handleSpecial)
	api.Post("/eyes/:expression", s.handleExpression)
	api.Get("/patterns", s.handlePatterns)
	api.Get("/sessions", s.handleSessions)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App exposes the fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App { return s.app }

// StatusHub returns the hub behind /ws/status.
func (s *Server) StatusHub() *hub.Hub { return s.statusHub }

// Run starts the status hub and its publisher, then serves until ctx is
// done.
func (s *Server) Run(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go s.publishStatus(ctx)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("control surface listening", "addr", s.cfg.Addr)
		errc <- s.app.Listen(s.cfg.Addr)
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("web: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("web: shutdown: %w", err)
	}
	return nil
}

// publishStatus pushes a snapshot to websocket clients every
// StatusInterval while anyone is listening.
func (s *Server) publishStatus(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			if err := s.statusHub.Publish(protocol.TypeStatus, s.ctrl.Status()); err != nil {
				s.logger.Warn("encode status failed", "error", err)
			}
		}
	}
}

func (s *Server) handleStatusWS(conn *websocket.Conn) {
	client := hub.NewClient(s.statusHub, conn)
	if client == nil {
		return
	}
	// Send the current state right away instead of waiting for a tick.
	if err := s.statusHub.Publish(protocol.TypeStatus, s.ctrl.Status()); err != nil {
		s.logger.Warn("encode status failed", "error", err)
	}
	client.Run()
}

func (s *Server) handleWSMessage(msg *protocol.Message) (*protocol.Message, error) {
	cmd, err := msg.GetCommand()
	if err != nil {
		return nil, err
	}
	if err := s.ctrl.Apply(*cmd); err != nil {
		return nil, err
	}
	return protocol.NewStatusMessage(s.ctrl.Status())
}
