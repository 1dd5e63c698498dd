package web

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-rave/pkg/coordinator"
	"github.com/teslashibe/go-rave/pkg/eyes"
	"github.com/teslashibe/go-rave/pkg/motion"
	"github.com/teslashibe/go-rave/pkg/protocol"
	"github.com/teslashibe/go-rave/pkg/status"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 500
)

// handleStatus returns the current status snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

// handleControl runs toggle_auto, reset_fault or a manual direction.
func (s *Server) handleControl(c *fiber.Ctx) error {
	cmd := c.Params("cmd")
	switch cmd {
	case protocol.ActionToggleAuto:
		on := s.ctrl.ToggleAutonomous()
		return c.JSON(fiber.Map{"ok": true, "autonomous": on})
	case protocol.ActionResetFault:
		s.ctrl.ClearMotionFault()
		return c.JSON(fiber.Map{"ok": true})
	}

	if err := s.ctrl.Manual(cmd); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "command": cmd, "autonomous": false})
}

func (s *Server) handleSensitivity(c *fiber.Ctx) error {
	v, err := intParam(c, "val")
	if err != nil {
		return err
	}
	if err := s.ctrl.SetSensitivity(v); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "sensitivity": v})
}

func (s *Server) handleGain(c *fiber.Ctx) error {
	v, err := intParam(c, "val")
	if err != nil {
		return err
	}
	if err := s.ctrl.SetGain(v); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "gain": v, "muted": v == 0})
}

func (s *Server) handleExpression(c *fiber.Ctx) error {
	name := c.Params("expression")
	if err := s.ctrl.SetEyes(name); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "expression": name})
}

func (s *Server) handleSpecial(c *fiber.Ctx) error {
	name := c.Params("type")
	if err := s.ctrl.TriggerSpecial(name); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true, "special": name})
}

// handlePatterns lists the dance catalog.
func (s *Server) handlePatterns(c *fiber.Ctx) error {
	if s.catalog == nil {
		return c.JSON([]any{})
	}
	return c.JSON(s.catalog.Patterns())
}

// handleSessions lists recent dance sessions from the journal.
func (s *Server) handleSessions(c *fiber.Ctx) error {
	if s.sessions == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "session journal disabled")
	}
	limit := c.QueryInt("limit", defaultSessionLimit)
	if limit < 1 || limit > maxSessionLimit {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxSessionLimit))
	}
	sessions, err := s.sessions.Sessions(c.UserContext(), limit)
	if err != nil {
		return err
	}
	if sessions == nil {
		return c.JSON([]any{})
	}
	return c.JSON(sessions)
}

func intParam(c *fiber.Ctx, name string) (int, error) {
	v, err := strconv.Atoi(c.Params(name))
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, name+" must be an integer")
	}
	return v, nil
}

// handleError maps domain errors to status codes and renders
// {"error": "..."}.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, status.ErrOutOfRange),
		errors.Is(err, motion.ErrUnknownDirection),
		errors.Is(err, coordinator.ErrUnsupportedDirection),
		errors.Is(err, eyes.ErrUnknownExpression),
		errors.Is(err, eyes.ErrUnknownSpecial):
		code = fiber.StatusBadRequest
	case errors.Is(err, motion.ErrFaulted):
		code = fiber.StatusConflict
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
