package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-eyecommander/pkg/gaze"
	"github.com/teslashibe/go-eyecommander/pkg/hub"
	"github.com/teslashibe/go-eyecommander/pkg/protocol"
	"github.com/teslashibe/go-eyecommander/pkg/trigger"
)

// handleStatus returns the current controller state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.Status())
}

// handleLabels returns the gaze labels in model output order
func (s *Server) handleLabels(c *fiber.Ctx) error {
	return c.JSON(gaze.Labels())
}

// handleEvent injects a confirm or cancel event
func (s *Server) handleEvent(c *fiber.Ctx) error {
	ev, err := trigger.Parse(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	switch err := s.inject(ev); err {
	case errNoEvents:
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	case errQueueFull:
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	s.log.Info("remote event", "event", ev.String(), "ip", c.IP())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"event": ev.String(),
	})
}

// handleGetCamera returns the camera configuration
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No camera attached",
		})
	}
	return c.JSON(s.camera.GetConfigJSON())
}

// handleUpdateCamera applies a partial camera configuration
func (s *Server) handleUpdateCamera(c *fiber.Ctx) error {
	if s.camera == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No camera attached",
		})
	}

	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err := s.camera.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(s.camera.GetConfigJSON())
}

// handleFrame returns the latest rendered frame
func (s *Server) handleFrame(c *fiber.Ctx) error {
	if s.OnCaptureFrame == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Frame capture not configured",
		})
	}
	data, err := s.OnCaptureFrame()
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(data)
}

// handleStatusWS streams status updates, starting with the current one
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	if client == nil {
		return
	}
	if msg, err := protocol.NewStatusMessage(s.Status()); err == nil {
		c.WriteJSON(msg)
	}
	client.OnMessage = s.handleClientMessage
	client.Run()
}

// handleGazeWS streams decisions
func (s *Server) handleGazeWS(c *websocket.Conn) {
	client := hub.NewClient(s.gazeHub, c)
	if client == nil {
		return
	}
	client.OnMessage = s.handleClientMessage
	client.Run()
}

// handleFrameWS streams rendered frames as binary JPEG messages
func (s *Server) handleFrameWS(c *websocket.Conn) {
	client := hub.NewClient(s.frameHub, c)
	if client == nil {
		return
	}
	client.OnMessage = s.handleClientMessage
	client.Run()
}

// handleClientMessage accepts event messages from websocket clients
func (s *Server) handleClientMessage(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.log.Debug("ignoring websocket message", "error", err)
		return
	}
	ev, err := msg.Event()
	if err != nil {
		s.log.Debug("ignoring websocket message", "type", msg.Type, "error", err)
		return
	}
	if err := s.inject(ev); err != nil {
		s.log.Warn("websocket event dropped", "event", ev.String(), "error", err)
		return
	}
	s.log.Info("remote event", "event", ev.String(), "source", "websocket")
}

var (
	errNoEvents  = errors.New("event input not configured")
	errQueueFull = errors.New("event queue full")
)

func (s *Server) inject(ev trigger.Event) error {
	if s.OnEvent == nil {
		return errNoEvents
	}
	if !s.OnEvent(ev) {
		return errQueueFull
	}
	return nil
}
