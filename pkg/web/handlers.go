package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/voxbridge/voxbridge/pkg/hub"
	"github.com/voxbridge/voxbridge/pkg/transcript"
)

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"state": s.ctrl.State(),
	})
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.ctrl.StartSession(c.Context()); err != nil {
		s.logger.Warn("start session failed", "error", err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.BroadcastState(s.ctrl.State())
	return c.JSON(fiber.Map{"state": s.ctrl.State()})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.ctrl.StopSession(); err != nil {
		s.logger.Warn("stop session failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	s.BroadcastState(s.ctrl.State())
	return c.JSON(fiber.Map{"state": s.ctrl.State()})
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	entries := s.ctrl.Transcript()
	if entries == nil {
		entries = []transcript.Entry{}
	}
	return c.JSON(fiber.Map{
		"entries": entries,
	})
}

func (s *Server) handleSpectrum(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"bars": s.ctrl.Spectrum(spectrumBars),
	})
}

// wsHandler attaches a websocket connection to a hub.
func (s *Server) wsHandler(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client := hub.NewClient(h, conn)
		client.Run()
	}
}
