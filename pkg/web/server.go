// Package web serves the voxbridge dashboard: session control, the
// live transcript, and the spectrum visualization, over REST and
// websocket fan-out.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/voxbridge/voxbridge/pkg/hub"
	"github.com/voxbridge/voxbridge/pkg/transcript"
)

// spectrumInterval is the visualization frame period (20fps).
const spectrumInterval = 50 * time.Millisecond

// spectrumBars is the number of bars pushed to dashboard clients.
const spectrumBars = 32

// Controller is the session surface the dashboard drives.
type Controller interface {
	// StartSession begins a translation session.
	StartSession(ctx context.Context) error

	// StopSession ends the session. Idempotent.
	StopSession() error

	// State returns the connection state as a string.
	State() string

	// Transcript returns the conversation history.
	Transcript() []transcript.Entry

	// Spectrum returns the current visualization bars.
	Spectrum(bars int) []float64
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	addr   string
	ctrl   Controller
	logger *slog.Logger

	stateHub      *hub.Hub
	transcriptHub *hub.Hub
	spectrumHub   *hub.Hub

	stopSpectrum chan struct{}
}

// NewServer creates the dashboard server on addr.
func NewServer(addr string, ctrl Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:          addr,
		ctrl:          ctrl,
		logger:        logger,
		stateHub:      hub.New("state", logger),
		transcriptHub: hub.New("transcript", logger),
		spectrumHub:   hub.New("spectrum", logger),
		stopSpectrum:  make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voxbridge dashboard",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Post("/start", s.handleStart)
	api.Post("/stop", s.handleStop)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/spectrum", s.handleSpectrum)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.wsHandler(s.stateHub)))
	app.Get("/ws/transcript", websocket.New(s.wsHandler(s.transcriptHub)))
	app.Get("/ws/spectrum", websocket.New(s.wsHandler(s.spectrumHub)))

	s.app = app
	return s
}

// Start runs the hubs and listens on the configured address. Blocks.
func (s *Server) Start() error {
	go s.stateHub.Run()
	go s.transcriptHub.Run()
	go s.spectrumHub.Run()
	go s.spectrumLoop()

	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync runs Start in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server failed", "error", err)
		}
	}()
}

// spectrumLoop pushes visualization frames while anyone is watching.
func (s *Server) spectrumLoop() {
	ticker := time.NewTicker(spectrumInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSpectrum:
			return
		case <-ticker.C:
			if s.spectrumHub.ClientCount() == 0 {
				continue
			}
			_ = s.spectrumHub.BroadcastJSON(fiber.Map{
				"bars": s.ctrl.Spectrum(spectrumBars),
			})
		}
	}
}

// BroadcastState pushes a state change to dashboard clients.
func (s *Server) BroadcastState(state string) {
	_ = s.stateHub.BroadcastJSON(fiber.Map{"state": state})
}

// BroadcastTranscript pushes a transcript update to dashboard clients.
func (s *Server) BroadcastTranscript(e transcript.Entry) {
	_ = s.transcriptHub.BroadcastJSON(e)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	close(s.stopSpectrum)
	return s.app.Shutdown()
}
