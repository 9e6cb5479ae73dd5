// Package web serves the gaze controller's HTTP API: status, remote
// calibration events and websocket streams of decisions and frames.
package web

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-eyecommander/pkg/calibration"
	"github.com/teslashibe/go-eyecommander/pkg/camera"
	"github.com/teslashibe/go-eyecommander/pkg/gaze"
	"github.com/teslashibe/go-eyecommander/pkg/hub"
	"github.com/teslashibe/go-eyecommander/pkg/protocol"
	"github.com/teslashibe/go-eyecommander/pkg/trigger"
)

// Phase is what the controller is doing.
type Phase string

const (
	PhaseStarting    Phase = "starting"
	PhaseCalibrating Phase = "calibrating"
	PhaseLive        Phase = "live"
	PhaseStopped     Phase = "stopped"
)

// Status is the controller state exposed on /api/status and /ws/status.
type Status struct {
	Phase           Phase               `json:"phase"`
	Model           gaze.Role           `json:"model"`
	CalibrationDone bool                `json:"calibration_done"`
	Calibration     *calibration.Status `json:"calibration,omitempty"`
	Decision        *gaze.Decision      `json:"decision,omitempty"`
	WindowFill      int                 `json:"window_fill"`
	WindowSize      int                 `json:"window_size"`
	Clients         Clients             `json:"clients"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// Clients counts websocket subscribers per stream.
type Clients struct {
	Status int `json:"status"`
	Gaze   int `json:"gaze"`
	Frame  int `json:"frame"`
}

// Server is the HTTP API server
type Server struct {
	app  *fiber.App
	port string
	log  *slog.Logger

	status   Status
	statusMu sync.RWMutex

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	gazeHub   *hub.Hub
	frameHub  *hub.Hub

	// Camera settings, nil when no camera is attached
	camera *camera.Manager

	// Event callback for POST /api/events/:name and websocket event messages
	OnEvent func(trigger.Event) bool

	// Frame capture callback for GET /api/frame.jpg
	OnCaptureFrame func() ([]byte, error)
}

// NewServer creates a new API server. cam may be nil.
func NewServer(port string, cam *camera.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:      port,
		log:       logger,
		status:    Status{Phase: PhaseStarting, UpdatedAt: time.Now()},
		statusHub: hub.New("status", logger),
		gazeHub:   hub.New("gaze", logger),
		frameHub:  hub.New("frame", logger),
		camera:    cam,
	}

	app := fiber.New(fiber.Config{
		AppName:               "EyeCommander",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/labels", s.handleLabels)
	api.Post("/events/:name", s.handleEvent)
	api.Get("/camera", s.handleGetCamera)
	api.Patch("/camera", s.handleUpdateCamera)
	api.Get("/frame.jpg", s.handleFrame)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/gaze", websocket.New(s.handleGazeWS))
	app.Get("/ws/frame", websocket.New(s.handleFrameWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start starts the hubs and blocks serving HTTP.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve starts the hubs and blocks serving HTTP on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("web api listening", "addr", ln.Addr().String())

	go s.statusHub.Run()
	go s.gazeHub.Run()
	go s.frameHub.Run()

	return s.app.Listener(ln)
}

// StartAsync starts the web server in a goroutine
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.log.Error("web server error", "error", err)
		}
	}()
}

// UpdateStatus updates the status and broadcasts it to clients
func (s *Server) UpdateStatus(update func(*Status)) {
	s.statusMu.Lock()
	update(&s.status)
	s.status.UpdatedAt = time.Now()
	s.statusMu.Unlock()

	msg, err := protocol.NewStatusMessage(s.Status())
	if err == nil {
		err = s.broadcast(s.statusHub, msg)
	}
	if err != nil {
		s.log.Warn("status broadcast failed", "error", err)
	}
}

// Status returns a copy of the current status with live client counts.
func (s *Server) Status() Status {
	s.statusMu.RLock()
	status := s.status
	s.statusMu.RUnlock()
	status.Clients = Clients{
		Status: s.statusHub.ClientCount(),
		Gaze:   s.gazeHub.ClientCount(),
		Frame:  s.frameHub.ClientCount(),
	}
	return status
}

// Publish broadcasts a debounced decision on /ws/gaze.
func (s *Server) Publish(d gaze.Decision) error {
	msg, err := protocol.NewDecisionMessage(d)
	if err != nil {
		return err
	}
	return s.broadcast(s.gazeHub, msg)
}

// PublishFrame sends an encoded frame to /ws/frame subscribers.
func (s *Server) PublishFrame(jpeg []byte) {
	if s.frameHub.ClientCount() == 0 {
		return
	}
	s.frameHub.BroadcastFrame(jpeg)
}

// broadcast is a no-op until the hub runs, so updates made before Serve
// do not fill its queue.
func (s *Server) broadcast(h *hub.Hub, msg *protocol.Message) error {
	if !h.IsRunning() {
		return nil
	}
	return h.BroadcastJSON(msg)
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	s.statusHub.Stop()
	s.gazeHub.Stop()
	s.frameHub.Stop()
	return s.app.Shutdown()
}
