// Package server hosts the bridge HTTP surface: the /rpc method
// endpoint, the /health liveness probe and the /ws/jobs job stream.
package server

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/harnessgg/blenderbridge/internal/bridge"
	"github.com/harnessgg/blenderbridge/internal/jobs"
	"github.com/harnessgg/blenderbridge/internal/middleware"
	"github.com/harnessgg/blenderbridge/internal/queue"
	ws "github.com/harnessgg/blenderbridge/internal/websocket"
	"github.com/harnessgg/blenderbridge/pkg/protocol"
)

type Server struct {
	app      *fiber.App
	bridge   *bridge.Bridge
	tracker  *jobs.Tracker
	jobStore *queue.JobStore
	hub      *ws.Hub
	validate *validator.Validate
}

// New builds the fiber app and wires the job stream to tracker changes.
// jobStore may be nil when no queue is configured.
func New(b *bridge.Bridge, tracker *jobs.Tracker, jobStore *queue.JobStore, hub *ws.Hub, auth *middleware.AuthMiddleware, logRequests bool) *Server {
	s := &Server{
		bridge:   b,
		tracker:  tracker,
		jobStore: jobStore,
		hub:      hub,
		validate: validator.New(),
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler,
		BodyLimit:             10 * 1024 * 1024, // run_python payloads can be large
		DisableStartupMessage: true,
	})

	// Global middleware
	app.Use(recover.New())
	if logRequests {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health and the job stream stay open even when auth is on: health
	// feeds liveness probes and stream tokens would outlive long renders.
	app.Get("/health", s.handleHealth)
	app.Post("/rpc", auth.Authenticate(), s.handleRPC)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(s.handleJobStream))

	app.Use(s.handleNotFound)

	tracker.OnChange(hub.BroadcastJob)

	s.app = app
	return s
}

// App exposes the fiber application for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":              true,
		"protocolVersion": protocol.ProtocolVersion,
		"status":          "ok",
	})
}

func (s *Server) handleRPC(c *fiber.Ctx) error {
	var req protocol.Request
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, protocol.CodeInvalidInput, "Request body must be a JSON object")
	}
	if err := s.validate.Struct(&req); err != nil {
		return sendError(c, fiber.StatusBadRequest, protocol.CodeInvalidInput, "Missing required parameter: 'method'")
	}

	result, err := s.bridge.Dispatch(c.UserContext(), req.Method, req.Params)
	if err != nil {
		if perr, ok := protocol.AsError(err); ok {
			return sendError(c, fiber.StatusBadRequest, perr.Code, perr.Message)
		}
		return sendError(c, fiber.StatusInternalServerError, protocol.CodeError, err.Error())
	}

	return c.JSON(fiber.Map{
		"ok":              true,
		"protocolVersion": protocol.ProtocolVersion,
		"id":              req.ID,
		"result":          result,
	})
}

func (s *Server) handleJobStream(c *websocket.Conn) {
	jobID := c.Params("jobId")
	var initial []byte
	if job, err := s.lookupJob(jobID); err == nil {
		initial = ws.StatusMessage(job)
	}
	s.hub.HandleConnection(c, jobID, initial)
}

// lookupJob prefers the in-process tracker, then falls back to the
// shared store for jobs queued to a worker.
func (s *Server) lookupJob(id string) (jobs.Job, error) {
	job, err := s.tracker.Get(id)
	if err == nil {
		return job, nil
	}
	if s.jobStore != nil {
		return s.jobStore.Get(context.Background(), id)
	}
	return jobs.Job{}, err
}

func (s *Server) handleNotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"ok":    false,
		"error": fiber.Map{"code": protocol.CodeNotFound, "message": "Route not found"},
	})
}

func sendError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"ok":              false,
		"protocolVersion": protocol.ProtocolVersion,
		"error":           fiber.Map{"code": code, "message": message},
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"ok":              false,
		"protocolVersion": protocol.ProtocolVersion,
		"error":           fiber.Map{"code": protocol.CodeError, "message": message},
	})
}
