// Package control exposes the HTTP surface the out-of-scope web UI talks
// to for setting addresses and sending start/stop signals (spec §1's
// "web UI that sets addresses and start/stop signals" external
// collaborator). Grounded on internal/signal/server.go's fiber.App
// construction and route/shutdown idiom.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/health"
)

// Tracker is the subset of runner.Runner the control surface drives.
type Tracker interface {
	Start(ctx context.Context, addresses []string) error
	Stop(ctx context.Context) error
	Running() bool
}

// Server is the fiber-based control surface (spec.md §9.1 expansion,
// SPEC_FULL.md §6: POST /addresses, POST /start, POST /stop,
// GET /running, GET /addresses, GET /health).
type Server struct {
	app     *fiber.App
	tracker Tracker
	checker *health.Checker
	host    string
	port    int

	mu        sync.Mutex
	addresses []string
}

// New builds the control server. checker may be nil to omit a real
// health probe (GET /health then reports healthy unconditionally).
func New(host string, port int, tracker Tracker, checker *health.Checker) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	s := &Server{app: app, tracker: tracker, checker: checker, host: host, port: port}
	s.setupRoutes()
	return s
}

type addressesRequest struct {
	Addresses []string `json:"addresses"`
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Get("/running", s.handleRunning)
	s.app.Get("/addresses", s.handleGetAddresses)
	s.app.Post("/addresses", s.handleSetAddresses)
	s.app.Post("/start", s.handleStart)
	s.app.Post("/stop", s.handleStop)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	healthy := true
	var statuses []health.Status
	if s.checker != nil {
		healthy = s.checker.Healthy()
		statuses = s.checker.GetStatuses()
	}
	code := fiber.StatusOK
	if !healthy {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{"healthy": healthy, "components": statuses})
}

func (s *Server) handleRunning(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"running": s.tracker.Running()})
}

func (s *Server) handleGetAddresses(c *fiber.Ctx) error {
	s.mu.Lock()
	addrs := append([]string(nil), s.addresses...)
	s.mu.Unlock()
	return c.JSON(fiber.Map{"addresses": addrs})
}

func (s *Server) handleSetAddresses(c *fiber.Ctx) error {
	var req addressesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
	}

	s.mu.Lock()
	s.addresses = req.Addresses
	s.mu.Unlock()

	return c.JSON(fiber.Map{"status": "ok", "count": len(req.Addresses)})
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	s.mu.Lock()
	addrs := append([]string(nil), s.addresses...)
	s.mu.Unlock()

	// Start's run-loop goroutine outlives this request; it must not
	// inherit fiber's request-scoped context, which is cancelled once
	// this handler returns (that would kill the subscription on the
	// spot and leave handleRunning reporting false for a tracker that
	// was told to start).
	if err := s.tracker.Start(context.Background(), addrs); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "started"})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.tracker.Stop(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "stopped"})
}

// Start listens on host:port. Blocks until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	log.Info().Str("addr", addr).Msg("control surface listening")
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
