// Package control exposes an HTTP API for observing and steering a running
// purge: run status, state transitions, health checks and Prometheus metrics.
package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/chatpurge/internal/requestid"
)

// ServerConfig holds configuration for the control API server.
type ServerConfig struct {
	ListenAddr string
	AuthConfig AuthConfig
	// RateLimit is the number of requests per minute per client; 0 disables it.
	RateLimit int
}

// Server is the control API Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures a new control API server. metricsHandler
// may be nil.
func NewServer(cfg ServerConfig, handlers *Handlers, metricsHandler http.Handler, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "control_server").Logger(),
		config: cfg,
	}

	s.setupMiddleware(cfg)
	s.setupRoutes(handlers, metricsHandler)
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(func(c *fiber.Ctx) error {
		reqID := requestid.Resolve(c.Get(requestid.Header))
		c.Set(requestid.Header, reqID)
		c.SetUserContext(requestid.WithRequestID(c.UserContext(), reqID))
		return c.Next()
	})

	if cfg.RateLimit > 0 {
		s.app.Use(limiter.New(limiter.Config{
			Next:       func(c *fiber.Ctx) bool { return isHealthPath(c.Path()) },
			Max:        cfg.RateLimit,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return problemResponse(c, fiber.StatusTooManyRequests,
					"rate_limited", "Too Many Requests",
					"Control API rate limit exceeded")
			},
		}))
	}

	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, s.logger))

	// Audit every control request except health and metrics endpoints.
	s.app.Use(func(c *fiber.Ctx) error {
		if isHealthPath(c.Path()) {
			return c.Next()
		}
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Str("request_id", requestid.FromContext(c.UserContext())).
			Msg("control api request")
		return c.Next()
	})
}

func (s *Server) setupRoutes(h *Handlers, metricsHandler http.Handler) {
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	if metricsHandler != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	v1 := s.app.Group("/api/v1")
	v1.Get("/status", h.Status)
	v1.Post("/pause", h.Pause)
	v1.Post("/resume", h.Resume)
	v1.Post("/toggle", h.Toggle)
	v1.Post("/stop", h.Stop)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:8090"
	}

	s.logger.Info().Str("addr", addr).Msg("control API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("control API server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return problemResponse(c, code, "request_failed", http.StatusText(code), detail)
	}
}
