// Package server exposes pipeline runs and cache-only clustering over HTTP.
package server

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/raphaelgruber/serpcluster/internal/metrics"
	"github.com/raphaelgruber/serpcluster/internal/service"
)

// Deps are the services behind the API.
type Deps struct {
	Runs     *service.RunManager
	Pipeline *service.Pipeline
	Defaults service.PipelineOptions
	Metrics  *metrics.Collector
	Logger   *slog.Logger
	Version  string
}

// Server wraps the Fiber app and its dependencies.
type Server struct {
	App *fiber.App

	runs     *service.RunManager
	pipeline *service.Pipeline
	defaults service.PipelineOptions
	registry *prometheus.Registry
	logger   *slog.Logger
	version  string
}

// New creates a server with middleware and routes configured.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector()
	}

	app := fiber.New(fiber.Config{
		AppName: "serpcluster",
		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "internal server error"

			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
				message = e.Message
			}
			return jsonError(c, code, message)
		},
	})

	app.Use(recover.New())
	app.Use(RequestLogger(deps.Logger))

	s := &Server{
		App:      app,
		runs:     deps.Runs,
		pipeline: deps.Pipeline,
		defaults: deps.Defaults,
		registry: metrics.NewRegistry(deps.Metrics),
		logger:   deps.Logger,
		version:  deps.Version,
	}
	s.routes()
	return s
}

// Start listens on addr and blocks until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting HTTP server", "addr", addr, "version", s.version)
	return s.App.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}
