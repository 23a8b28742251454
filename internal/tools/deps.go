// Package tools exposes clustering runs and the cache as MCP tools.
package tools

import (
	"log/slog"

	"github.com/raphaelgruber/serpcluster/internal/cache"
	"github.com/raphaelgruber/serpcluster/internal/service"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Runs     *service.RunManager
	Pipeline *service.Pipeline
	Store    cache.Store
	Defaults service.PipelineOptions
	Logger   *slog.Logger
}
