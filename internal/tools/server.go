package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	maxArgLogLen         = 200
	slowRequestThreshold = 100 * time.Millisecond
)

// NewServer creates an MCP server with request logging and every tool registered.
func NewServer(version string, deps *Dependencies) *mcp.Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	server := mcp.NewServer(&mcp.Implementation{Name: "serpcluster", Version: version}, nil)
	server.AddReceivingMiddleware(LoggingMiddleware(deps.Logger))
	RegisterAll(server, deps)
	return server
}

// Serve runs server on stdio until the client disconnects or ctx ends.
func Serve(ctx context.Context, server *mcp.Server, logger *slog.Logger) error {
	logger.Info("starting MCP server", "transport", "stdio")
	return server.Run(ctx, &mcp.StdioTransport{})
}

// LoggingMiddleware logs every request with timing. Slow requests are logged
// at WARN level and arguments are truncated.
func LoggingMiddleware(logger *slog.Logger) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			attrs := []any{
				"method", method,
				"duration_ms", duration.Milliseconds(),
			}
			if params := req.GetParams(); params != nil {
				attrs = append(attrs, "params", truncate(fmt.Sprintf("%+v", params), maxArgLogLen))
			}

			switch {
			case err != nil:
				attrs = append(attrs, "error", err.Error())
				logger.Error("mcp request failed", attrs...)
			case duration > slowRequestThreshold:
				logger.Warn("slow mcp request", attrs...)
			default:
				logger.Debug("mcp request completed", attrs...)
			}
			return result, err
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
