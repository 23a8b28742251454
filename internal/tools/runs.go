package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/serpcluster/internal/service"
)

// GetRunInput defines the input schema for get_run.
type GetRunInput struct {
	ID string `json:"id" jsonschema:"Run ID returned by start_run"`
}

// NewStartRunHandler creates the start_run tool handler.
func NewStartRunHandler(deps *Dependencies) mcp.ToolHandlerFor[ClusterInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ClusterInput) (*mcp.CallToolResult, any, error) {
		opts, err := input.request().Options(deps.Defaults)
		if err != nil {
			return ErrorResult("Invalid options: "+err.Error(), ""), nil, nil
		}

		run, err := deps.Runs.Start(input.Keywords, opts)
		switch {
		case errors.Is(err, service.ErrNoFetcher):
			return ErrorResult("Remote fetching is not configured", "Use cluster_keywords for cached data, or set DATAFORSEO_LOGIN and DATAFORSEO_PASSWORD"), nil, nil
		case errors.Is(err, service.ErrNoKeywords):
			return ErrorResult("At least one keyword is required", "Provide a keywords array"), nil, nil
		case err != nil:
			return ErrorResult("Failed to start run: "+err.Error(), ""), nil, nil
		}

		return JSONResult(run.Snapshot()), nil, nil
	}
}

// NewGetRunHandler creates the get_run tool handler.
func NewGetRunHandler(deps *Dependencies) mcp.ToolHandlerFor[GetRunInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetRunInput) (*mcp.CallToolResult, any, error) {
		run, err := deps.Runs.Get(input.ID)
		if err != nil {
			return ErrorResult("Run not found: "+input.ID, "Use list_runs to see known runs"), nil, nil
		}
		return JSONResult(run.Snapshot()), nil, nil
	}
}

// ListRunsInput is empty; list_runs takes no arguments.
type ListRunsInput struct{}

// NewListRunsHandler creates the list_runs tool handler. Reports are left
// out; fetch them with get_run.
func NewListRunsHandler(deps *Dependencies) mcp.ToolHandlerFor[ListRunsInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListRunsInput) (*mcp.CallToolResult, any, error) {
		runs := deps.Runs.List()
		out := make([]service.RunSnapshot, 0, len(runs))
		for _, r := range runs {
			snap := r.Snapshot()
			snap.Report = nil
			out = append(out, snap)
		}
		return JSONResult(out), nil, nil
	}
}
