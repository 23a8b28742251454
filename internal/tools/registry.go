package tools

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAll registers all tools with the MCP server.
func RegisterAll(server *mcp.Server, deps *Dependencies) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cluster_keywords",
		Description: "Cluster keywords by shared top search results, using cached data only. Keywords without cached results are listed as missing.",
	}, NewClusterHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_run",
		Description: "Start a background run that fetches search results and metrics, then clusters the keywords. Returns a run ID for get_run.",
	}, NewStartRunHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_run",
		Description: "Get the status of a run, including its clusters once completed",
	}, NewGetRunHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_runs",
		Description: "List runs started in this session, newest first",
	}, NewListRunsHandler(deps))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cache_lookup",
		Description: "Show the cached search results or metrics for one keyword",
	}, NewCacheLookupHandler(deps))
}
