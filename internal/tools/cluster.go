package tools

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/serpcluster/internal/service"
)

// ClusterInput defines the input schema for cluster_keywords and start_run.
type ClusterInput struct {
	Keywords         []string `json:"keywords" jsonschema:"Keywords to cluster"`
	Algorithm        string   `json:"algorithm,omitempty" jsonschema:"default, strict or balanced_strict"`
	Strategy         string   `json:"strategy,omitempty" jsonschema:"How the primary keyword is chosen: volume or cpc"`
	MinIntersections int      `json:"min_intersections,omitempty" jsonschema:"Shared URLs needed to link two keywords"`
	URLsToCheck      int      `json:"urls_to_check,omitempty" jsonschema:"Top URLs compared per keyword"`
	LocationCode     int      `json:"location_code,omitempty" jsonschema:"Search location code, e.g. 2840 for the United States"`
	LanguageCode     string   `json:"language_code,omitempty" jsonschema:"Search language code, e.g. en"`
	Device           string   `json:"device,omitempty" jsonschema:"desktop or mobile"`
	CachePolicy      string   `json:"cache_policy,omitempty" jsonschema:"use-forever, always-fetch or fresh-within:<days>"`
	SkipMetrics      bool     `json:"skip_metrics,omitempty" jsonschema:"Do not attach search volume"`
}

func (in ClusterInput) request() service.RunRequest {
	return service.RunRequest{
		Keywords:         in.Keywords,
		LocationCode:     in.LocationCode,
		LanguageCode:     in.LanguageCode,
		Device:           in.Device,
		CachePolicy:      in.CachePolicy,
		Algorithm:        in.Algorithm,
		Strategy:         in.Strategy,
		MinIntersections: in.MinIntersections,
		URLsToCheck:      in.URLsToCheck,
		SkipMetrics:      in.SkipMetrics,
	}
}

// NewClusterHandler creates the cluster_keywords tool handler.
func NewClusterHandler(deps *Dependencies) mcp.ToolHandlerFor[ClusterInput, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ClusterInput) (*mcp.CallToolResult, any, error) {
		if len(input.Keywords) == 0 {
			return ErrorResult("At least one keyword is required", "Provide a keywords array"), nil, nil
		}

		opts, err := input.request().Options(deps.Defaults)
		if err != nil {
			return ErrorResult("Invalid options: "+err.Error(), ""), nil, nil
		}

		report, err := deps.Pipeline.ClusterCached(ctx, input.Keywords, opts)
		if errors.Is(err, service.ErrNoKeywords) {
			return ErrorResult("No usable keywords", "Keywords must contain non-whitespace text"), nil, nil
		}
		if err != nil {
			deps.Logger.Error("cluster_keywords failed", "error", err)
			return ErrorResult("Clustering failed: "+err.Error(), ""), nil, nil
		}

		deps.Logger.Debug("cluster_keywords", "keywords", len(input.Keywords), "missing", len(report.Missing))
		return JSONResult(report), nil, nil
	}
}
