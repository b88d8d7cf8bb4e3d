package tools

import (
	"context"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/siem"
)

// registerDiagnosticTools registers the health and diagnostics family.
func (e *Executor) registerDiagnosticTools() {
	e.register(RegisteredTool{
		Definition: Tool{
			Name: "diagnose_data_availability",
			Description: `Probe the SIEM for data-availability problems.

Checks index-pattern matches, mapping timestamp fields, document counts over
probe windows (1h to 168h), and sample queries across common patterns, and
returns a severity-ranked report with concrete recommendations.`,
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"check_indices":     {Type: "boolean", Description: "List indices and match them against the configured patterns", Default: true},
					"check_mappings":    {Type: "boolean", Description: "Inspect the first matched index's mapping for timestamp fields", Default: true},
					"check_recent_data": {Type: "boolean", Description: "Count documents over the probe windows", Default: true},
					"sample_query":      {Type: "boolean", Description: "Try sample queries across common index patterns", Default: true},
				},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			report, err := exec.engine.DiagnoseDataAvailability(ctx, siem.DiagnosticsParams{
				CheckIndices:    argBool(args, "check_indices", true),
				CheckMappings:   argBool(args, "check_mappings", true),
				CheckRecentData: argBool(args, "check_recent_data", true),
				SampleQuery:     argBool(args, "sample_query", true),
			})
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(report), nil
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name: "health_check",
			Description: "Check all server dependencies concurrently (SIEM, threat-intelligence API and " +
				"sources, LaTeX, cache database) and report per-service health with an overall ratio.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]PropertySchema{},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			if exec.checker == nil {
				return CallToolResult{}, dserrors.Invalidf("tools.health_check", "health checker is not configured")
			}
			return NewJSONResult(exec.checker.Run(ctx)), nil
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name:        "get_cache_stats",
			Description: "Report threat-intelligence cache statistics: tier sizes, TTLs, valid/expired row counts, and database size.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]PropertySchema{},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			if exec.orchestrator == nil {
				return CallToolResult{}, dserrors.Invalidf("tools.cache_stats", "caching is not enabled")
			}
			stats := exec.orchestrator.CacheStats()
			if stats == nil {
				return CallToolResult{}, dserrors.Invalidf("tools.cache_stats", "caching is not enabled")
			}
			return NewJSONResult(stats), nil
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name:        "clear_cache",
			Description: "Drop the in-memory threat-intelligence cache tier. The persistent tier is unaffected.",
			InputSchema: InputSchema{
				Type:       "object",
				Properties: map[string]PropertySchema{},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			if exec.orchestrator == nil {
				return CallToolResult{}, dserrors.Invalidf("tools.clear_cache", "caching is not enabled")
			}
			exec.orchestrator.ClearMemoryCache()
			return NewJSONResult(map[string]string{"status": "memory cache cleared"}), nil
		},
	})
}
