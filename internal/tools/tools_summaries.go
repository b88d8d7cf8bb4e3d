package tools

import (
	"context"
)

// registerSummaryTools registers the aggregation-summary family.
func (e *Executor) registerSummaryTools() {
	hoursProp := PropertySchema{
		Type:        "number",
		Description: "Trailing window in hours (default: 24)",
		Default:     24,
	}
	limitProp := PropertySchema{
		Type:        "integer",
		Description: "Number of buckets to return, 1-100 (default: 10)",
		Default:     10,
	}

	e.register(RegisteredTool{
		Definition: Tool{
			Name:        "get_dshield_top_attackers",
			Description: "Rank the most active attacking source IPs over a time window.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"time_range_hours": hoursProp,
					"limit":            limitProp,
				},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			limit, err := argInt(args, "limit", 10)
			if err != nil {
				return CallToolResult{}, err
			}
			result, err := exec.engine.TopAttackers(ctx, argFloat(args, "time_range_hours", 24), limit)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(result), nil
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name:        "get_dshield_geographic_summary",
			Description: "Summarize attack volume by source country over a time window.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"time_range_hours": hoursProp,
					"limit":            limitProp,
				},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			limit, err := argInt(args, "limit", 10)
			if err != nil {
				return CallToolResult{}, err
			}
			result, err := exec.engine.GeographicSummary(ctx, argFloat(args, "time_range_hours", 24), limit)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(result), nil
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name:        "get_dshield_port_summary",
			Description: "Summarize attack volume by targeted destination port over a time window.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"time_range_hours": hoursProp,
					"limit":            limitProp,
				},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			limit, err := argInt(args, "limit", 10)
			if err != nil {
				return CallToolResult{}, err
			}
			result, err := exec.engine.PortSummary(ctx, argFloat(args, "time_range_hours", 24), limit)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(result), nil
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name:        "get_dshield_statistics",
			Description: "Report total event volume with severity and category distributions over a time window.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"time_range_hours": hoursProp,
				},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			result, err := exec.engine.Statistics(ctx, argFloat(args, "time_range_hours", 24))
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(result), nil
		},
	})
}
