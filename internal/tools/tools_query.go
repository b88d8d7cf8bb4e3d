package tools

import (
	"context"

	"github.com/dshield-mcp/dshield-mcp/internal/models"
	"github.com/dshield-mcp/dshield-mcp/internal/siem"
)

// registerQueryTools registers the event-query family.
func (e *Executor) registerQueryTools() {
	timeRangeProp := PropertySchema{
		Type:        "number",
		Description: "Trailing window in hours (default: 24)",
		Default:     24,
	}
	filterProp := PropertySchema{
		Type: "object",
		Description: "Field filters. Friendly aliases (source_ip, country, ...) are accepted. " +
			"Values: scalar for exact match, array for any-of, object with eq/in/gte/lte for ranges.",
	}
	fieldsProp := PropertySchema{
		Type:        "array",
		Description: "Restrict returned fields to this projection",
		Items:       &PropertySchema{Type: "string"},
	}

	e.register(RegisteredTool{
		Definition: Tool{
			Name: "query_dshield_events",
			Description: `Query honeypot security events with filtering, field projection, and pagination.

Supports page-based pagination (page/page_size) and cursor streaming (cursor).
With optimization="auto" the result size is estimated and the query degrades
through field reduction, page shrinking, and the configured fallback strategy
when the estimate exceeds max_result_size_mb.`,
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"time_range_hours": timeRangeProp,
					"indices":          {Type: "array", Description: "Index patterns to search (default: configured patterns)", Items: &PropertySchema{Type: "string"}},
					"filters":          filterProp,
					"fields":           fieldsProp,
					"page":             {Type: "integer", Description: "Page number, 1-based", Default: 1},
					"page_size":        {Type: "integer", Description: "Events per page (default: configured)"},
					"cursor":           {Type: "string", Description: "Opaque cursor from a previous response; overrides page"},
					"sort_by":          {Type: "string", Description: "Sort field (default: @timestamp)"},
					"sort_order":       {Type: "string", Description: "Sort direction", Enum: []string{"asc", "desc"}},
					"optimization":     {Type: "string", Description: "Result-size optimization mode", Enum: []string{"auto", "none"}},
					"fallback_strategy": {
						Type:        "string",
						Description: "Behavior when optimization cannot fit the budget",
						Enum:        []string{"aggregate", "sample", "none"},
					},
					"max_result_size_mb": {Type: "number", Description: "Response size budget in MiB"},
				},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			return exec.executeQueryEvents(ctx, args, false)
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name: "query_dshield_attacks",
			Description: "Query attack events: like query_dshield_events but restricted to documents " +
				"that carry both a source and a destination IP.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"time_range_hours": timeRangeProp,
					"filters":          filterProp,
					"fields":           fieldsProp,
					"page":             {Type: "integer", Description: "Page number, 1-based", Default: 1},
					"page_size":        {Type: "integer", Description: "Events per page (default: configured)"},
					"cursor":           {Type: "string", Description: "Opaque cursor from a previous response"},
				},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			return exec.executeQueryEvents(ctx, args, true)
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name: "query_dshield_reputation",
			Description: "Query events involving specific IP addresses: matches documents where any " +
				"given IP is the source, with destination matches surfaced first.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"ip_addresses":     {Type: "array", Description: "IP addresses to look up", Items: &PropertySchema{Type: "string"}},
					"time_range_hours": timeRangeProp,
					"page_size":        {Type: "integer", Description: "Events per page (default: configured)"},
				},
				Required: []string{"ip_addresses"},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			ips, err := argStrings(args, "ip_addresses")
			if err != nil {
				return CallToolResult{}, err
			}
			pageSize, err := argIntPtr(args, "page_size")
			if err != nil {
				return CallToolResult{}, err
			}
			result, err := exec.engine.QueryIPEvents(ctx, ips, argFloat(args, "time_range_hours", 24), pageSize)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(result), nil
		},
	})
}

func (e *Executor) executeQueryEvents(ctx context.Context, args map[string]any, requireEndpoints bool) (CallToolResult, error) {
	filters, err := argFilters(args)
	if err != nil {
		return CallToolResult{}, err
	}
	fields, err := argStrings(args, "fields")
	if err != nil {
		return CallToolResult{}, err
	}
	indices, err := argStrings(args, "indices")
	if err != nil {
		return CallToolResult{}, err
	}
	page, err := argInt(args, "page", 0)
	if err != nil {
		return CallToolResult{}, err
	}
	pageSize, err := argIntPtr(args, "page_size")
	if err != nil {
		return CallToolResult{}, err
	}

	p := siem.EventsParams{
		TimeRangeHours:   argFloat(args, "time_range_hours", 0),
		Indices:          indices,
		Filters:          toFilters(filters),
		Fields:           fields,
		Page:             page,
		PageSize:         pageSize,
		Cursor:           argString(args, "cursor", ""),
		MaxResultSizeMB:  argFloat(args, "max_result_size_mb", 0),
		Fallback:         siem.FallbackStrategy(argString(args, "fallback_strategy", "")),
		Optimization:     argString(args, "optimization", ""),
		RequireEndpoints: requireEndpoints,
	}
	if sortBy := argString(args, "sort_by", ""); sortBy != "" {
		p.Sort = []models.SortField{{Field: sortBy, Order: argString(args, "sort_order", "desc")}}
	}

	result, err := e.engine.QueryEvents(ctx, p)
	if err != nil {
		return CallToolResult{}, err
	}
	return NewJSONResult(result), nil
}

// toFilters converts tool filter arguments into engine filters. The value
// shape (scalar, list, eq/in/gte/lte object) is interpreted downstream.
func toFilters(args []filterArg) []models.Filter {
	if len(args) == 0 {
		return nil
	}
	out := make([]models.Filter, len(args))
	for i, a := range args {
		out[i] = models.Filter{Field: a.Field, Op: models.OpEq, Value: a.Value}
	}
	return out
}
