package tools

import (
	"context"

	"github.com/dshield-mcp/dshield-mcp/internal/siem"
)

// registerStreamTools registers session-aware streaming.
func (e *Executor) registerStreamTools() {
	e.register(RegisteredTool{
		Definition: Tool{
			Name: "stream_dshield_events_with_sessions",
			Description: `Stream events in session-coherent chunks.

Events sharing the session fields (default: source.ip, destination.ip,
user.name, session.id) are kept together: a chunk only ever contains whole
sessions, and a single session larger than chunk_size is emitted alone.
Pass next_cursor from one response as cursor in the next call to continue.`,
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"time_range_hours": {Type: "number", Description: "Trailing window in hours (default: 24)", Default: 24},
					"filters": {
						Type:        "object",
						Description: "Field filters, same semantics as query_dshield_events",
					},
					"fields":     {Type: "array", Description: "Restrict returned fields to this projection", Items: &PropertySchema{Type: "string"}},
					"chunk_size": {Type: "integer", Description: "Target events per chunk (default: 100)", Default: 100},
					"cursor":     {Type: "string", Description: "Opaque cursor from a previous response"},
					"session_fields": {
						Type:        "array",
						Description: "Fields forming the session grouping key",
						Items:       &PropertySchema{Type: "string"},
					},
					"max_session_gap_minutes": {
						Type:        "number",
						Description: "Idle gap after which activity counts as a new session (default: 30)",
						Default:     30,
					},
				},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			filters, err := argFilters(args)
			if err != nil {
				return CallToolResult{}, err
			}
			fields, err := argStrings(args, "fields")
			if err != nil {
				return CallToolResult{}, err
			}
			sessionFields, err := argStrings(args, "session_fields")
			if err != nil {
				return CallToolResult{}, err
			}
			chunkSize, err := argInt(args, "chunk_size", 100)
			if err != nil {
				return CallToolResult{}, err
			}

			result, err := exec.engine.StreamEvents(ctx, siem.StreamParams{
				TimeRangeHours:       argFloat(args, "time_range_hours", 0),
				Filters:              toFilters(filters),
				Fields:               fields,
				ChunkSize:            chunkSize,
				Cursor:               argString(args, "cursor", ""),
				SessionFields:        sessionFields,
				MaxSessionGapMinutes: argFloat(args, "max_session_gap_minutes", 30),
			})
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(result), nil
		},
	})
}
