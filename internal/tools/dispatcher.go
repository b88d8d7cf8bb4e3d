package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/fieldmap"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "dshield-mcp"
)

// Dispatcher routes JSON-RPC requests to the executor. Both transports
// (stdio and TCP) feed decoded frames through Handle; the network-only
// authenticate method is intercepted by the TCP transport before dispatch.
type Dispatcher struct {
	executor *Executor
	version  string
}

// NewDispatcher wires the dispatcher to its executor.
func NewDispatcher(executor *Executor, version string) *Dispatcher {
	return &Dispatcher{executor: executor, version: version}
}

// Handle decodes one raw frame and returns the encoded response. Malformed
// frames yield a parse-error response rather than an error return so the
// transport always has bytes to write back.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encodeResponse(errorResponse(nil, ErrParse, "failed to parse JSON-RPC request"))
	}
	return encodeResponse(d.HandleRequest(ctx, req))
}

// HandleRequest dispatches one decoded request.
func (d *Dispatcher) HandleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return errorResponse(req.ID, ErrInvalidRequest, "invalid JSON-RPC version")
	}

	log.Debug().Str("method", req.Method).Interface("id", req.ID).Msg("Request received")

	result, rpcErr := d.dispatch(ctx, req)
	if rpcErr != nil {
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}
	body, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, ErrInternal, "failed to marshal result")
	}
	return Response{JSONRPC: "2.0", ID: req.ID, Result: body}
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (any, *Error) {
	switch req.Method {
	case "initialize":
		return d.handleInitialize(req.Params)
	case "initialized":
		// Client notification; nothing to answer.
		return nil, nil
	case "tools/list":
		return ListToolsResult{Tools: d.executor.ListTools()}, nil
	case "tools/call":
		return d.handleCallTool(ctx, req.Params)
	case "resources/list":
		return d.handleListResources(), nil
	case "resources/read":
		return d.handleReadResource(req.Params)
	case "prompts/list":
		return d.handleListPrompts(), nil
	case "prompts/get":
		return d.handleGetPrompt(req.Params)
	case "ping":
		return map[string]any{}, nil
	default:
		return nil, &Error{Code: ErrMethodNotFound, Message: fmt.Sprintf("method not found: %s", req.Method)}
	}
}

func (d *Dispatcher) handleInitialize(params json.RawMessage) (*InitializeResult, *Error) {
	var p InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &Error{Code: ErrInvalidParams, Message: "failed to parse initialize params"}
		}
	}
	log.Info().
		Str("client", p.ClientInfo.Name).
		Str("client_version", p.ClientInfo.Version).
		Str("protocol_version", p.ProtocolVersion).
		Msg("Client initialized")

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: Capabilities{
			Tools:     &ToolsCapability{},
			Resources: &ResourcesCapability{},
			Prompts:   &PromptsCapability{},
		},
		ServerInfo: ServerInfo{Name: ServerName, Version: d.version},
	}, nil
}

func (d *Dispatcher) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, *Error) {
	var p CallToolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: ErrInvalidParams, Message: "failed to parse tool call params"}
	}

	result, err := d.executor.ExecuteTool(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, &Error{Code: ErrorCode(err), Message: err.Error()}
	}
	return &result, nil
}

func (d *Dispatcher) handleListResources() ListResourcesResult {
	return ListResourcesResult{
		Resources: []Resource{
			{
				URI:         "dshield://schema/field-mappings",
				Name:        "Field Mappings",
				Description: "Friendly-alias to backend-field mapping table used by query tools",
				MimeType:    "application/json",
			},
			{
				URI:         "dshield://cache/stats",
				Name:        "Cache Statistics",
				Description: "Current threat-intelligence cache tier statistics",
				MimeType:    "application/json",
			},
		},
	}
}

func (d *Dispatcher) handleReadResource(params json.RawMessage) (*ReadResourceResult, *Error) {
	var p ReadResourceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: ErrInvalidParams, Message: "failed to parse resource read params"}
	}

	var body any
	switch p.URI {
	case "dshield://schema/field-mappings":
		body = fieldmap.Table()
	case "dshield://cache/stats":
		if d.executor.orchestrator == nil {
			body = map[string]any{}
		} else {
			body = d.executor.orchestrator.CacheStats()
		}
	default:
		return nil, &Error{Code: ErrInvalidParams, Message: fmt.Sprintf("unknown resource: %s", p.URI)}
	}

	text, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Code: ErrInternal, Message: "failed to marshal resource"}
	}
	return &ReadResourceResult{
		Contents: []ResourceContent{
			{URI: p.URI, MimeType: "application/json", Text: string(text)},
		},
	}, nil
}

func (d *Dispatcher) handleListPrompts() ListPromptsResult {
	return ListPromptsResult{
		Prompts: []Prompt{
			{
				Name:        "investigate_ip",
				Description: "Investigate an IP address across honeypot events and threat intelligence",
				Arguments: []PromptArgument{
					{Name: "ip_address", Description: "The IP address to investigate", Required: true},
				},
			},
			{
				Name:        "attack_overview",
				Description: "Summarize the current attack landscape from recent honeypot activity",
				Arguments: []PromptArgument{
					{Name: "time_range_hours", Description: "Trailing window in hours (default: 24)"},
				},
			},
		},
	}
}

func (d *Dispatcher) handleGetPrompt(params json.RawMessage) (*GetPromptResult, *Error) {
	var p GetPromptParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &Error{Code: ErrInvalidParams, Message: "failed to parse prompt get params"}
	}

	switch p.Name {
	case "investigate_ip":
		ip := p.Arguments["ip_address"]
		return &GetPromptResult{
			Description: fmt.Sprintf("Investigate %s", ip),
			Messages: []PromptMessage{
				{
					Role: "user",
					Content: NewTextContent(fmt.Sprintf(
						"Investigate IP %s. Use query_dshield_reputation for its recent honeypot "+
							"activity and enrich_ip_comprehensive for its threat-intelligence verdict, "+
							"then summarize the threat level and recommend a response.", ip)),
				},
			},
		}, nil
	case "attack_overview":
		hours := p.Arguments["time_range_hours"]
		if hours == "" {
			hours = "24"
		}
		return &GetPromptResult{
			Description: "Current attack landscape",
			Messages: []PromptMessage{
				{
					Role: "user",
					Content: NewTextContent(fmt.Sprintf(
						"Summarize the attack landscape of the last %s hours. Use "+
							"get_dshield_statistics, get_dshield_top_attackers, "+
							"get_dshield_geographic_summary and get_dshield_port_summary, and call "+
							"out anything unusual.", hours)),
				},
			},
		}, nil
	default:
		return nil, &Error{Code: ErrInvalidParams, Message: fmt.Sprintf("unknown prompt: %s", p.Name)}
	}
}

func errorResponse(id any, code int, message string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}}
}

func encodeResponse(resp Response) []byte {
	b, err := json.Marshal(resp)
	if err != nil {
		// Marshaling a Response with raw JSON members cannot realistically
		// fail; fall back to a static internal error.
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"internal error"}}`)
	}
	return b
}
