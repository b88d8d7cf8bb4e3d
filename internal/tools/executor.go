package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/health"
	"github.com/dshield-mcp/dshield-mcp/internal/intel"
	"github.com/dshield-mcp/dshield-mcp/internal/logging"
	"github.com/dshield-mcp/dshield-mcp/internal/siem"
	"github.com/dshield-mcp/dshield-mcp/internal/telemetry"
)

// ToolHandler executes one registered tool.
type ToolHandler func(ctx context.Context, e *Executor, args map[string]any) (CallToolResult, error)

// RegisteredTool pairs a tool definition with its handler.
type RegisteredTool struct {
	Definition Tool
	Handler    ToolHandler
}

// Executor dispatches tools/call requests onto the query engine, the
// threat-intelligence orchestrator, and the diagnostics layer.
type Executor struct {
	engine       *siem.Engine
	orchestrator *intel.Orchestrator
	checker      *health.Checker
	cfg          *config.Config

	tools map[string]RegisteredTool
	order []string
}

// NewExecutor builds the executor and registers the full tool set.
// orchestrator and checker may be nil when their subsystems are disabled;
// the affected tools then report a clear error.
func NewExecutor(engine *siem.Engine, orchestrator *intel.Orchestrator, checker *health.Checker, cfg *config.Config) *Executor {
	e := &Executor{
		engine:       engine,
		orchestrator: orchestrator,
		checker:      checker,
		cfg:          cfg,
		tools:        map[string]RegisteredTool{},
	}
	e.registerQueryTools()
	e.registerSummaryTools()
	e.registerStreamTools()
	e.registerIntelTools()
	e.registerDiagnosticTools()
	return e
}

func (e *Executor) register(t RegisteredTool) {
	if _, dup := e.tools[t.Definition.Name]; dup {
		panic(fmt.Sprintf("duplicate tool %s", t.Definition.Name))
	}
	e.tools[t.Definition.Name] = t
	e.order = append(e.order, t.Definition.Name)
}

// ListTools returns the tool definitions in registration order.
func (e *Executor) ListTools() []Tool {
	out := make([]Tool, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.tools[name].Definition)
	}
	return out
}

// ExecuteTool runs one tool under the configured tool-call deadline.
// Engine errors come back as isError results, not protocol errors, so the
// caller still receives a well-formed tools/call response.
func (e *Executor) ExecuteTool(ctx context.Context, name string, args map[string]any) (CallToolResult, error) {
	tool, ok := e.tools[name]
	if !ok {
		return CallToolResult{}, dserrors.NotFoundf("tools.execute", "unknown tool %q", name)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.ErrorHandling.Timeouts.ToolCall())
	defer cancel()

	start := time.Now()
	log.Debug().
		Str("tool", name).
		Str("request_id", logging.RequestID(ctx)).
		Msg("Executing tool")

	result, err := tool.Handler(ctx, e, args)

	status := "ok"
	if err != nil || result.IsError {
		status = "error"
	}
	telemetry.ToolCalls.WithLabelValues(name, status).Inc()
	telemetry.ToolDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Warn().Str("tool", name).Err(err).Msg("Tool execution failed")
		return NewErrorResult(err), nil
	}
	return result, nil
}

// ErrorCode maps a classified error onto its JSON-RPC code.
func ErrorCode(err error) int {
	switch dserrors.KindOf(err) {
	case dserrors.KindInvalidParams:
		return ErrInvalidParams
	case dserrors.KindNotFound:
		return ErrMethodNotFound
	case dserrors.KindRateLimit:
		return ErrRateLimited
	case dserrors.KindTransport:
		return ErrInvalidRequest
	default:
		return ErrInternal
	}
}

// Argument coercion. JSON numbers arrive as float64; accept both numeric
// shapes wherever an integer is expected.

func argString(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return def
}

func argFloat(args map[string]any, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func argInt(args map[string]any, key string, def int) (int, error) {
	switch v := args[key].(type) {
	case nil:
		return def, nil
	case float64:
		if v != float64(int(v)) {
			return 0, dserrors.Invalidf("tools.args", "%s must be an integer, got %v", key, v)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, dserrors.Invalidf("tools.args", "%s must be an integer, got %T", key, v)
	}
}

// argIntPtr distinguishes an absent argument (nil) from an explicit value,
// so bounds checks downstream can reject an explicit zero.
func argIntPtr(args map[string]any, key string) (*int, error) {
	if _, present := args[key]; !present {
		return nil, nil
	}
	v, err := argInt(args, key, 0)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func argBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argStrings(args map[string]any, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, dserrors.Invalidf("tools.args", "%s must be an array of strings", key)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, dserrors.Invalidf("tools.args", "%s must contain only strings, got %T", key, item)
		}
		out = append(out, s)
	}
	return out, nil
}

// argFilters converts the filters argument (a JSON object) into the
// engine's filter list with deterministic ordering.
func argFilters(args map[string]any) ([]filterArg, error) {
	raw, ok := args["filters"]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, dserrors.Invalidf("tools.args", "filters must be an object")
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]filterArg, 0, len(keys))
	for _, k := range keys {
		out = append(out, filterArg{Field: k, Value: m[k]})
	}
	return out, nil
}

type filterArg struct {
	Field string
	Value any
}
