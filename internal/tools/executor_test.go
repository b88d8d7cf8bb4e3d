package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
)

func testExecutor() *Executor {
	return NewExecutor(nil, nil, nil, nil)
}

func TestListToolsRegistrationOrder(t *testing.T) {
	defs := testExecutor().ListTools()
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{
		"query_dshield_events",
		"query_dshield_attacks",
		"query_dshield_reputation",
		"get_dshield_top_attackers",
		"get_dshield_geographic_summary",
		"get_dshield_port_summary",
		"get_dshield_statistics",
		"stream_dshield_events_with_sessions",
		"enrich_ip_comprehensive",
		"enrich_domain_comprehensive",
		"correlate_threat_indicators",
		"diagnose_data_availability",
		"health_check",
		"get_cache_stats",
		"clear_cache",
	}, names)
}

func TestToolDefinitionsHaveSchemas(t *testing.T) {
	for _, d := range testExecutor().ListTools() {
		assert.NotEmpty(t, d.Description, d.Name)
		assert.Equal(t, "object", d.InputSchema.Type, d.Name)
	}
}

func TestExecuteToolUnknown(t *testing.T) {
	_, err := testExecutor().ExecuteTool(context.Background(), "make_coffee", nil)
	require.Error(t, err)
	assert.Equal(t, dserrors.KindNotFound, dserrors.KindOf(err))
}

func TestErrorCodeMapping(t *testing.T) {
	assert.Equal(t, ErrInvalidParams, ErrorCode(dserrors.Invalidf("op", "bad")))
	assert.Equal(t, ErrMethodNotFound, ErrorCode(dserrors.NotFoundf("op", "missing")))
	assert.Equal(t, ErrRateLimited, ErrorCode(dserrors.New(dserrors.KindRateLimit, "op", dserrors.ErrRateLimitExceeded)))
	assert.Equal(t, ErrInternal, ErrorCode(dserrors.Internal("op", assert.AnError)))
	assert.Equal(t, ErrInternal, ErrorCode(assert.AnError))
}

func TestArgInt(t *testing.T) {
	args := map[string]any{"whole": float64(42), "frac": 42.5, "str": "42"}

	v, err := argInt(args, "whole", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = argInt(args, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = argInt(args, "frac", 0)
	assert.Error(t, err, "fractional numbers are not integers")

	_, err = argInt(args, "str", 0)
	assert.Error(t, err)
}

func TestArgIntPtrTracksPresence(t *testing.T) {
	args := map[string]any{"zero": float64(0), "frac": 1.5}

	v, err := argIntPtr(args, "missing")
	require.NoError(t, err)
	assert.Nil(t, v, "absent arguments stay nil so defaults apply downstream")

	v, err = argIntPtr(args, "zero")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 0, *v, "an explicit zero is carried through, not defaulted")

	_, err = argIntPtr(args, "frac")
	assert.Error(t, err)
}

func TestArgScalars(t *testing.T) {
	args := map[string]any{"s": "hello", "f": 1.5, "b": true}

	assert.Equal(t, "hello", argString(args, "s", "def"))
	assert.Equal(t, "def", argString(args, "missing", "def"))
	assert.Equal(t, 1.5, argFloat(args, "f", 0))
	assert.Equal(t, 9.0, argFloat(args, "missing", 9))
	assert.True(t, argBool(args, "b", false))
	assert.False(t, argBool(args, "missing", false))
}

func TestArgStrings(t *testing.T) {
	args := map[string]any{
		"ok":    []any{"a", "b"},
		"mixed": []any{"a", 1},
		"wrong": "not-a-list",
	}

	got, err := argStrings(args, "ok")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = argStrings(args, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = argStrings(args, "mixed")
	assert.Error(t, err)
	_, err = argStrings(args, "wrong")
	assert.Error(t, err)
}

func TestArgFiltersSortedByField(t *testing.T) {
	got, err := argFilters(map[string]any{"filters": map[string]any{
		"source_ip":        "203.0.113.7",
		"destination_port": float64(22),
	}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "destination_port", got[0].Field)
	assert.Equal(t, "source_ip", got[1].Field)

	got, err = argFilters(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = argFilters(map[string]any{"filters": []any{"x"}})
	assert.Error(t, err)
}
