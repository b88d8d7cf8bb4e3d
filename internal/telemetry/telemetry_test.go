package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewServerDisabledByEmptyAddress(t *testing.T) {
	assert.Nil(t, NewServer(""))
	assert.NotNil(t, NewServer("127.0.0.1:0"))
}

func TestCountersAreLabelled(t *testing.T) {
	ToolCalls.WithLabelValues("query_dshield_events", "ok").Inc()
	ToolCalls.WithLabelValues("query_dshield_events", "error").Inc()
	ToolCalls.WithLabelValues("query_dshield_events", "ok").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(ToolCalls.WithLabelValues("query_dshield_events", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ToolCalls.WithLabelValues("query_dshield_events", "error")))
}

func TestActiveConnectionsGauge(t *testing.T) {
	before := testutil.ToFloat64(ActiveConnections)
	ActiveConnections.Inc()
	ActiveConnections.Inc()
	ActiveConnections.Dec()
	assert.Equal(t, before+1, testutil.ToFloat64(ActiveConnections))
}
