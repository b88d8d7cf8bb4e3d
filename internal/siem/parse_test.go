package siem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

func TestParseEventNestedAndFlattenedSources(t *testing.T) {
	nested := Hit{
		ID:    "doc-1",
		Index: "dshield-2025.08",
		Source: map[string]any{
			"@timestamp": "2025-08-20T12:00:00Z",
			"source":     map[string]any{"ip": "203.0.113.7", "port": float64(51234)},
			"event":      map[string]any{"type": "connection", "category": "network"},
		},
	}
	flattened := Hit{
		ID:    "doc-2",
		Index: "dshield-2025.08",
		Source: map[string]any{
			"@timestamp":     "2025-08-20T12:00:00Z",
			"source.ip":      "203.0.113.7",
			"source.port":    float64(51234),
			"event.type":     "connection",
			"event.category": "network",
		},
	}

	for _, hit := range []Hit{nested, flattened} {
		ev, err := ParseEvent(hit)
		require.NoError(t, err, hit.ID)
		assert.Equal(t, "203.0.113.7", ev.SourceIP)
		require.NotNil(t, ev.SourcePort)
		assert.Equal(t, 51234, *ev.SourcePort)
		assert.Equal(t, "connection", ev.EventType)
		assert.Equal(t, models.CategoryNetwork, ev.Category)
	}
}

func TestParseEventRequiresTimestamp(t *testing.T) {
	_, err := ParseEvent(Hit{ID: "doc-3", Source: map[string]any{"source.ip": "203.0.113.7"}})
	assert.Error(t, err)
}

func TestParseEventEpochMillisTimestamp(t *testing.T) {
	ev, err := ParseEvent(Hit{
		ID:     "doc-4",
		Source: map[string]any{"@timestamp": float64(1755691200000)},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 8, 20, 12, 0, 0, 0, time.UTC), ev.Timestamp)
}

func TestParseEventsSkipsMalformed(t *testing.T) {
	hits := []Hit{
		{ID: "ok", Source: map[string]any{"@timestamp": "2025-08-20T12:00:00Z"}},
		{ID: "bad", Source: map[string]any{"message": "no timestamp"}},
	}
	events := ParseEvents(hits)
	require.Len(t, events, 1)
	assert.Equal(t, "ok", events[0].ID)
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, models.SeverityCritical, parseSeverity(map[string]any{"severity": "critical"}))
	assert.Equal(t, models.SeverityHigh, parseSeverity(map[string]any{"event.severity": float64(7)}))
	assert.Equal(t, models.SeverityLow, parseSeverity(map[string]any{"event.severity": float64(2)}))
	assert.Equal(t, models.SeverityMedium, parseSeverity(map[string]any{}))
}

func TestParseCategoryFallsBackToOther(t *testing.T) {
	assert.Equal(t, models.CategoryAuthentication, parseCategory("Authentication"))
	assert.Equal(t, models.CategoryOther, parseCategory("interpretive_dance"))
}
