package siem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRaiseSeverity(t *testing.T) {
	assert.Equal(t, "high", raise("low", "high"))
	assert.Equal(t, "critical", raise("critical", "medium"))
	assert.Equal(t, "medium", raise("medium", "medium"))
}

func TestMatchPatterns(t *testing.T) {
	indices := []string{"dshield-2025.08", "cowrie-2025.08", ".kibana", "zeek-conn"}
	matched := matchPatterns(indices, []string{"dshield-*", "cowrie-*"})
	assert.Equal(t, []string{"dshield-2025.08", "cowrie-2025.08"}, matched)

	assert.Empty(t, matchPatterns(indices, []string{"suricata-*"}))
}

func TestMappingFieldsFlattensNestedProperties(t *testing.T) {
	mapping := map[string]any{
		"dshield-2025.08": map[string]any{
			"mappings": map[string]any{
				"properties": map[string]any{
					"@timestamp": map[string]any{"type": "date"},
					"source": map[string]any{
						"properties": map[string]any{
							"ip":   map[string]any{"type": "ip"},
							"port": map[string]any{"type": "integer"},
						},
					},
				},
			},
		},
	}
	fields := mappingFields(mapping)
	assert.Contains(t, fields, "@timestamp")
	assert.Contains(t, fields, "source")
	assert.Contains(t, fields, "source.ip")
	assert.Contains(t, fields, "source.port")
}
