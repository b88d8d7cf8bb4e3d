package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{Field: "source.ip", Op: OpEq, Value: "203.0.113.7"}.Validate())
	assert.Error(t, Filter{Field: "", Op: OpEq, Value: "x"}.Validate())
	assert.Error(t, Filter{Field: "source.ip", Op: FilterOp("between"), Value: "x"}.Validate())
}

func TestElasticsearchQueryValidate(t *testing.T) {
	q := ElasticsearchQuery{Indices: []string{"dshield-*"}, Size: 100}
	require.NoError(t, q.Validate())

	q = ElasticsearchQuery{Size: 100}
	assert.Error(t, q.Validate(), "indices are required")

	q = ElasticsearchQuery{Indices: []string{"dshield-*"}, Size: 10001}
	assert.Error(t, q.Validate())

	q = ElasticsearchQuery{Indices: []string{"dshield-*"}, Size: 0}
	assert.Error(t, q.Validate(), "size zero is only valid with aggregations")

	q = ElasticsearchQuery{Indices: []string{"dshield-*"}, Size: 0, Aggs: map[string]any{"by_port": map[string]any{}}}
	assert.NoError(t, q.Validate())

	q = ElasticsearchQuery{
		Indices: []string{"dshield-*"},
		Size:    10,
		Filters: []Filter{{Field: "", Op: OpEq, Value: "x"}},
	}
	assert.Error(t, q.Validate())
}
