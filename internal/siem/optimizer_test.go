package siem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateSizeZeroDocs(t *testing.T) {
	p := &plan{fields: []string{"source.ip", "destination.ip"}, pageSize: 100, totalCount: 0}
	assert.Zero(t, p.estimateSize())

	e := &Engine{}
	assert.False(t, e.optimize(context.Background(), p, 1), "empty result never degrades")
	assert.Empty(t, p.degraded)
	assert.Equal(t, 100, p.pageSize)
}

func TestEstimateSizeCapsAtPageSize(t *testing.T) {
	// 1M matching docs, page of 50, two projected fields at 1 KiB each.
	p := &plan{fields: []string{"source.ip", "destination.ip"}, pageSize: 50, totalCount: 1_000_000}
	assert.Equal(t, int64(50*2*1024), p.estimateSize())

	// No projection means the full-document estimate.
	p = &plan{pageSize: 10, totalCount: 10}
	assert.Equal(t, int64(10*5*1024), p.estimateSize())
}

func TestOptimizeFieldReductionFirst(t *testing.T) {
	fields := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	p := &plan{fields: fields, pageSize: 100, totalCount: 100}

	// Budget fits after dropping to five extra fields but not before.
	e := &Engine{}
	needFallback := e.optimize(context.Background(), p, int64(100*5*1024))
	assert.False(t, needFallback)
	assert.Equal(t, []string{"field_reduction"}, p.degraded)
	assert.Equal(t, 100, p.pageSize, "page size untouched when field reduction suffices")
}

func TestOptimizePageHalvingFloor(t *testing.T) {
	p := &plan{pageSize: 500, totalCount: 1_000_000}
	e := &Engine{}

	// One-byte budget can never be met; the cascade must exhaust.
	needFallback := e.optimize(context.Background(), p, 1)
	assert.True(t, needFallback)
	assert.Equal(t, 10, p.pageSize, "page halving floors at 10")
	assert.Contains(t, p.degraded, "page_reduction")
}

func TestReduceFieldsPriorityOrder(t *testing.T) {
	in := []string{"network.bytes", "destination.ip", "user.name", "@timestamp", "severity"}
	out := reduceFields(in)

	// Priority fields lead in their canonical order, then the caller's
	// non-priority fields follow in request order.
	require.Equal(t, []string{"@timestamp", "destination.ip", "severity", "network.bytes", "user.name"}, out)
}

func TestReduceFieldsCapsExtras(t *testing.T) {
	in := []string{"x1", "x2", "x3", "x4", "x5", "x6", "x7"}
	out := reduceFields(in)
	assert.Len(t, out, 5, "non-priority fields cap at five")
	assert.Equal(t, []string{"x1", "x2", "x3", "x4", "x5"}, out)
}
