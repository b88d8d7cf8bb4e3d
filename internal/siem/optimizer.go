package siem

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Size estimation constants: 1 KiB per projected field, 5 KiB for a full
// document.
const (
	bytesPerField   = 1024
	bytesPerFullDoc = 5 * 1024
	minPageSize     = 10
	maxExtraFields  = 5
)

// priorityFields are kept first, in this order, during field reduction.
var priorityFields = []string{
	"@timestamp",
	"source.ip",
	"destination.ip",
	"source.port",
	"destination.port",
	"event.category",
	"event.type",
	"severity",
}

// plan is the optimizer's working state for one query.
type plan struct {
	fields     []string
	pageSize   int
	totalCount int64
	estimated  int64
	degraded   []string // applied optimization steps, for logging
}

// estimateSize computes the payload estimate for the current plan:
// min(count, page_size) x bytes_per_doc.
func (p *plan) estimateSize() int64 {
	docs := p.totalCount
	if int64(p.pageSize) < docs {
		docs = int64(p.pageSize)
	}
	perDoc := int64(bytesPerFullDoc)
	if len(p.fields) > 0 {
		perDoc = int64(len(p.fields)) * bytesPerField
	}
	p.estimated = docs * perDoc
	return p.estimated
}

// optimize runs the degradation cascade until the estimate fits the budget
// or the cascade is exhausted. Returns true when a fallback strategy is
// still required.
func (e *Engine) optimize(ctx context.Context, p *plan, budgetBytes int64) bool {
	if p.estimateSize() <= budgetBytes {
		return false
	}

	// Step 1: field reduction.
	if len(p.fields) > 3 {
		p.fields = reduceFields(p.fields)
		p.degraded = append(p.degraded, "field_reduction")
		if p.estimateSize() <= budgetBytes {
			return false
		}
	}

	// Step 2: page-size reduction, halving with a floor of 10.
	for p.pageSize > minPageSize {
		p.pageSize /= 2
		if p.pageSize < minPageSize {
			p.pageSize = minPageSize
		}
		p.degraded = append(p.degraded, "page_reduction")
		if p.estimateSize() <= budgetBytes {
			return false
		}
	}

	log.Debug().
		Int64("estimated_bytes", p.estimated).
		Int64("budget_bytes", budgetBytes).
		Strs("steps", p.degraded).
		Msg("Optimization cascade exhausted, falling back")
	return true
}

// reduceFields keeps the priority fields first, then appends up to five of
// the caller's non-priority fields in their original order.
func reduceFields(fields []string) []string {
	present := make(map[string]bool, len(fields))
	for _, f := range fields {
		present[f] = true
	}

	var out []string
	kept := make(map[string]bool)
	for _, pf := range priorityFields {
		if present[pf] {
			out = append(out, pf)
			kept[pf] = true
		}
	}
	extra := 0
	for _, f := range fields {
		if kept[f] {
			continue
		}
		if extra >= maxExtraFields {
			break
		}
		out = append(out, f)
		kept[f] = true
		extra++
	}
	return out
}
