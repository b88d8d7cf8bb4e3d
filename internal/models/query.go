package models

import (
	"fmt"
	"time"
)

// FilterOp is a comparison operator in a query filter.
type FilterOp string

const (
	OpEq       FilterOp = "eq"
	OpNe       FilterOp = "ne"
	OpGt       FilterOp = "gt"
	OpLt       FilterOp = "lt"
	OpGte      FilterOp = "gte"
	OpLte      FilterOp = "lte"
	OpIn       FilterOp = "in"
	OpNotIn    FilterOp = "not_in"
	OpExists   FilterOp = "exists"
	OpWildcard FilterOp = "wildcard"
)

var validOps = map[FilterOp]struct{}{
	OpEq: {}, OpNe: {}, OpGt: {}, OpLt: {}, OpGte: {}, OpLte: {},
	OpIn: {}, OpNotIn: {}, OpExists: {}, OpWildcard: {},
}

// Filter is one {field, op, value} triple.
type Filter struct {
	Field string   `json:"field"`
	Op    FilterOp `json:"op"`
	Value any      `json:"value"`
}

// Validate checks the operator.
func (f Filter) Validate() error {
	if f.Field == "" {
		return fmt.Errorf("filter field must not be empty")
	}
	if _, ok := validOps[f.Op]; !ok {
		return fmt.Errorf("invalid filter operator %q", f.Op)
	}
	return nil
}

// TimeRange bounds a query in time.
type TimeRange struct {
	Gte time.Time `json:"gte"`
	Lte time.Time `json:"lte"`
}

// LastHours returns a range covering the trailing hours window.
func LastHours(hours float64) TimeRange {
	now := time.Now().UTC()
	return TimeRange{Gte: now.Add(-time.Duration(hours * float64(time.Hour))), Lte: now}
}

// SortField is one sort clause.
type SortField struct {
	Field string `json:"field"`
	Order string `json:"order"` // "asc" or "desc"
}

// ElasticsearchQuery is the internal query representation handed to the
// SIEM client.
type ElasticsearchQuery struct {
	Indices     []string       `json:"indices"`
	TimeRange   TimeRange      `json:"time_range"`
	Filters     []Filter       `json:"filters,omitempty"`
	Fields      []string       `json:"fields,omitempty"`
	Size        int            `json:"size"`
	From        int            `json:"from,omitempty"`
	SearchAfter []any          `json:"search_after,omitempty"`
	Sort        []SortField    `json:"sort,omitempty"`
	Aggs        map[string]any `json:"aggs,omitempty"`
}

// Validate enforces the structural invariants: non-empty indices and
// size in [1, 10000] (size 0 is reserved for aggregation-only queries).
func (q *ElasticsearchQuery) Validate() error {
	if len(q.Indices) == 0 {
		return fmt.Errorf("query requires at least one index")
	}
	if q.Size < 0 || q.Size > 10000 {
		return fmt.Errorf("query size %d out of range [0,10000]", q.Size)
	}
	if q.Size == 0 && len(q.Aggs) == 0 {
		return fmt.Errorf("query size 0 requires aggregations")
	}
	for _, f := range q.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}
