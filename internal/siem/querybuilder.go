package siem

import (
	"time"

	"github.com/dshield-mcp/dshield-mcp/internal/fieldmap"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

const timestampField = "@timestamp"

// BuildEventQuery renders an event-family query body: a bool query whose
// must includes the time-range filter plus one clause per filter entry, and
// required-exists clauses on source.ip and destination.ip.
func BuildEventQuery(tr models.TimeRange, filters []models.Filter, requireEndpoints bool) map[string]any {
	must := []map[string]any{rangeClause(tr)}
	var mustNot []map[string]any

	for _, f := range fieldmap.MapFilters(filters) {
		clause, negated := filterClause(f)
		if clause == nil {
			continue
		}
		if negated {
			mustNot = append(mustNot, clause)
		} else {
			must = append(must, clause)
		}
	}

	if requireEndpoints {
		must = append(must,
			map[string]any{"exists": map[string]any{"field": "source.ip"}},
			map[string]any{"exists": map[string]any{"field": "destination.ip"}},
		)
	}

	boolQuery := map[string]any{"must": must}
	if len(mustNot) > 0 {
		boolQuery["must_not"] = mustNot
	}
	return map[string]any{"bool": boolQuery}
}

// BuildIPQuery matches documents where any of the given IPs appears as the
// source, preferring (but not requiring) destination matches as well.
func BuildIPQuery(ips []string, tr models.TimeRange) map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				rangeClause(tr),
				{"terms": map[string]any{"source.ip": ips}},
			},
			"should": []map[string]any{
				{"terms": map[string]any{"destination.ip": ips}},
			},
			"minimum_should_match": 0,
		},
	}
}

func rangeClause(tr models.TimeRange) map[string]any {
	return map[string]any{
		"range": map[string]any{
			timestampField: map[string]any{
				"gte": tr.Gte.UTC().Format(time.RFC3339),
				"lte": tr.Lte.UTC().Format(time.RFC3339),
			},
		},
	}
}

// filterClause renders one filter entry. The second return value marks
// clauses that belong in must_not.
func filterClause(f models.Filter) (map[string]any, bool) {
	switch f.Op {
	case models.OpEq:
		return termOrTerms(f.Field, f.Value), false
	case models.OpNe:
		return termOrTerms(f.Field, f.Value), true
	case models.OpIn:
		return map[string]any{"terms": map[string]any{f.Field: listValue(f.Value)}}, false
	case models.OpNotIn:
		return map[string]any{"terms": map[string]any{f.Field: listValue(f.Value)}}, true
	case models.OpGt, models.OpLt, models.OpGte, models.OpLte:
		return map[string]any{"range": map[string]any{f.Field: map[string]any{string(f.Op): f.Value}}}, false
	case models.OpExists:
		return map[string]any{"exists": map[string]any{"field": f.Field}}, false
	case models.OpWildcard:
		return map[string]any{"wildcard": map[string]any{f.Field: f.Value}}, false
	}
	return nil, false
}

// termOrTerms picks term for scalars and terms for lists. Maps with
// eq/in/gte/lte keys are expanded to the corresponding clause.
func termOrTerms(field string, value any) map[string]any {
	switch v := value.(type) {
	case []any:
		return map[string]any{"terms": map[string]any{field: v}}
	case []string:
		return map[string]any{"terms": map[string]any{field: v}}
	case map[string]any:
		if eq, ok := v["eq"]; ok {
			return termOrTerms(field, eq)
		}
		if in, ok := v["in"]; ok {
			return map[string]any{"terms": map[string]any{field: listValue(in)}}
		}
		rangeBody := map[string]any{}
		for _, op := range []string{"gte", "lte", "gt", "lt"} {
			if bound, ok := v[op]; ok {
				rangeBody[op] = bound
			}
		}
		if len(rangeBody) > 0 {
			return map[string]any{"range": map[string]any{field: rangeBody}}
		}
		return map[string]any{"term": map[string]any{field: v}}
	default:
		return map[string]any{"term": map[string]any{field: value}}
	}
}

func listValue(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	default:
		return []any{value}
	}
}

// sortClauses renders the requested sort order, defaulting to @timestamp
// descending with _id as the deterministic tiebreak for cursor paging.
func sortClauses(sort []models.SortField) []map[string]any {
	if len(sort) == 0 {
		sort = []models.SortField{{Field: timestampField, Order: "desc"}}
	}
	out := make([]map[string]any, 0, len(sort)+1)
	seenID := false
	for _, s := range sort {
		field := fieldmap.Canonical(s.Field)
		order := s.Order
		if order != "asc" {
			order = "desc"
		}
		if field == "_id" {
			seenID = true
		}
		out = append(out, map[string]any{field: map[string]any{"order": order}})
	}
	if !seenID {
		out = append(out, map[string]any{"_id": map[string]any{"order": "desc"}})
	}
	return out
}

// FallbackAggs is the aggregation set used by the aggregate fallback: top
// source IPs, top destination ports, top event categories, and a one-hour
// date histogram over the time range.
func FallbackAggs(tr models.TimeRange) map[string]any {
	return map[string]any{
		"top_source_ips": map[string]any{
			"terms": map[string]any{"field": "source.ip", "size": 50},
		},
		"top_destination_ports": map[string]any{
			"terms": map[string]any{"field": "destination.port", "size": 50},
		},
		"top_event_categories": map[string]any{
			"terms": map[string]any{"field": "event.category", "size": 20},
		},
		"events_over_time": map[string]any{
			"date_histogram": map[string]any{
				"field":          timestampField,
				"fixed_interval": "1h",
				"extended_bounds": map[string]any{
					"min": tr.Gte.UTC().Format(time.RFC3339),
					"max": tr.Lte.UTC().Format(time.RFC3339),
				},
			},
		},
	}
}
