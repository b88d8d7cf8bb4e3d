package siem

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

// DiagnosticsParams selects which availability checks to run.
type DiagnosticsParams struct {
	CheckIndices    bool
	CheckMappings   bool
	CheckRecentData bool
	SampleQuery     bool
}

// DiagnosticsSummary is the headline verdict.
type DiagnosticsSummary struct {
	OverallStatus string `json:"overall_status"` // "healthy" or "issues_detected"
	Severity      string `json:"severity"`       // low | medium | high | critical
	ChecksRun     int    `json:"checks_run"`
	ChecksFailed  int    `json:"checks_failed"`
}

// DiagnosticsReport is the structured diagnose_data_availability result.
type DiagnosticsReport struct {
	Summary         DiagnosticsSummary `json:"summary"`
	Details         map[string]any     `json:"details"`
	Recommendations []string           `json:"recommendations"`
}

var probeWindows = []float64{1, 6, 24, 168}

// DiagnoseDataAvailability probes the cluster for index, mapping and data
// problems and produces a recommendation report.
func (e *Engine) DiagnoseDataAvailability(ctx context.Context, p DiagnosticsParams) (*DiagnosticsReport, error) {
	report := &DiagnosticsReport{
		Details: map[string]any{},
	}
	checksRun, checksFailed := 0, 0
	severity := "low"

	var available []string
	if p.CheckIndices {
		checksRun++
		infos, err := e.client.ListIndices(ctx)
		if err != nil {
			checksFailed++
			severity = "critical"
			report.Details["indices_error"] = err.Error()
			report.Recommendations = append(report.Recommendations,
				"Could not list indices; verify Elasticsearch connectivity and credentials")
		} else {
			for _, info := range infos {
				available = append(available, info.Index)
			}
			matched := matchPatterns(available, e.indexPatterns)
			report.Details["available_indices"] = available
			report.Details["matched_indices"] = matched
			if len(matched) == 0 {
				checksFailed++
				severity = raise(severity, "high")
				report.Recommendations = append(report.Recommendations,
					fmt.Sprintf("No indices match the configured index_patterns %v; review the elasticsearch.index_patterns setting", e.indexPatterns),
					fmt.Sprintf("Confirm the ingest pipeline is writing to indices covered by %v", e.indexPatterns))
			}
		}
	}

	if p.CheckMappings && len(available) > 0 {
		checksRun++
		mapping, err := e.client.GetMapping(ctx, available[0])
		if err != nil {
			checksFailed++
			severity = raise(severity, "medium")
			report.Details["mapping_error"] = err.Error()
		} else {
			fields := mappingFields(mapping)
			var tsFields []string
			for _, f := range fields {
				lower := strings.ToLower(f)
				if strings.Contains(lower, "timestamp") || strings.Contains(lower, "time") || lower == "@timestamp" {
					tsFields = append(tsFields, f)
				}
			}
			report.Details["mapping_index"] = available[0]
			report.Details["field_count"] = len(fields)
			report.Details["timestamp_fields"] = tsFields
			if len(tsFields) == 0 {
				checksFailed++
				severity = raise(severity, "medium")
				report.Recommendations = append(report.Recommendations,
					"No timestamp-like fields found in the mapping; time-range queries will not match")
			}
		}
	}

	if p.CheckRecentData {
		checksRun++
		counts := map[string]int64{}
		anyData := false
		for _, hours := range probeWindows {
			tr := models.LastHours(hours)
			total, err := e.client.Count(ctx, e.indexPatterns, BuildEventQuery(tr, nil, false))
			if err != nil {
				log.Debug().Float64("hours", hours).Err(err).Msg("Recent-data probe failed")
				continue
			}
			counts[fmt.Sprintf("%gh", hours)] = total
			if total > 0 {
				anyData = true
			}
		}
		report.Details["recent_data_counts"] = counts
		if !anyData {
			checksFailed++
			severity = raise(severity, "high")
			report.Recommendations = append(report.Recommendations,
				"No documents found in any probe window up to 168h; verify sensors are shipping data")
		}
	}

	if p.SampleQuery {
		checksRun++
		patterns := append([]string{"dshield-*", "cowrie-*", "zeek-*", "*"}, e.indexPatterns...)
		working := []string{}
		for _, pattern := range patterns {
			body := map[string]any{"query": map[string]any{"match_all": map[string]any{}}, "size": 1}
			resp, err := e.client.Search(ctx, []string{pattern}, body)
			if err != nil || resp.Hits.Total.Value == 0 {
				continue
			}
			working = append(working, pattern)
		}
		report.Details["working_patterns"] = working
		if len(working) == 0 {
			checksFailed++
			severity = raise(severity, "high")
			report.Recommendations = append(report.Recommendations,
				"No index pattern returned documents; the cluster may be empty")
		}
	}

	status := "healthy"
	if checksFailed > 0 {
		status = "issues_detected"
	}
	report.Summary = DiagnosticsSummary{
		OverallStatus: status,
		Severity:      severity,
		ChecksRun:     checksRun,
		ChecksFailed:  checksFailed,
	}
	return report, nil
}

func matchPatterns(indices, patterns []string) []string {
	var matched []string
	for _, idx := range indices {
		for _, pattern := range patterns {
			if ok, _ := path.Match(pattern, idx); ok {
				matched = append(matched, idx)
				break
			}
		}
	}
	return matched
}

// mappingFields flattens the property names out of a _mapping response.
func mappingFields(mapping map[string]any) []string {
	var fields []string
	for _, indexBody := range mapping {
		m, ok := indexBody.(map[string]any)
		if !ok {
			continue
		}
		mappings, ok := m["mappings"].(map[string]any)
		if !ok {
			continue
		}
		props, ok := mappings["properties"].(map[string]any)
		if !ok {
			continue
		}
		fields = append(fields, flattenProps("", props)...)
	}
	return fields
}

func flattenProps(prefix string, props map[string]any) []string {
	var out []string
	for name, body := range props {
		full := name
		if prefix != "" {
			full = prefix + "." + name
		}
		out = append(out, full)
		if m, ok := body.(map[string]any); ok {
			if nested, ok := m["properties"].(map[string]any); ok {
				out = append(out, flattenProps(full, nested)...)
			}
		}
	}
	return out
}

var severityRank = map[string]int{"low": 0, "medium": 1, "high": 2, "critical": 3}

func raise(current, candidate string) string {
	if severityRank[candidate] > severityRank[current] {
		return candidate
	}
	return current
}
