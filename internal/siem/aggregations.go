package siem

import (
	"context"
	"fmt"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

// Bucket is one aggregation bucket in a summary response.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// TopAttackersResult summarizes the most active source IPs.
type TopAttackersResult struct {
	TimeRangeHours float64  `json:"time_range_hours"`
	TotalEvents    int64    `json:"total_events"`
	Attackers      []Bucket `json:"attackers"`
}

// TopAttackers aggregates events by source IP.
func (e *Engine) TopAttackers(ctx context.Context, hours float64, limit int) (*TopAttackersResult, error) {
	buckets, total, err := e.termsSummary(ctx, hours, limit, "source.ip")
	if err != nil {
		return nil, err
	}
	return &TopAttackersResult{TimeRangeHours: hours, TotalEvents: total, Attackers: buckets}, nil
}

// GeographicSummary aggregates events by source country.
type GeographicSummaryResult struct {
	TimeRangeHours float64  `json:"time_range_hours"`
	TotalEvents    int64    `json:"total_events"`
	Countries      []Bucket `json:"countries"`
}

func (e *Engine) GeographicSummary(ctx context.Context, hours float64, limit int) (*GeographicSummaryResult, error) {
	buckets, total, err := e.termsSummary(ctx, hours, limit, "source.geo.country_name")
	if err != nil {
		return nil, err
	}
	return &GeographicSummaryResult{TimeRangeHours: hours, TotalEvents: total, Countries: buckets}, nil
}

// PortSummaryResult aggregates events by destination port.
type PortSummaryResult struct {
	TimeRangeHours float64  `json:"time_range_hours"`
	TotalEvents    int64    `json:"total_events"`
	Ports          []Bucket `json:"ports"`
}

func (e *Engine) PortSummary(ctx context.Context, hours float64, limit int) (*PortSummaryResult, error) {
	buckets, total, err := e.termsSummary(ctx, hours, limit, "destination.port")
	if err != nil {
		return nil, err
	}
	return &PortSummaryResult{TimeRangeHours: hours, TotalEvents: total, Ports: buckets}, nil
}

// StatisticsResult is the severity/category distribution for a window.
type StatisticsResult struct {
	TimeRangeHours float64  `json:"time_range_hours"`
	TotalEvents    int64    `json:"total_events"`
	BySeverity     []Bucket `json:"by_severity"`
	ByCategory     []Bucket `json:"by_category"`
}

// Statistics aggregates severity and category distributions.
func (e *Engine) Statistics(ctx context.Context, hours float64) (*StatisticsResult, error) {
	if hours <= 0 {
		hours = 24
	}
	tr := models.LastHours(hours)
	query := BuildEventQuery(tr, nil, false)
	body := map[string]any{
		"query": query,
		"size":  0,
		"aggs": map[string]any{
			"by_severity": map[string]any{
				"terms": map[string]any{"field": "severity", "size": 10},
			},
			"by_category": map[string]any{
				"terms": map[string]any{"field": "event.category", "size": 20},
			},
		},
	}
	resp, err := e.client.Search(ctx, e.indexPatterns, body)
	if err != nil {
		return nil, err
	}
	return &StatisticsResult{
		TimeRangeHours: hours,
		TotalEvents:    resp.Hits.Total.Value,
		BySeverity:     toBuckets(resp.Aggregations["by_severity"]),
		ByCategory:     toBuckets(resp.Aggregations["by_category"]),
	}, nil
}

// QueryIPEvents retrieves events involving any of the given IPs. pageSize
// nil means the configured default; explicit zero is rejected.
func (e *Engine) QueryIPEvents(ctx context.Context, ips []string, hours float64, pageSize *int) (*EventsResult, error) {
	if len(ips) == 0 {
		return nil, dserrors.Invalidf("siem.query_ip_events", "at least one IP is required")
	}
	for _, ip := range ips {
		if !models.ValidIP(ip) {
			return nil, dserrors.Invalidf("siem.query_ip_events", "invalid IP address %q", ip)
		}
	}
	if hours <= 0 {
		hours = 24
	}
	size := e.cfg.DefaultPageSize
	if pageSize != nil {
		size = *pageSize
	}
	if size < 1 {
		return nil, dserrors.Invalidf("siem.query_ip_events", "page_size must be >= 1, got %d", size)
	}
	if size > e.cfg.MaxPageSize {
		size = e.cfg.MaxPageSize
	}

	tr := models.LastHours(hours)
	body := map[string]any{
		"query": BuildIPQuery(ips, tr),
		"size":  size,
		"sort":  sortClauses(nil),
	}
	resp, err := e.client.Search(ctx, e.indexPatterns, body)
	if err != nil {
		return nil, err
	}
	return &EventsResult{
		Events:     ParseEvents(resp.Hits.Hits),
		Pagination: models.NewPageInfo(1, size, resp.Hits.Total.Value),
		TookMs:     int64(resp.Took),
	}, nil
}

func (e *Engine) termsSummary(ctx context.Context, hours float64, limit int, field string) ([]Bucket, int64, error) {
	if hours <= 0 {
		hours = 24
	}
	if limit < 1 || limit > 100 {
		return nil, 0, dserrors.Invalidf("siem.terms_summary", "limit %d out of range [1,100]", limit)
	}
	tr := models.LastHours(hours)
	body := map[string]any{
		"query": BuildEventQuery(tr, nil, false),
		"size":  0,
		"aggs": map[string]any{
			"summary": map[string]any{
				"terms": map[string]any{"field": field, "size": limit},
			},
		},
	}
	resp, err := e.client.Search(ctx, e.indexPatterns, body)
	if err != nil {
		return nil, 0, err
	}
	return toBuckets(resp.Aggregations["summary"]), resp.Hits.Total.Value, nil
}

func toBuckets(agg AggResult) []Bucket {
	out := make([]Bucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		key := b.KeyAsString
		if key == "" {
			key = fmt.Sprintf("%v", b.Key)
		}
		out = append(out, Bucket{Key: key, Count: b.DocCount})
	}
	return out
}
