package siem

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/fieldmap"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

// FallbackStrategy selects behavior when optimization cannot fit the budget.
type FallbackStrategy string

const (
	FallbackAggregate FallbackStrategy = "aggregate"
	FallbackSample    FallbackStrategy = "sample"
	FallbackNone      FallbackStrategy = "none"
)

const sampleSize = 10

// Engine executes optimized, paginated queries against the SIEM.
type Engine struct {
	client        *Client
	cfg           config.QueryConfig
	indexPatterns []string
}

// NewEngine wires the engine to its client and configuration.
func NewEngine(client *Client, cfg config.QueryConfig, indexPatterns []string) *Engine {
	return &Engine{client: client, cfg: cfg, indexPatterns: indexPatterns}
}

// Client exposes the underlying SIEM client to the health and diagnostics
// layers.
func (e *Engine) Client() *Client { return e.client }

// IndexPatterns returns the configured index patterns.
func (e *Engine) IndexPatterns() []string { return e.indexPatterns }

// EventsParams are the inputs to QueryEvents.
type EventsParams struct {
	TimeRangeHours   float64
	Indices          []string
	Filters          []models.Filter
	Fields           []string
	Page             int
	PageSize         *int // nil means the configured default; explicit zero is rejected
	Sort             []models.SortField
	Cursor           string
	MaxResultSizeMB  float64
	Fallback         FallbackStrategy
	Optimization     string // "auto" or "none"
	RequireEndpoints bool
}

// EventsResult is the engine's paginated response.
type EventsResult struct {
	Events     []models.SecurityEvent `json:"events"`
	Pagination models.PaginationInfo  `json:"pagination"`
	TookMs     int64                  `json:"took_ms"`
}

// normalize applies defaults and bounds. page_size zero or negative is the
// caller's error; oversize is clamped.
func (e *Engine) normalize(p *EventsParams) error {
	if p.TimeRangeHours <= 0 {
		p.TimeRangeHours = 24
	}
	if len(p.Indices) == 0 {
		p.Indices = e.indexPatterns
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Page < 1 {
		return dserrors.Invalidf("siem.query_events", "page must be >= 1, got %d", p.Page)
	}
	if p.PageSize == nil {
		size := e.cfg.DefaultPageSize
		p.PageSize = &size
	}
	if *p.PageSize < 1 {
		return dserrors.Invalidf("siem.query_events", "page_size must be >= 1, got %d", *p.PageSize)
	}
	if *p.PageSize > e.cfg.MaxPageSize {
		*p.PageSize = e.cfg.MaxPageSize
	}
	if p.MaxResultSizeMB <= 0 {
		p.MaxResultSizeMB = e.cfg.MaxResultSizeMB
	}
	if p.Fallback == "" {
		p.Fallback = FallbackStrategy(e.cfg.FallbackStrategy)
	}
	switch p.Fallback {
	case FallbackAggregate, FallbackSample, FallbackNone:
	default:
		return dserrors.Invalidf("siem.query_events", "invalid fallback strategy %q", p.Fallback)
	}
	if p.Optimization == "" {
		if e.cfg.SmartOptimization {
			p.Optimization = "auto"
		} else {
			p.Optimization = "none"
		}
	}
	for _, f := range p.Filters {
		if err := f.Validate(); err != nil {
			return dserrors.InvalidParams("siem.query_events", err)
		}
	}
	p.Fields = fieldmap.MapFields(p.Fields)
	return nil
}

// QueryEvents runs the full pipeline: count, optimize, then page-based or
// cursor-based retrieval with the configured fallback.
func (e *Engine) QueryEvents(ctx context.Context, p EventsParams) (*EventsResult, error) {
	if err := e.normalize(&p); err != nil {
		return nil, err
	}
	start := time.Now()

	tr := models.LastHours(p.TimeRangeHours)
	query := BuildEventQuery(tr, p.Filters, p.RequireEndpoints)

	total, err := e.client.Count(ctx, p.Indices, query)
	if err != nil {
		return nil, err
	}

	pl := &plan{fields: p.Fields, pageSize: *p.PageSize, totalCount: total}
	needFallback := false
	if p.Optimization == "auto" && total > 0 {
		budget := int64(p.MaxResultSizeMB * 1024 * 1024)
		needFallback = e.optimize(ctx, pl, budget)
	}

	if needFallback {
		return e.runFallback(ctx, p, tr, query, total, start)
	}

	body := map[string]any{
		"query": query,
		"size":  pl.pageSize,
		"sort":  sortClauses(p.Sort),
	}
	if len(pl.fields) > 0 {
		body["_source"] = pl.fields
	}

	esq := models.ElasticsearchQuery{
		Indices:   p.Indices,
		TimeRange: tr,
		Filters:   p.Filters,
		Fields:    pl.fields,
		Size:      pl.pageSize,
		Sort:      p.Sort,
	}
	if p.Cursor != "" {
		after, err := DecodeCursor(p.Cursor)
		if err != nil {
			return nil, dserrors.InvalidParams("siem.query_events", err)
		}
		body["search_after"] = after
		esq.SearchAfter = after
	} else if p.Page > 1 {
		from := (p.Page - 1) * pl.pageSize
		body["from"] = from
		esq.From = from
	}
	if err := esq.Validate(); err != nil {
		return nil, dserrors.InvalidParams("siem.query_events", err)
	}

	resp, err := e.client.Search(ctx, p.Indices, body)
	if err != nil {
		return nil, err
	}

	events := ParseEvents(resp.Hits.Hits)
	result := &EventsResult{
		Events: events,
		TookMs: time.Since(start).Milliseconds(),
	}

	if p.Cursor != "" {
		result.Pagination = e.cursorPagination(resp, pl.pageSize, total, p.Cursor)
	} else {
		result.Pagination = models.NewPageInfo(p.Page, pl.pageSize, total)
		// Page one of a default-sorted query also yields a cursor so the
		// caller can switch to streaming.
		if next := nextCursorFrom(resp, pl.pageSize); next != "" && p.Page == 1 {
			result.Pagination.NextPageToken = next
		}
	}

	log.Debug().
		Int("events", len(events)).
		Int64("total", total).
		Int64("took_ms", result.TookMs).
		Strs("degraded", pl.degraded).
		Msg("Event query complete")
	return result, nil
}

func (e *Engine) cursorPagination(resp *SearchResponse, pageSize int, total int64, current string) models.PaginationInfo {
	info := models.PaginationInfo{
		CurrentPage:   1,
		PageSize:      pageSize,
		TotalCount:    total,
		CurrentCursor: current,
		HasPrevious:   current != "",
	}
	info.NextPageToken = nextCursorFrom(resp, pageSize)
	info.HasNext = info.NextPageToken != ""
	return info
}

// nextCursorFrom derives the next cursor from the last hit of a full chunk.
// A short chunk means the stream is exhausted.
func nextCursorFrom(resp *SearchResponse, pageSize int) string {
	hits := resp.Hits.Hits
	if len(hits) == 0 || len(hits) < pageSize {
		return ""
	}
	last := hits[len(hits)-1]
	if len(last.Sort) == 0 {
		return ""
	}
	token, err := EncodeCursor(last.Sort)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode cursor")
		return ""
	}
	return token
}

// runFallback applies the selected fallback strategy once the cascade is
// exhausted.
func (e *Engine) runFallback(ctx context.Context, p EventsParams, tr models.TimeRange, query map[string]any, total int64, start time.Time) (*EventsResult, error) {
	switch p.Fallback {
	case FallbackAggregate:
		return e.aggregateFallback(ctx, p, tr, query, total, start)
	case FallbackSample:
		body := map[string]any{
			"query": query,
			"size":  sampleSize,
			"sort":  sortClauses(p.Sort),
		}
		resp, err := e.client.Search(ctx, p.Indices, body)
		if err != nil {
			return nil, err
		}
		info := models.NewPageInfo(1, sampleSize, total)
		info.FallbackStrategy = string(FallbackSample)
		return &EventsResult{
			Events:     ParseEvents(resp.Hits.Hits),
			Pagination: info,
			TookMs:     time.Since(start).Milliseconds(),
		}, nil
	default: // FallbackNone
		info := models.NewPageInfo(1, *p.PageSize, total)
		info.FallbackStrategy = string(FallbackNone)
		return &EventsResult{
			Events:     []models.SecurityEvent{},
			Pagination: info,
			TookMs:     time.Since(start).Milliseconds(),
		}, nil
	}
}

// aggregateFallback replaces documents with one synthesized summary event
// per top-N bucket. The reported total still reflects the true match count.
func (e *Engine) aggregateFallback(ctx context.Context, p EventsParams, tr models.TimeRange, query map[string]any, total int64, start time.Time) (*EventsResult, error) {
	body := map[string]any{
		"query": query,
		"size":  0,
		"aggs":  FallbackAggs(tr),
	}
	resp, err := e.client.Search(ctx, p.Indices, body)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var events []models.SecurityEvent
	summaryAggs := []struct {
		name     string
		category models.Category
	}{
		{"top_source_ips", models.CategoryNetwork},
		{"top_destination_ports", models.CategoryPort},
		{"top_event_categories", models.CategoryOther},
		{"events_over_time", models.CategoryOther},
	}
	for _, sa := range summaryAggs {
		aggName, category := sa.name, sa.category
		agg, ok := resp.Aggregations[aggName]
		if !ok {
			continue
		}
		for _, bucket := range agg.Buckets {
			key := bucket.KeyAsString
			if key == "" {
				key = fmt.Sprintf("%v", bucket.Key)
			}
			events = append(events, models.SecurityEvent{
				ID:          fmt.Sprintf("agg_%s_%s", aggName, key),
				Timestamp:   now,
				EventType:   "aggregation",
				Severity:    models.SeverityLow,
				Category:    category,
				Description: fmt.Sprintf("%s: %s (%d events)", aggName, key, bucket.DocCount),
				AttackCount: int(bucket.DocCount),
			})
		}
	}

	info := models.NewPageInfo(1, len(events), total)
	info.FallbackStrategy = string(FallbackAggregate)
	return &EventsResult{
		Events:     events,
		Pagination: info,
		TookMs:     time.Since(start).Milliseconds(),
	}, nil
}
