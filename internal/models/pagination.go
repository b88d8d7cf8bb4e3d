package models

import "time"

// PaginationInfo describes page-based pagination state, extended with the
// cursor fields when cursor streaming is in use.
type PaginationInfo struct {
	CurrentPage      int    `json:"current_page"`
	PageSize         int    `json:"page_size"`
	TotalCount       int64  `json:"total_count"`
	TotalPages       int    `json:"total_pages"`
	HasNext          bool   `json:"has_next"`
	HasPrevious      bool   `json:"has_previous"`
	NextPage         *int   `json:"next_page,omitempty"`
	PreviousPage     *int   `json:"previous_page,omitempty"`
	StartIndex       int64  `json:"start_index"`
	EndIndex         int64  `json:"end_index"`
	NextPageToken    string `json:"next_page_token,omitempty"`
	CurrentCursor    string `json:"current_cursor,omitempty"`
	FallbackStrategy string `json:"fallback_strategy,omitempty"`
}

// NewPageInfo computes page metadata for a page-based response.
func NewPageInfo(page, pageSize int, total int64) PaginationInfo {
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	info := PaginationInfo{
		CurrentPage: page,
		PageSize:    pageSize,
		TotalCount:  total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages,
		HasPrevious: page > 1,
		StartIndex:  int64(page-1)*int64(pageSize) + 1,
	}
	end := int64(page) * int64(pageSize)
	if end > total {
		end = total
	}
	info.EndIndex = end
	if total == 0 {
		info.StartIndex = 0
	}
	if info.HasNext {
		next := page + 1
		info.NextPage = &next
	}
	if info.HasPrevious {
		prev := page - 1
		info.PreviousPage = &prev
	}
	return info
}

// SessionSummary summarizes one event session within a streamed chunk.
type SessionSummary struct {
	SessionKey      string            `json:"session_key"`
	EventCount      int               `json:"event_count"`
	FirstTimestamp  time.Time         `json:"first_timestamp"`
	LastTimestamp   time.Time         `json:"last_timestamp"`
	DurationMinutes float64           `json:"duration_minutes"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// StreamMetrics carries per-query performance numbers for session streaming.
type StreamMetrics struct {
	QueryDurationMs int64 `json:"query_duration_ms"`
	DocsFetched     int   `json:"docs_fetched"`
	DocsReturned    int   `json:"docs_returned"`
	SessionsTotal   int   `json:"sessions_total"`
}

// SessionContext is the session-aware streaming annotation on a chunk.
type SessionContext struct {
	Sessions        []SessionSummary `json:"sessions"`
	SessionsInChunk int              `json:"sessions_in_chunk"`
	Metrics         StreamMetrics    `json:"performance_metrics"`
}
