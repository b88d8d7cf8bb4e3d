package siem

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/fieldmap"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

// DefaultSessionFields are the composite-key fields for session grouping.
var DefaultSessionFields = []string{"source.ip", "destination.ip", "user.name", "session.id"}

const (
	maxStreamFetch  = 2000
	noSessionBucket = "no_session"
)

// StreamParams are the inputs to StreamEvents.
type StreamParams struct {
	TimeRangeHours       float64
	Indices              []string
	Filters              []models.Filter
	Fields               []string
	ChunkSize            int
	Cursor               string
	SessionFields        []string
	MaxSessionGapMinutes float64
}

// StreamResult is one session-aware chunk.
type StreamResult struct {
	Events         []models.SecurityEvent `json:"events"`
	TotalCount     int64                  `json:"total_count"`
	NextCursor     string                 `json:"next_cursor,omitempty"`
	SessionContext models.SessionContext  `json:"session_context"`
}

type sessionGroup struct {
	key    string
	docs   []Hit
	latest time.Time
	oldest time.Time
	meta   map[string]string
}

// StreamEvents fetches up to min(2 x chunk_size, 2000) candidate documents,
// groups them into sessions, and emits whole sessions until the chunk is
// full. A single session larger than the chunk is emitted alone.
func (e *Engine) StreamEvents(ctx context.Context, p StreamParams) (*StreamResult, error) {
	if p.ChunkSize < 1 {
		return nil, dserrors.Invalidf("siem.stream_events", "chunk_size must be >= 1, got %d", p.ChunkSize)
	}
	if p.TimeRangeHours <= 0 {
		p.TimeRangeHours = 24
	}
	if len(p.Indices) == 0 {
		p.Indices = e.indexPatterns
	}
	if len(p.SessionFields) == 0 {
		p.SessionFields = DefaultSessionFields
	}
	if p.MaxSessionGapMinutes <= 0 {
		p.MaxSessionGapMinutes = 30
	}
	sessionFields := fieldmap.MapFields(p.SessionFields)
	for _, f := range p.Filters {
		if err := f.Validate(); err != nil {
			return nil, dserrors.InvalidParams("siem.stream_events", err)
		}
	}

	start := time.Now()
	tr := models.LastHours(p.TimeRangeHours)
	query := BuildEventQuery(tr, p.Filters, true)

	total, err := e.client.Count(ctx, p.Indices, query)
	if err != nil {
		return nil, err
	}

	fetchSize := 2 * p.ChunkSize
	if fetchSize > maxStreamFetch {
		fetchSize = maxStreamFetch
	}
	body := map[string]any{
		"query": query,
		"size":  fetchSize,
		"sort":  sortClauses(nil),
	}
	if len(p.Fields) > 0 {
		body["_source"] = fieldmap.MapFields(p.Fields)
	}
	esq := models.ElasticsearchQuery{
		Indices:   p.Indices,
		TimeRange: tr,
		Filters:   p.Filters,
		Size:      fetchSize,
	}
	if p.Cursor != "" {
		after, err := DecodeCursor(p.Cursor)
		if err != nil {
			return nil, dserrors.InvalidParams("siem.stream_events", err)
		}
		body["search_after"] = after
		esq.SearchAfter = after
	}
	if err := esq.Validate(); err != nil {
		return nil, dserrors.InvalidParams("siem.stream_events", err)
	}

	resp, err := e.client.Search(ctx, p.Indices, body)
	if err != nil {
		return nil, err
	}
	hits := resp.Hits.Hits
	exhausted := len(hits) < fetchSize

	gap := time.Duration(p.MaxSessionGapMinutes * float64(time.Minute))
	groups := groupSessions(hits, sessionFields, gap)

	// Emit whole groups, newest session first, until the chunk is full.
	var emitted []sessionGroup
	emittedDocs := 0
	for _, g := range groups {
		if emittedDocs > 0 && emittedDocs+len(g.docs) > p.ChunkSize {
			break
		}
		emitted = append(emitted, g)
		emittedDocs += len(g.docs)
		if emittedDocs >= p.ChunkSize {
			break
		}
	}

	var (
		events    []models.SecurityEvent
		summaries []models.SessionSummary
		lastSort  []any
	)
	for _, g := range emitted {
		for _, hit := range g.docs {
			ev, err := ParseEvent(hit)
			if err != nil {
				log.Debug().Str("id", hit.ID).Err(err).Msg("Skipping malformed document in stream")
				continue
			}
			events = append(events, *ev)
		}
		summaries = append(summaries, summarize(g))
	}

	// The cursor is the sort key of the oldest emitted document so the next
	// chunk resumes past everything already delivered. Sessions fetched but
	// held back for the next chunk stay reachable through it.
	lastSort = oldestEmittedSort(emitted)
	next, err := nextStreamCursor(exhausted, emittedDocs, len(hits), lastSort)
	if err != nil {
		return nil, dserrors.Internal("siem.stream_events", err)
	}

	return &StreamResult{
		Events:     events,
		TotalCount: total,
		NextCursor: next,
		SessionContext: models.SessionContext{
			Sessions:        summaries,
			SessionsInChunk: len(emitted),
			Metrics: models.StreamMetrics{
				QueryDurationMs: time.Since(start).Milliseconds(),
				DocsFetched:     len(hits),
				DocsReturned:    len(events),
				SessionsTotal:   len(groups),
			},
		},
	}, nil
}

// nextStreamCursor encodes the resume cursor. It is suppressed only when
// the backend is exhausted and every fetched document was emitted; a chunk
// that held sessions back always yields a cursor so they stay deliverable.
func nextStreamCursor(exhausted bool, emittedDocs, fetched int, lastSort []any) (string, error) {
	if lastSort == nil || (exhausted && emittedDocs == fetched) {
		return "", nil
	}
	return EncodeCursor(lastSort)
}

// groupSessions buckets hits by composite session key, splits keyed sessions
// at idle gaps longer than gap, and orders groups by their latest timestamp,
// newest first. gap zero disables splitting.
func groupSessions(hits []Hit, sessionFields []string, gap time.Duration) []sessionGroup {
	byKey := map[string]*sessionGroup{}
	var order []string
	for _, hit := range hits {
		key, meta := sessionKey(hit.Source, sessionFields)
		g, ok := byKey[key]
		if !ok {
			g = &sessionGroup{key: key, meta: meta}
			byKey[key] = g
			order = append(order, key)
		}
		g.docs = append(g.docs, hit)
		if ts, ok := lookupTime(hit.Source, timestampField); ok {
			if g.latest.IsZero() || ts.After(g.latest) {
				g.latest = ts
			}
			if g.oldest.IsZero() || ts.Before(g.oldest) {
				g.oldest = ts
			}
		}
	}

	groups := make([]sessionGroup, 0, len(order))
	for _, key := range order {
		g := byKey[key]
		if gap > 0 && g.key != noSessionBucket {
			groups = append(groups, splitByGap(*g, gap)...)
			continue
		}
		groups = append(groups, *g)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].latest.After(groups[j].latest)
	})
	return groups
}

// splitByGap cuts one session where consecutive documents are idle for
// longer than gap. Docs arrive newest first, so a boundary is a backwards
// jump larger than the gap. Later segments get a numbered key suffix.
func splitByGap(g sessionGroup, gap time.Duration) []sessionGroup {
	var (
		out  []sessionGroup
		cur  []Hit
		prev time.Time
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		seg := sessionGroup{key: g.key, meta: g.meta, docs: cur}
		if len(out) > 0 {
			seg.key = fmt.Sprintf("%s#%d", g.key, len(out)+1)
		}
		for _, hit := range cur {
			if ts, ok := lookupTime(hit.Source, timestampField); ok {
				if seg.latest.IsZero() || ts.After(seg.latest) {
					seg.latest = ts
				}
				if seg.oldest.IsZero() || ts.Before(seg.oldest) {
					seg.oldest = ts
				}
			}
		}
		out = append(out, seg)
		cur = nil
	}
	for _, hit := range g.docs {
		ts, ok := lookupTime(hit.Source, timestampField)
		if ok && !prev.IsZero() && prev.Sub(ts) > gap {
			flush()
		}
		cur = append(cur, hit)
		if ok {
			prev = ts
		}
	}
	flush()
	return out
}

// sessionKey builds the composite key from present session-field values.
// Documents carrying none of the fields share the no_session bucket.
func sessionKey(src map[string]any, sessionFields []string) (string, map[string]string) {
	var parts []string
	meta := map[string]string{}
	for _, field := range sessionFields {
		if v := lookupString(src, field); v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", field, v))
			meta[fieldmap.Friendly(field)] = v
		}
	}
	if len(parts) == 0 {
		return noSessionBucket, nil
	}
	return strings.Join(parts, "|"), meta
}

func summarize(g sessionGroup) models.SessionSummary {
	duration := 0.0
	if !g.latest.IsZero() && !g.oldest.IsZero() {
		duration = g.latest.Sub(g.oldest).Minutes()
	}
	return models.SessionSummary{
		SessionKey:      g.key,
		EventCount:      len(g.docs),
		FirstTimestamp:  g.oldest,
		LastTimestamp:   g.latest,
		DurationMinutes: duration,
		Metadata:        g.meta,
	}
}

// oldestEmittedSort finds the sort values of the emitted document that sits
// deepest in the backend sort order.
func oldestEmittedSort(emitted []sessionGroup) []any {
	var (
		oldest     time.Time
		oldestSort []any
	)
	for _, g := range emitted {
		for _, hit := range g.docs {
			ts, ok := lookupTime(hit.Source, timestampField)
			if !ok || len(hit.Sort) == 0 {
				continue
			}
			if oldestSort == nil || ts.Before(oldest) {
				oldest = ts
				oldestSort = hit.Sort
			}
		}
	}
	return oldestSort
}
