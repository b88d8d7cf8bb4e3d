package siem

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

// ParseEvent normalizes one search hit into a SecurityEvent. Documents that
// violate the model invariants are dropped by the caller.
func ParseEvent(hit Hit) (*models.SecurityEvent, error) {
	src := hit.Source
	ev := &models.SecurityEvent{
		ID:          hit.ID,
		RawDocument: src,
		Indices:     []string{hit.Index},
	}

	ts, ok := lookupTime(src, "@timestamp")
	if !ok {
		return nil, fmt.Errorf("document %s has no parseable @timestamp", hit.ID)
	}
	ev.Timestamp = ts

	ev.SourceIP = lookupString(src, "source.ip")
	ev.DestinationIP = lookupString(src, "destination.ip")
	ev.SourcePort = lookupPort(src, "source.port")
	ev.DestinationPort = lookupPort(src, "destination.port")
	ev.Protocol = lookupString(src, "network.transport")
	ev.EventType = firstNonEmpty(
		lookupString(src, "event.type"),
		lookupString(src, "event.action"),
		"unknown")
	ev.Severity = parseSeverity(src)
	ev.Category = parseCategory(lookupString(src, "event.category"))
	ev.Description = firstNonEmpty(
		lookupString(src, "message"),
		lookupString(src, "event.original"))
	ev.Country = lookupString(src, "source.geo.country_name")
	ev.ASN = lookupString(src, "source.as.number")
	ev.Organization = lookupString(src, "source.as.organization.name")
	ev.Tags = lookupStrings(src, "tags")
	ev.AttackTypes = lookupStrings(src, "attack_types")

	if score, ok := lookupFloat(src, "reputation.score"); ok {
		ev.ReputationScore = &score
	}
	if count, ok := lookupFloat(src, "attack_count"); ok {
		ev.AttackCount = int(count)
	}
	if first, ok := lookupTime(src, "first_seen"); ok {
		ev.FirstSeen = &first
	}
	if last, ok := lookupTime(src, "last_seen"); ok {
		ev.LastSeen = &last
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// ParseEvents converts all hits, skipping and logging invalid documents.
func ParseEvents(hits []Hit) []models.SecurityEvent {
	events := make([]models.SecurityEvent, 0, len(hits))
	for _, hit := range hits {
		ev, err := ParseEvent(hit)
		if err != nil {
			log.Debug().Str("id", hit.ID).Err(err).Msg("Skipping malformed document")
			continue
		}
		events = append(events, *ev)
	}
	return events
}

// lookup resolves a dotted path against a _source document, accepting both
// nested objects and flattened dotted keys.
func lookup(src map[string]any, path string) (any, bool) {
	if v, ok := src[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	var cur any = src
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func lookupString(src map[string]any, path string) string {
	v, ok := lookup(src, path)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case []any:
		if len(s) > 0 {
			if str, ok := s[0].(string); ok {
				return str
			}
		}
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return ""
}

func lookupStrings(src map[string]any, path string) []string {
	v, ok := lookup(src, path)
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		return []string{s}
	}
	return nil
}

func lookupFloat(src map[string]any, path string) (float64, bool) {
	v, ok := lookup(src, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func lookupPort(src map[string]any, path string) *int {
	f, ok := lookupFloat(src, path)
	if !ok {
		return nil
	}
	port := int(f)
	return &port
}

func lookupTime(src map[string]any, path string) (time.Time, bool) {
	v, ok := lookup(src, path)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	case float64:
		// Epoch millis.
		return time.UnixMilli(int64(t)).UTC(), true
	}
	return time.Time{}, false
}

func parseSeverity(src map[string]any) models.Severity {
	if s := strings.ToLower(lookupString(src, "severity")); s != "" {
		switch s {
		case "low", "medium", "high", "critical":
			return models.Severity(s)
		}
	}
	if n, ok := lookupFloat(src, "event.severity"); ok {
		switch {
		case n >= 9:
			return models.SeverityCritical
		case n >= 7:
			return models.SeverityHigh
		case n >= 4:
			return models.SeverityMedium
		default:
			return models.SeverityLow
		}
	}
	return models.SeverityMedium
}

func parseCategory(raw string) models.Category {
	switch models.Category(strings.ToLower(raw)) {
	case models.CategoryNetwork, models.CategoryAuthentication, models.CategoryMalware,
		models.CategoryIntrusion, models.CategoryReconnaissance, models.CategoryDenialOfSvc,
		models.CategoryAttack, models.CategoryBlock, models.CategoryReputation,
		models.CategoryGeographic, models.CategoryASN, models.CategoryOrganization,
		models.CategoryPort, models.CategoryProtocol:
		return models.Category(strings.ToLower(raw))
	}
	return models.CategoryOther
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
