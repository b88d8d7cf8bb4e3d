// Package fieldmap translates user-friendly field names into the backend's
// canonical ECS-style schema. The table is static and bidirectional.
package fieldmap

import (
	"sort"

	"github.com/dshield-mcp/dshield-mcp/internal/models"
	"github.com/rs/zerolog/log"
)

// aliases maps friendly names to canonical backend fields.
var aliases = map[string]string{
	"source_ip":        "source.ip",
	"src_ip":           "source.ip",
	"source_port":      "source.port",
	"src_port":         "source.port",
	"dest_ip":          "destination.ip",
	"destination_ip":   "destination.ip",
	"dst_ip":           "destination.ip",
	"dest_port":        "destination.port",
	"destination_port": "destination.port",
	"dst_port":         "destination.port",
	"protocol":         "network.transport",
	"transport":        "network.transport",
	"event_type":       "event.type",
	"event_category":   "event.category",
	"category":         "event.category",
	"event_action":     "event.action",
	"event_outcome":    "event.outcome",
	"severity":         "event.severity",
	"timestamp":        "@timestamp",
	"time":             "@timestamp",
	"country":          "source.geo.country_name",
	"source_country":   "source.geo.country_name",
	"dest_country":     "destination.geo.country_name",
	"city":             "source.geo.city_name",
	"region":           "source.geo.region_name",
	"asn":              "source.as.number",
	"as_number":        "source.as.number",
	"organization":     "source.as.organization.name",
	"org":              "source.as.organization.name",
	"http_method":      "http.request.method",
	"http_status":      "http.response.status_code",
	"url":              "url.original",
	"url_path":         "url.path",
	"user_agent":       "user_agent.original",
	"username":         "user.name",
	"user":             "user.name",
	"password":         "user.password",
	"session_id":       "session.id",
	"hostname":         "host.name",
	"host":             "host.name",
	"filename":         "file.name",
	"file_hash":        "file.hash.sha256",
	"sha256":           "file.hash.sha256",
	"md5":              "file.hash.md5",
	"process_name":     "process.name",
	"command":          "process.command_line",
	"rule_name":        "rule.name",
	"rule_id":          "rule.id",
	"bytes":            "network.bytes",
	"message":          "message",
	"tags":             "tags",
}

// reverse maps canonical fields back to the preferred friendly name.
var reverse = buildReverse()

func buildReverse() map[string]string {
	// Several aliases share a canonical field; the lexicographically first
	// alias wins so the reverse mapping stays deterministic.
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rev := make(map[string]string, len(keys))
	for _, k := range keys {
		canonical := aliases[k]
		if _, ok := rev[canonical]; !ok {
			rev[canonical] = k
		}
	}
	return rev
}

// Canonical returns the backend field for a friendly name. Unmapped names
// pass through verbatim and are logged as mapping candidates.
func Canonical(field string) string {
	if mapped, ok := aliases[field]; ok {
		return mapped
	}
	if _, ok := reverse[field]; !ok {
		log.Debug().Str("field", field).Msg("Unmapped field passed through to backend")
	}
	return field
}

// Friendly returns the friendly alias for a canonical field, or the field
// itself when none exists.
func Friendly(canonical string) string {
	if alias, ok := reverse[canonical]; ok {
		return alias
	}
	return canonical
}

// MapFilters rewrites filter keys to canonical fields. Pure function: the
// input slice is not modified.
func MapFilters(filters []models.Filter) []models.Filter {
	if len(filters) == 0 {
		return nil
	}
	mapped := make([]models.Filter, len(filters))
	for i, f := range filters {
		f.Field = Canonical(f.Field)
		mapped[i] = f
	}
	return mapped
}

// MapFields rewrites a projection list to canonical fields.
func MapFields(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	mapped := make([]string, len(fields))
	for i, f := range fields {
		mapped[i] = Canonical(f)
	}
	return mapped
}

// Table returns a copy of the alias table, used by the resources surface.
func Table() map[string]string {
	out := make(map[string]string, len(aliases))
	for k, v := range aliases {
		out[k] = v
	}
	return out
}
