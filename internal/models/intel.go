package models

import "time"

// Source identifies a threat-intelligence provider.
type Source string

const (
	SourceDShield    Source = "dshield"
	SourceVirusTotal Source = "virustotal"
	SourceShodan     Source = "shodan"
	SourceAbuseIPDB  Source = "abuseipdb"
	SourceAlienVault Source = "alienvault"
	SourceThreatFox  Source = "threatfox"
)

// SourceResult is the normalized response from one provider for one
// indicator. Nil score pointers mean "no signal from this source", never 0.
type SourceResult struct {
	Source          Source         `json:"source"`
	Indicator       string         `json:"indicator"`
	ThreatScore     *float64       `json:"threat_score,omitempty"`
	ReputationScore *float64       `json:"reputation_score,omitempty"`
	Confidence      *float64       `json:"confidence,omitempty"`
	Country         string         `json:"country,omitempty"`
	Region          string         `json:"region,omitempty"`
	City            string         `json:"city,omitempty"`
	ASN             string         `json:"asn,omitempty"`
	Organization    string         `json:"organization,omitempty"`
	ISP             string         `json:"isp,omitempty"`
	FirstSeen       *time.Time     `json:"first_seen,omitempty"`
	LastSeen        *time.Time     `json:"last_seen,omitempty"`
	AttackTypes     []string       `json:"attack_types,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	Indicators      []string       `json:"indicators,omitempty"`
	Raw             map[string]any `json:"raw,omitempty"`
}

// ThreatIndicator is one correlated indicator string with the sources that
// reported it and the reliability-weighted confidence.
type ThreatIndicator struct {
	Indicator   string   `json:"indicator"`
	Confidence  float64  `json:"confidence"`
	Sources     []Source `json:"sources"`
	SourceCount int      `json:"source_count"`
}

// GeographicData aggregates the weighted-vote winners per geo field.
type GeographicData struct {
	Country string `json:"country,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
}

// NetworkData aggregates the weighted-vote winners per network field.
type NetworkData struct {
	ASN          string `json:"asn,omitempty"`
	Organization string `json:"organization,omitempty"`
	ISP          string `json:"isp,omitempty"`
}

// CorrelationMetrics describes correlation quality.
type CorrelationMetrics struct {
	SourceCount         int     `json:"source_count"`
	IndicatorCount      int     `json:"indicator_count"`
	DataCompleteness    float64 `json:"data_completeness"`
	ThreatScoreVariance float64 `json:"threat_score_variance"`
}

// ThreatIntelligenceResult is the aggregated verdict for one indicator
// across all queried sources.
type ThreatIntelligenceResult struct {
	Indicator          string                   `json:"indicator"`
	OverallThreatScore *float64                 `json:"overall_threat_score,omitempty"`
	ConfidenceScore    *float64                 `json:"confidence_score,omitempty"`
	SourceResults      map[Source]*SourceResult `json:"source_results,omitempty"`
	ThreatIndicators   []ThreatIndicator        `json:"threat_indicators,omitempty"`
	Geographic         GeographicData           `json:"geographic"`
	Network            NetworkData              `json:"network"`
	FirstSeen          *time.Time               `json:"first_seen,omitempty"`
	LastSeen           *time.Time               `json:"last_seen,omitempty"`
	SourcesQueried     []Source                 `json:"sources_queried"`
	QueryTimestamp     time.Time                `json:"query_timestamp"`
	CacheHit           bool                     `json:"cache_hit"`
	Metrics            CorrelationMetrics       `json:"correlation_metrics"`
}

// DomainIntelligence is the aggregated verdict for a domain name.
type DomainIntelligence struct {
	Domain             string                   `json:"domain"`
	OverallThreatScore *float64                 `json:"overall_threat_score,omitempty"`
	ConfidenceScore    *float64                 `json:"confidence_score,omitempty"`
	SourceResults      map[Source]*SourceResult `json:"source_results,omitempty"`
	AssociatedIPs      []string                 `json:"associated_ips,omitempty"`
	Nameservers        []string                 `json:"nameservers,omitempty"`
	Registrar          string                   `json:"registrar,omitempty"`
	CreationDate       *time.Time               `json:"creation_date,omitempty"`
	Categories         []string                 `json:"categories,omitempty"`
	Tags               []string                 `json:"tags,omitempty"`
	SourcesQueried     []Source                 `json:"sources_queried"`
	QueryTimestamp     time.Time                `json:"query_timestamp"`
	CacheHit           bool                     `json:"cache_hit"`
	Metrics            CorrelationMetrics       `json:"correlation_metrics"`
}

// IndicatorType classifies an indicator for correlate_indicators.
type IndicatorType string

const (
	IndicatorIP      IndicatorType = "ip"
	IndicatorDomain  IndicatorType = "domain"
	IndicatorHash    IndicatorType = "hash"
	IndicatorCVE     IndicatorType = "cve"
	IndicatorGeneric IndicatorType = "generic"
)
