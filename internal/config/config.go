// Package config loads and validates the server configuration. The
// configuration is immutable after load; secrets referenced as op:// URIs
// are resolved during loading.
package config

import (
	"time"

	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

// Config is the root configuration document.
type Config struct {
	Elasticsearch      ElasticsearchConfig `yaml:"elasticsearch" validate:"required"`
	ThreatIntelligence ThreatIntelConfig   `yaml:"threat_intelligence"`
	TCPTransport       TCPTransportConfig  `yaml:"tcp_transport"`
	ErrorHandling      ErrorHandlingConfig `yaml:"error_handling"`
	Query              QueryConfig         `yaml:"query"`
	Performance        PerformanceConfig   `yaml:"performance"`
}

// ElasticsearchConfig configures the SIEM cluster client.
type ElasticsearchConfig struct {
	URL           string   `yaml:"url" validate:"required,url"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	VerifyTLS     *bool    `yaml:"verify_ssl"`
	CACert        string   `yaml:"ca_cert"`
	IndexPatterns []string `yaml:"index_patterns"`
	TimeoutSec    int      `yaml:"timeout" validate:"omitempty,min=1,max=300"`
}

// SourceConfig configures one threat-intelligence provider.
type SourceConfig struct {
	Enabled          bool    `yaml:"enabled"`
	APIKey           string  `yaml:"api_key"`
	BaseURL          string  `yaml:"base_url"`
	RateLimitRPM     int     `yaml:"rate_limit_rpm" validate:"omitempty,min=1"`
	ConcurrencyLimit int     `yaml:"concurrency_limit" validate:"omitempty,min=1,max=64"`
	TimeoutSec       int     `yaml:"timeout" validate:"omitempty,min=1,max=120"`
	Reliability      float64 `yaml:"reliability" validate:"omitempty,min=0,max=1"`
}

// CorrelationConfig tunes correlation scoring.
type CorrelationConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"min=0,max=1"`
}

// WritebackConfig configures enrichment writeback to the SIEM.
type WritebackConfig struct {
	Enabled     bool   `yaml:"enabled"`
	IndexPrefix string `yaml:"index_prefix"`
	DedupDaily  bool   `yaml:"dedup_daily"`
}

// ThreatIntelConfig configures the orchestrator.
type ThreatIntelConfig struct {
	Sources       map[string]SourceConfig `yaml:"sources"`
	Correlation   CorrelationConfig       `yaml:"correlation"`
	Elasticsearch WritebackConfig         `yaml:"elasticsearch"`
	CacheTTLHours float64                 `yaml:"cache_ttl_hours" validate:"omitempty,gt=0"`
	MaxCacheSize  int                     `yaml:"max_cache_size" validate:"omitempty,min=1"`
	DNSResolver   string                  `yaml:"dns_resolver"`
}

// APIKeyConfig is one TCP transport API key with its permissions.
type APIKeyConfig struct {
	Key         string     `yaml:"key" validate:"required"`
	Permissions []string   `yaml:"permissions"`
	ExpiresAt   *time.Time `yaml:"expires_at"`
}

// TCPTransportConfig configures the network transport.
type TCPTransportConfig struct {
	Enabled              bool           `yaml:"enabled"`
	BindAddress          string         `yaml:"bind_address"`
	Port                 int            `yaml:"port" validate:"omitempty,min=1,max=65535"`
	APIKeys              []APIKeyConfig `yaml:"api_keys"`
	RateLimitRPM         int            `yaml:"rate_limit_rpm" validate:"omitempty,min=1"`
	RateLimitBurst       int            `yaml:"rate_limit_burst" validate:"omitempty,min=1"`
	MaxConnections       int            `yaml:"max_connections" validate:"omitempty,min=1"`
	ConnectionTimeoutSec int            `yaml:"connection_timeout" validate:"omitempty,min=1"`
	MaxMessageBytes      int            `yaml:"max_message_size" validate:"omitempty,min=1024"`
}

// TimeoutsConfig holds the per-dependency timeout budget.
type TimeoutsConfig struct {
	ToolCallSec      int `yaml:"tool_call" validate:"omitempty,min=1"`
	ElasticsearchSec int `yaml:"elasticsearch" validate:"omitempty,min=1"`
	ThreatIntelSec   int `yaml:"threat_intelligence" validate:"omitempty,min=1"`
	LaTeXSec         int `yaml:"latex" validate:"omitempty,min=1"`
	DatabaseSec      int `yaml:"database" validate:"omitempty,min=1"`
}

// RetryConfig mirrors error_handling.retry_settings.
type RetryConfig struct {
	MaxRetries      int     `yaml:"max_retries" validate:"omitempty,min=0,max=10"`
	BaseDelaySec    float64 `yaml:"base_delay" validate:"omitempty,gt=0"`
	MaxDelaySec     float64 `yaml:"max_delay" validate:"omitempty,gt=0"`
	ExponentialBase float64 `yaml:"exponential_base" validate:"omitempty,gt=1"`
}

// LoggingConfig mirrors error_handling.logging.
type LoggingConfig struct {
	Level        string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format       string `yaml:"format" validate:"omitempty,oneof=json console auto"`
	IncludeStack bool   `yaml:"include_stack_trace"`
}

// ErrorHandlingConfig groups timeouts, retries and logging.
type ErrorHandlingConfig struct {
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Retry    RetryConfig    `yaml:"retry_settings"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// QueryConfig tunes the query engine.
type QueryConfig struct {
	DefaultPageSize   int     `yaml:"default_page_size" validate:"omitempty,min=1,max=1000"`
	MaxPageSize       int     `yaml:"max_page_size" validate:"omitempty,min=1,max=10000"`
	TimeoutSec        int     `yaml:"timeout" validate:"omitempty,min=1"`
	MaxResultSizeMB   float64 `yaml:"max_result_size_mb" validate:"omitempty,gt=0"`
	FallbackStrategy  string  `yaml:"fallback_strategy" validate:"omitempty,oneof=aggregate sample none"`
	SmartOptimization bool    `yaml:"enable_smart_optimization"`
}

// PerformanceConfig tunes caching and telemetry.
type PerformanceConfig struct {
	EnableCache           bool    `yaml:"enable_cache"`
	EnablePersistentCache bool    `yaml:"enable_persistent_cache"`
	DataDir               string  `yaml:"data_dir"`
	MemoryCacheTTLHours   float64 `yaml:"memory_cache_ttl_hours" validate:"omitempty,gt=0"`
	PersistentTTLHours    float64 `yaml:"persistent_cache_ttl_hours" validate:"omitempty,gt=0"`
	MetricsAddress        string  `yaml:"metrics_address"`
}

// Default reliability weights per source.
var defaultReliability = map[string]float64{
	string(models.SourceDShield):    0.8,
	string(models.SourceVirusTotal): 0.9,
	string(models.SourceShodan):     0.7,
	string(models.SourceAbuseIPDB):  0.8,
	string(models.SourceAlienVault): 0.8,
	string(models.SourceThreatFox):  0.7,
}

// applyDefaults fills unset values in place.
func (c *Config) applyDefaults() {
	if c.Elasticsearch.TimeoutSec == 0 {
		c.Elasticsearch.TimeoutSec = 30
	}
	if len(c.Elasticsearch.IndexPatterns) == 0 {
		c.Elasticsearch.IndexPatterns = []string{"dshield-*", "cowrie-*", "zeek-*"}
	}

	if c.ThreatIntelligence.Sources == nil {
		c.ThreatIntelligence.Sources = map[string]SourceConfig{}
	}
	for name, src := range c.ThreatIntelligence.Sources {
		if src.RateLimitRPM == 0 {
			src.RateLimitRPM = 60
		}
		if src.ConcurrencyLimit == 0 {
			src.ConcurrencyLimit = 2
		}
		if src.TimeoutSec == 0 {
			src.TimeoutSec = 15
		}
		if src.Reliability == 0 {
			if r, ok := defaultReliability[name]; ok {
				src.Reliability = r
			} else {
				src.Reliability = 0.5
			}
		}
		c.ThreatIntelligence.Sources[name] = src
	}
	if c.ThreatIntelligence.Correlation.ConfidenceThreshold == 0 {
		c.ThreatIntelligence.Correlation.ConfidenceThreshold = 0.7
	}
	if c.ThreatIntelligence.Elasticsearch.IndexPrefix == "" {
		c.ThreatIntelligence.Elasticsearch.IndexPrefix = "dshield-enrichment"
	}
	if c.ThreatIntelligence.CacheTTLHours == 0 {
		c.ThreatIntelligence.CacheTTLHours = 1
	}
	if c.ThreatIntelligence.MaxCacheSize == 0 {
		c.ThreatIntelligence.MaxCacheSize = 1000
	}

	if c.TCPTransport.BindAddress == "" {
		c.TCPTransport.BindAddress = "127.0.0.1"
	}
	if c.TCPTransport.Port == 0 {
		c.TCPTransport.Port = 8473
	}
	if c.TCPTransport.RateLimitRPM == 0 {
		c.TCPTransport.RateLimitRPM = 120
	}
	if c.TCPTransport.RateLimitBurst == 0 {
		c.TCPTransport.RateLimitBurst = 20
	}
	if c.TCPTransport.MaxConnections == 0 {
		c.TCPTransport.MaxConnections = 16
	}
	if c.TCPTransport.ConnectionTimeoutSec == 0 {
		c.TCPTransport.ConnectionTimeoutSec = 300
	}
	if c.TCPTransport.MaxMessageBytes == 0 {
		c.TCPTransport.MaxMessageBytes = 1 << 20
	}

	if c.ErrorHandling.Timeouts.ToolCallSec == 0 {
		c.ErrorHandling.Timeouts.ToolCallSec = 120
	}
	if c.ErrorHandling.Timeouts.ElasticsearchSec == 0 {
		c.ErrorHandling.Timeouts.ElasticsearchSec = 30
	}
	if c.ErrorHandling.Timeouts.ThreatIntelSec == 0 {
		c.ErrorHandling.Timeouts.ThreatIntelSec = 30
	}
	if c.ErrorHandling.Timeouts.LaTeXSec == 0 {
		c.ErrorHandling.Timeouts.LaTeXSec = 10
	}
	if c.ErrorHandling.Timeouts.DatabaseSec == 0 {
		c.ErrorHandling.Timeouts.DatabaseSec = 5
	}
	if c.ErrorHandling.Retry.MaxRetries == 0 {
		c.ErrorHandling.Retry.MaxRetries = 3
	}
	if c.ErrorHandling.Retry.BaseDelaySec == 0 {
		c.ErrorHandling.Retry.BaseDelaySec = 1
	}
	if c.ErrorHandling.Retry.MaxDelaySec == 0 {
		c.ErrorHandling.Retry.MaxDelaySec = 30
	}
	if c.ErrorHandling.Retry.ExponentialBase == 0 {
		c.ErrorHandling.Retry.ExponentialBase = 2
	}
	if c.ErrorHandling.Logging.Level == "" {
		c.ErrorHandling.Logging.Level = "info"
	}
	if c.ErrorHandling.Logging.Format == "" {
		c.ErrorHandling.Logging.Format = "auto"
	}

	if c.Query.DefaultPageSize == 0 {
		c.Query.DefaultPageSize = 100
	}
	if c.Query.MaxPageSize == 0 {
		c.Query.MaxPageSize = 1000
	}
	if c.Query.TimeoutSec == 0 {
		c.Query.TimeoutSec = 30
	}
	if c.Query.MaxResultSizeMB == 0 {
		c.Query.MaxResultSizeMB = 10
	}
	if c.Query.FallbackStrategy == "" {
		c.Query.FallbackStrategy = "aggregate"
	}

	if c.Performance.DataDir == "" {
		c.Performance.DataDir = defaultDataDir()
	}
	if c.Performance.MemoryCacheTTLHours == 0 {
		c.Performance.MemoryCacheTTLHours = 1
	}
	if c.Performance.PersistentTTLHours == 0 {
		c.Performance.PersistentTTLHours = 24
	}
}

// EnabledSources returns the enabled source names in stable config order.
func (c *ThreatIntelConfig) EnabledSources() []models.Source {
	// Map order is randomized; use the canonical source order so weighted
	// voting tie-breaks stay deterministic.
	order := []models.Source{
		models.SourceDShield, models.SourceVirusTotal, models.SourceShodan,
		models.SourceAbuseIPDB, models.SourceAlienVault, models.SourceThreatFox,
	}
	var out []models.Source
	for _, s := range order {
		if src, ok := c.Sources[string(s)]; ok && src.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Timeout helpers.

func (t TimeoutsConfig) ToolCall() time.Duration    { return time.Duration(t.ToolCallSec) * time.Second }
func (t TimeoutsConfig) Elasticsearch() time.Duration {
	return time.Duration(t.ElasticsearchSec) * time.Second
}
func (t TimeoutsConfig) ThreatIntel() time.Duration { return time.Duration(t.ThreatIntelSec) * time.Second }
func (t TimeoutsConfig) LaTeX() time.Duration       { return time.Duration(t.LaTeXSec) * time.Second }
func (t TimeoutsConfig) Database() time.Duration    { return time.Duration(t.DatabaseSec) * time.Second }
