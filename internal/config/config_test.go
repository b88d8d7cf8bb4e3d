package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
elasticsearch:
  url: https://siem.example.com:9200
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"dshield-*", "cowrie-*", "zeek-*"}, cfg.Elasticsearch.IndexPatterns)
	assert.Equal(t, 30, cfg.Elasticsearch.TimeoutSec)
	assert.Equal(t, 100, cfg.Query.DefaultPageSize)
	assert.Equal(t, 1000, cfg.Query.MaxPageSize)
	assert.Equal(t, "aggregate", cfg.Query.FallbackStrategy)
	assert.Equal(t, 0.7, cfg.ThreatIntelligence.Correlation.ConfidenceThreshold)
	assert.Equal(t, "dshield-enrichment", cfg.ThreatIntelligence.Elasticsearch.IndexPrefix)
	assert.Equal(t, "127.0.0.1", cfg.TCPTransport.BindAddress)
	assert.Equal(t, 8473, cfg.TCPTransport.Port)
	assert.Equal(t, 1<<20, cfg.TCPTransport.MaxMessageBytes)
	assert.Equal(t, 120, cfg.ErrorHandling.Timeouts.ToolCallSec)
	assert.Equal(t, "info", cfg.ErrorHandling.Logging.Level)
}

func TestLoadRequiresElasticsearchURL(t *testing.T) {
	path := writeConfig(t, `
query:
  default_page_size: 50
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elasticsearch.url")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
elasticsearch:
  url: https://siem.example.com:9200
query:
  fallback_strategy: improvise
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadSourceDefaults(t *testing.T) {
	path := writeConfig(t, `
elasticsearch:
  url: https://siem.example.com:9200
threat_intelligence:
  sources:
    dshield:
      enabled: true
    virustotal:
      enabled: true
      api_key: vt-key
      rate_limit_rpm: 4
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	ds := cfg.ThreatIntelligence.Sources["dshield"]
	assert.Equal(t, 60, ds.RateLimitRPM)
	assert.Equal(t, 2, ds.ConcurrencyLimit)
	assert.Equal(t, 15, ds.TimeoutSec)
	assert.Equal(t, 0.8, ds.Reliability)

	vt := cfg.ThreatIntelligence.Sources["virustotal"]
	assert.Equal(t, 4, vt.RateLimitRPM, "explicit values survive defaulting")
	assert.Equal(t, 0.9, vt.Reliability)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
elasticsearch:
  url: https://siem.example.com:9200
`)
	t.Setenv("ELASTICSEARCH_URL", "https://other.example.com:9200")
	t.Setenv(EnvTCPMode, "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com:9200", cfg.Elasticsearch.URL)
	assert.True(t, cfg.TCPTransport.Enabled)
}

func TestEnabledSourcesCanonicalOrder(t *testing.T) {
	ti := ThreatIntelConfig{Sources: map[string]SourceConfig{
		"threatfox":  {Enabled: true},
		"dshield":    {Enabled: true},
		"virustotal": {Enabled: false},
		"shodan":     {Enabled: true},
	}}
	assert.Equal(t, []models.Source{
		models.SourceDShield, models.SourceShodan, models.SourceThreatFox,
	}, ti.EnabledSources())

	var none ThreatIntelConfig
	assert.Empty(t, none.EnabledSources())
}
