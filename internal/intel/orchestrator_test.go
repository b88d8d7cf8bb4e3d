package intel

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
	"github.com/dshield-mcp/dshield-mcp/internal/telemetry"
)

// scriptedSource returns a canned result or error for fan-out tests.
type scriptedSource struct {
	name   models.Source
	result *models.SourceResult
	err    error
}

func (s *scriptedSource) Name() models.Source  { return s.name }
func (s *scriptedSource) Enabled() bool        { return true }
func (s *scriptedSource) Reliability() float64 { return 0.9 }
func (s *scriptedSource) SupportsDomain() bool { return false }

func (s *scriptedSource) GetIPReputation(ctx context.Context, ip string) (*models.SourceResult, error) {
	return s.result, s.err
}

func (s *scriptedSource) GetDomain(ctx context.Context, domain string) (*models.SourceResult, error) {
	return s.result, s.err
}

func TestFanOutExcludesFailedSources(t *testing.T) {
	good := &scriptedSource{name: models.SourceDShield, result: &models.SourceResult{Source: models.SourceDShield}}
	bad := &scriptedSource{name: models.SourceVirusTotal, err: errors.New("upstream unavailable")}

	o := &Orchestrator{
		providers: []Provider{good, bad},
		limiters: map[models.Source]*sourceLimiter{
			models.SourceDShield:    newSourceLimiter(600, 4),
			models.SourceVirusTotal: newSourceLimiter(600, 4),
		},
	}

	failedBefore := testutil.ToFloat64(telemetry.ProviderErrors.WithLabelValues(string(models.SourceVirusTotal)))
	goodBefore := testutil.ToFloat64(telemetry.ProviderErrors.WithLabelValues(string(models.SourceDShield)))

	results := o.fanOut(context.Background(), "203.0.113.7",
		func(ctx context.Context, p Provider) (*models.SourceResult, error) {
			return p.GetIPReputation(ctx, "203.0.113.7")
		}, nil)

	require.Len(t, results, 1)
	assert.Contains(t, results, models.SourceDShield)
	assert.NotContains(t, results, models.SourceVirusTotal)

	assert.Equal(t, failedBefore+1,
		testutil.ToFloat64(telemetry.ProviderErrors.WithLabelValues(string(models.SourceVirusTotal))))
	assert.Equal(t, goodBefore,
		testutil.ToFloat64(telemetry.ProviderErrors.WithLabelValues(string(models.SourceDShield))))
}

func TestOrchestratorCacheTTLFromConfig(t *testing.T) {
	o := NewOrchestrator(config.ThreatIntelConfig{CacheTTLHours: 2}, nil, nil)
	assert.Equal(t, 2*time.Hour, o.cacheTTL)
}

func TestClassifyIndicator(t *testing.T) {
	cases := []struct {
		in   string
		want models.IndicatorType
	}{
		{"203.0.113.7", models.IndicatorIP},
		{"2001:db8::1", models.IndicatorIP},
		{"CVE-2024-3094", models.IndicatorCVE},
		{"cve-2021-44228", models.IndicatorCVE},
		{strings.Repeat("a", 32), models.IndicatorHash},
		{strings.Repeat("0", 40), models.IndicatorHash},
		{strings.Repeat("F", 64), models.IndicatorHash},
		{"evil.example.com", models.IndicatorDomain},
		{strings.Repeat("a", 33), models.IndicatorGeneric},
		{strings.Repeat("z", 32), models.IndicatorGeneric},
		{"not an indicator", models.IndicatorGeneric},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ClassifyIndicator(tc.in), tc.in)
	}
}

func TestIntersectSourcesCanonicalOrder(t *testing.T) {
	sets := []map[models.Source]bool{
		{models.SourceThreatFox: true, models.SourceDShield: true, models.SourceShodan: true},
		{models.SourceDShield: true, models.SourceThreatFox: true},
	}
	assert.Equal(t, []models.Source{models.SourceDShield, models.SourceThreatFox}, intersectSources(sets))

	sets[1] = map[models.Source]bool{models.SourceVirusTotal: true}
	assert.Empty(t, intersectSources(sets))
}

func TestIntersectTagsSorted(t *testing.T) {
	sets := []map[string]bool{
		{"scanner": true, "botnet": true, "tor": true},
		{"botnet": true, "scanner": true},
	}
	assert.Equal(t, []string{"botnet", "scanner"}, intersectTags(sets))
}

func TestTagSetMergesAcrossSources(t *testing.T) {
	set := tagSet(map[models.Source]*models.SourceResult{
		models.SourceDShield:    {Tags: []string{"scanner"}},
		models.SourceVirusTotal: {Tags: []string{"scanner", "botnet"}},
	})
	assert.True(t, set["scanner"])
	assert.True(t, set["botnet"])
	assert.Len(t, set, 2)
}
