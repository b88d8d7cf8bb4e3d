// Package health runs the dependency health checks behind the health_check
// tool: SIEM reachability, threat-intelligence API and per-source
// configuration, LaTeX availability, and the cache database.
package health

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

// Per-check timeout budget.
const (
	siemCheckTimeout    = 30 * time.Second
	intelAPITimeout     = 30 * time.Second
	latexCheckTimeout   = 10 * time.Second
	intelSourcesTimeout = 15 * time.Second
	databaseTimeout     = 5 * time.Second
)

// SIEMPinger reports cluster reachability. *siem.Client satisfies it.
type SIEMPinger interface {
	ClusterHealth(ctx context.Context) (map[string]any, error)
}

// DatabasePinger reports cache database liveness. *cache.Cache wraps one.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// CheckResult is the outcome of one dependency check.
type CheckResult struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	Detail    string `json:"detail,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report aggregates all check outcomes.
type Report struct {
	HealthyServices   []string      `json:"healthy_services"`
	UnhealthyServices []string      `json:"unhealthy_services"`
	OverallHealth     float64       `json:"overall_health"`
	LastCheck         time.Time     `json:"last_check_timestamp"`
	Checks            []CheckResult `json:"checks"`
}

// Checker owns the dependency handles the checks probe.
type Checker struct {
	siem      SIEMPinger
	db        DatabasePinger
	intelCfg  config.ThreatIntelConfig
	latexBin  string
	httpProbe *http.Client
}

// NewChecker wires the checker. siem and db may be nil when the dependency
// is disabled; nil dependencies report healthy as "not configured".
func NewChecker(siem SIEMPinger, db DatabasePinger, intelCfg config.ThreatIntelConfig) *Checker {
	return &Checker{
		siem:     siem,
		db:       db,
		intelCfg: intelCfg,
		latexBin: "pdflatex",
		httpProbe: &http.Client{
			Timeout: intelAPITimeout,
		},
	}
}

// Run executes the five checks concurrently, each under its own timeout,
// and aggregates the outcomes.
func (c *Checker) Run(ctx context.Context) *Report {
	checks := []struct {
		name    string
		timeout time.Duration
		fn      func(ctx context.Context) error
	}{
		{"elasticsearch", siemCheckTimeout, c.checkSIEM},
		{"threat_intelligence_api", intelAPITimeout, c.checkIntelAPI},
		{"latex", latexCheckTimeout, c.checkLaTeX},
		{"threat_intelligence_sources", intelSourcesTimeout, c.checkIntelSources},
		{"database", databaseTimeout, c.checkDatabase},
	}

	results := make([]CheckResult, len(checks))
	g, ctx := errgroup.WithContext(ctx)
	for i, check := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, check.timeout)
			defer cancel()

			start := time.Now()
			err := check.fn(cctx)
			results[i] = CheckResult{
				Name:      check.name,
				Healthy:   err == nil,
				LatencyMs: time.Since(start).Milliseconds(),
			}
			if err != nil {
				results[i].Detail = err.Error()
				log.Warn().Str("check", check.name).Err(err).Msg("Health check failed")
			}
			return nil
		})
	}
	g.Wait()

	report := &Report{
		LastCheck: time.Now().UTC(),
		Checks:    results,
	}
	for _, r := range results {
		if r.Healthy {
			report.HealthyServices = append(report.HealthyServices, r.Name)
		} else {
			report.UnhealthyServices = append(report.UnhealthyServices, r.Name)
		}
	}
	report.OverallHealth = float64(len(report.HealthyServices)) / float64(len(results))
	return report
}

func (c *Checker) checkSIEM(ctx context.Context) error {
	if c.siem == nil {
		return nil
	}
	status, err := c.siem.ClusterHealth(ctx)
	if err != nil {
		return err
	}
	if s, _ := status["status"].(string); s == "red" {
		return fmt.Errorf("cluster status is red")
	}
	return nil
}

// checkIntelAPI probes the first enabled source's endpoint for basic
// reachability. No enabled source means the subsystem is off, not broken.
func (c *Checker) checkIntelAPI(ctx context.Context) error {
	enabled := c.intelCfg.EnabledSources()
	if len(enabled) == 0 {
		return nil
	}
	url := probeURL(enabled[0], c.intelCfg.Sources[string(enabled[0])])
	if url == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpProbe.Do(req)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", enabled[0], err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s returned %d", enabled[0], resp.StatusCode)
	}
	return nil
}

func (c *Checker) checkLaTeX(ctx context.Context) error {
	bin, err := exec.LookPath(c.latexBin)
	if err != nil {
		return fmt.Errorf("%s not found in PATH", c.latexBin)
	}
	return exec.CommandContext(ctx, bin, "--version").Run()
}

// checkIntelSources validates that every enabled source is usable: key
// material present where required and rate limits sane.
func (c *Checker) checkIntelSources(ctx context.Context) error {
	var bad []string
	for _, name := range c.intelCfg.EnabledSources() {
		src := c.intelCfg.Sources[string(name)]
		if requiresKey(name) && src.APIKey == "" {
			bad = append(bad, fmt.Sprintf("%s: missing api_key", name))
		}
		if src.RateLimitRPM < 1 {
			bad = append(bad, fmt.Sprintf("%s: invalid rate_limit_rpm", name))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("misconfigured sources: %v", bad)
	}
	return nil
}

func (c *Checker) checkDatabase(ctx context.Context) error {
	if c.db == nil {
		return nil
	}
	return c.db.Ping(ctx)
}

// probeURL returns a cheap endpoint for a reachability probe.
func probeURL(name models.Source, src config.SourceConfig) string {
	if src.BaseURL != "" {
		return src.BaseURL
	}
	switch name {
	case models.SourceDShield:
		return "https://isc.sans.edu"
	case models.SourceVirusTotal:
		return "https://www.virustotal.com"
	case models.SourceShodan:
		return "https://api.shodan.io"
	case models.SourceAbuseIPDB:
		return "https://api.abuseipdb.com"
	case models.SourceAlienVault:
		return "https://otx.alienvault.com"
	case models.SourceThreatFox:
		return "https://threatfox-api.abuse.ch"
	}
	return ""
}

// requiresKey reports whether a source cannot operate without an API key.
func requiresKey(name models.Source) bool {
	switch name {
	case models.SourceDShield, models.SourceThreatFox:
		return false
	}
	return true
}
