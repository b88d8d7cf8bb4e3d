// Package intel implements the threat-intelligence orchestrator: provider
// fan-out under per-source rate and concurrency limits, reliability-weighted
// correlation, the result cache, and optional SIEM writeback.
package intel

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Provider is one threat-intelligence source. Implementations are stateless
// HTTP clients; the orchestrator supplies rate limiting and concurrency
// control around them.
type Provider interface {
	Name() models.Source
	Enabled() bool
	Reliability() float64
	SupportsDomain() bool
	GetIPReputation(ctx context.Context, ip string) (*models.SourceResult, error)
	GetDomain(ctx context.Context, domain string) (*models.SourceResult, error)
}

// providerBase carries the configuration shared by all providers.
type providerBase struct {
	name    models.Source
	cfg     config.SourceConfig
	client  *http.Client
	timeout time.Duration
}

func newProviderBase(name models.Source, cfg config.SourceConfig) providerBase {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil
	return providerBase{
		name:    name,
		cfg:     cfg,
		client:  rc.StandardClient(),
		timeout: time.Duration(cfg.TimeoutSec) * time.Second,
	}
}

func (b *providerBase) Name() models.Source  { return b.name }
func (b *providerBase) Enabled() bool        { return b.cfg.Enabled }
func (b *providerBase) Reliability() float64 { return b.cfg.Reliability }

// getJSON performs one authenticated GET and decodes the JSON body into out.
func (b *providerBase) getJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return dserrors.Internal("intel.get", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dserrors.Timeoutf("intel.get", "%s call aborted: %v", b.name, ctx.Err())
		}
		return dserrors.External("intel.get", string(b.name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return dserrors.New(dserrors.KindRateLimit, "intel.get",
			dserrors.ErrRateLimitExceeded).WithService(string(b.name)).WithStatusCode(resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Debug().Str("source", string(b.name)).Int("status", resp.StatusCode).
			Bytes("body", body).Msg("Provider error response")
		return dserrors.External("intel.get", string(b.name),
			dserrors.ErrExternalService).WithStatusCode(resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dserrors.External("intel.get", string(b.name), err)
	}
	return nil
}

// postJSON performs one POST with a JSON payload and decodes the response.
func (b *providerBase) postJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return dserrors.Internal("intel.post", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return dserrors.Internal("intel.post", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dserrors.Timeoutf("intel.post", "%s call aborted: %v", b.name, ctx.Err())
		}
		return dserrors.External("intel.post", string(b.name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Debug().Str("source", string(b.name)).Int("status", resp.StatusCode).
			Bytes("body", snippet).Msg("Provider error response")
		return dserrors.External("intel.post", string(b.name),
			dserrors.ErrExternalService).WithStatusCode(resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dserrors.External("intel.post", string(b.name), err)
	}
	return nil
}

// Registry builds the provider set from configuration. Order matches the
// canonical source order so correlation tie-breaks stay deterministic.
func Registry(cfg config.ThreatIntelConfig) []Provider {
	build := func(name models.Source, mk func(config.SourceConfig) Provider) Provider {
		src, ok := cfg.Sources[string(name)]
		if !ok {
			return nil
		}
		return mk(src)
	}
	candidates := []Provider{
		build(models.SourceDShield, NewDShield),
		build(models.SourceVirusTotal, NewVirusTotal),
		build(models.SourceShodan, NewShodan),
		build(models.SourceAbuseIPDB, NewAbuseIPDB),
		build(models.SourceAlienVault, NewAlienVault),
		build(models.SourceThreatFox, NewThreatFox),
	}
	var out []Provider
	for _, p := range candidates {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}
