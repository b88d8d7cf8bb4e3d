package intel

import (
	"context"
	"fmt"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

const alienvaultDefaultURL = "https://otx.alienvault.com/api/v1"

// AlienVault queries the OTX general endpoint for IPs and domains.
type AlienVault struct {
	providerBase
	baseURL string
}

func NewAlienVault(cfg config.SourceConfig) Provider {
	url := cfg.BaseURL
	if url == "" {
		url = alienvaultDefaultURL
	}
	return &AlienVault{providerBase: newProviderBase(models.SourceAlienVault, cfg), baseURL: url}
}

func (a *AlienVault) SupportsDomain() bool { return true }

type otxResponse struct {
	Reputation  int      `json:"reputation"`
	CountryName string   `json:"country_name"`
	City        string   `json:"city"`
	ASN         string   `json:"asn"`
	PulseInfo   struct {
		Count  int `json:"count"`
		Pulses []struct {
			Name     string   `json:"name"`
			Tags     []string `json:"tags"`
			Created  string   `json:"created"`
			Modified string   `json:"modified"`
		} `json:"pulses"`
	} `json:"pulse_info"`
}

func (a *AlienVault) headers() map[string]string {
	return map[string]string{"X-OTX-API-KEY": a.cfg.APIKey}
}

func (a *AlienVault) GetIPReputation(ctx context.Context, ip string) (*models.SourceResult, error) {
	url := fmt.Sprintf("%s/indicators/IPv4/%s/general", a.baseURL, ip)
	return a.lookup(ctx, url, ip)
}

func (a *AlienVault) GetDomain(ctx context.Context, domain string) (*models.SourceResult, error) {
	url := fmt.Sprintf("%s/indicators/domain/%s/general", a.baseURL, domain)
	return a.lookup(ctx, url, domain)
}

func (a *AlienVault) lookup(ctx context.Context, url, indicator string) (*models.SourceResult, error) {
	var resp otxResponse
	if err := a.getJSON(ctx, url, a.headers(), &resp); err != nil {
		return nil, err
	}

	result := &models.SourceResult{
		Source:    models.SourceAlienVault,
		Indicator: indicator,
		Country:   resp.CountryName,
		City:      resp.City,
		ASN:       resp.ASN,
	}
	if resp.PulseInfo.Count > 0 {
		// Pulse membership is community signal; saturate at 10 pulses.
		score := float64(resp.PulseInfo.Count) * 10
		if score > 100 {
			score = 100
		}
		result.ThreatScore = fptr(score)
		result.Confidence = fptr(0.6)
		for _, pulse := range resp.PulseInfo.Pulses {
			result.Indicators = append(result.Indicators, pulse.Name)
			result.Tags = append(result.Tags, pulse.Tags...)
			if first := parseDatePtr(pulse.Created); first != nil {
				if result.FirstSeen == nil || first.Before(*result.FirstSeen) {
					result.FirstSeen = first
				}
			}
			if last := parseDatePtr(pulse.Modified); last != nil {
				if result.LastSeen == nil || last.After(*result.LastSeen) {
					result.LastSeen = last
				}
			}
		}
	}
	return result, nil
}
