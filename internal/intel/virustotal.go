package intel

import (
	"context"
	"fmt"
	"time"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

const virustotalDefaultURL = "https://www.virustotal.com/api/v3"

// VirusTotal queries the VirusTotal v3 API for IPs and domains.
type VirusTotal struct {
	providerBase
	baseURL string
}

func NewVirusTotal(cfg config.SourceConfig) Provider {
	url := cfg.BaseURL
	if url == "" {
		url = virustotalDefaultURL
	}
	return &VirusTotal{providerBase: newProviderBase(models.SourceVirusTotal, cfg), baseURL: url}
}

func (v *VirusTotal) SupportsDomain() bool { return true }

type vtResponse struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
				Harmless   int `json:"harmless"`
				Undetected int `json:"undetected"`
			} `json:"last_analysis_stats"`
			Country    string   `json:"country"`
			ASN        int      `json:"asn"`
			ASOwner    string   `json:"as_owner"`
			Reputation int      `json:"reputation"`
			Tags       []string `json:"tags"`
			Registrar  string   `json:"registrar"`
			CreationDate     int64 `json:"creation_date"`
			FirstSubmission  int64 `json:"first_submission_date"`
			LastAnalysisDate int64 `json:"last_analysis_date"`
			Categories       map[string]string `json:"categories"`
		} `json:"attributes"`
	} `json:"data"`
}

func (v *VirusTotal) headers() map[string]string {
	return map[string]string{"x-apikey": v.cfg.APIKey}
}

func (v *VirusTotal) GetIPReputation(ctx context.Context, ip string) (*models.SourceResult, error) {
	var resp vtResponse
	url := fmt.Sprintf("%s/ip_addresses/%s", v.baseURL, ip)
	if err := v.getJSON(ctx, url, v.headers(), &resp); err != nil {
		return nil, err
	}
	return v.toResult(ip, resp), nil
}

func (v *VirusTotal) GetDomain(ctx context.Context, domain string) (*models.SourceResult, error) {
	var resp vtResponse
	url := fmt.Sprintf("%s/domains/%s", v.baseURL, domain)
	if err := v.getJSON(ctx, url, v.headers(), &resp); err != nil {
		return nil, err
	}
	result := v.toResult(domain, resp)
	attrs := resp.Data.Attributes
	if attrs.Registrar != "" {
		if result.Raw == nil {
			result.Raw = map[string]any{}
		}
		result.Raw["registrar"] = attrs.Registrar
		if attrs.CreationDate > 0 {
			result.Raw["creation_date"] = time.Unix(attrs.CreationDate, 0).UTC().Format(time.RFC3339)
		}
	}
	for _, category := range attrs.Categories {
		result.Tags = append(result.Tags, category)
	}
	return result, nil
}

func (v *VirusTotal) toResult(indicator string, resp vtResponse) *models.SourceResult {
	attrs := resp.Data.Attributes
	stats := attrs.LastAnalysisStats
	result := &models.SourceResult{
		Source:       models.SourceVirusTotal,
		Indicator:    indicator,
		Country:      attrs.Country,
		Organization: attrs.ASOwner,
		Tags:         attrs.Tags,
	}
	if attrs.ASN > 0 {
		result.ASN = fmt.Sprintf("AS%d", attrs.ASN)
	}
	total := stats.Malicious + stats.Suspicious + stats.Harmless + stats.Undetected
	if total > 0 {
		score := float64(stats.Malicious+stats.Suspicious) / float64(total) * 100
		result.ThreatScore = fptr(score)
		// Engine coverage drives confidence: more verdicts, firmer signal.
		conf := float64(total) / 90.0
		if conf > 1 {
			conf = 1
		}
		result.Confidence = fptr(conf)
	}
	if attrs.FirstSubmission > 0 {
		t := time.Unix(attrs.FirstSubmission, 0).UTC()
		result.FirstSeen = &t
	}
	if attrs.LastAnalysisDate > 0 {
		t := time.Unix(attrs.LastAnalysisDate, 0).UTC()
		result.LastSeen = &t
	}
	return result
}
