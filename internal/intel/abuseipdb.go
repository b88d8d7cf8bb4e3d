package intel

import (
	"context"
	"fmt"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

const abuseipdbDefaultURL = "https://api.abuseipdb.com/api/v2"

// AbuseIPDB queries the AbuseIPDB check endpoint.
type AbuseIPDB struct {
	providerBase
	baseURL string
}

func NewAbuseIPDB(cfg config.SourceConfig) Provider {
	url := cfg.BaseURL
	if url == "" {
		url = abuseipdbDefaultURL
	}
	return &AbuseIPDB{providerBase: newProviderBase(models.SourceAbuseIPDB, cfg), baseURL: url}
}

func (a *AbuseIPDB) SupportsDomain() bool { return false }

type abuseipdbResponse struct {
	Data struct {
		AbuseConfidenceScore float64 `json:"abuseConfidenceScore"`
		CountryCode          string  `json:"countryCode"`
		ISP                  string  `json:"isp"`
		Domain               string  `json:"domain"`
		UsageType            string  `json:"usageType"`
		TotalReports         int     `json:"totalReports"`
		LastReportedAt       string  `json:"lastReportedAt"`
	} `json:"data"`
}

func (a *AbuseIPDB) GetIPReputation(ctx context.Context, ip string) (*models.SourceResult, error) {
	var resp abuseipdbResponse
	url := fmt.Sprintf("%s/check?ipAddress=%s&maxAgeInDays=90", a.baseURL, ip)
	headers := map[string]string{"Key": a.cfg.APIKey}
	if err := a.getJSON(ctx, url, headers, &resp); err != nil {
		return nil, err
	}

	data := resp.Data
	result := &models.SourceResult{
		Source:    models.SourceAbuseIPDB,
		Indicator: ip,
		Country:   data.CountryCode,
		ISP:       data.ISP,
		LastSeen:  parseDatePtr(data.LastReportedAt),
	}
	// abuseConfidenceScore is already a 0-100 threat scale.
	result.ThreatScore = fptr(data.AbuseConfidenceScore)
	conf := 0.5 + float64(min(data.TotalReports, 50))/100.0
	result.Confidence = fptr(conf)
	if data.UsageType != "" {
		result.Tags = append(result.Tags, data.UsageType)
	}
	return result, nil
}

func (a *AbuseIPDB) GetDomain(ctx context.Context, domain string) (*models.SourceResult, error) {
	return nil, dserrors.Invalidf("intel.abuseipdb", "abuseipdb does not support domain lookups")
}
