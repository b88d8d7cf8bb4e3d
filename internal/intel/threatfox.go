package intel

import (
	"context"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

const threatfoxDefaultURL = "https://threatfox-api.abuse.ch/api/v1/"

// ThreatFox searches the abuse.ch ThreatFox IOC database.
type ThreatFox struct {
	providerBase
	baseURL string
}

func NewThreatFox(cfg config.SourceConfig) Provider {
	url := cfg.BaseURL
	if url == "" {
		url = threatfoxDefaultURL
	}
	return &ThreatFox{providerBase: newProviderBase(models.SourceThreatFox, cfg), baseURL: url}
}

func (t *ThreatFox) SupportsDomain() bool { return true }

type threatfoxResponse struct {
	QueryStatus string `json:"query_status"`
	Data        []struct {
		IOC             string   `json:"ioc"`
		ThreatType      string   `json:"threat_type"`
		Malware         string   `json:"malware_printable"`
		ConfidenceLevel float64  `json:"confidence_level"`
		FirstSeen       string   `json:"first_seen"`
		LastSeen        string   `json:"last_seen"`
		Tags            []string `json:"tags"`
	} `json:"data"`
}

func (t *ThreatFox) GetIPReputation(ctx context.Context, ip string) (*models.SourceResult, error) {
	return t.search(ctx, ip)
}

func (t *ThreatFox) GetDomain(ctx context.Context, domain string) (*models.SourceResult, error) {
	return t.search(ctx, domain)
}

func (t *ThreatFox) search(ctx context.Context, indicator string) (*models.SourceResult, error) {
	var resp threatfoxResponse
	payload := map[string]string{"query": "search_ioc", "search_term": indicator}
	headers := map[string]string{}
	if t.cfg.APIKey != "" {
		headers["Auth-Key"] = t.cfg.APIKey
	}
	if err := t.postJSON(ctx, t.baseURL, headers, payload, &resp); err != nil {
		return nil, err
	}

	result := &models.SourceResult{
		Source:    models.SourceThreatFox,
		Indicator: indicator,
	}
	if resp.QueryStatus != "ok" || len(resp.Data) == 0 {
		// Not listed: no signal, not a zero score.
		return result, nil
	}

	// Any listing is a confirmed IOC. Confidence follows the highest
	// reported confidence level.
	var maxConf float64
	for _, ioc := range resp.Data {
		if ioc.ConfidenceLevel > maxConf {
			maxConf = ioc.ConfidenceLevel
		}
		if ioc.Malware != "" {
			result.Indicators = append(result.Indicators, ioc.Malware)
		}
		if ioc.ThreatType != "" {
			result.AttackTypes = append(result.AttackTypes, ioc.ThreatType)
		}
		result.Tags = append(result.Tags, ioc.Tags...)
		if first := parseDatePtr(ioc.FirstSeen); first != nil {
			if result.FirstSeen == nil || first.Before(*result.FirstSeen) {
				result.FirstSeen = first
			}
		}
		if last := parseDatePtr(ioc.LastSeen); last != nil {
			if result.LastSeen == nil || last.After(*result.LastSeen) {
				result.LastSeen = last
			}
		}
	}
	result.ThreatScore = fptr(90)
	result.Confidence = fptr(maxConf / 100)
	return result, nil
}
