package intel

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

const shodanDefaultURL = "https://api.shodan.io"

// Shodan queries the Shodan host API for exposure data.
type Shodan struct {
	providerBase
	baseURL string
}

func NewShodan(cfg config.SourceConfig) Provider {
	url := cfg.BaseURL
	if url == "" {
		url = shodanDefaultURL
	}
	return &Shodan{providerBase: newProviderBase(models.SourceShodan, cfg), baseURL: url}
}

func (s *Shodan) SupportsDomain() bool { return false }

type shodanResponse struct {
	Ports       []int    `json:"ports"`
	Vulns       []string `json:"vulns"`
	Tags        []string `json:"tags"`
	CountryName string   `json:"country_name"`
	RegionCode  string   `json:"region_code"`
	City        string   `json:"city"`
	Org         string   `json:"org"`
	ISP         string   `json:"isp"`
	ASN         string   `json:"asn"`
	LastUpdate  string   `json:"last_update"`
}

func (s *Shodan) GetIPReputation(ctx context.Context, ip string) (*models.SourceResult, error) {
	var resp shodanResponse
	url := fmt.Sprintf("%s/shodan/host/%s?key=%s", s.baseURL, ip, s.cfg.APIKey)
	if err := s.getJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}

	result := &models.SourceResult{
		Source:       models.SourceShodan,
		Indicator:    ip,
		Country:      resp.CountryName,
		Region:       resp.RegionCode,
		City:         resp.City,
		Organization: resp.Org,
		ISP:          resp.ISP,
		ASN:          resp.ASN,
		Tags:         resp.Tags,
		Indicators:   resp.Vulns,
		LastSeen:     parseDatePtr(resp.LastUpdate),
	}
	// Exposure maps to threat: each vulnerability weighs far more than an
	// open port.
	if len(resp.Vulns) > 0 || len(resp.Ports) > 0 {
		score := float64(len(resp.Vulns))*20 + float64(len(resp.Ports))*2
		if score > 100 {
			score = 100
		}
		result.ThreatScore = fptr(score)
		result.Confidence = fptr(0.7)
	}
	if result.Raw == nil {
		result.Raw = map[string]any{}
	}
	result.Raw["open_ports"] = intsToStrings(resp.Ports)
	return result, nil
}

func (s *Shodan) GetDomain(ctx context.Context, domain string) (*models.SourceResult, error) {
	return nil, dserrors.Invalidf("intel.shodan", "shodan does not support domain lookups")
}

func intsToStrings(in []int) []string {
	out := make([]string, len(in))
	for i, n := range in {
		out[i] = strconv.Itoa(n)
	}
	return out
}
