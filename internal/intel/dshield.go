package intel

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dshield-mcp/dshield-mcp/internal/config"
	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

const dshieldDefaultURL = "https://isc.sans.edu/api"

// DShield queries the SANS ISC DShield IP reputation API.
type DShield struct {
	providerBase
	baseURL string
}

func NewDShield(cfg config.SourceConfig) Provider {
	url := cfg.BaseURL
	if url == "" {
		url = dshieldDefaultURL
	}
	return &DShield{providerBase: newProviderBase(models.SourceDShield, cfg), baseURL: url}
}

func (d *DShield) SupportsDomain() bool { return false }

type dshieldResponse struct {
	IP struct {
		Number      string         `json:"number"`
		Count       any            `json:"count"`   // attack report count; string or number
		Attacks     any            `json:"attacks"` // distinct target count
		Country     string         `json:"country"`
		AS          any            `json:"as"`
		ASName      string         `json:"asname"`
		MinDate     string         `json:"mindate"`
		MaxDate     string         `json:"maxdate"`
		Threatfeeds map[string]any `json:"threatfeeds"`
	} `json:"ip"`
}

func (d *DShield) GetIPReputation(ctx context.Context, ip string) (*models.SourceResult, error) {
	var resp dshieldResponse
	url := fmt.Sprintf("%s/ip/%s?json", d.baseURL, ip)
	if err := d.getJSON(ctx, url, nil, &resp); err != nil {
		return nil, err
	}

	result := &models.SourceResult{
		Source:       models.SourceDShield,
		Indicator:    ip,
		Country:      resp.IP.Country,
		ASN:          anyToString(resp.IP.AS),
		Organization: resp.IP.ASName,
	}

	reports := anyToFloat(resp.IP.Count)
	targets := anyToFloat(resp.IP.Attacks)
	if reports > 0 || targets > 0 {
		// Attack volume maps to threat on a saturating scale: 100 reports
		// or 10 distinct targets both read as maximal signal.
		score := reports + targets*10
		if score > 100 {
			score = 100
		}
		result.ThreatScore = fptr(score)
		result.Confidence = fptr(0.8)
	}
	for feed := range resp.IP.Threatfeeds {
		result.Tags = append(result.Tags, feed)
	}
	result.FirstSeen = parseDatePtr(resp.IP.MinDate)
	result.LastSeen = parseDatePtr(resp.IP.MaxDate)
	return result, nil
}

func (d *DShield) GetDomain(ctx context.Context, domain string) (*models.SourceResult, error) {
	return nil, dserrors.Invalidf("intel.dshield", "dshield does not support domain lookups")
}

func anyToFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return 0
}

func anyToString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func fptr(v float64) *float64 { return &v }

func parseDatePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
