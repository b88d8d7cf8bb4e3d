package tools

import (
	"context"

	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
)

// registerIntelTools registers the enrichment family. All three tools
// require the orchestrator; without configured sources they report a clear
// error instead of an empty verdict.
func (e *Executor) registerIntelTools() {
	e.register(RegisteredTool{
		Definition: Tool{
			Name: "enrich_ip_comprehensive",
			Description: `Enrich an IP address across all configured threat-intelligence sources.

Fans out to every enabled provider under per-source rate limits, then
correlates the responses into a reliability-weighted verdict: overall threat
score, aggregated indicators, voted geographic/network attribution, and
correlation quality metrics. Results are cached.`,
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"ip_address": {Type: "string", Description: "IPv4 or IPv6 address to enrich"},
				},
				Required: []string{"ip_address"},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			if exec.orchestrator == nil {
				return CallToolResult{}, dserrors.Invalidf("tools.enrich_ip", "no threat-intelligence sources are configured")
			}
			ip := argString(args, "ip_address", "")
			result, err := exec.orchestrator.EnrichIP(ctx, ip)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(result), nil
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name: "enrich_domain_comprehensive",
			Description: "Enrich a domain name across the domain-capable threat-intelligence sources, " +
				"with DNS resolution of associated addresses and nameservers when a resolver is configured.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"domain": {Type: "string", Description: "Domain name to enrich"},
				},
				Required: []string{"domain"},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			if exec.orchestrator == nil {
				return CallToolResult{}, dserrors.Invalidf("tools.enrich_domain", "no threat-intelligence sources are configured")
			}
			result, err := exec.orchestrator.EnrichDomain(ctx, argString(args, "domain", ""))
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(result), nil
		},
	})

	e.register(RegisteredTool{
		Definition: Tool{
			Name: "correlate_threat_indicators",
			Description: "Classify and enrich a mixed set of indicators (IPs, domains, hashes, CVEs) " +
				"and report the threat-intelligence sources and tags the set has in common.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]PropertySchema{
					"indicators": {
						Type:        "array",
						Description: "Indicators to correlate",
						Items:       &PropertySchema{Type: "string"},
					},
				},
				Required: []string{"indicators"},
			},
		},
		Handler: func(ctx context.Context, exec *Executor, args map[string]any) (CallToolResult, error) {
			if exec.orchestrator == nil {
				return CallToolResult{}, dserrors.Invalidf("tools.correlate", "no threat-intelligence sources are configured")
			}
			indicators, err := argStrings(args, "indicators")
			if err != nil {
				return CallToolResult{}, err
			}
			result, err := exec.orchestrator.CorrelateIndicators(ctx, indicators)
			if err != nil {
				return CallToolResult{}, err
			}
			return NewJSONResult(result), nil
		},
	})
}
