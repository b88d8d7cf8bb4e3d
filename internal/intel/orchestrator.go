package intel

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dshield-mcp/dshield-mcp/internal/cache"
	"github.com/dshield-mcp/dshield-mcp/internal/config"
	dserrors "github.com/dshield-mcp/dshield-mcp/internal/errors"
	"github.com/dshield-mcp/dshield-mcp/internal/models"
	"github.com/dshield-mcp/dshield-mcp/internal/telemetry"
)

// Cache source labels for aggregated results.
const (
	cacheLabelIP     = "comprehensive_ip"
	cacheLabelDomain = "comprehensive_domain"
)

// DocumentIndexer is the writeback target. *siem.Client satisfies it.
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, doc map[string]any) error
}

// Orchestrator fans enrichment requests out to the configured providers,
// correlates the responses, and caches the aggregated result.
type Orchestrator struct {
	cfg       config.ThreatIntelConfig
	providers []Provider
	limiters  map[models.Source]*sourceLimiter
	corr      *correlator
	cache     *cache.Cache
	cacheTTL  time.Duration
	resolver  *Resolver
	writeback DocumentIndexer

	wbWG sync.WaitGroup
	now  func() time.Time
}

// NewOrchestrator wires providers, limiters and the correlator from
// configuration. writeback may be nil; c may be nil to disable caching.
func NewOrchestrator(cfg config.ThreatIntelConfig, c *cache.Cache, writeback DocumentIndexer) *Orchestrator {
	providers := Registry(cfg)
	limiters := make(map[models.Source]*sourceLimiter, len(providers))
	reliability := make(map[models.Source]float64, len(providers))
	var order []models.Source
	for _, p := range providers {
		if !p.Enabled() {
			continue
		}
		src := cfg.Sources[string(p.Name())]
		limiters[p.Name()] = newSourceLimiter(src.RateLimitRPM, src.ConcurrencyLimit)
		reliability[p.Name()] = p.Reliability()
		order = append(order, p.Name())
	}
	o := &Orchestrator{
		cfg:       cfg,
		providers: providers,
		limiters:  limiters,
		corr: &correlator{
			reliability:         reliability,
			sourceOrder:         order,
			confidenceThreshold: cfg.Correlation.ConfidenceThreshold,
			enabledCount:        len(order),
		},
		cache:     c,
		cacheTTL:  time.Duration(cfg.CacheTTLHours * float64(time.Hour)),
		resolver:  NewResolver(cfg.DNSResolver),
		writeback: writeback,
		now:       time.Now,
	}
	if !cfg.Elasticsearch.Enabled {
		o.writeback = nil
	}
	return o
}

// Close waits for in-flight writeback goroutines.
func (o *Orchestrator) Close() {
	o.wbWG.Wait()
}

// EnrichIP queries every enabled source for one IP and returns the
// correlated verdict. Source failures are logged and excluded; the call
// fails only when no source responds at all.
func (o *Orchestrator) EnrichIP(ctx context.Context, ip string) (*models.ThreatIntelligenceResult, error) {
	if !models.ValidIP(ip) {
		return nil, dserrors.Invalidf("intel.enrich_ip", "invalid IP address %q", ip)
	}
	if cached, ok := o.cachedResult(ip, cacheLabelIP); ok {
		return cached, nil
	}

	results := o.fanOut(ctx, ip, func(ctx context.Context, p Provider) (*models.SourceResult, error) {
		return p.GetIPReputation(ctx, ip)
	}, nil)
	if len(results) == 0 {
		return nil, dserrors.External("intel.enrich_ip", "threat_intelligence",
			fmt.Errorf("all sources failed for %s", ip))
	}

	out := o.corr.correlate(ip, results)
	out.QueryTimestamp = o.now().UTC()
	o.storeResult(ip, cacheLabelIP, out)
	o.enqueueWriteback(ip, "ip", out)
	return out, nil
}

// EnrichDomain queries the domain-capable sources and augments the verdict
// with DNS resolution when a resolver is configured.
func (o *Orchestrator) EnrichDomain(ctx context.Context, domain string) (*models.DomainIntelligence, error) {
	domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
	if !models.ValidDomain(domain) {
		return nil, dserrors.Invalidf("intel.enrich_domain", "invalid domain %q", domain)
	}
	if o.cache != nil {
		if blob, ok := o.cache.Get(domain, cacheLabelDomain); ok {
			var cached models.DomainIntelligence
			if err := json.Unmarshal(blob, &cached); err == nil {
				cached.CacheHit = true
				return &cached, nil
			}
			log.Warn().Str("domain", domain).Msg("Discarding undecodable cache entry")
		}
	}

	results := o.fanOut(ctx, domain, func(ctx context.Context, p Provider) (*models.SourceResult, error) {
		return p.GetDomain(ctx, domain)
	}, func(p Provider) bool { return p.SupportsDomain() })
	if len(results) == 0 {
		return nil, dserrors.External("intel.enrich_domain", "threat_intelligence",
			fmt.Errorf("all sources failed for %s", domain))
	}

	agg := o.corr.correlate(domain, results)
	out := &models.DomainIntelligence{
		Domain:             domain,
		OverallThreatScore: agg.OverallThreatScore,
		ConfidenceScore:    agg.ConfidenceScore,
		SourceResults:      results,
		SourcesQueried:     agg.SourcesQueried,
		QueryTimestamp:     o.now().UTC(),
		Metrics:            agg.Metrics,
	}
	mergeDomainDetails(out, results)

	if o.resolver != nil {
		// Resolution failure is advisory, never fatal.
		if ips, ns, err := o.resolver.Lookup(ctx, domain); err != nil {
			log.Debug().Err(err).Str("domain", domain).Msg("DNS augmentation failed")
		} else {
			out.AssociatedIPs = ips
			out.Nameservers = ns
		}
	}

	o.storeDomain(domain, out)
	o.enqueueWriteback(domain, "domain", out)
	return out, nil
}

// fanOut runs the provider calls concurrently under the per-source
// limiters and collects the successful results.
func (o *Orchestrator) fanOut(ctx context.Context, indicator string,
	call func(context.Context, Provider) (*models.SourceResult, error),
	accept func(Provider) bool) map[models.Source]*models.SourceResult {

	results := make(map[models.Source]*models.SourceResult)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, p := range o.providers {
		if !p.Enabled() || (accept != nil && !accept(p)) {
			continue
		}
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			release, err := o.limiters[p.Name()].acquire(ctx, string(p.Name()))
			if err != nil {
				log.Warn().Err(err).Str("source", string(p.Name())).
					Str("indicator", indicator).Msg("Skipping rate-limited source")
				telemetry.ProviderErrors.WithLabelValues(string(p.Name())).Inc()
				return
			}
			defer release()

			r, err := call(ctx, p)
			if err != nil {
				log.Warn().Err(err).Str("source", string(p.Name())).
					Str("indicator", indicator).Msg("Source query failed")
				telemetry.ProviderErrors.WithLabelValues(string(p.Name())).Inc()
				return
			}
			mu.Lock()
			results[p.Name()] = r
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) cachedResult(indicator, label string) (*models.ThreatIntelligenceResult, bool) {
	if o.cache == nil {
		return nil, false
	}
	blob, ok := o.cache.Get(indicator, label)
	if !ok {
		return nil, false
	}
	var cached models.ThreatIntelligenceResult
	if err := json.Unmarshal(blob, &cached); err != nil {
		log.Warn().Str("indicator", indicator).Msg("Discarding undecodable cache entry")
		return nil, false
	}
	cached.CacheHit = true
	return &cached, true
}

func (o *Orchestrator) storeResult(indicator, label string, r *models.ThreatIntelligenceResult) {
	if o.cache == nil {
		return
	}
	if err := o.cache.PutWithTTL(indicator, label, r, o.cacheTTL); err != nil {
		log.Warn().Err(err).Str("indicator", indicator).Msg("Cache write failed")
	}
}

func (o *Orchestrator) storeDomain(domain string, r *models.DomainIntelligence) {
	if o.cache == nil {
		return
	}
	if err := o.cache.PutWithTTL(domain, cacheLabelDomain, r, o.cacheTTL); err != nil {
		log.Warn().Err(err).Str("domain", domain).Msg("Cache write failed")
	}
}

// CacheStats exposes cache statistics for the diagnostics tools.
func (o *Orchestrator) CacheStats() *cache.Stats {
	if o.cache == nil {
		return nil
	}
	s := o.cache.Stats()
	return &s
}

// ClearMemoryCache drops the in-memory tier.
func (o *Orchestrator) ClearMemoryCache() {
	if o.cache != nil {
		o.cache.ClearMemory()
	}
}

// mergeDomainDetails copies registrar, creation date, categories and tags
// from the per-source raw payloads into the aggregate.
func mergeDomainDetails(out *models.DomainIntelligence, results map[models.Source]*models.SourceResult) {
	seenCat := map[string]bool{}
	seenTag := map[string]bool{}
	for _, source := range []models.Source{
		models.SourceDShield, models.SourceVirusTotal, models.SourceShodan,
		models.SourceAbuseIPDB, models.SourceAlienVault, models.SourceThreatFox,
	} {
		r, ok := results[source]
		if !ok {
			continue
		}
		if out.Registrar == "" {
			out.Registrar = anyToString(r.Raw["registrar"])
		}
		if out.CreationDate == nil {
			if created := anyToString(r.Raw["creation_date"]); created != "" {
				out.CreationDate = parseDatePtr(created)
			}
		}
		for _, c := range r.AttackTypes {
			if !seenCat[c] {
				seenCat[c] = true
				out.Categories = append(out.Categories, c)
			}
		}
		for _, t := range r.Tags {
			if !seenTag[t] {
				seenTag[t] = true
				out.Tags = append(out.Tags, t)
			}
		}
	}
}

// enqueueWriteback indexes the aggregated result into the enrichment index
// in the background. Writeback failures are logged, never surfaced.
func (o *Orchestrator) enqueueWriteback(indicator, indicatorType string, result any) {
	if o.writeback == nil {
		return
	}
	now := o.now().UTC()
	index := fmt.Sprintf("%s-%s", o.cfg.Elasticsearch.IndexPrefix, now.Format("2006.01"))
	id := fmt.Sprintf("%s_%d", indicator, now.Unix())
	if o.cfg.Elasticsearch.DedupDaily {
		id = fmt.Sprintf("%s_%s", indicator, now.Format("2006.01.02"))
	}
	doc := map[string]any{
		"@timestamp":     now.Format(time.RFC3339),
		"indicator":      indicator,
		"indicator_type": indicatorType,
		"enrichment":     result,
	}

	o.wbWG.Add(1)
	go func() {
		defer o.wbWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.writeback.IndexDocument(ctx, index, id, doc); err != nil {
			log.Warn().Err(err).Str("index", index).Str("indicator", indicator).
				Msg("Enrichment writeback failed")
		}
	}()
}

var hashPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// ClassifyIndicator buckets an indicator string by shape.
func ClassifyIndicator(indicator string) models.IndicatorType {
	switch {
	case models.ValidIP(indicator):
		return models.IndicatorIP
	case strings.HasPrefix(strings.ToUpper(indicator), "CVE-"):
		return models.IndicatorCVE
	case hashLength(indicator) && hashPattern.MatchString(indicator):
		return models.IndicatorHash
	case models.ValidDomain(indicator):
		return models.IndicatorDomain
	default:
		return models.IndicatorGeneric
	}
}

func hashLength(s string) bool {
	// MD5, SHA-1, SHA-256.
	return len(s) == 32 || len(s) == 40 || len(s) == 64
}

// IndicatorCorrelation is the per-indicator slot in a correlation report.
type IndicatorCorrelation struct {
	Indicator  string                           `json:"indicator"`
	Type       models.IndicatorType             `json:"type"`
	Enrichment *models.ThreatIntelligenceResult `json:"enrichment,omitempty"`
	Domain     *models.DomainIntelligence       `json:"domain_enrichment,omitempty"`
	Error      string                           `json:"error,omitempty"`
}

// CorrelationReport links a mixed set of indicators through their shared
// threat context.
type CorrelationReport struct {
	Indicators      []IndicatorCorrelation `json:"indicators"`
	SharedSources   []models.Source        `json:"shared_sources,omitempty"`
	SharedTags      []string               `json:"shared_tags,omitempty"`
	QueryTimestamp  time.Time              `json:"query_timestamp"`
	EnrichedCount   int                    `json:"enriched_count"`
	UnsupportedList []string               `json:"unsupported_indicators,omitempty"`
}

// CorrelateIndicators classifies and enriches a mixed indicator set, then
// reports the sources and tags the set has in common. Hash, CVE and generic
// indicators are classified but not enriched.
func (o *Orchestrator) CorrelateIndicators(ctx context.Context, indicators []string) (*CorrelationReport, error) {
	if len(indicators) == 0 {
		return nil, dserrors.Invalidf("intel.correlate", "indicators must not be empty")
	}
	report := &CorrelationReport{QueryTimestamp: o.now().UTC()}

	sourceSets := make([]map[models.Source]bool, 0, len(indicators))
	tagSets := make([]map[string]bool, 0, len(indicators))

	for _, raw := range indicators {
		ind := strings.TrimSpace(raw)
		slot := IndicatorCorrelation{Indicator: ind, Type: ClassifyIndicator(ind)}
		switch slot.Type {
		case models.IndicatorIP:
			r, err := o.EnrichIP(ctx, ind)
			if err != nil {
				slot.Error = err.Error()
			} else {
				slot.Enrichment = r
				report.EnrichedCount++
				sourceSets = append(sourceSets, sourceSet(r.SourcesQueried))
				tagSets = append(tagSets, tagSet(r.SourceResults))
			}
		case models.IndicatorDomain:
			d, err := o.EnrichDomain(ctx, ind)
			if err != nil {
				slot.Error = err.Error()
			} else {
				slot.Domain = d
				report.EnrichedCount++
				sourceSets = append(sourceSets, sourceSet(d.SourcesQueried))
				tagSets = append(tagSets, tagSet(d.SourceResults))
			}
		default:
			report.UnsupportedList = append(report.UnsupportedList, ind)
		}
		report.Indicators = append(report.Indicators, slot)
	}

	if len(sourceSets) >= 2 {
		report.SharedSources = intersectSources(sourceSets)
		report.SharedTags = intersectTags(tagSets)
	}
	return report, nil
}

func sourceSet(sources []models.Source) map[models.Source]bool {
	set := make(map[models.Source]bool, len(sources))
	for _, s := range sources {
		set[s] = true
	}
	return set
}

func tagSet(results map[models.Source]*models.SourceResult) map[string]bool {
	set := map[string]bool{}
	for _, r := range results {
		for _, t := range r.Tags {
			set[t] = true
		}
	}
	return set
}

func intersectSources(sets []map[models.Source]bool) []models.Source {
	order := []models.Source{
		models.SourceDShield, models.SourceVirusTotal, models.SourceShodan,
		models.SourceAbuseIPDB, models.SourceAlienVault, models.SourceThreatFox,
	}
	var out []models.Source
	for _, s := range order {
		inAll := true
		for _, set := range sets {
			if !set[s] {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, s)
		}
	}
	return out
}

func intersectTags(sets []map[string]bool) []string {
	if len(sets) == 0 {
		return nil
	}
	var out []string
	for t := range sets[0] {
		inAll := true
		for _, set := range sets[1:] {
			if !set[t] {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, t)
		}
	}
	// Map iteration is randomized.
	sort.Strings(out)
	return out
}
