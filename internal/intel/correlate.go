package intel

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/dshield-mcp/dshield-mcp/internal/models"
)

const defaultConfidence = 0.5

// correlator folds per-source results into one weighted verdict. Source
// order is the configuration order, used as the tie-break in voting.
type correlator struct {
	reliability         map[models.Source]float64
	sourceOrder         []models.Source
	confidenceThreshold float64
	enabledCount        int
}

// threatScoreOf extracts the effective threat score of one source result.
// A reputation-only source (high = good) converts as 100 - reputation. Nil
// means no signal.
func threatScoreOf(r *models.SourceResult) *float64 {
	if r.ThreatScore != nil {
		return r.ThreatScore
	}
	if r.ReputationScore != nil {
		converted := 100 - *r.ReputationScore
		return &converted
	}
	return nil
}

func confidenceOf(r *models.SourceResult) float64 {
	if r.Confidence != nil {
		return *r.Confidence
	}
	return defaultConfidence
}

// correlate builds the aggregated result from the per-source responses.
// results holds only sources that responded successfully.
func (c *correlator) correlate(indicator string, results map[models.Source]*models.SourceResult) *models.ThreatIntelligenceResult {
	out := &models.ThreatIntelligenceResult{
		Indicator:     indicator,
		SourceResults: results,
	}

	var (
		scoreWeightSum float64
		scoreSum       float64
		scores         []float64
		confWeightSum  float64
		confSum        float64
	)
	for _, source := range c.sourceOrder {
		r, ok := results[source]
		if !ok {
			continue
		}
		out.SourcesQueried = append(out.SourcesQueried, source)
		rel := c.reliability[source]

		if score := threatScoreOf(r); score != nil {
			scoreSum += *score * rel
			scoreWeightSum += rel
			scores = append(scores, *score)
		}
		confSum += confidenceOf(r) * rel
		confWeightSum += rel

		c.mergeTimestamps(out, r)
	}

	if scoreWeightSum > 0 {
		overall := scoreSum / scoreWeightSum
		out.OverallThreatScore = &overall
	}
	if confWeightSum > 0 {
		conf := confSum / confWeightSum
		out.ConfidenceScore = &conf
	}

	out.ThreatIndicators = c.aggregateIndicators(results)
	out.Geographic, out.Network = c.voteFields(results)

	variance := 0.0
	if len(scores) >= 2 {
		variance, _ = stats.PopulationVariance(scores)
	}
	completeness := 0.0
	if c.enabledCount > 0 {
		completeness = float64(len(out.SourcesQueried)) / float64(c.enabledCount)
	}
	out.Metrics = models.CorrelationMetrics{
		SourceCount:         len(out.SourcesQueried),
		IndicatorCount:      len(out.ThreatIndicators),
		DataCompleteness:    completeness,
		ThreatScoreVariance: variance,
	}
	return out
}

func (c *correlator) mergeTimestamps(out *models.ThreatIntelligenceResult, r *models.SourceResult) {
	if r.FirstSeen != nil && (out.FirstSeen == nil || r.FirstSeen.Before(*out.FirstSeen)) {
		out.FirstSeen = r.FirstSeen
	}
	if r.LastSeen != nil && (out.LastSeen == nil || r.LastSeen.After(*out.LastSeen)) {
		out.LastSeen = r.LastSeen
	}
}

// aggregateIndicators merges indicator strings across sources, computes the
// reliability-weighted confidence per indicator, drops those below the
// threshold, and sorts by (confidence desc, source count desc).
func (c *correlator) aggregateIndicators(results map[models.Source]*models.SourceResult) []models.ThreatIndicator {
	type acc struct {
		sources   []models.Source
		confSum   float64
		weightSum float64
	}
	byIndicator := map[string]*acc{}
	var order []string

	for _, source := range c.sourceOrder {
		r, ok := results[source]
		if !ok {
			continue
		}
		rel := c.reliability[source]
		conf := confidenceOf(r)
		for _, ind := range r.Indicators {
			a, ok := byIndicator[ind]
			if !ok {
				a = &acc{}
				byIndicator[ind] = a
				order = append(order, ind)
			}
			a.sources = append(a.sources, source)
			a.confSum += conf * rel
			a.weightSum += rel
		}
	}

	var out []models.ThreatIndicator
	for _, ind := range order {
		a := byIndicator[ind]
		weighted := a.confSum / a.weightSum
		if weighted < c.confidenceThreshold {
			continue
		}
		out = append(out, models.ThreatIndicator{
			Indicator:   ind,
			Confidence:  weighted,
			Sources:     a.sources,
			SourceCount: len(a.sources),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].SourceCount > out[j].SourceCount
	})
	return out
}

// voteFields picks, per geographic and network field, the value whose
// reporting sources carry the highest summed reliability. Configuration
// order breaks ties.
func (c *correlator) voteFields(results map[models.Source]*models.SourceResult) (models.GeographicData, models.NetworkData) {
	pick := func(get func(*models.SourceResult) string) string {
		weights := map[string]float64{}
		var order []string
		for _, source := range c.sourceOrder {
			r, ok := results[source]
			if !ok {
				continue
			}
			v := get(r)
			if v == "" {
				continue
			}
			if _, seen := weights[v]; !seen {
				order = append(order, v)
			}
			weights[v] += c.reliability[source]
		}
		best := ""
		bestWeight := 0.0
		for _, v := range order {
			if weights[v] > bestWeight {
				best = v
				bestWeight = weights[v]
			}
		}
		return best
	}

	geo := models.GeographicData{
		Country: pick(func(r *models.SourceResult) string { return r.Country }),
		Region:  pick(func(r *models.SourceResult) string { return r.Region }),
		City:    pick(func(r *models.SourceResult) string { return r.City }),
	}
	network := models.NetworkData{
		ASN:          pick(func(r *models.SourceResult) string { return r.ASN }),
		Organization: pick(func(r *models.SourceResult) string { return r.Organization }),
		ISP:          pick(func(r *models.SourceResult) string { return r.ISP }),
	}
	return geo, network
}
