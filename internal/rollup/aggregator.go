package rollup

import (
	"sort"

	"driftline/pkg/models"
)

// Aggregator rolls a family's raw platform counters up into normalized
// cross-platform metrics. Aggregate is a pure function of its inputs and
// the loaded standardization table: same family in, same rollup out.
type Aggregator struct {
	cfg *Config
}

func NewAggregator(cfg *Config) *Aggregator {
	return &Aggregator{cfg: cfg}
}

// Aggregate computes the normalized rollup for a family's nodes. Inactive
// nodes are counted but contribute nothing; their snapshots are gone.
func (a *Aggregator) Aggregate(nodes []models.FamilyNode) *models.FamilyMetrics {
	m := &models.FamilyMetrics{
		TotalNodes:    len(nodes),
		ByPlatform:    map[string]models.PlatformBreakdown{},
		ByContentType: map[string]models.PlatformBreakdown{},
	}
	audiences := map[string]float64{}

	for _, node := range nodes {
		if node.Inactive {
			m.InactiveNodes++
			continue
		}
		platform := string(node.Platform)
		w := a.cfg.Factor(platform)
		views := float64(node.Metrics.Views) * w.Views
		engagements := float64(node.Metrics.EffectiveEngagements()) * w.Engagements

		m.TotalViews += views
		m.TotalEngagements += engagements
		audiences[platform] += views

		bp := m.ByPlatform[platform]
		bp.Nodes++
		bp.Views += views
		bp.Engagements += engagements
		m.ByPlatform[platform] = bp

		ct := string(node.ContentType)
		bc := m.ByContentType[ct]
		bc.Nodes++
		bc.Views += views
		bc.Engagements += engagements
		m.ByContentType[ct] = bc
	}

	if m.TotalViews > 0 {
		m.EngagementRate = m.TotalEngagements / m.TotalViews
		for key, bp := range m.ByPlatform {
			bp.ShareOfViews = bp.Views / m.TotalViews
			m.ByPlatform[key] = bp
		}
		for key, bc := range m.ByContentType {
			bc.ShareOfViews = bc.Views / m.TotalViews
			m.ByContentType[key] = bc
		}
	}

	m.AudienceOverlap = a.estimateOverlap(audiences)
	return m
}

// estimateOverlap approximates unique reach from configured pairwise
// deduplication percentages. The estimate is total audience minus, for each
// configured platform pair, the assumed shared fraction of the smaller
// audience, clamped to never undercut the largest single platform.
func (a *Aggregator) estimateOverlap(audiences map[string]float64) models.AudienceOverlap {
	platforms := make([]string, 0, len(audiences))
	for p := range audiences {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	var total, largest float64
	for _, p := range platforms {
		total += audiences[p]
		if audiences[p] > largest {
			largest = audiences[p]
		}
	}

	reach := total
	for i := 0; i < len(platforms); i++ {
		for j := i + 1; j < len(platforms); j++ {
			pct := a.cfg.OverlapPercent(platforms[i], platforms[j])
			if pct == 0 {
				continue
			}
			smaller := audiences[platforms[i]]
			if audiences[platforms[j]] < smaller {
				smaller = audiences[platforms[j]]
			}
			reach -= pct * smaller
		}
	}
	if reach < largest {
		reach = largest
	}

	return models.AudienceOverlap{
		EstimatedUniqueReach: reach,
		PlatformAudiences:    audiences,
		Approximate:          true,
		Method:               "configured-pairwise-overlap",
	}
}
