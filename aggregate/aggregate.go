package aggregate

import (
	"math"
	"sort"

	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/fetcher"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/scoring"
)

// Aggregator composes per-page records into per-retailer scores. It holds
// only immutable configuration and is safe for concurrent use.
type Aggregator struct {
	w   config.Scoring
	soa *ShareOfAnswer
}

// New creates an Aggregator. soa may be nil, in which case A is 0 everywhere.
func New(w config.Scoring, soa *ShareOfAnswer) *Aggregator {
	return &Aggregator{w: w, soa: soa}
}

// Compute dispatches on mode (models.ModeDomain, ModeCategory or
// ModeCategoryWeighted). Unknown modes fall back to ModeDomain; the mode
// actually used is returned.
func (a *Aggregator) Compute(mode string, records []*models.AuditRecord) ([]*models.DomainAggregate, string) {
	switch mode {
	case models.ModeCategory:
		return a.ByCategory(records), mode
	case models.ModeCategoryWeighted:
		return a.CategoryWeighted(records), mode
	default:
		return a.ByDomain(records), models.ModeDomain
	}
}

// ByDomain computes one aggregate per domain, sorted by domain. Failed
// records count with zero scores.
func (a *Aggregator) ByDomain(records []*models.AuditRecord) []*models.DomainAggregate {
	groups := groupBy(records, recordDomain)
	out := make([]*models.DomainAggregate, 0, len(groups))
	for _, domain := range sortedKeys(groups) {
		out = append(out, a.Compose(domain, "", groups[domain]))
	}
	return out
}

// ByCategory computes one aggregate per (domain, category) pair, sorted by
// domain then category.
func (a *Aggregator) ByCategory(records []*models.AuditRecord) []*models.DomainAggregate {
	var out []*models.DomainAggregate
	for _, domain := range sortedKeys(groupBy(records, recordDomain)) {
		out = append(out, a.categories(domain, records)...)
	}
	return out
}

// CategoryWeighted computes per-(domain, category) composites and averages
// them per domain, so a retailer audited mostly in one category is not
// dominated by it.
func (a *Aggregator) CategoryWeighted(records []*models.AuditRecord) []*models.DomainAggregate {
	byDomain := groupBy(records, recordDomain)
	out := make([]*models.DomainAggregate, 0, len(byDomain))
	for _, domain := range sortedKeys(byDomain) {
		cats := a.categories(domain, byDomain[domain])
		agg := &models.DomainAggregate{Domain: domain}
		for _, c := range cats {
			agg.Records += c.Records
			agg.Rated += c.Rated
			agg.E += c.E
			agg.X += c.X
			agg.A += c.A
			agg.S += c.S
			agg.LAR += c.LAR
			agg.Gated = agg.Gated || c.Gated
			if c.Category != "" {
				agg.Categories = append(agg.Categories, c.Category)
			}
		}
		if n := float64(len(cats)); n > 0 {
			agg.E /= n
			agg.X /= n
			agg.A /= n
			agg.S /= n
			agg.LAR /= n
		}
		out = append(out, agg)
	}
	return out
}

func (a *Aggregator) categories(domain string, records []*models.AuditRecord) []*models.DomainAggregate {
	var own []*models.AuditRecord
	for _, r := range records {
		if r != nil && recordDomain(r) == domain {
			own = append(own, r)
		}
	}
	groups := groupBy(own, func(r *models.AuditRecord) string { return r.Category })
	out := make([]*models.DomainAggregate, 0, len(groups))
	for _, cat := range sortedKeys(groups) {
		out = append(out, a.Compose(domain, cat, groups[cat]))
	}
	return out
}

// Compose computes the dimensions and composite for one group of records:
//
//	E   = share * mean(product) + (1 - share) * mean(family)
//	X   = mean(extended points)
//	S   = mean(rating score) over rated records, 0 when none
//	A   = share-of-answer lookup
//	LAR = wE*E + wX*X + wA*A + wS*S, clamped to [0, 100]
//
// When E is below the gate threshold LAR is capped at the gate ceiling.
func (a *Aggregator) Compose(domain, category string, records []*models.AuditRecord) *models.DomainAggregate {
	cw := a.w.Composite
	agg := &models.DomainAggregate{Domain: domain, Category: category, Records: len(records)}

	var product, family, extended, rating float64
	for _, r := range records {
		product += r.ProductScore
		family += r.FamilyScore
		extended += scoring.ExtendedPoints(a.w.Extended, r.PolicyTier, r.SpecsPresent)
		if r.Rating != nil {
			rating += r.Rating.Score
			agg.Rated++
		}
	}
	if n := float64(len(records)); n > 0 {
		agg.E = cw.ProductShare*product/n + (1-cw.ProductShare)*family/n
		agg.X = extended / n
	}
	if agg.Rated > 0 {
		agg.S = rating / float64(agg.Rated)
	}
	agg.A = a.soa.Lookup(domain, category)

	lar := cw.E*agg.E + cw.X*agg.X + cw.A*agg.A + cw.S*agg.S
	lar = math.Max(0, math.Min(100, lar))
	if agg.E < cw.GateThreshold {
		agg.Gated = true
		lar = math.Min(lar, cw.GateCap)
	}
	agg.LAR = lar
	return agg
}

func recordDomain(r *models.AuditRecord) string {
	if r.Domain != "" {
		return r.Domain
	}
	return fetcher.Domain(r.URL)
}

func groupBy(records []*models.AuditRecord, keyFn func(*models.AuditRecord) string) map[string][]*models.AuditRecord {
	groups := make(map[string][]*models.AuditRecord)
	for _, r := range records {
		if r == nil {
			continue
		}
		k := keyFn(r)
		groups[k] = append(groups[k], r)
	}
	return groups
}

func sortedKeys(m map[string][]*models.AuditRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
