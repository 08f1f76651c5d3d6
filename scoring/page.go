package scoring

import (
	"strings"
	"time"

	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/structdata"
)

// Evidence is everything gathered about one URL before scoring.
type Evidence struct {
	Input  models.AuditInput
	Domain string

	// Static is the graph extracted from the fetched HTML; never nil.
	Static *structdata.Graph

	// Rendered is the graph from the render fallback, nil when no render
	// happened or the render degraded to static.
	Rendered *structdata.Graph

	PolicyTier models.PolicyTier
	PolicyURL  string
	Rating     *models.RatingObservation
	FetchedAt  time.Time
}

// Graph returns the graph the page is scored on.
func (e *Evidence) Graph() *structdata.Graph {
	if e.Rendered != nil {
		return e.Rendered
	}
	return e.Static
}

// Scorer turns evidence into an AuditRecord using an immutable weight table.
// It holds no other state and is safe for concurrent use.
type Scorer struct {
	w config.Scoring
}

// New creates a Scorer.
func New(w config.Scoring) *Scorer {
	return &Scorer{w: w}
}

// Weights returns the scorer's weight table.
func (s *Scorer) Weights() config.Scoring { return s.w }

// Score builds the record for one successfully fetched page. The same
// evidence always yields the same record.
func (s *Scorer) Score(ev *Evidence) *models.AuditRecord {
	g := ev.Graph()
	sig := s.signals(ev, g)
	ident := IdentifierTier(g)
	specs := SpecsPresent(g)

	return &models.AuditRecord{
		URL:            ev.Input.URL,
		Domain:         ev.Domain,
		Intent:         ev.Input.Intent,
		Brand:          ev.Input.Brand,
		Category:       ev.Input.Category,
		ProductScore:   s.productScore(sig, ident, specs),
		FamilyScore:    s.familyScore(sig),
		PolicyTier:     ev.PolicyTier,
		PolicyURL:      ev.PolicyURL,
		SpecsPresent:   specs,
		IdentifierTier: ident,
		Rating:         ev.Rating,
		JSRendered:     ev.Rendered != nil,
		Signals:        sig,
		AuditedAt:      ev.FetchedAt,
	}
}

func (s *Scorer) productScore(sig models.Signals, ident models.IdentifierTier, specs bool) float64 {
	w := s.w.Product
	var pts float64
	switch {
	case sig.StaticStructuredData:
		pts += w.StructuredData
	case sig.RenderedStructuredData:
		pts += w.StructuredData * s.w.RenderDiscount
	}
	if sig.ProductSchema {
		pts += w.ProductSchema
	}
	if sig.CompleteOffer {
		pts += w.CompleteOffer
	}
	switch ident {
	case models.IdentifierGtin:
		pts += w.IdentifierGtin
	case models.IdentifierBrandPlusMpn:
		pts += w.IdentifierBrandMpn
	}
	if sig.PolicySignal {
		pts += w.Policy
	}
	if specs {
		pts += w.Specs
	}
	return clamp(pts, 0, 100)
}

func (s *Scorer) familyScore(sig models.Signals) float64 {
	w := s.w.Family
	var pts float64
	for _, c := range []struct {
		on  bool
		pts float64
	}{
		{sig.ProductGroup, w.ProductGroup},
		{sig.HasVariant, w.HasVariant},
		{sig.VariantLinks, w.VariantLinks},
		{sig.Breadcrumb, w.Breadcrumb},
		{sig.FamilyPolicy, w.Policy},
		{sig.SpecRanges, w.SpecRanges},
	} {
		if c.on {
			pts += c.pts
		}
	}
	return clamp(pts, 0, 100)
}

// ExtendedPoints is the extended-attributes table: policy tier points plus
// specs points, clamped to [0, 100].
func ExtendedPoints(w config.ExtendedWeights, tier models.PolicyTier, specs bool) float64 {
	var pts float64
	switch tier {
	case models.PolicyLinkOnly:
		pts = w.PolicyLinkOnly
	case models.PolicyStructuredOnPolicyPage:
		pts = w.PolicyPolicyPage
	case models.PolicyStructuredOnProduct:
		pts = w.PolicyProduct
	}
	if specs {
		pts += w.Specs
	}
	return clamp(pts, 0, 100)
}

func (s *Scorer) signals(ev *Evidence, g *structdata.Graph) models.Signals {
	sig := models.Signals{
		StaticStructuredData:   hasStructuredData(ev.Static),
		RenderedStructuredData: ev.Rendered != nil && hasStructuredData(ev.Rendered),
		ProductSchema:          g.HasProduct() || len(structdata.All[*structdata.Offer](g)) > 0,
		CompleteOffer:          completeOffer(g),
		PolicySignal:           ev.PolicyTier > models.PolicyNone,
		Breadcrumb:             breadcrumb(g),
		SpecRanges:             SpecRanges(g),
	}

	groups := g.ProductGroups()
	sig.ProductGroup = len(groups) > 0
	for _, pg := range groups {
		if len(pg.HasVariant) > 0 {
			sig.HasVariant = true
		}
		if variantLinks(g, pg) {
			sig.VariantLinks = true
		}
		if g.HasStructuredPolicy(pg.Policies) {
			sig.FamilyPolicy = true
		}
	}
	if sig.ProductGroup && ev.PolicyTier == models.PolicyStructuredOnProduct {
		sig.FamilyPolicy = true
	}
	return sig
}

// hasStructuredData reports whether the graph came from at least one
// decodable structured-data block.
func hasStructuredData(g *structdata.Graph) bool {
	return g != nil && g.Blocks > g.Skipped
}

// completeOffer reports whether some offer has price, currency,
// availability and a purchase URL (its own or its product's).
func completeOffer(g *structdata.Graph) bool {
	ok := func(o *structdata.Offer, fallbackURL string) bool {
		return o.HasPrice && o.PriceCurrency != "" && o.Availability != "" && (o.URL != "" || fallbackURL != "")
	}
	for _, p := range g.Products() {
		for _, o := range g.ProductOffers(p) {
			if ok(o, p.URL) {
				return true
			}
		}
	}
	for _, o := range structdata.All[*structdata.Offer](g) {
		if ok(o, "") {
			return true
		}
	}
	return false
}

// breadcrumb reports a hierarchy of at least two named positions.
func breadcrumb(g *structdata.Graph) bool {
	for _, b := range structdata.All[*structdata.BreadcrumbList](g) {
		named := 0
		for _, it := range b.Items {
			if it.Name != "" {
				named++
			}
		}
		if named >= 2 {
			return true
		}
	}
	return false
}

// variantLinks reports whether the group's variants are addressable: a
// resolved variant with its own URL (or an offer URL), or a variant
// referenced by a URL-shaped @id.
func variantLinks(g *structdata.Graph, pg *structdata.ProductGroup) bool {
	for _, ref := range pg.HasVariant {
		v, ok := structdata.ResolveAs[*structdata.Product](g, ref)
		if !ok {
			if isLink(ref.Key) {
				return true
			}
			continue
		}
		if isLink(v.URL) || isLink(v.ID) {
			return true
		}
		for _, o := range g.ProductOffers(v) {
			if isLink(o.URL) {
				return true
			}
		}
	}
	return false
}

func isLink(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || len(s) > 1 && strings.HasPrefix(s, "/")
}
