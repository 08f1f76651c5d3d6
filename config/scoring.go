package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Scoring is the immutable weight table consumed by the per-page scorer, the
// policy resolver and the aggregator. It is passed by value; nothing mutates
// it after Load.
type Scoring struct {
	Product   ProductWeights   `yaml:"product"`
	Family    FamilyWeights    `yaml:"family"`
	Extended  ExtendedWeights  `yaml:"extended"`
	Rating    RatingParams     `yaml:"rating"`
	Composite CompositeWeights `yaml:"composite"`

	// RenderDiscount multiplies the structured-data points when structured
	// data was only obtained through the render fallback.
	RenderDiscount float64 `yaml:"render_discount"`

	// MaxPolicyLinks caps how many policy links the resolver follows per page.
	MaxPolicyLinks int `yaml:"max_policy_links"`

	// PolicyKeywords are matched (case-insensitively) against anchor text and
	// href of same-site links.
	PolicyKeywords []string `yaml:"policy_keywords"`
}

// ProductWeights are the product sub-score points.
type ProductWeights struct {
	StructuredData     float64 `yaml:"structured_data"`
	ProductSchema      float64 `yaml:"product_schema"`
	CompleteOffer      float64 `yaml:"complete_offer"`
	IdentifierGtin     float64 `yaml:"identifier_gtin"`
	IdentifierBrandMpn float64 `yaml:"identifier_brand_mpn"`
	Policy             float64 `yaml:"policy"`
	Specs              float64 `yaml:"specs"`
}

// FamilyWeights are the family sub-score points.
type FamilyWeights struct {
	ProductGroup float64 `yaml:"product_group"`
	HasVariant   float64 `yaml:"has_variant"`
	VariantLinks float64 `yaml:"variant_links"`
	Breadcrumb   float64 `yaml:"breadcrumb"`
	Policy       float64 `yaml:"policy"`
	SpecRanges   float64 `yaml:"spec_ranges"`
}

// ExtendedWeights is the separate point table of the extended-attributes
// dimension.
type ExtendedWeights struct {
	PolicyLinkOnly   float64 `yaml:"policy_link_only"`
	PolicyPolicyPage float64 `yaml:"policy_policy_page"`
	PolicyProduct    float64 `yaml:"policy_product"`
	Specs            float64 `yaml:"specs"`
}

// RatingParams drive confidence weighting and centered normalization.
type RatingParams struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	NeutralPoint        float64 `yaml:"neutral_point"`
	ScaleRange          float64 `yaml:"scale_range"`
	ScaleMax            float64 `yaml:"scale_max"`
	PrimaryWeight       float64 `yaml:"primary_weight"`
	FallbackWeight      float64 `yaml:"fallback_weight"`
}

// CompositeWeights drive the domain-level composite.
type CompositeWeights struct {
	// ProductShare is the weight of the mean product sub-score inside E; the
	// family sub-score gets the remainder.
	ProductShare float64 `yaml:"product_share"`

	E float64 `yaml:"e"`
	X float64 `yaml:"x"`
	A float64 `yaml:"a"`
	S float64 `yaml:"s"`

	GateThreshold float64 `yaml:"gate_threshold"`
	GateCap       float64 `yaml:"gate_cap"`
}

// DefaultScoring returns the documented default weight table.
func DefaultScoring() Scoring {
	return Scoring{
		Product: ProductWeights{
			StructuredData:     20,
			ProductSchema:      20,
			CompleteOffer:      15,
			IdentifierGtin:     20,
			IdentifierBrandMpn: 10,
			Policy:             10,
			Specs:              15,
		},
		Family: FamilyWeights{
			ProductGroup: 25,
			HasVariant:   25,
			VariantLinks: 15,
			Breadcrumb:   15,
			Policy:       10,
			SpecRanges:   10,
		},
		Extended: ExtendedWeights{
			PolicyLinkOnly:   15,
			PolicyPolicyPage: 35,
			PolicyProduct:    50,
			Specs:            50,
		},
		Rating: RatingParams{
			ConfidenceThreshold: 25,
			NeutralPoint:        3.5,
			ScaleRange:          1.5,
			ScaleMax:            5,
			PrimaryWeight:       1.0,
			FallbackWeight:      0.9,
		},
		Composite: CompositeWeights{
			ProductShare:  0.8,
			E:             0.35,
			X:             0.25,
			A:             0.25,
			S:             0.15,
			GateThreshold: 60,
			GateCap:       40,
		},
		RenderDiscount: 0.5,
		MaxPolicyLinks: 3,
		PolicyKeywords: []string{
			// en
			"return", "refund", "warranty", "guarantee", "shipping", "delivery", "terms",
			// sv
			"retur", "öppet köp", "garanti", "reklamation", "frakt", "leverans", "villkor",
			// de
			"rückgabe", "widerruf", "versand", "garantie", "agb",
		},
	}
}

// LoadScoringFile reads a YAML weight table. Keys absent from the file keep
// their default values.
func LoadScoringFile(path string) (Scoring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scoring{}, fmt.Errorf("config: read weights file: %w", err)
	}
	return ParseScoring(data)
}

// ParseScoring decodes a YAML weight table over the defaults.
func ParseScoring(data []byte) (Scoring, error) {
	s := DefaultScoring()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scoring{}, fmt.Errorf("config: parse weights: %w", err)
	}
	return s, nil
}

// Validate rejects weight tables that would break score bounds or tier ordering.
func (s Scoring) Validate() error {
	var errs []error
	p := s.Product
	if sum := p.StructuredData + p.ProductSchema + p.CompleteOffer + p.IdentifierGtin + p.Policy + p.Specs; sum > 100 {
		errs = append(errs, fmt.Errorf("product weights sum to %.1f, want <= 100", sum))
	}
	if p.IdentifierBrandMpn > p.IdentifierGtin {
		errs = append(errs, errors.New("identifier_brand_mpn must not exceed identifier_gtin"))
	}
	f := s.Family
	if sum := f.ProductGroup + f.HasVariant + f.VariantLinks + f.Breadcrumb + f.Policy + f.SpecRanges; sum > 100 {
		errs = append(errs, fmt.Errorf("family weights sum to %.1f, want <= 100", sum))
	}
	x := s.Extended
	if !(x.PolicyLinkOnly <= x.PolicyPolicyPage && x.PolicyPolicyPage <= x.PolicyProduct) {
		errs = append(errs, errors.New("extended policy points must increase with tier"))
	}
	if x.PolicyProduct+x.Specs > 100 {
		errs = append(errs, errors.New("extended weights exceed 100"))
	}
	c := s.Composite
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"product.structured_data", p.StructuredData},
		{"product.product_schema", p.ProductSchema},
		{"product.complete_offer", p.CompleteOffer},
		{"product.identifier_gtin", p.IdentifierGtin},
		{"product.identifier_brand_mpn", p.IdentifierBrandMpn},
		{"product.policy", p.Policy},
		{"product.specs", p.Specs},
		{"family.product_group", f.ProductGroup},
		{"family.has_variant", f.HasVariant},
		{"family.variant_links", f.VariantLinks},
		{"family.breadcrumb", f.Breadcrumb},
		{"family.policy", f.Policy},
		{"family.spec_ranges", f.SpecRanges},
		{"extended.policy_link_only", x.PolicyLinkOnly},
		{"extended.specs", x.Specs},
		{"composite.e", c.E},
		{"composite.x", c.X},
		{"composite.a", c.A},
		{"composite.s", c.S},
	} {
		if w.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", w.name))
		}
	}
	r := s.Rating
	if r.ConfidenceThreshold <= 0 {
		errs = append(errs, errors.New("rating.confidence_threshold must be positive"))
	}
	if r.ScaleRange <= 0 || r.ScaleMax <= 0 {
		errs = append(errs, errors.New("rating.scale_range and rating.scale_max must be positive"))
	}
	if r.FallbackWeight < 0 || r.FallbackWeight > r.PrimaryWeight {
		errs = append(errs, errors.New("rating.fallback_weight must be within [0, primary_weight]"))
	}
	if sum := c.E + c.X + c.A + c.S; math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("composite weights sum to %.3f, want 1", sum))
	}
	if c.ProductShare < 0 || c.ProductShare > 1 {
		errs = append(errs, errors.New("composite.product_share must be within [0, 1]"))
	}
	if s.RenderDiscount < 0 || s.RenderDiscount > 1 {
		errs = append(errs, errors.New("render_discount must be within [0, 1]"))
	}
	if s.MaxPolicyLinks < 0 {
		errs = append(errs, errors.New("max_policy_links must not be negative"))
	}
	return errors.Join(errs...)
}
