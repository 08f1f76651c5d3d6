package models

import (
	"strconv"
	"time"
)

// RatingSource distinguishes a rating read from the structured graph from one
// recovered by the secondary embedded-JSON scan.
type RatingSource string

const (
	RatingPrimary  RatingSource = "primary"
	RatingFallback RatingSource = "fallback"
)

// RatingObservation is a rating after source selection, confidence weighting
// and centered normalization.
type RatingObservation struct {
	Value      float64      `json:"value"`
	Count      int          `json:"count"`
	HasCount   bool         `json:"has_count"`
	Source     RatingSource `json:"source"`
	Origin     string       `json:"origin,omitempty"` // e.g. "jsonld", "application/json", "inline_js", "microdata"
	Confidence float64      `json:"confidence"`
	Score      float64      `json:"score"`
}

// Signals is the boolean breakdown behind the product and family sub-scores.
type Signals struct {
	StaticStructuredData   bool `json:"static_structured_data"`
	RenderedStructuredData bool `json:"rendered_structured_data"`
	ProductSchema          bool `json:"product_schema"`
	CompleteOffer          bool `json:"complete_offer"`
	PolicySignal           bool `json:"policy_signal"`
	ProductGroup           bool `json:"product_group"`
	HasVariant             bool `json:"has_variant"`
	VariantLinks           bool `json:"variant_links"`
	Breadcrumb             bool `json:"breadcrumb"`
	FamilyPolicy           bool `json:"family_policy"`
	SpecRanges             bool `json:"spec_ranges"`
}

// AuditInput is one row handed over by the discovery collaborator.
type AuditInput struct {
	URL      string `json:"url" binding:"required,url"`
	Domain   string `json:"domain,omitempty"`
	Intent   string `json:"intent,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Category string `json:"category,omitempty"`
}

// AuditRecord is the write-once result of auditing one URL.
type AuditRecord struct {
	URL            string             `json:"url"`
	Domain         string             `json:"domain"`
	Intent         string             `json:"intent,omitempty"`
	Brand          string             `json:"brand,omitempty"`
	Category       string             `json:"category,omitempty"`
	ProductScore   float64            `json:"product_score"`
	FamilyScore    float64            `json:"family_score"`
	PolicyTier     PolicyTier         `json:"policy_tier"`
	PolicyURL      string             `json:"policy_url,omitempty"`
	SpecsPresent   bool               `json:"specs_present"`
	IdentifierTier IdentifierTier     `json:"identifier_tier"`
	Rating         *RatingObservation `json:"rating,omitempty"`
	JSRendered     bool               `json:"js_rendered"`
	FetchError     *ErrorDetail       `json:"fetch_error,omitempty"`
	Signals        Signals            `json:"signals"`
	AuditedAt      time.Time          `json:"audited_at"`
}

// Failed reports whether the record was produced from a fetch failure.
func (r *AuditRecord) Failed() bool {
	return r.FetchError != nil
}

// RowHeader lists the column names of Row, in order.
var RowHeader = []string{
	"url", "domain", "product_score", "family_score",
	"identifier_tier", "policy_tier", "specs_present",
	"rating_value", "rating_count", "rating_source",
	"js_rendered", "fetch_error",
	"identifiers", "policies",
	"ident_gtin", "ident_brand_mpn",
	"policy_on_product", "policy_on_policy_page", "policy_link_only",
}

// Row flattens the record into the output row consumed by downstream
// reporting. Tiers are emitted both as the legacy "any present" booleans and
// as explicit per-tier flags.
func (r *AuditRecord) Row() []string {
	var ratingValue, ratingCount, ratingSource string
	if r.Rating != nil {
		ratingValue = strconv.FormatFloat(r.Rating.Value, 'f', -1, 64)
		if r.Rating.HasCount {
			ratingCount = strconv.Itoa(r.Rating.Count)
		}
		ratingSource = string(r.Rating.Source)
	}
	var fetchErr string
	if r.FetchError != nil {
		fetchErr = r.FetchError.Code
	}
	return []string{
		r.URL,
		r.Domain,
		strconv.FormatFloat(r.ProductScore, 'f', -1, 64),
		strconv.FormatFloat(r.FamilyScore, 'f', -1, 64),
		r.IdentifierTier.String(),
		r.PolicyTier.String(),
		flag(r.SpecsPresent),
		ratingValue,
		ratingCount,
		ratingSource,
		flag(r.JSRendered),
		fetchErr,
		flag(r.IdentifierTier > IdentifierNone),
		flag(r.PolicyTier > PolicyNone),
		flag(r.IdentifierTier == IdentifierGtin),
		flag(r.IdentifierTier == IdentifierBrandPlusMpn),
		flag(r.PolicyTier == PolicyStructuredOnProduct),
		flag(r.PolicyTier == PolicyStructuredOnPolicyPage),
		flag(r.PolicyTier == PolicyLinkOnly),
	}
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
