package scoring

import (
	"regexp"
	"strings"

	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/structdata"
)

// ValidGTIN reports whether v holds 8 to 14 digits once spaces and dashes
// are removed.
func ValidGTIN(v string) bool {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(v))
	if len(digits) < 8 || len(digits) > 14 {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IdentifierTier classifies the best identifier found on any Product of the
// page. A variant without its own brand inherits the brand of its group.
func IdentifierTier(g *structdata.Graph) models.IdentifierTier {
	best := models.IdentifierNone
	for _, p := range g.Products() {
		if t := productTier(g, p); t > best {
			best = t
		}
	}
	return best
}

func productTier(g *structdata.Graph, p *structdata.Product) models.IdentifierTier {
	for _, id := range p.GTINs {
		if ValidGTIN(id.Value) {
			return models.IdentifierGtin
		}
	}
	brand := g.BrandName(p.Brand)
	if brand == "" {
		if group, ok := structdata.ResolveAs[*structdata.ProductGroup](g, p.IsVariantOf); ok {
			brand = g.BrandName(group.Brand)
		}
	}
	if brand != "" && p.MPN != "" {
		return models.IdentifierBrandPlusMpn
	}
	return models.IdentifierNone
}

// unitValue matches a number followed by a unit token, e.g. "9 kW",
// "55 dB(A)", "650 m³/h".
var unitValue = regexp.MustCompile(`(?i)^[-+]?\d+(?:[.,]\d+)?\s*(?:kwh|kw|w|mah|v|hz|a|ml|l|km|mm|cm|m³/h|m3/h|m²|m2|m|db\(a\)|db|lm|kg|g|°c|°f|pa|kpa|bar|rpm|gb|tb|mb|in|"|%)(?:$|[\s,;/)])`)

// HasUnit reports whether a property value carries an explicit unit.
func HasUnit(pv structdata.PropertyValue) bool {
	hasValue := pv.Value != "" || pv.HasMin || pv.HasMax
	if hasValue && (pv.UnitCode != "" || pv.UnitText != "") {
		return true
	}
	return unitValue.MatchString(strings.TrimSpace(pv.Value))
}

// SpecsPresent reports whether some Product carries at least one
// unit-bearing additionalProperty. Free-text properties earn nothing.
func SpecsPresent(g *structdata.Graph) bool {
	for _, p := range g.Products() {
		for _, pv := range p.AdditionalProperty {
			if HasUnit(pv) {
				return true
			}
		}
	}
	return false
}

// SpecRanges reports whether a ProductGroup publishes min/max values for
// its varying properties.
func SpecRanges(g *structdata.Graph) bool {
	for _, pg := range g.ProductGroups() {
		for _, pv := range pg.AdditionalProperty {
			if pv.HasMin || pv.HasMax {
				return true
			}
		}
	}
	return false
}
