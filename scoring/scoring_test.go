package scoring

import (
	"math"
	"testing"

	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/structdata"
)

func graphOf(t *testing.T, origin models.Origin, blocks ...string) *structdata.Graph {
	t.Helper()
	body := "<html><head>"
	for _, b := range blocks {
		body += `<script type="application/ld+json">` + b + `</script>`
	}
	body += "</head></html>"
	return structdata.Extract(&models.RawPage{URL: "https://shop.example.com/p", Body: []byte(body), Origin: origin})
}

func approx(a, b float64) bool { return math.Abs(a-b) < 0.05 }

func TestValidGTIN(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"7350000000001", true},
		{"12345670", true},
		{"0 12345 67890 5", true},
		{"735-0000-000001", true},
		{"1234567", false},
		{"123456789012345", false},
		{"73500000000AB", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidGTIN(tt.in); got != tt.want {
			t.Errorf("ValidGTIN(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIdentifierTier(t *testing.T) {
	tests := []struct {
		name  string
		block string
		want  models.IdentifierTier
	}{
		{"gtin", `{"@type":"Product","gtin13":"7350000000001"}`, models.IdentifierGtin},
		{"generic gtin", `{"@type":"Product","gtin":"12345670"}`, models.IdentifierGtin},
		{"brand and mpn", `{"@type":"Product","brand":"Acme","mpn":"X1"}`, models.IdentifierBrandPlusMpn},
		{"mpn without brand", `{"@type":"Product","mpn":"X1"}`, models.IdentifierNone},
		{"invalid gtin falls through", `{"@type":"Product","gtin13":"n/a","brand":{"@type":"Brand","name":"Acme"},"mpn":"X1"}`, models.IdentifierBrandPlusMpn},
		{"brand inherited from group", `{"@type":"ProductGroup","@id":"#g","brand":"Acme","hasVariant":{"@type":"Product","mpn":"X1","isVariantOf":{"@id":"#g"}}}`, models.IdentifierBrandPlusMpn},
		{"max across products", `[{"@type":"Product","mpn":"X1"},{"@type":"Product","gtin8":"12345670"}]`, models.IdentifierGtin},
		{"no product", `{"@type":"Organization","name":"Acme"}`, models.IdentifierNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IdentifierTier(graphOf(t, models.OriginStatic, tt.block)); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIdentifierMonotonic(t *testing.T) {
	s := New(config.DefaultScoring())
	withGTIN := s.Score(&Evidence{Static: graphOf(t, models.OriginStatic,
		`{"@type":"Product","brand":"Acme","mpn":"X1","gtin13":"7350000000001"}`)})
	brandOnly := s.Score(&Evidence{Static: graphOf(t, models.OriginStatic,
		`{"@type":"Product","brand":"Acme","mpn":"X1"}`)})
	if withGTIN.ProductScore < brandOnly.ProductScore {
		t.Errorf("GTIN page scored %v < brand+mpn page %v", withGTIN.ProductScore, brandOnly.ProductScore)
	}
	if withGTIN.IdentifierTier <= brandOnly.IdentifierTier {
		t.Errorf("tiers not ordered: %s vs %s", withGTIN.IdentifierTier, brandOnly.IdentifierTier)
	}
}

func TestSpecsPresent(t *testing.T) {
	tests := []struct {
		name string
		prop string
		want bool
	}{
		{"unit code", `{"name":"Power","value":9,"unitCode":"KWT"}`, true},
		{"unit text", `{"name":"Noise","value":"42","unitText":"dB(A)"}`, true},
		{"unit in value", `{"name":"Power","value":"9 kW"}`, true},
		{"airflow", `{"name":"Airflow","value":"650 m³/h"}`, true},
		{"free text", `{"name":"Colour","value":"White"}`, false},
		{"bare number", `{"name":"Model year","value":"2024"}`, false},
		{"unit without value", `{"name":"Power","unitCode":"KWT"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graphOf(t, models.OriginStatic, `{"@type":"Product","additionalProperty":[`+tt.prop+`]}`)
			if got := SpecsPresent(g); got != tt.want {
				t.Errorf("SpecsPresent = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	p := config.DefaultScoring().Rating
	tests := []struct {
		name      string
		value     float64
		best      float64
		count     int
		hasCount  bool
		src       models.RatingSource
		wantOK    bool
		wantScore float64
		wantConf  float64
	}{
		{"max rating", 5.0, 0, 100, true, models.RatingPrimary, true, 100, 1},
		{"neutral", 3.5, 0, 100, true, models.RatingPrimary, true, 0, 1},
		{"low rating", 2.0, 0, 100, true, models.RatingPrimary, true, -100, 1},
		{"zero confidence", 5.0, 0, 0, true, models.RatingPrimary, true, 0, 0},
		{"absent count means full confidence", 5.0, 0, 0, false, models.RatingPrimary, true, 100, 1},
		{"partial confidence", 5.0, 0, 10, true, models.RatingPrimary, true, 40, 0.4},
		{"fallback discount", 5.0, 0, 25, true, models.RatingFallback, true, 90, 1},
		{"scenario A", 4.8, 0, 55, true, models.RatingPrimary, true, 86.67, 1},
		{"ten point scale", 9.0, 10, 25, true, models.RatingPrimary, true, 66.67, 1},
		{"clamped at -100", 0.5, 0, 25, true, models.RatingPrimary, true, -100, 1},
		{"out of range", 7.0, 0, 25, true, models.RatingPrimary, false, 0, 0},
		{"negative", -1, 0, 25, true, models.RatingPrimary, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, ok := Normalize(p, tt.value, tt.best, tt.count, tt.hasCount, tt.src)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !approx(obs.Score, tt.wantScore) || !approx(obs.Confidence, tt.wantConf) {
				t.Errorf("score/confidence = %v/%v, want %v/%v", obs.Score, obs.Confidence, tt.wantScore, tt.wantConf)
			}
			if obs.Score < -100 || obs.Score > 100 {
				t.Errorf("score %v outside [-100, 100]", obs.Score)
			}
		})
	}
}

func TestPrimaryRatingOrder(t *testing.T) {
	p := config.DefaultScoring().Rating
	g := graphOf(t, models.OriginStatic,
		`{"@type":"AggregateRating","ratingValue":2.0}`,
		`{"@type":"Product","aggregateRating":{"@type":"AggregateRating","ratingValue":4.5,"ratingCount":30}}`,
	)
	obs := PrimaryRating(p, g)
	if obs == nil || obs.Value != 4.5 || obs.Source != models.RatingPrimary || obs.Origin != OriginJSONLD {
		t.Fatalf("got %+v, want the Product rating 4.5", obs)
	}

	standalone := graphOf(t, models.OriginStatic, `{"@type":"AggregateRating","ratingValue":"4,1","reviewCount":3}`)
	if obs := PrimaryRating(p, nil, standalone); obs == nil || obs.Value != 4.1 || obs.Count != 3 {
		t.Errorf("stand-alone rating not used: %+v", obs)
	}
	if obs := PrimaryRating(p, graphOf(t, models.OriginStatic, `{"@type":"Product"}`)); obs != nil {
		t.Errorf("got %+v from a page without ratings", obs)
	}
}

func TestFallbackRating(t *testing.T) {
	p := config.DefaultScoring().Rating
	obs := FallbackRating(p, nil, &structdata.EmbeddedRating{Value: 5, Count: 30, HasCount: true, Origin: structdata.OriginMicrodata})
	if obs == nil || obs.Source != models.RatingFallback || !approx(obs.Score, 90) || obs.Origin != structdata.OriginMicrodata {
		t.Errorf("got %+v", obs)
	}
}

func TestScoreBounds(t *testing.T) {
	s := New(config.DefaultScoring())
	rich := graphOf(t, models.OriginStatic, `{
		"@type":"ProductGroup","@id":"https://shop.example.com/g","name":"Pumps","brand":"Acme",
		"hasMerchantReturnPolicy":{"@type":"MerchantReturnPolicy","merchantReturnDays":30},
		"additionalProperty":[{"name":"Power","minValue":6,"maxValue":12,"unitCode":"KWT"}],
		"hasVariant":[{
			"@type":"Product","url":"https://shop.example.com/p/6","gtin13":"7350000000001",
			"additionalProperty":[{"name":"Power","value":"6 kW"}],
			"offers":{"@type":"Offer","price":"100","priceCurrency":"EUR","availability":"InStock","url":"https://shop.example.com/p/6"}
		}]
	}`, `{"@type":"BreadcrumbList","itemListElement":[{"name":"Home"},{"name":"Pumps"}]}`)

	tests := []struct {
		name        string
		ev          *Evidence
		wantProduct float64
		wantFamily  float64
	}{
		{"empty page", &Evidence{Static: graphOf(t, models.OriginStatic)}, 0, 0},
		{"everything", &Evidence{Static: rich, PolicyTier: models.PolicyStructuredOnProduct}, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.Score(tt.ev)
			if rec.ProductScore != tt.wantProduct || rec.FamilyScore != tt.wantFamily {
				t.Errorf("product/family = %v/%v, want %v/%v (signals %+v)", rec.ProductScore, rec.FamilyScore, tt.wantProduct, tt.wantFamily, rec.Signals)
			}
		})
	}

	// Weights that overshoot still yield bounded scores.
	w := config.DefaultScoring()
	w.Product.Specs = 90
	w.Family.Breadcrumb = 90
	rec := New(w).Score(&Evidence{Static: rich, PolicyTier: models.PolicyStructuredOnProduct})
	if rec.ProductScore > 100 || rec.FamilyScore > 100 {
		t.Errorf("scores exceed 100: %v/%v", rec.ProductScore, rec.FamilyScore)
	}
}

func TestRenderDiscount(t *testing.T) {
	s := New(config.DefaultScoring())
	static := graphOf(t, models.OriginStatic)
	rendered := graphOf(t, models.OriginRendered, `{"@type":"Product","name":"late"}`)

	rec := s.Score(&Evidence{Static: static, Rendered: rendered})
	if !rec.JSRendered || !rec.Signals.RenderedStructuredData || rec.Signals.StaticStructuredData {
		t.Fatalf("unexpected flags: %+v", rec.Signals)
	}
	// 20 * 0.5 for render-only structured data + 20 for the product schema.
	if rec.ProductScore != 30 {
		t.Errorf("ProductScore = %v, want 30", rec.ProductScore)
	}
}

func TestExtendedPoints(t *testing.T) {
	w := config.DefaultScoring().Extended
	tests := []struct {
		tier  models.PolicyTier
		specs bool
		want  float64
	}{
		{models.PolicyNone, false, 0},
		{models.PolicyLinkOnly, false, 15},
		{models.PolicyStructuredOnPolicyPage, false, 35},
		{models.PolicyStructuredOnProduct, false, 50},
		{models.PolicyStructuredOnProduct, true, 100},
		{models.PolicyNone, true, 50},
	}
	for _, tt := range tests {
		if got := ExtendedPoints(w, tt.tier, tt.specs); got != tt.want {
			t.Errorf("ExtendedPoints(%s, %v) = %v, want %v", tt.tier, tt.specs, got, tt.want)
		}
	}
}
