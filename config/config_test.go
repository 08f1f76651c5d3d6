package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultScoringValid(t *testing.T) {
	if err := DefaultScoring().Validate(); err != nil {
		t.Fatalf("default weights invalid: %v", err)
	}
}

func TestParseScoringKeepsDefaults(t *testing.T) {
	s, err := ParseScoring([]byte(`
composite:
  gate_threshold: 50
policy_keywords: [returns, retur]
`))
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultScoring()
	if s.Composite.GateThreshold != 50 || s.Composite.GateCap != def.Composite.GateCap || s.Composite.E != def.Composite.E {
		t.Errorf("composite = %+v", s.Composite)
	}
	if strings.Join(s.PolicyKeywords, ",") != "returns,retur" {
		t.Errorf("keywords = %v", s.PolicyKeywords)
	}
	if s.Product != def.Product {
		t.Errorf("product weights changed: %+v", s.Product)
	}

	if _, err := ParseScoring([]byte("composite: [1, 2")); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Scoring)
		wantErr string
	}{
		{"defaults", func(*Scoring) {}, ""},
		{"product over 100", func(s *Scoring) { s.Product.Specs = 40 }, "product weights"},
		{"brand+mpn above gtin", func(s *Scoring) { s.Product.IdentifierBrandMpn = 25 }, "identifier_brand_mpn"},
		{"extended tiers out of order", func(s *Scoring) { s.Extended.PolicyLinkOnly = 40 }, "increase with tier"},
		{"composite not summing to 1", func(s *Scoring) { s.Composite.S = 0.2 }, "composite weights"},
		{"fallback above primary", func(s *Scoring) { s.Rating.FallbackWeight = 1.5 }, "fallback_weight"},
		{"zero confidence threshold", func(s *Scoring) { s.Rating.ConfidenceThreshold = 0 }, "confidence_threshold"},
		{"negative weight hidden by the sum", func(s *Scoring) { s.Family.Breadcrumb = -5 }, "family.breadcrumb must not be negative"},
		{"negative composite weight", func(s *Scoring) { s.Composite.A = -0.1; s.Composite.E = 0.7 }, "composite.a must not be negative"},
		{"negative policy links", func(s *Scoring) { s.MaxPolicyLinks = -1 }, "max_policy_links"},
		{"render discount above 1", func(s *Scoring) { s.RenderDiscount = 2 }, "render_discount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultScoring()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateReportsInOrder(t *testing.T) {
	s := DefaultScoring()
	s.Product.Specs = -1
	s.Family.ProductGroup = -1
	s.Composite.S = -0.15
	s.Composite.E = 0.65
	want := "product.specs must not be negative\nfamily.product_group must not be negative\ncomposite.s must not be negative"
	for i := 0; i < 5; i++ {
		err := s.Validate()
		if err == nil || err.Error() != want {
			t.Fatalf("err = %v, want\n%s", err, want)
		}
	}
}

func TestLoadFromEnv(t *testing.T) {
	weights := filepath.Join(t.TempDir(), "weights.yaml")
	if err := os.WriteFile(weights, []byte("max_policy_links: 5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHELFSCAN_PORT", "9090")
	t.Setenv("SHELFSCAN_FETCH_TIMEOUT", "3s")
	t.Setenv("SHELFSCAN_RENDER", "false")
	t.Setenv("SHELFSCAN_API_KEYS", " a , ,b")
	t.Setenv("SHELFSCAN_DOMAIN_RPS", "not-a-number")
	t.Setenv("SHELFSCAN_WEIGHTS_FILE", weights)
	t.Setenv("SHELFSCAN_POLICY_KEYWORDS", "returns,garanti")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 || cfg.Fetch.Timeout != 3*time.Second || cfg.Browser.Enabled {
		t.Errorf("server/fetch/browser = %+v %+v %+v", cfg.Server, cfg.Fetch, cfg.Browser)
	}
	if strings.Join(cfg.Auth.APIKeys, ",") != "a,b" {
		t.Errorf("api keys = %q", cfg.Auth.APIKeys)
	}
	if cfg.Fetch.DomainRPS != 1.0 {
		t.Errorf("unparsable value should fall back to default, got %v", cfg.Fetch.DomainRPS)
	}
	if cfg.Scoring.MaxPolicyLinks != 5 || strings.Join(cfg.Scoring.PolicyKeywords, ",") != "returns,garanti" {
		t.Errorf("scoring = links %d keywords %v", cfg.Scoring.MaxPolicyLinks, cfg.Scoring.PolicyKeywords)
	}
}

func TestLoadRejectsInvalidWeights(t *testing.T) {
	weights := filepath.Join(t.TempDir(), "weights.yaml")
	if err := os.WriteFile(weights, []byte("composite:\n  e: 0.9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHELFSCAN_WEIGHTS_FILE", weights)
	if _, err := Load(); err == nil {
		t.Error("invalid weight table accepted")
	}
}
