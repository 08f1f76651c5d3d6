package main

import (
	"fmt"
	"strings"

	"github.com/use-agent/shelfscan/models"
)

func errorText(e *models.ErrorDetail, fallback string) string {
	if e == nil {
		return fallback
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func formatRecord(r *models.AuditRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nDomain: %s\n", r.URL, r.Domain)
	if r.FetchError != nil {
		fmt.Fprintf(&b, "Fetch error: %s\n", errorText(r.FetchError, ""))
		return b.String()
	}
	fmt.Fprintf(&b, "Product score: %.1f\nFamily score: %.1f\n", r.ProductScore, r.FamilyScore)
	fmt.Fprintf(&b, "Identifiers: %s\nPolicy: %s", r.IdentifierTier, r.PolicyTier)
	if r.PolicyURL != "" {
		fmt.Fprintf(&b, " (%s)", r.PolicyURL)
	}
	fmt.Fprintf(&b, "\nSpecs present: %t\nJS rendered: %t\n", r.SpecsPresent, r.JSRendered)
	if r.Rating != nil {
		fmt.Fprintf(&b, "Rating: %.2f", r.Rating.Value)
		if r.Rating.HasCount {
			fmt.Fprintf(&b, " from %d reviews", r.Rating.Count)
		}
		fmt.Fprintf(&b, " (%s, score %.1f)\n", r.Rating.Source, r.Rating.Score)
	} else {
		b.WriteString("Rating: none\n")
	}
	return b.String()
}

func formatBatch(s *models.BatchStatusResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s: %s (%d/%d, %d failed)\n\n", s.ID, s.Status, s.Completed, s.Total, s.Failed)
	for _, r := range s.Results {
		if r == nil {
			continue
		}
		if r.FetchError != nil {
			fmt.Fprintf(&b, "- %s: %s\n", r.URL, errorText(r.FetchError, ""))
			continue
		}
		fmt.Fprintf(&b, "- %s: product %.1f, family %.1f, identifiers %s, policy %s\n",
			r.URL, r.ProductScore, r.FamilyScore, r.IdentifierTier, r.PolicyTier)
	}
	return b.String()
}

func formatAggregates(mode string, aggs []*models.DomainAggregate) string {
	if len(aggs) == 0 {
		return "No audited records to aggregate."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Mode: %s\n\n", mode)
	for _, a := range aggs {
		name := a.Domain
		if a.Category != "" {
			name += " / " + a.Category
		}
		fmt.Fprintf(&b, "%s: LAR %.1f (E %.1f, X %.1f, A %.1f, S %.1f; %d pages",
			name, a.LAR, a.E, a.X, a.A, a.S, a.Records)
		if a.Gated {
			b.WriteString(", capped by E gate")
		}
		b.WriteString(")\n")
	}
	return b.String()
}
