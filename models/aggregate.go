package models

import (
	"strconv"
	"strings"
)

// DomainAggregate is one retailer's (optionally one category's) dimension
// scores and final composite. It is recomputed from scratch on every run.
type DomainAggregate struct {
	Domain     string   `json:"domain"`
	Category   string   `json:"category,omitempty"`
	Records    int      `json:"records"`
	Rated      int      `json:"rated"`
	E          float64  `json:"E"`
	X          float64  `json:"X"`
	A          float64  `json:"A"`
	S          float64  `json:"S"`
	LAR        float64  `json:"LAR"`
	Gated      bool     `json:"gated"`
	Categories []string `json:"categories,omitempty"`
}

// AggregateHeader lists the column names of DomainAggregate.Row.
var AggregateHeader = []string{"domain", "category", "E", "X", "A", "S", "LAR", "categories"}

// Row flattens the aggregate into a domain-level output row.
func (a *DomainAggregate) Row() []string {
	return []string{
		a.Domain,
		a.Category,
		round2(a.E),
		round2(a.X),
		round2(a.A),
		round2(a.S),
		round2(a.LAR),
		strings.Join(a.Categories, ";"),
	}
}

func round2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
