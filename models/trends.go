package models

import (
	"sort"
	"time"
)

// RatingPoint is one timestamped rating observation of a product page. Every
// successful audit appends one, so a URL accumulates a history even though
// its record is replaced.
type RatingPoint struct {
	URL        string    `json:"url"`
	Domain     string    `json:"domain"`
	ObservedAt time.Time `json:"observed_at"`
	HasRating  bool      `json:"has_rating"`
	Value      float64   `json:"rating_value,omitempty"`
	Count      int       `json:"rating_count,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// ReviewGain is a product whose review count grew between its first and
// latest observation.
type ReviewGain struct {
	URL  string `json:"url"`
	From int    `json:"from"`
	To   int    `json:"to"`
	Gain int    `json:"gain"`
}

// RatingTrends summarises rating histories: how many products carry a
// rating now, and how many gained reviews or improved their rating since
// they were first observed.
type RatingTrends struct {
	Domain           string       `json:"domain,omitempty"`
	TotalProducts    int          `json:"total_products"`
	WithRatings      int          `json:"products_with_ratings"`
	GainingReviews   int          `json:"products_gaining_reviews"`
	ImprovingRatings int          `json:"products_improving_ratings"`
	TopReviewGainers []ReviewGain `json:"top_review_gainers"`
	FirstObservedAt  *time.Time   `json:"first_observed_at,omitempty"`
	LatestObservedAt *time.Time   `json:"latest_observed_at,omitempty"`
}

// SummarizeTrends folds points, ordered by URL then observation time, into
// trends. Products need at least two observations to count as gaining or
// improving; top caps TopReviewGainers, largest gain first.
func SummarizeTrends(domain string, points []RatingPoint, top int) *RatingTrends {
	t := &RatingTrends{Domain: domain, TopReviewGainers: []ReviewGain{}}
	for i := 0; i < len(points); {
		j := i
		for j < len(points) && points[j].URL == points[i].URL {
			j++
		}
		first, last := points[i], points[j-1]
		t.TotalProducts++
		if last.HasRating {
			t.WithRatings++
		}
		if j-i >= 2 {
			if last.Count > first.Count {
				t.GainingReviews++
				t.TopReviewGainers = append(t.TopReviewGainers, ReviewGain{
					URL: last.URL, From: first.Count, To: last.Count, Gain: last.Count - first.Count,
				})
			}
			if last.Value > first.Value {
				t.ImprovingRatings++
			}
		}
		for _, p := range points[i:j] {
			at := p.ObservedAt
			if t.FirstObservedAt == nil || at.Before(*t.FirstObservedAt) {
				t.FirstObservedAt = &at
			}
			if t.LatestObservedAt == nil || at.After(*t.LatestObservedAt) {
				t.LatestObservedAt = &at
			}
		}
		i = j
	}

	gainers := t.TopReviewGainers
	sort.SliceStable(gainers, func(a, b int) bool { return gainers[a].Gain > gainers[b].Gain })
	if top > 0 && len(gainers) > top {
		t.TopReviewGainers = gainers[:top]
	}
	return t
}
