package models

import (
	"testing"
	"time"
)

func TestSummarizeTrends(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pt := func(url string, day int, value float64, count int) RatingPoint {
		return RatingPoint{URL: url, ObservedAt: t0.AddDate(0, 0, day), HasRating: value > 0, Value: value, Count: count}
	}
	points := []RatingPoint{
		pt("a", 0, 4.0, 10), pt("a", 1, 4.0, 12), pt("a", 2, 4.2, 30),
		pt("b", 0, 4.5, 5), pt("b", 3, 4.4, 90),
		pt("c", 0, 0, 0), pt("c", 1, 0, 0),
		pt("d", 5, 3.9, 7),
	}

	got := SummarizeTrends("shop.com", points, 1)
	if got.TotalProducts != 4 || got.WithRatings != 3 || got.GainingReviews != 2 || got.ImprovingRatings != 1 {
		t.Errorf("trends = %+v", got)
	}
	if len(got.TopReviewGainers) != 1 || got.TopReviewGainers[0] != (ReviewGain{URL: "b", From: 5, To: 90, Gain: 85}) {
		t.Errorf("top gainers = %+v", got.TopReviewGainers)
	}
	if !got.FirstObservedAt.Equal(t0) || !got.LatestObservedAt.Equal(t0.AddDate(0, 0, 5)) {
		t.Errorf("window = %v .. %v", got.FirstObservedAt, got.LatestObservedAt)
	}

	empty := SummarizeTrends("", nil, 10)
	if empty.TotalProducts != 0 || empty.TopReviewGainers == nil || empty.FirstObservedAt != nil {
		t.Errorf("empty trends = %+v", empty)
	}
}
