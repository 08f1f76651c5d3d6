package scoring

import (
	"math"

	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/structdata"
)

// OriginJSONLD marks a primary rating read from the structured graph.
const OriginJSONLD = "jsonld"

// Normalize turns a raw rating into a RatingObservation. Ratings published on
// a scale larger than five (bestRating > 5) are rescaled to five points;
// anything outside [0, 5] afterwards is discarded and ok is false.
//
// Confidence is min(1, count/threshold); an absent count means full
// confidence. The score is centered on the neutral point so that
// below-neutral ratings come out negative:
//
//	((v - neutral) / range) * 100 * confidence * weight, clamped to [-100, 100]
func Normalize(p config.RatingParams, value, best float64, count int, hasCount bool, src models.RatingSource) (*models.RatingObservation, bool) {
	scaleMax := p.ScaleMax
	if scaleMax <= 0 {
		scaleMax = 5
	}
	if best > scaleMax {
		value = value / best * scaleMax
	}
	if math.IsNaN(value) || value < 0 || value > scaleMax {
		return nil, false
	}

	confidence := 1.0
	if hasCount && count >= 0 {
		confidence = math.Min(1, float64(count)/p.ConfidenceThreshold)
	}
	weight := p.PrimaryWeight
	if src == models.RatingFallback {
		weight = p.FallbackWeight
	}
	score := (value - p.NeutralPoint) / p.ScaleRange * 100 * confidence * weight

	return &models.RatingObservation{
		Value:      value,
		Count:      count,
		HasCount:   hasCount,
		Source:     src,
		Confidence: confidence,
		Score:      clamp(score, -100, 100),
	}, true
}

// PrimaryRating searches graphs in order for a usable AggregateRating:
// Product.aggregateRating first, then ProductGroup.aggregateRating, then any
// stand-alone AggregateRating entity.
func PrimaryRating(p config.RatingParams, graphs ...*structdata.Graph) *models.RatingObservation {
	for _, g := range graphs {
		if g == nil {
			continue
		}
		for _, r := range graphRatings(g) {
			if !r.HasValue {
				continue
			}
			if obs, ok := Normalize(p, r.Value, r.Best, r.Count, r.HasCount, models.RatingPrimary); ok {
				obs.Origin = OriginJSONLD
				return obs
			}
		}
	}
	return nil
}

func graphRatings(g *structdata.Graph) []*structdata.AggregateRating {
	var out []*structdata.AggregateRating
	for _, p := range g.Products() {
		if r, ok := structdata.ResolveAs[*structdata.AggregateRating](g, p.AggregateRating); ok {
			out = append(out, r)
		}
	}
	for _, pg := range g.ProductGroups() {
		if r, ok := structdata.ResolveAs[*structdata.AggregateRating](g, pg.AggregateRating); ok {
			out = append(out, r)
		}
	}
	return append(out, structdata.All[*structdata.AggregateRating](g)...)
}

// FallbackRating normalizes the first usable embedded rating.
func FallbackRating(p config.RatingParams, found ...*structdata.EmbeddedRating) *models.RatingObservation {
	for _, e := range found {
		if e == nil {
			continue
		}
		if obs, ok := Normalize(p, e.Value, e.Best, e.Count, e.HasCount, models.RatingFallback); ok {
			obs.Origin = e.Origin
			return obs
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
