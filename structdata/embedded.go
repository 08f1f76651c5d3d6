package structdata

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/use-agent/shelfscan/models"
)

// Embedded rating origins.
const (
	OriginAppJSON   = "application/json"
	OriginMicrodata = "microdata"
	OriginInlineJS  = "inline_js"
)

// EmbeddedRating is a rating found outside JSON-LD: in framework state
// payloads, microdata or inline script assignments. Value is on the scale
// given by Best (0 when the page does not say).
type EmbeddedRating struct {
	Value    float64
	Best     float64
	Count    int
	HasCount bool
	Origin   string
}

var (
	ratingValueKeys = []string{"ratingValue", "averageRating", "averageScore", "avgRating", "ratingAverage"}
	ratingCountKeys = []string{"ratingCount", "reviewCount", "numberOfReviews", "numberOfRatings", "totalReviews", "reviewsCount"}
	bestRatingKeys  = []string{"bestRating", "maxRating", "ratingScale"}

	reInlineValue = regexp.MustCompile(`["']?(?:ratingValue|averageRating|averageScore|avgRating|ratingAverage)["']?\s*[:=]\s*["']?(\d+(?:[.,]\d+)?)`)
	reInlineCount = regexp.MustCompile(`["']?(?:ratingCount|reviewCount|numberOfReviews|numberOfRatings|totalReviews|reviewsCount)["']?\s*[:=]\s*["']?(\d+)`)
	reInlineBest  = regexp.MustCompile(`["']?bestRating["']?\s*[:=]\s*["']?(\d+(?:[.,]\d+)?)`)

	itempropSel = cascadia.MustCompile("[itemprop]")
)

// ScanEmbedded is the secondary rating pass used only by the rating
// normalizer. It returns nil when no rating was found.
func ScanEmbedded(page *models.RawPage) *EmbeddedRating {
	doc, err := Parse(page.Body)
	if err != nil {
		return nil
	}
	return ScanDocument(doc)
}

// ScanDocument looks for a rating in, in order: JSON payload scripts
// (including comment-wrapped ones), microdata, and inline script
// assignments. Map keys are walked in sorted order so the result is
// deterministic for a given page.
func ScanDocument(doc *goquery.Document) *EmbeddedRating {
	var payloads, inline []string
	doc.FindMatcher(scriptSel).Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
		switch {
		case isLDJSON(typ):
		case strings.Contains(typ, "json"):
			payloads = append(payloads, s.Text())
		case typ == "" || strings.Contains(typ, "javascript") || typ == "module":
			inline = append(inline, s.Text())
		}
	})

	for _, raw := range payloads {
		v, err := decodeBlock(raw)
		if err != nil {
			continue
		}
		if r := walkRating(v); r != nil {
			r.Origin = OriginAppJSON
			return r
		}
	}
	if r := microdataRating(doc); r != nil {
		return r
	}
	for _, src := range inline {
		if r := inlineRating(src); r != nil {
			return r
		}
	}
	return nil
}

// walkRating does a depth-first search for the first object carrying a
// positive rating value.
func walkRating(v any) *EmbeddedRating {
	switch t := v.(type) {
	case map[string]any:
		if r := ratingFromObject(t); r != nil {
			return r
		}
		for _, k := range sortedKeys(t) {
			if r := walkRating(t[k]); r != nil {
				return r
			}
		}
	case []any:
		for _, e := range t {
			if r := walkRating(e); r != nil {
				return r
			}
		}
	}
	return nil
}

func ratingFromObject(m map[string]any) *EmbeddedRating {
	var r EmbeddedRating
	found := false
	for _, k := range ratingValueKeys {
		if v, ok := number(m[k]); ok && v > 0 {
			r.Value, found = v, true
			break
		}
	}
	if !found {
		return nil
	}
	for _, k := range ratingCountKeys {
		if c, ok := count(m[k]); ok {
			r.Count, r.HasCount = c, true
			break
		}
	}
	for _, k := range bestRatingKeys {
		if b, ok := number(m[k]); ok && b > 0 {
			r.Best = b
			break
		}
	}
	return &r
}

func microdataRating(doc *goquery.Document) *EmbeddedRating {
	var r EmbeddedRating
	found := false
	doc.FindMatcher(itempropSel).Each(func(_ int, s *goquery.Selection) {
		val := s.AttrOr("content", "")
		if val == "" {
			val = s.Text()
		}
		switch s.AttrOr("itemprop", "") {
		case "ratingValue":
			if v, ok := parseNumericString(val); ok && v > 0 && !found {
				r.Value, found = v, true
			}
		case "ratingCount", "reviewCount":
			if c, ok := count(val); ok && !r.HasCount {
				r.Count, r.HasCount = c, true
			}
		case "bestRating":
			if b, ok := parseNumericString(val); ok && b > 0 && r.Best == 0 {
				r.Best = b
			}
		}
	})
	if !found {
		return nil
	}
	r.Origin = OriginMicrodata
	return &r
}

func inlineRating(src string) *EmbeddedRating {
	var r EmbeddedRating
	found := false
	for _, m := range reInlineValue.FindAllStringSubmatch(src, -1) {
		if v, ok := parseNumericString(m[1]); ok && v > 0 {
			r.Value, found = v, true
			break
		}
	}
	if !found {
		return nil
	}
	if m := reInlineCount.FindStringSubmatch(src); m != nil {
		r.Count, r.HasCount = count(m[1])
	}
	if m := reInlineBest.FindStringSubmatch(src); m != nil {
		r.Best, _ = parseNumericString(m[1])
	}
	r.Origin = OriginInlineJS
	return &r
}
