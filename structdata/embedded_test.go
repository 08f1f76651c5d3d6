package structdata

import (
	"testing"
)

func TestScanEmbedded(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantNil    bool
		wantValue  float64
		wantCount  int
		wantHasCnt bool
		wantBest   float64
		wantOrigin string
	}{
		{
			name:      "next data payload",
			body:      `<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"product":{"reviews":{"averageRating":4.2,"numberOfReviews":17}}}}}</script>`,
			wantValue: 4.2, wantCount: 17, wantHasCnt: true, wantOrigin: OriginAppJSON,
		},
		{
			name:      "hypernova comment wrapped payload",
			body:      `<script type="application/json" data-hypernova-key="pdp"><!--{"rating":{"averageScore":"4,6","reviewCount":"3"}}--></script>`,
			wantValue: 4.6, wantCount: 3, wantHasCnt: true, wantOrigin: OriginAppJSON,
		},
		{
			name:      "microdata",
			body:      `<div itemscope itemtype="https://schema.org/AggregateRating"><meta itemprop="ratingValue" content="9"><meta itemprop="bestRating" content="10"><span itemprop="reviewCount">120</span></div>`,
			wantValue: 9, wantBest: 10, wantCount: 120, wantHasCnt: true, wantOrigin: OriginMicrodata,
		},
		{
			name:      "inline state assignment",
			body:      `<script>window.__INITIAL_STATE__ = {"pdp":{"ratingValue":"3.9","ratingCount":"8"}};</script>`,
			wantValue: 3.9, wantCount: 8, wantHasCnt: true, wantOrigin: OriginInlineJS,
		},
		{
			name:      "inline without count",
			body:      `<script>var avgRating = 4.0;</script>`,
			wantValue: 4.0, wantOrigin: OriginInlineJS,
		},
		{
			name:    "zero rating placeholder is absent",
			body:    `<script type="application/json">{"averageRating":0,"reviewCount":0}</script>`,
			wantNil: true,
		},
		{
			name:    "json-ld is not part of the secondary scan",
			body:    `<script type="application/ld+json">{"@type":"AggregateRating","ratingValue":5}</script>`,
			wantNil: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ScanEmbedded(page("<html><body>" + tt.body + "</body></html>"))
			if tt.wantNil {
				if r != nil {
					t.Fatalf("got %+v, want nil", r)
				}
				return
			}
			if r == nil {
				t.Fatal("got nil rating")
			}
			if r.Value != tt.wantValue || r.Count != tt.wantCount || r.HasCount != tt.wantHasCnt || r.Best != tt.wantBest || r.Origin != tt.wantOrigin {
				t.Errorf("got %+v", r)
			}
		})
	}
}

func TestScanEmbeddedDeterministic(t *testing.T) {
	body := `<script type="application/json">{"b":{"averageRating":3.1},"a":{"averageRating":4.4}}</script>`
	for i := 0; i < 20; i++ {
		r := ScanEmbedded(page(body))
		if r == nil || r.Value != 4.4 {
			t.Fatalf("run %d: got %+v, want the rating under key \"a\"", i, r)
		}
	}
}
