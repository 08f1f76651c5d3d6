package models

import "time"

// Origin records how a page's HTML was acquired.
type Origin string

const (
	OriginStatic   Origin = "static"
	OriginRendered Origin = "rendered"
)

// RawPage is the immutable output of the page fetcher or the renderer.
type RawPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
	Origin     Origin
}

// BaseURL returns the URL relative links on the page resolve against.
func (p *RawPage) BaseURL() string {
	if p.FinalURL != "" {
		return p.FinalURL
	}
	return p.URL
}
