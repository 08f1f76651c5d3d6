package fetcher

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// DomainLimiter is a per-retailer token bucket. Page fetches, policy-page
// fetches and renders toward one domain all draw from the same bucket while
// different domains proceed in parallel.
type DomainLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewDomainLimiter creates a limiter allowing rps requests per second per
// domain with the given burst. rps <= 0 disables limiting.
func NewDomainLimiter(rps float64, burst int) *DomainLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &DomainLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request toward the host of rawURL is allowed or ctx is
// done. A nil limiter never blocks.
func (d *DomainLimiter) Wait(ctx context.Context, rawURL string) error {
	if d == nil || d.rps <= 0 {
		return nil
	}
	domain := Domain(rawURL)
	if domain == "" {
		return nil
	}
	return d.get(domain).Wait(ctx)
}

func (d *DomainLimiter) get(domain string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[domain]
	if !ok {
		l = rate.NewLimiter(d.rps, d.burst)
		d.limiters[domain] = l
	}
	return l
}

// Domain returns the lower-cased host of rawURL without port and without a
// leading "www.". It returns "" for unparsable URLs.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}

// NormalizeDomain lower-cases host and strips a leading "www.".
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
