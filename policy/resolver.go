package policy

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/shelfscan/cache"
	"github.com/use-agent/shelfscan/fetcher"
	"github.com/use-agent/shelfscan/metrics"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/structdata"
)

// Result is the resolved policy evidence for one product page.
type Result struct {
	Tier models.PolicyTier `json:"tier"`

	// URL is the policy page that earned the tier: the page carrying
	// structured policy data, or the first candidate for LinkOnly.
	URL string `json:"url,omitempty"`

	// Links are the candidate policy pages in the order they are tried. Only
	// the first MaxPolicyLinks are followed.
	Links []Link `json:"links,omitempty"`
}

// Resolver determines the policy tier of a page. Verdicts for followed policy
// pages are cached by URL; a Resolver is safe for concurrent use.
type Resolver struct {
	fetcher  fetcher.Fetcher
	verdicts *cache.Cache[bool]
	maxLinks int
	keywords []string
}

// NewResolver creates a Resolver. verdicts may be nil to disable caching.
func NewResolver(f fetcher.Fetcher, verdicts *cache.Cache[bool], maxLinks int, keywords []string) *Resolver {
	return &Resolver{
		fetcher:  f,
		verdicts: verdicts,
		maxLinks: maxLinks,
		keywords: keywords,
	}
}

// Resolve returns the highest policy tier the page qualifies for. doc may be
// nil, in which case page.Body is parsed for link discovery.
func (r *Resolver) Resolve(ctx context.Context, page *models.RawPage, doc *goquery.Document, g *structdata.Graph) Result {
	if ok, policyURL := OnProduct(g); ok {
		return Result{Tier: models.PolicyStructuredOnProduct, URL: policyURL}
	}

	if doc == nil {
		doc, _ = structdata.Parse(page.Body)
	}
	candidates := r.candidates(page.BaseURL(), doc, g)
	if len(candidates) == 0 {
		return Result{Tier: models.PolicyNone}
	}

	for i, link := range candidates {
		if i >= r.maxLinks || ctx.Err() != nil {
			break
		}
		structured, ok := r.followLink(ctx, link.Href)
		if ok && structured {
			return Result{Tier: models.PolicyStructuredOnPolicyPage, URL: link.Href, Links: candidates}
		}
	}
	return Result{Tier: models.PolicyLinkOnly, URL: candidates[0].Href, Links: candidates}
}

// followLink reports whether the policy page at href carries a return policy
// or warranty entity. ok is false when the page could not be fetched.
func (r *Resolver) followLink(ctx context.Context, href string) (structured, ok bool) {
	key := cache.Key(href)
	if v, hit := r.verdicts.Get(key); hit {
		metrics.PolicyPages.WithLabelValues("cached").Inc()
		return v, true
	}

	slog.Debug("policy: following link", "url", href)
	page, err := r.fetcher.Fetch(ctx, href)
	if err != nil {
		metrics.PolicyPages.WithLabelValues("error").Inc()
		slog.Warn("policy: fetch policy page failed", "url", href, "error", err)
		return false, false
	}

	g := structdata.Extract(page)
	structured = len(structdata.All[*structdata.MerchantReturnPolicy](g)) > 0 ||
		len(structdata.All[*structdata.WarrantyPromise](g)) > 0
	r.verdicts.Set(key, structured)
	if structured {
		metrics.PolicyPages.WithLabelValues("structured").Inc()
	} else {
		metrics.PolicyPages.WithLabelValues("unstructured").Inc()
	}
	return structured, true
}

// candidates lists policy URLs named in structured data first, then keyword
// links from the document, deduplicated.
func (r *Resolver) candidates(baseURL string, doc *goquery.Document, g *structdata.Graph) []Link {
	var out []Link
	seen := make(map[string]struct{})
	add := func(l Link) {
		key := cache.Key(l.Href)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}

	base, _ := url.Parse(baseURL)
	for _, raw := range StructuredURLs(g) {
		if abs := absolute(base, raw); abs != "" {
			add(Link{Href: abs})
		}
	}
	for _, l := range DiscoverLinks(doc, baseURL, r.keywords) {
		add(l)
	}
	return out
}

// OnProduct reports whether a Product, ProductGroup, Offer or an offer's
// seller Organization carries structured policy data. The second result is
// the return policy's URL when one was given.
func OnProduct(g *structdata.Graph) (bool, string) {
	if g == nil {
		return false, ""
	}
	var holders []structdata.Policies
	for _, p := range g.Products() {
		holders = append(holders, p.Policies)
	}
	for _, pg := range g.ProductGroups() {
		holders = append(holders, pg.Policies)
	}
	for _, o := range structdata.All[*structdata.Offer](g) {
		holders = append(holders, o.Policies)
		if seller, ok := structdata.ResolveAs[*structdata.Organization](g, o.Seller); ok {
			holders = append(holders, seller.Policies)
		}
	}
	for _, h := range holders {
		if !g.HasStructuredPolicy(h) {
			continue
		}
		for _, rp := range structdata.ResolveAll[*structdata.MerchantReturnPolicy](g, h.ReturnPolicies) {
			if rp.URL != "" {
				return true, rp.URL
			}
		}
		return true, ""
	}
	return false, ""
}

// StructuredURLs collects policy URLs the structured data points at but does
// not describe: @id references, in object or string form, that resolve to
// nothing on the page.
func StructuredURLs(g *structdata.Graph) []string {
	if g == nil {
		return nil
	}
	var out []string
	collect := func(p structdata.Policies) {
		for _, refs := range [][]structdata.Ref{p.ReturnPolicies, p.Warranties} {
			for _, ref := range refs {
				if _, ok := g.Resolve(ref); !ok && ref.Key != "" {
					out = append(out, ref.Key)
				}
			}
		}
	}
	for _, n := range g.Nodes() {
		switch t := n.(type) {
		case *structdata.Product:
			collect(t.Policies)
		case *structdata.ProductGroup:
			collect(t.Policies)
		case *structdata.Offer:
			collect(t.Policies)
		case *structdata.Organization:
			collect(t.Policies)
		}
	}
	return out
}

// absolute resolves raw against base, keeping http(s) URLs only.
func absolute(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
