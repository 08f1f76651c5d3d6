package audit

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/shelfscan/fetcher"
	"github.com/use-agent/shelfscan/metrics"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/policy"
	"github.com/use-agent/shelfscan/scoring"
	"github.com/use-agent/shelfscan/structdata"
)

// Auditor runs the per-URL pipeline: fetch, extract, optional render,
// policy resolution, rating selection and scoring. It is safe for concurrent
// use.
type Auditor struct {
	fetcher  fetcher.Fetcher
	renderer Renderer
	policy   *policy.Resolver
	scorer   *scoring.Scorer
}

// NewAuditor wires an Auditor. renderer and resolver may be nil: without a
// renderer pages are scored on static HTML only, without a resolver the
// policy tier is always none.
func NewAuditor(f fetcher.Fetcher, renderer Renderer, resolver *policy.Resolver, scorer *scoring.Scorer) *Auditor {
	return &Auditor{
		fetcher:  f,
		renderer: renderer,
		policy:   resolver,
		scorer:   scorer,
	}
}

// snapshot is one acquisition of a page with everything extracted from it.
type snapshot struct {
	page     *models.RawPage
	doc      *goquery.Document
	graph    *structdata.Graph
	embedded *structdata.EmbeddedRating
}

func newSnapshot(page *models.RawPage) *snapshot {
	s := &snapshot{page: page}
	doc, err := structdata.Parse(page.Body)
	if err != nil {
		slog.Debug("audit: parse html", "url", page.URL, "error", err)
		s.graph = structdata.Extract(page)
		s.embedded = structdata.ScanEmbedded(page)
		return s
	}
	s.doc = doc
	s.graph = structdata.ExtractDocument(doc, page.Origin)
	s.embedded = structdata.ScanDocument(doc)
	return s
}

// Audit produces the record for one input. It never fails: fetch errors and
// invalid input yield a record with zero scores and FetchError set.
func (a *Auditor) Audit(ctx context.Context, in models.AuditInput) *models.AuditRecord {
	start := time.Now()
	domain := in.Domain
	if domain == "" {
		domain = fetcher.Domain(in.URL)
	} else {
		domain = fetcher.NormalizeDomain(domain)
	}

	if err := ValidateURL(in.URL); err != nil {
		return a.finish(FailedRecord(in, domain, err, time.Now().UTC()), start)
	}

	page, err := a.fetcher.Fetch(ctx, in.URL)
	if err != nil {
		ae := models.AsAuditError(err)
		slog.Warn("audit: fetch failed", "url", in.URL, "code", ae.Code, "error", err)
		return a.finish(FailedRecord(in, domain, ae, time.Now().UTC()), start)
	}

	static := newSnapshot(page)
	ev := &scoring.Evidence{
		Input:     in,
		Domain:    domain,
		Static:    static.graph,
		FetchedAt: page.FetchedAt,
	}

	used := static
	var rendered *snapshot
	if a.renderer != nil && NeedsRender(static.graph, static.embedded) {
		rendered = a.render(ctx, in.URL, static)
		if rendered != nil {
			ev.Rendered = rendered.graph
			used = rendered
		}
	}

	p := a.scorer.Weights().Rating
	ev.Rating = scoring.PrimaryRating(p, ev.Graph(), static.graph)
	if ev.Rating == nil {
		var renderedEmbedded *structdata.EmbeddedRating
		if rendered != nil {
			renderedEmbedded = rendered.embedded
		}
		ev.Rating = scoring.FallbackRating(p, renderedEmbedded, static.embedded)
	}

	if a.policy != nil {
		res := a.policy.Resolve(ctx, used.page, used.doc, used.graph)
		ev.PolicyTier, ev.PolicyURL = res.Tier, res.URL
	}

	rec := a.scorer.Score(ev)
	metrics.PolicyTier.WithLabelValues(rec.PolicyTier.String()).Inc()
	metrics.ProductScore.Observe(rec.ProductScore)
	return a.finish(rec, start)
}

// render runs the render fallback. It returns nil when the render failed or
// lost structured data the static page had, in which case the audit proceeds
// on static data alone.
func (a *Auditor) render(ctx context.Context, rawURL string, static *snapshot) *snapshot {
	slog.Debug("audit: static evidence incomplete, rendering",
		"url", rawURL,
		"has_product", static.graph.HasProduct(),
		"has_rating", static.graph.HasRating() || static.embedded != nil,
	)
	page, err := a.renderer.Render(ctx, rawURL)
	if err != nil {
		metrics.RendersTotal.WithLabelValues("failed").Inc()
		slog.Warn("audit: render failed, using static data", "url", rawURL, "error", err)
		return nil
	}
	page.Origin = models.OriginRendered
	s := newSnapshot(page)
	if lostEvidence(static.graph, s.graph) {
		metrics.RendersTotal.WithLabelValues("degraded").Inc()
		slog.Warn("audit: rendered page lost structured data, using static data",
			"url", rawURL,
			"rendered_products", len(s.graph.Products()),
		)
		return nil
	}
	metrics.RendersTotal.WithLabelValues("used").Inc()
	return s
}

// lostEvidence reports whether the rendered graph dropped what the static graph
// had: all of its nodes, or its Product.
func lostEvidence(static, rendered *structdata.Graph) bool {
	if static.Empty() {
		return false
	}
	return rendered.Empty() || (static.HasProduct() && !rendered.HasProduct())
}

func (a *Auditor) finish(rec *models.AuditRecord, start time.Time) *models.AuditRecord {
	status := "ok"
	if rec.Failed() {
		status = "failed"
	}
	metrics.AuditsTotal.WithLabelValues(status).Inc()
	metrics.AuditDuration.WithLabelValues(strconv.FormatBool(rec.JSRendered)).Observe(time.Since(start).Seconds())
	return rec
}

// FailedRecord is the record for an input that could not be audited: every
// score is zero and the error is carried in FetchError.
func FailedRecord(in models.AuditInput, domain string, err *models.AuditError, at time.Time) *models.AuditRecord {
	return &models.AuditRecord{
		URL:        in.URL,
		Domain:     domain,
		Intent:     in.Intent,
		Brand:      in.Brand,
		Category:   in.Category,
		FetchError: err.ToDetail(),
		AuditedAt:  at,
	}
}

// ValidateURL checks that rawURL is an absolute http(s) URL.
func ValidateURL(rawURL string) *models.AuditError {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return models.NewAuditError(models.ErrCodeInvalidInput, "url must be an absolute http(s) URL", err)
	}
	return nil
}
