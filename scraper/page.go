package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/shelfscan/models"
)

// Render loads targetURL in a pooled browser tab, lets client-side scripts
// inject their structured data, and returns the resulting DOM as a RawPage
// with Origin set to rendered.
//
// Lifecycle:
//
//  1. Timeout guard          – hard deadline on the whole render
//  2. Domain limiter         – renders share the fetcher's per-domain budget
//  3. Acquire tab            – borrow a tab from the pool (or open one)
//  4. DEFER: release         – about:blank + return, or close a worn tab
//  5. Stealth injection      – mask navigator.webdriver etc. (before navigation!)
//  6. Hijack mount           – block images/CSS/fonts/media and trackers
//  7. Navigate
//  8. Settle                 – wait for the DOM to stop changing, bounded
//  9. Extract                – page.HTML() + final URL + status
//
// Steps 5-6 must happen before step 7: stealth JS and resource blocking only
// take effect for navigations that happen after they are installed.
func (s *Scraper) Render(ctx context.Context, targetURL string) (*models.RawPage, error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	if s.renderCfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.renderCfg.Timeout)
		defer cancel()
	}

	// ── 2. Per-domain limiter ─────────────────────────────────────────
	if err := s.limiter.Wait(ctx, targetURL); err != nil {
		return nil, categorizeError(err, "waiting for domain limiter")
	}

	// ── 3. Acquire tab from pool ──────────────────────────────────────
	t, acquireErr := s.acquire(ctx)
	if acquireErr != nil {
		return nil, acquireErr
	}
	s.activePages.Add(1)
	defer s.activePages.Add(-1)
	s.renders.Add(1)
	page := t.page

	// ── 4. CRITICAL DEFER: blank the tab and return it (or replace it) ──
	defer s.release(t)

	// ── 5. Stealth injection ──────────────────────────────────────────
	if s.renderCfg.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}
	if u, parseErr := url.Parse(targetURL); parseErr == nil {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{
				"Referer": "https://www.google.com/search?q=" + url.QueryEscape(u.Hostname()),
			}),
		}.Call(page)
	}

	// ── 6. Mount hijack router ────────────────────────────────────────
	router := setupHijack(page, s.renderCfg.BlockedResourceTypes, true)
	if router != nil {
		defer func() { _ = router.Stop() }()
	}

	p := page.Context(ctx)

	// ── 7. Navigate ───────────────────────────────────────────────────
	if navErr := p.Navigate(targetURL); navErr != nil {
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}

	// ── 8. Settle ─────────────────────────────────────────────────────
	// WaitRequestIdle uses the Fetch domain, which conflicts with
	// HijackRequests on recent Chromium, so DOM stability is the signal.
	settle := p
	if s.renderCfg.SettleTimeout > 0 {
		settleCtx, settleCancel := context.WithTimeout(ctx, s.renderCfg.SettleTimeout)
		defer settleCancel()
		settle = page.Context(settleCtx)
	}
	if stableErr := settle.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("render: DOM did not settle, proceeding with current DOM",
			"url", targetURL,
			"error", stableErr,
		)
	}

	// ── 9. Extract rendered HTML ──────────────────────────────────────
	rawHTML, htmlErr := p.HTML()
	if htmlErr != nil {
		return nil, categorizeError(htmlErr, "failed to extract page HTML")
	}

	var statusCode int
	if res, err := p.Eval(`() => {
		try {
			const entries = performance.getEntriesByType("navigation");
			if (entries.length > 0) return entries[0].responseStatus || 0;
		} catch(e) {}
		return 0;
	}`); err == nil {
		statusCode = res.Value.Int()
	}
	finalURL := evalStringOrEmpty(p, `() => window.location.href`)
	if finalURL == "" {
		finalURL = targetURL
	}

	return &models.RawPage{
		URL:        targetURL,
		FinalURL:   finalURL,
		StatusCode: statusCode,
		Body:       []byte(rawHTML),
		FetchedAt:  time.Now().UTC(),
		Origin:     models.OriginRendered,
	}, nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError wraps raw browser errors into typed AuditErrors. Callers
// treat every render error as a reason to fall back to static data.
func categorizeError(err error, msg string) *models.AuditError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewAuditError(models.ErrCodeRenderFailed, "render timed out", err)
	case errors.Is(err, context.Canceled):
		return models.NewAuditError(models.ErrCodeRenderFailed, "render canceled", err)
	default:
		return models.NewAuditError(models.ErrCodeRenderFailed, msg, err)
	}
}
