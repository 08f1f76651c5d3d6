package scraper

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/fetcher"
	"github.com/use-agent/shelfscan/models"
)

// windowSize is a common desktop viewport. Some storefronts only hydrate
// product widgets (and their JSON-LD) for desktop layouts.
const windowSize = "1366,900"

// Scraper renders product pages in a shared headless browser. It is the
// render fallback used when static HTML lacks product or rating data, and is
// safe for concurrent use.
type Scraper struct {
	browser     *rod.Browser
	tabs        chan *tab
	browserCfg  config.BrowserConfig
	renderCfg   config.RenderConfig
	limiter     *fetcher.DomainLimiter
	activePages atomic.Int32
	renders     atomic.Int64
	recycled    atomic.Int64
	startTime   time.Time
}

// tab is a pooled browser tab and the number of renders it has served.
type tab struct {
	page *rod.Page
	uses int
}

// worn reports whether t has served its share of renders and should be
// replaced by a fresh tab.
func (t *tab) worn(maxUses int) bool {
	return maxUses > 0 && t.uses >= maxUses
}

// launchFlag is one Chromium switch; an empty value means a bare flag.
type launchFlag struct {
	name  flags.Flag
	value string
}

// launchFlags returns the Chromium switches for rendering product pages.
// Images blocked at the request level are also disabled in Blink so that lazy
// loaders never schedule them.
func launchFlags(renderCfg config.RenderConfig) []launchFlag {
	out := []launchFlag{
		{"disable-blink-features", "AutomationControlled"},
		{"disable-features", "AudioServiceOutOfProcess,TranslateUI"},
		{"window-size", windowSize},
		{"disable-renderer-backgrounding", ""},
		{"disable-background-timer-throttling", ""},
		{"disable-backgrounding-occluded-windows", ""},
		{"disable-component-update", ""},
		{"disable-default-apps", ""},
		{"disable-dev-shm-usage", ""},
		{"disable-extensions", ""},
		{"no-first-run", ""},
	}
	if slices.Contains(renderCfg.BlockedResourceTypes, string(proto.NetworkResourceTypeImage)) {
		out = append(out, launchFlag{"blink-settings", "imagesEnabled=false"})
	}
	return out
}

// NewScraper launches a headless browser and prepares a pool of
// browserCfg.MaxPages tabs, opened on first use. limiter is shared with the
// static fetcher so renders count against the same per-domain budget; it may
// be nil.
func NewScraper(browserCfg config.BrowserConfig, renderCfg config.RenderConfig, limiter *fetcher.DomainLimiter) (*Scraper, error) {
	l := launcher.New().
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)
	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.DefaultProxy != "" {
		l = l.Proxy(browserCfg.DefaultProxy)
	}
	l.Delete(flags.Flag("enable-automation"))
	for _, f := range launchFlags(renderCfg) {
		if f.value == "" {
			l.Set(f.name)
		} else {
			l.Set(f.name, f.value)
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewAuditError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, models.NewAuditError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}

	size := max(browserCfg.MaxPages, 1)
	tabs := make(chan *tab, size)
	for range size {
		tabs <- nil
	}
	slog.Info("renderer ready",
		"controlURL", controlURL,
		"maxPages", size,
		"maxPageUses", renderCfg.MaxPageUses,
	)

	return &Scraper{
		browser:    browser,
		tabs:       tabs,
		browserCfg: browserCfg,
		renderCfg:  renderCfg,
		limiter:    limiter,
		startTime:  time.Now(),
	}, nil
}

// acquire takes a tab from the pool, opening one when the slot is empty. It
// gives up when ctx ends while every tab is busy.
func (s *Scraper) acquire(ctx context.Context) (*tab, error) {
	var t *tab
	select {
	case t = <-s.tabs:
	case <-ctx.Done():
		return nil, categorizeError(ctx.Err(), "waiting for a browser tab")
	}
	if t != nil {
		return t, nil
	}
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.tabs <- nil
		return nil, models.NewAuditError(models.ErrCodeBrowserCrash, "failed to open browser tab", err)
	}
	return &tab{page: page}, nil
}

// release blanks t and returns it to the pool. A worn tab, or one that cannot
// be blanked, is closed and its slot left empty for a fresh tab.
func (s *Scraper) release(t *tab) {
	t.uses++
	if !t.worn(s.renderCfg.MaxPageUses) {
		err := t.page.Navigate("about:blank")
		if err == nil {
			s.tabs <- t
			return
		}
		slog.Warn("render: failed to blank tab, replacing it", "error", err)
	}
	if err := t.page.Close(); err != nil {
		slog.Debug("render: closing tab", "error", err)
	}
	s.recycled.Add(1)
	s.tabs <- nil
}

// Stats returns a snapshot of the pool's current state.
func (s *Scraper) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    cap(s.tabs),
		ActivePages: int(s.activePages.Load()),
		Renders:     s.renders.Load(),
		Recycled:    s.recycled.Load(),
		UptimeSec:   int64(time.Since(s.startTime).Seconds()),
	}
}

// Close waits for in-flight renders to hand back their tabs, closes every
// tab and kills the browser process.
func (s *Scraper) Close() {
	for range cap(s.tabs) {
		if t := <-s.tabs; t != nil {
			_ = t.page.Close()
		}
	}
	if err := s.browser.Close(); err != nil {
		slog.Warn("renderer: closing browser", "error", err)
	}
	slog.Info("renderer stopped", "renders", s.renders.Load(), "recycled", s.recycled.Load())
}
