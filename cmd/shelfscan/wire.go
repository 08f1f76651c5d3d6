package main

import (
	"log/slog"

	"github.com/use-agent/shelfscan/aggregate"
	"github.com/use-agent/shelfscan/audit"
	"github.com/use-agent/shelfscan/cache"
	"github.com/use-agent/shelfscan/config"
	"github.com/use-agent/shelfscan/fetcher"
	"github.com/use-agent/shelfscan/metrics"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/policy"
	"github.com/use-agent/shelfscan/scoring"
	"github.com/use-agent/shelfscan/scraper"
	"github.com/use-agent/shelfscan/store"
)

// engine is the wired audit pipeline shared by every command.
type engine struct {
	auditor    *audit.Auditor
	runner     *audit.Runner
	aggregator *aggregate.Aggregator
	store      *store.Store     // nil when persistence is disabled
	scraper    *scraper.Scraper // nil when rendering is disabled
	verdicts   *cache.Cache[bool]
}

// buildEngine wires fetcher, renderer, policy resolver, scorer, runner,
// aggregator and store from cfg. A browser that fails to launch degrades the
// engine to static-only audits.
func buildEngine(cfg *config.Config, render bool) (*engine, error) {
	limiter := fetcher.NewDomainLimiter(cfg.Fetch.DomainRPS, cfg.Fetch.DomainBurst)

	f := fetcher.New(cfg.Fetch, cfg.Browser.DefaultProxy, limiter)
	f.OnRetry(func(_ string, _ int, err *models.AuditError) {
		metrics.FetchRetries.WithLabelValues(err.Code).Inc()
	})

	e := &engine{verdicts: cache.New[bool](cfg.Cache.MaxEntries, cfg.Cache.TTL)}

	var renderer audit.Renderer
	if render && cfg.Browser.Enabled {
		sc, err := scraper.NewScraper(cfg.Browser, cfg.Render, limiter)
		if err != nil {
			slog.Warn("render fallback unavailable, auditing static HTML only", "error", err)
		} else {
			e.scraper = sc
			renderer = sc
		}
	}

	resolver := policy.NewResolver(f, e.verdicts, cfg.Scoring.MaxPolicyLinks, cfg.Scoring.PolicyKeywords)
	e.auditor = audit.NewAuditor(f, renderer, resolver, scoring.New(cfg.Scoring))
	e.runner = audit.NewRunner(e.auditor.Audit, cfg.Audit.Concurrency)

	var soa *aggregate.ShareOfAnswer
	if path := cfg.Aggregate.ShareOfAnswerFile; path != "" {
		var err error
		if soa, err = aggregate.LoadShareOfAnswerFile(path); err != nil {
			e.close()
			return nil, err
		}
		slog.Info("share-of-answer loaded", "path", path, "entries", soa.Len())
	}
	e.aggregator = aggregate.New(cfg.Scoring, soa)

	if path := cfg.Store.Path; path != "" {
		st, err := store.Open(path)
		if err != nil {
			e.close()
			return nil, err
		}
		e.store = st
		slog.Info("audit records persisted", "path", path)
	}
	return e, nil
}

func (e *engine) close() {
	if e.scraper != nil {
		e.scraper.Close()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			slog.Warn("failed to close store", "error", err)
		}
	}
	e.verdicts.Stop()
}
