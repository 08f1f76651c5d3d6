package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/use-agent/shelfscan/api"
	"github.com/use-agent/shelfscan/audit"
	"github.com/use-agent/shelfscan/fetcher"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/store"
	"github.com/use-agent/shelfscan/webhook"
)

// ServeAction runs the HTTP API until SIGINT or SIGTERM.
func ServeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	slog.Info("shelfscan starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"render", cfg.Browser.Enabled,
		"concurrency", cfg.Audit.Concurrency,
	)

	e, err := buildEngine(cfg, true)
	if err != nil {
		return err
	}
	defer e.close()

	deps := api.Deps{
		Audit:      e.auditor.Audit,
		Runner:     e.runner,
		Aggregator: e.aggregator,
		Notifier:   webhook.New(10*time.Second, nil),
	}
	if e.store != nil {
		deps.Store = e.store
	}
	if e.scraper != nil {
		deps.Pool = e.scraper
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(deps, cfg, time.Now()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("shelfscan stopped")
	return nil
}

// AuditAction audits every row of the input CSV and writes record rows.
func AuditAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	in, err := os.Open(c.String("input"))
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	inputs, err := audit.ReadInputs(in)
	in.Close()
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return errors.New("input has no URLs")
	}

	e, err := buildEngine(cfg, !c.Bool("no-render"))
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("auditing", "urls", len(inputs), "concurrency", cfg.Audit.Concurrency)
	records := e.runner.Run(ctx, inputs, func(idx int, rec *models.AuditRecord) {
		slog.Debug("audited",
			"idx", idx,
			"url", rec.URL,
			"product_score", rec.ProductScore,
			"policy_tier", rec.PolicyTier.String(),
			"failed", rec.Failed(),
		)
	})

	if e.store != nil {
		if err := e.store.SaveAll(context.Background(), records); err != nil {
			return err
		}
	}

	if err := writeTo(c.String("output"), func(w io.Writer) error {
		return audit.WriteRecords(w, records)
	}); err != nil {
		return err
	}

	if path := c.String("aggregate-output"); path != "" {
		out, _ := e.aggregator.Compute(defaultMode(cfg.Aggregate.CategoryWeighted), records)
		return writeTo(path, func(w io.Writer) error { return writeAggregates(w, out) })
	}
	return nil
}

// AggregateAction composes domain rows from stored records.
func AggregateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return errors.New("aggregate needs stored records: set --db or SHELFSCAN_DB_PATH")
	}

	e, err := buildEngine(cfg, false)
	if err != nil {
		return err
	}
	defer e.close()

	var records []*models.AuditRecord
	domains := c.StringSlice("domain")
	if len(domains) == 0 {
		domains = []string{""}
	}
	for _, d := range domains {
		recs, err := e.store.List(c.Context, fetcher.NormalizeDomain(d))
		if err != nil {
			return err
		}
		records = append(records, recs...)
	}

	mode := c.String("mode")
	if mode == "" {
		mode = defaultMode(cfg.Aggregate.CategoryWeighted)
	}
	out, mode := e.aggregator.Compute(mode, records)
	slog.Info("aggregated", "records", len(records), "domains", len(out), "mode", mode)
	return writeTo(c.String("output"), func(w io.Writer) error { return writeAggregates(w, out) })
}

// TrendsAction reports review-count gains and rating changes across the
// stored rating history.
func TrendsAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.Store.Path == "" {
		return errors.New("trends needs stored records: set --db or SHELFSCAN_DB_PATH")
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	domain := c.String("domain")
	if domain != "" {
		domain = fetcher.NormalizeDomain(domain)
	}
	trends, err := st.RatingTrends(c.Context, domain, c.Int("top"))
	if err != nil {
		return err
	}
	slog.Info("rating trends",
		"domain", domain,
		"products", trends.TotalProducts,
		"gaining_reviews", trends.GainingReviews,
		"improving_ratings", trends.ImprovingRatings,
	)
	return writeTo(c.String("output"), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(trends)
	})
}

func defaultMode(categoryWeighted bool) string {
	if categoryWeighted {
		return models.ModeCategoryWeighted
	}
	return models.ModeDomain
}

// writeTo calls fn with the file at path, or stdout when path is empty.
func writeTo(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeAggregates(w io.Writer, aggs []*models.DomainAggregate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(models.AggregateHeader); err != nil {
		return err
	}
	for _, a := range aggs {
		if err := cw.Write(a.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
