package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/shelfscan/fetcher"
	"github.com/use-agent/shelfscan/models"
)

// AuditFunc audits one input. (*Auditor).Audit is the production value.
type AuditFunc func(ctx context.Context, in models.AuditInput) *models.AuditRecord

// Runner audits batches with a bounded number of workers.
type Runner struct {
	audit       AuditFunc
	concurrency int
}

// NewRunner creates a Runner running at most concurrency audits at once.
func NewRunner(audit AuditFunc, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{audit: audit, concurrency: concurrency}
}

// Progress is called once per finished input with its position in the batch.
// Calls may come from several goroutines.
type Progress func(idx int, rec *models.AuditRecord)

// Run audits every input and returns the records positioned by input index.
// A panic or a canceled context in one audit becomes a failed record; the
// batch always completes.
func (r *Runner) Run(ctx context.Context, inputs []models.AuditInput, progress Progress) []*models.AuditRecord {
	records := make([]*models.AuditRecord, len(inputs))
	sem := make(chan struct{}, r.concurrency)

	var wg sync.WaitGroup
	var failed atomic.Int32
	start := time.Now()

	for i, in := range inputs {
		wg.Add(1)
		go func(idx int, in models.AuditInput) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			rec := r.auditOne(ctx, in)
			records[idx] = rec
			if rec.Failed() {
				failed.Add(1)
			}
			if progress != nil {
				progress(idx, rec)
			}
		}(i, in)
	}
	wg.Wait()

	slog.Info("audit batch finished",
		"total", len(inputs),
		"failed", int(failed.Load()),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return records
}

// auditOne runs one audit, turning panics and cancellation into failed
// records.
func (r *Runner) auditOne(ctx context.Context, in models.AuditInput) (rec *models.AuditRecord) {
	domain := in.Domain
	if domain == "" {
		domain = fetcher.Domain(in.URL)
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("audit panicked", "url", in.URL, "panic", p)
			rec = FailedRecord(in, domain,
				models.NewAuditError(models.ErrCodeInternal, fmt.Sprintf("audit panicked: %v", p), nil),
				time.Now().UTC())
		}
	}()

	if err := ctx.Err(); err != nil {
		return FailedRecord(in, domain,
			models.NewAuditError(models.ErrCodeFetchTimeout, "batch canceled", err),
			time.Now().UTC())
	}
	rec = r.audit(ctx, in)
	if rec == nil {
		rec = FailedRecord(in, domain,
			models.NewAuditError(models.ErrCodeInternal, "audit returned no record", nil),
			time.Now().UTC())
	}
	return rec
}
