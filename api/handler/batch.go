package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shelfscan/audit"
	"github.com/use-agent/shelfscan/metrics"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/webhook"
)

// batchStore holds all in-flight and completed batch jobs.
var batchStore sync.Map

func init() {
	// Background goroutine to expire batch jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			batchStore.Range(func(key, value any) bool {
				job := value.(*models.BatchJob)
				if job.CreatedAt < cutoff {
					batchStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// PostBatch returns a handler for POST /api/v1/batch.
// It validates the request, registers a batch job, and audits the inputs in
// the background on runner. st and notifier may be nil.
func PostBatch(runner *audit.Runner, st RecordStore, notifier *webhook.Notifier, maxBatch int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if maxBatch > 0 && len(req.Inputs) > maxBatch {
			badRequest(c, fmt.Sprintf("maximum %d URLs per batch", maxBatch))
			return
		}

		job := models.NewBatchJob("batch-"+randomID(), len(req.Inputs), time.Now().Unix())
		job.WebhookURL = req.WebhookURL
		job.WebhookSecret = req.WebhookSecret
		batchStore.Store(job.ID, job)

		go runBatch(runner, st, notifier, job, req.Inputs)

		c.JSON(http.StatusAccepted, models.BatchResponse{
			ID:     job.ID,
			Status: models.BatchProcessing,
			Total:  len(req.Inputs),
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
// ?format=csv emits output rows once the job has finished.
func GetBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := batchStore.Load(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: "batch job not found",
			}})
			return
		}

		status := val.(*models.BatchJob).Status()
		if wantsCSV(c) && status.Status != models.BatchProcessing {
			writeCSV(c, models.RowHeader, status.Results)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// runBatch audits every input, persists the records, and notifies the
// job's webhook.
func runBatch(runner *audit.Runner, st RecordStore, notifier *webhook.Notifier, job *models.BatchJob, inputs []models.AuditInput) {
	metrics.BatchesInFlight.Inc()
	defer metrics.BatchesInFlight.Dec()

	ctx := context.Background()
	records := runner.Run(ctx, inputs, job.Record)

	if st != nil {
		if err := st.SaveAll(ctx, records); err != nil {
			slog.Error("failed to persist batch records", "id", job.ID, "error", err)
		}
	}

	state := job.Finish()
	status := job.Status()
	slog.Info("batch job finished",
		"id", job.ID,
		"status", state,
		"completed", status.Completed,
		"failed", status.Failed,
		"total", status.Total,
	)

	if job.WebhookURL != "" && notifier != nil {
		eventType := webhook.BatchCompleted
		switch state {
		case models.BatchPartial:
			eventType = webhook.BatchPartial
		case models.BatchFailed:
			eventType = webhook.BatchFailed
		}
		notifier.DeliverAsync(job.WebhookURL, job.WebhookSecret, &webhook.Event{
			Type:      eventType,
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data:      status,
		})
	}
}

// randomID generates a short random hex string for job IDs.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
