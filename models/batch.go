package models

import "sync"

// BatchRequest is the payload for POST /api/v1/batch.
type BatchRequest struct {
	// Inputs are the URLs to audit, each with its discovery metadata.
	Inputs []AuditInput `json:"inputs" binding:"required,min=1"`

	// WebhookURL, when set, receives a signed event once the batch finishes.
	WebhookURL    string `json:"webhook_url,omitempty" binding:"omitempty,url"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Completed int            `json:"completed"`
	Failed    int            `json:"failed"`
	Total     int            `json:"total"`
	Results   []*AuditRecord `json:"results,omitempty"`
}

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// BatchJob tracks an in-progress batch audit. Workers report through
// Record; readers take a consistent copy through Status.
type BatchJob struct {
	ID            string
	WebhookURL    string
	WebhookSecret string
	CreatedAt     int64 // unix timestamp

	mu        sync.Mutex
	status    string
	completed int
	failed    int
	results   []*AuditRecord
}

// NewBatchJob creates a job in the processing state with room for total
// results.
func NewBatchJob(id string, total int, createdAt int64) *BatchJob {
	return &BatchJob{
		ID:        id,
		CreatedAt: createdAt,
		status:    BatchProcessing,
		results:   make([]*AuditRecord, total),
	}
}

// Record stores the result for input idx.
func (j *BatchJob) Record(idx int, rec *AuditRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results[idx] = rec
	j.completed++
	if rec == nil || rec.Failed() {
		j.failed++
	}
}

// Finish sets the terminal state from the failure count and returns it.
func (j *BatchJob) Finish() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case len(j.results) > 0 && j.failed == len(j.results):
		j.status = BatchFailed
	case j.failed > 0:
		j.status = BatchPartial
	default:
		j.status = BatchCompleted
	}
	return j.status
}

// Status returns a copy of the job's progress. Results are included only
// once the job has finished.
func (j *BatchJob) Status() BatchStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	resp := BatchStatusResponse{
		ID:        j.ID,
		Status:    j.status,
		Completed: j.completed,
		Failed:    j.failed,
		Total:     len(j.results),
	}
	if j.status != BatchProcessing {
		resp.Results = append([]*AuditRecord(nil), j.results...)
	}
	return resp
}
