package models

// AuditResponse is the response for POST /api/v1/audit. A fetch failure is
// still a successful audit: the record carries fetch_error.
type AuditResponse struct {
	Success bool         `json:"success"`
	Record  *AuditRecord `json:"record,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// Aggregation modes.
const (
	ModeDomain           = "domain"
	ModeCategory         = "category"
	ModeCategoryWeighted = "category_weighted"
)

// AggregateRequest is the payload for POST /api/v1/aggregate. Records are
// composed as given; when empty, stored records for Domains (or all stored
// records) are used.
type AggregateRequest struct {
	Records []*AuditRecord `json:"records,omitempty"`
	Domains []string       `json:"domains,omitempty"`
	Mode    string         `json:"mode,omitempty" binding:"omitempty,oneof=domain category category_weighted"`
}

// AggregateResponse is the response for POST /api/v1/aggregate.
type AggregateResponse struct {
	Mode       string             `json:"mode"`
	Aggregates []*DomainAggregate `json:"aggregates"`
}

// RecordsResponse is the response for GET /api/v1/records.
type RecordsResponse struct {
	Records []*AuditRecord `json:"records"`
}

// ErrorResponse wraps an error for endpoints with no other body.
type ErrorResponse struct {
	Error *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string     `json:"status"` // "healthy" or "degraded"
	Uptime    string     `json:"uptime"`
	PoolStats *PoolStats `json:"pool_stats,omitempty"`
	Store     bool       `json:"store"`
	Version   string     `json:"version"`
}

// PoolStats reports the state of the render fallback's page pool.
type PoolStats struct {
	MaxPages    int   `json:"max_pages"`
	ActivePages int   `json:"active_pages"`
	Renders     int64 `json:"renders"`
	Recycled    int64 `json:"recycled_pages"`
	UptimeSec   int64 `json:"uptime_seconds"`
}
