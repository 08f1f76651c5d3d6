package handler

import (
	"context"
	"encoding/csv"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/store"
)

// RecordStore persists audit records. *store.Store implements it.
type RecordStore interface {
	Save(ctx context.Context, rec *models.AuditRecord) error
	SaveAll(ctx context.Context, recs []*models.AuditRecord) error
	Get(ctx context.Context, url string) (*models.AuditRecord, error)
	List(ctx context.Context, domain string) ([]*models.AuditRecord, error)
	Domains(ctx context.Context) ([]store.DomainSummary, error)
	RatingTrends(ctx context.Context, domain string, top int) (*models.RatingTrends, error)
}

// respondError maps err to an HTTP status and writes a JSON error body.
func respondError(c *gin.Context, err error) {
	ae := models.AsAuditError(err)
	c.JSON(mapErrorToStatus(ae.Code), models.ErrorResponse{Error: ae.ToDetail()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: &models.ErrorDetail{
		Code:    models.ErrCodeInvalidInput,
		Message: msg,
	}})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(code string) int {
	switch code {
	case models.ErrCodeFetchTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeFetchHTTP, models.ErrCodeFetchConnection, models.ErrCodeRenderFailed:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

// wantsCSV reports whether the caller asked for ?format=csv.
func wantsCSV(c *gin.Context) bool {
	return c.Query("format") == "csv"
}

type rower interface {
	Row() []string
}

// writeCSV streams header plus one row per item as text/csv.
func writeCSV[T rower](c *gin.Context, header []string, items []T) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Status(http.StatusOK)
	w := csv.NewWriter(c.Writer)
	_ = w.Write(header)
	for _, it := range items {
		_ = w.Write(it.Row())
	}
	w.Flush()
}
