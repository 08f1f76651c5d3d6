package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shelfscan/audit"
	"github.com/use-agent/shelfscan/models"
)

// Audit returns a handler for POST /api/v1/audit.
//
// The record is persisted when st is non-nil. A record carrying a fetch
// error is returned with the status its error code maps to.
func Audit(fn audit.AuditFunc, st RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in models.AuditInput
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err.Error())
			return
		}

		rec := fn(c.Request.Context(), in)
		if st != nil {
			if err := st.Save(c.Request.Context(), rec); err != nil {
				slog.Error("failed to persist audit record", "url", rec.URL, "error", err)
			}
		}

		if rec.Failed() {
			c.JSON(mapErrorToStatus(rec.FetchError.Code), models.AuditResponse{
				Success: false,
				Record:  rec,
				Error:   rec.FetchError,
			})
			return
		}
		c.JSON(http.StatusOK, models.AuditResponse{Success: true, Record: rec})
	}
}
