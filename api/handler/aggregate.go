package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shelfscan/aggregate"
	"github.com/use-agent/shelfscan/fetcher"
	"github.com/use-agent/shelfscan/models"
)

// Aggregate returns a handler for POST /api/v1/aggregate.
//
// Records in the body are composed as given. Without records the handler
// reads stored records for the requested domains, or every stored record;
// st may be nil, in which case records are required. ?format=csv emits
// domain rows.
func Aggregate(agg *aggregate.Aggregator, st RecordStore, defaultMode string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AggregateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		mode := req.Mode
		if mode == "" {
			mode = defaultMode
		}

		records := req.Records
		if len(records) == 0 {
			if st == nil {
				badRequest(c, "records are required when persistence is disabled")
				return
			}
			var err error
			if records, err = loadRecords(c, st, req.Domains); err != nil {
				respondError(c, err)
				return
			}
		}

		out, mode := agg.Compute(mode, records)

		if wantsCSV(c) {
			writeCSV(c, models.AggregateHeader, out)
			return
		}
		if out == nil {
			out = []*models.DomainAggregate{}
		}
		c.JSON(http.StatusOK, models.AggregateResponse{Mode: mode, Aggregates: out})
	}
}

func loadRecords(c *gin.Context, st RecordStore, domains []string) ([]*models.AuditRecord, error) {
	if len(domains) == 0 {
		return st.List(c.Request.Context(), "")
	}
	var out []*models.AuditRecord
	for _, d := range domains {
		recs, err := st.List(c.Request.Context(), fetcher.NormalizeDomain(d))
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}
