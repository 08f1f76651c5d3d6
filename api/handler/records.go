package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shelfscan/fetcher"
	"github.com/use-agent/shelfscan/models"
	"github.com/use-agent/shelfscan/store"
)

// ListRecords returns a handler for GET /api/v1/records.
// ?domain= narrows to one retailer; ?format=csv emits output rows.
func ListRecords(st RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		domain := c.Query("domain")
		if domain != "" {
			domain = fetcher.NormalizeDomain(domain)
		}
		recs, err := st.List(c.Request.Context(), domain)
		if err != nil {
			respondError(c, err)
			return
		}
		if wantsCSV(c) {
			writeCSV(c, models.RowHeader, recs)
			return
		}
		if recs == nil {
			recs = []*models.AuditRecord{}
		}
		c.JSON(http.StatusOK, models.RecordsResponse{Records: recs})
	}
}

// GetRecord returns a handler for GET /api/v1/records/lookup?url=.
func GetRecord(st RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := c.Query("url")
		if url == "" {
			badRequest(c, "url query parameter is required")
			return
		}
		rec, err := st.Get(c.Request.Context(), url)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: &models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: "no record for url",
			}})
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// ListDomains returns a handler for GET /api/v1/domains.
func ListDomains(st RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		domains, err := st.Domains(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if domains == nil {
			domains = []store.DomainSummary{}
		}
		c.JSON(http.StatusOK, gin.H{"domains": domains})
	}
}

// RatingTrends returns a handler for GET /api/v1/trends.
// ?domain= narrows to one retailer; ?top= caps the review gainers (default 10).
func RatingTrends(st RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		domain := c.Query("domain")
		if domain != "" {
			domain = fetcher.NormalizeDomain(domain)
		}
		top, err := strconv.Atoi(c.DefaultQuery("top", "10"))
		if err != nil || top < 0 {
			badRequest(c, "top must be a non-negative integer")
			return
		}
		trends, err := st.RatingTrends(c.Request.Context(), domain, top)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, trends)
	}
}
