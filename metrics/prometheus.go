package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AuditDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shelfscan_audit_duration_seconds",
			Help:    "Time to audit one URL, fetch through scoring",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"rendered"},
	)

	AuditsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfscan_audits_total",
			Help: "Total URLs audited",
		},
		[]string{"status"},
	)

	FetchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfscan_fetch_retries_total",
			Help: "Total fetch retries after transient failures",
		},
		[]string{"code"},
	)

	RendersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfscan_renders_total",
			Help: "Total render fallbacks by outcome",
		},
		[]string{"outcome"},
	)

	PolicyPages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfscan_policy_pages_total",
			Help: "Total policy pages followed by outcome",
		},
		[]string{"outcome"},
	)

	PolicyTier = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shelfscan_policy_tier_total",
			Help: "Audited pages by resolved policy tier",
		},
		[]string{"tier"},
	)

	ProductScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shelfscan_product_score",
			Help:    "Product sub-score distribution",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	BatchesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shelfscan_batches_in_flight",
			Help: "Batch jobs currently running",
		},
	)
)

var initOnce sync.Once

// Init registers every collector with the default registry. Calling it more
// than once is a no-op.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(AuditDuration)
		prometheus.MustRegister(AuditsTotal)
		prometheus.MustRegister(FetchRetries)
		prometheus.MustRegister(RendersTotal)
		prometheus.MustRegister(PolicyPages)
		prometheus.MustRegister(PolicyTier)
		prometheus.MustRegister(ProductScore)
		prometheus.MustRegister(BatchesInFlight)
	})
}

func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
