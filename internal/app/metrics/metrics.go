package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the rewards collectors.
	Registry = prometheus.NewRegistry()

	pointsAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "points",
			Name:      "awarded_total",
			Help:      "Points credited, by action type.",
		},
		[]string{"action"},
	)

	accrualOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "points",
			Name:      "accruals_total",
			Help:      "Accrual calls by outcome (awarded, partial, duplicate, daily_limit_reached, error).",
		},
		[]string{"outcome"},
	)

	quotaLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "quota",
			Name:      "lookups_total",
			Help:      "Window total lookups by source (cache, reconstructed).",
		},
		[]string{"source"},
	)

	cacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "quota",
			Name:      "cache_errors_total",
			Help:      "Cache operations that failed and were skipped.",
		},
		[]string{"op"},
	)

	commissionAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "commission",
			Name:      "credited_amount_total",
			Help:      "Commission credited, by level.",
		},
		[]string{"level"},
	)

	commissionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rewards",
			Subsystem: "commission",
			Name:      "distribution_duration_seconds",
			Help:      "Duration of commission distribution runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rewards",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	Registry.MustRegister(
		pointsAwarded,
		accrualOutcomes,
		quotaLookups,
		cacheErrors,
		commissionAmount,
		commissionDuration,
		httpRequests,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Gin counts requests by route template.
func Gin(c *gin.Context) {
	c.Next()
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
}

func RecordAccrual(action, outcome string, awarded int64) {
	accrualOutcomes.WithLabelValues(outcome).Inc()
	if awarded > 0 {
		pointsAwarded.WithLabelValues(action).Add(float64(awarded))
	}
}

func RecordQuotaLookup(source string) {
	quotaLookups.WithLabelValues(source).Inc()
}

func RecordCacheError(op string) {
	cacheErrors.WithLabelValues(op).Inc()
}

func RecordCommission(level int, amount float64) {
	commissionAmount.WithLabelValues(strconv.Itoa(level)).Add(amount)
}

func ObserveDistribution(d time.Duration) {
	commissionDuration.Observe(d.Seconds())
}
