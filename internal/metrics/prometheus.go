package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ImportRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drishti_import_rows_total",
			Help: "Rows read from import sources, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ImportBatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drishti_import_batch_failures_total",
			Help: "Batches that failed after all insert attempts",
		},
		[]string{"kind"},
	)

	ImportDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drishti_import_duration_seconds",
			Help:    "Import run duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"kind"},
	)

	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drishti_aggregation_duration_seconds",
			Help:    "District metrics aggregation run duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300},
		},
	)

	DistrictsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drishti_districts_processed_total",
			Help: "Districts recomputed by the aggregator, by outcome",
		},
		[]string{"outcome"},
	)

	DistrictsByRisk = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drishti_districts_by_risk",
			Help: "Districts per risk level after the last aggregation run",
		},
		[]string{"risk_level"},
	)

	OTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drishti_otp_requests_total",
			Help: "OTP issue and verify attempts, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drishti_llm_requests_total",
			Help: "AI generator calls, by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drishti_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"provider", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drishti_cache_hits_total",
			Help: "Total report cache hits",
		},
		[]string{"report"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drishti_cache_misses_total",
			Help: "Total report cache misses",
		},
		[]string{"report"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(ImportRowsTotal)
		prometheus.MustRegister(ImportBatchFailures)
		prometheus.MustRegister(ImportDuration)
		prometheus.MustRegister(AggregationDuration)
		prometheus.MustRegister(DistrictsProcessed)
		prometheus.MustRegister(DistrictsByRisk)
		prometheus.MustRegister(OTPRequests)
		prometheus.MustRegister(LLMRequests)
		prometheus.MustRegister(LLMTokensUsed)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
