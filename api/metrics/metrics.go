// Package metrics defines the Prometheus instrumentation for the API
// server: HTTP traffic, ClickHouse queries, Anthropic usage, and workflow
// runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildInfo is set to 1 with version labels at startup.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "strata_build_info",
		Help: "Build information for the running binary.",
	}, []string{"version", "commit", "date"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "strata_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	clickhouseQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_clickhouse_queries_total",
		Help: "ClickHouse queries by outcome.",
	}, []string{"outcome"})

	clickhouseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strata_clickhouse_query_duration_seconds",
		Help:    "ClickHouse query latency.",
		Buckets: prometheus.DefBuckets,
	})

	anthropicRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_anthropic_requests_total",
		Help: "Anthropic API requests by operation and outcome.",
	}, []string{"operation", "outcome"})

	anthropicTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_anthropic_tokens_total",
		Help: "Anthropic token usage by direction.",
	}, []string{"direction"})

	workflowRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "strata_workflow_runs_total",
		Help: "Question-answering runs by terminal outcome.",
	}, []string{"outcome"})

	workflowDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "strata_workflow_run_duration_seconds",
		Help:    "End-to-end run latency.",
		Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	})
)

// statusRecorder captures the response status for instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency, labeled by the chi route
// pattern so path parameters do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordClickHouseQuery records one query's latency and outcome.
func RecordClickHouseQuery(d time.Duration, err error) {
	clickhouseDuration.Observe(d.Seconds())
	clickhouseQueries.WithLabelValues(outcome(err)).Inc()
}

// RecordAnthropicRequest records one Anthropic API call.
func RecordAnthropicRequest(operation string, err error) {
	anthropicRequests.WithLabelValues(operation, outcome(err)).Inc()
}

// RecordAnthropicTokens records token usage for one call.
func RecordAnthropicTokens(input, output int64) {
	anthropicTokens.WithLabelValues("input").Add(float64(input))
	anthropicTokens.WithLabelValues("output").Add(float64(output))
}

// RecordWorkflowRun records a finished run. Outcome is one of "completed",
// "informed", "needs_human", "error".
func RecordWorkflowRun(outcomeLabel string, d time.Duration) {
	workflowRuns.WithLabelValues(outcomeLabel).Inc()
	workflowDuration.Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
