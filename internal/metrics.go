package internal

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

var _metricsNamespace = "bookclub"

// NewMetrics creates a new Prometheus registry with default collectors
// already registered.
func NewMetrics() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{
			Namespace: _metricsNamespace,
		}),
		collectors.NewBuildInfoCollector(),
	)

	return reg
}

// _patternRE is used for stripping all `{...}` segments from a route
// pattern to build a label.
var _patternRE = regexp.MustCompile(`\{[^/]+\}`)

type cacheMetrics struct {
	totals *prometheus.CounterVec
}

type fetcherMetrics struct {
	totals *prometheus.CounterVec
}

type aggregatorMetrics struct {
	totals *prometheus.CounterVec
}

// instrument wraps an HTTP handler to automatically record timing and
// status codes.
func instrument(reg *prometheus.Registry, next http.Handler) http.Handler {
	requests := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: _metricsNamespace,
			Subsystem: "http",
			Name:      "requests",
			Help:      "HTTP request latencies by method & path",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 1.5, 2.0, 2.5, 5, 7.5, 10, 30, 60, 120},
		},
		[]string{"method", "path", "status"},
	)

	inflight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: _metricsNamespace,
			Subsystem: "http",
			Name:      "inflight",
			Help:      "Current number of inbound in-flight HTTP requests.",
		},
	)

	var normalized sync.Map // Shared across request goroutines.

	reg.MustRegister(requests, inflight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		inflight.Inc()
		defer inflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		var pattern string
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			pattern = rctx.RoutePattern()
		}
		path, ok := "", false
		if v, loaded := normalized.Load(pattern); loaded {
			path, ok = v.(string), true
		}
		if !ok {
			path = normalizePattern(pattern)
			normalized.Store(pattern, path)
		}
		if path == "" {
			// Don't record traffic for unrecognized endpoints.
			return
		}

		duration := time.Since(start).Seconds()
		requests.WithLabelValues(r.Method, path, fmt.Sprint(ww.Status())).Observe(duration)
	})
}

func newCacheMetrics(reg *prometheus.Registry, subsystem string) *cacheMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: subsystem + "_cache",
			Name:      "total",
			Help:      "Totals for the " + subsystem + " cache.",
		},
		[]string{"type"},
	)
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &cacheMetrics{totals: totals}
}

func newFetcherMetrics(reg *prometheus.Registry) *fetcherMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Counts of outbound fetch operations by type.",
		},
		[]string{"type"},
	)
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &fetcherMetrics{totals: totals}
}

func newAggregatorMetrics(reg *prometheus.Registry) *aggregatorMetrics {
	totals := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: _metricsNamespace,
			Subsystem: "aggregation",
			Name:      "total",
			Help:      "Counts of aggregation operations by type.",
		},
		[]string{"type"},
	)
	if reg != nil {
		reg.MustRegister(totals)
	}
	return &aggregatorMetrics{totals: totals}
}

func (cm *cacheMetrics) hitInc() {
	cm.totals.WithLabelValues("hits").Inc()
}

func (cm *cacheMetrics) hitGet() int64 {
	m := &dto.Metric{}
	err := cm.totals.WithLabelValues("hits").Write(m)
	if err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

func (cm *cacheMetrics) missInc() {
	cm.totals.WithLabelValues("misses").Inc()
}

func (cm *cacheMetrics) missGet() int64 {
	m := &dto.Metric{}
	err := cm.totals.WithLabelValues("misses").Write(m)
	if err != nil {
		return 0
	}
	return int64(m.GetCounter().GetValue())
}

func (cm *cacheMetrics) hitRatioGet() float64 {
	hits := cm.hitGet()
	misses := cm.missGet()
	if hits+misses == 0 {
		return 0.0
	}
	return float64(hits) / float64(hits+misses)
}

func (fm *fetcherMetrics) attemptInc() {
	fm.totals.WithLabelValues("attempts").Inc()
}

func (fm *fetcherMetrics) successInc() {
	fm.totals.WithLabelValues("successes").Inc()
}

func (fm *fetcherMetrics) retryInc() {
	fm.totals.WithLabelValues("retries").Inc()
}

func (fm *fetcherMetrics) exhaustedInc() {
	fm.totals.WithLabelValues("exhausted").Inc()
}

func (fm *fetcherMetrics) failureInc(label string) {
	fm.totals.WithLabelValues("failure_" + label).Inc()
}

func (am *aggregatorMetrics) runInc() {
	am.totals.WithLabelValues("runs").Inc()
}

func (am *aggregatorMetrics) userFailedInc() {
	am.totals.WithLabelValues("users_failed").Inc()
}

func (am *aggregatorMetrics) enrichedInc() {
	am.totals.WithLabelValues("books_enriched").Inc()
}

// normalizePattern derives the constant label from the pattern:
//
//	"/users/{name}" → "/users"
//	"/get_top_books" → "/get_top_books"
func normalizePattern(pattern string) string {
	p := _patternRE.ReplaceAllString(pattern, "")
	p = strings.TrimSuffix(p, "/")
	p = strings.ReplaceAll(p, "//", "/")
	return p
}
