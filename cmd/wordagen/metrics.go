package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/CTAG07/Wordagen/pkg/markov"
	"github.com/CTAG07/Wordagen/pkg/modelcache"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordagen",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wordagen",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wordagen",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
	)

	wordsGeneratedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordagen",
			Name:      "words_generated_total",
			Help:      "Total number of words generated",
		},
		[]string{"mode"},
	)

	generationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordagen",
			Name:      "generation_failures_total",
			Help:      "Generation requests that failed, by reason",
		},
		[]string{"reason"},
	)

	modelCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wordagen",
			Subsystem: "model_cache",
			Name:      "requests_total",
			Help:      "Model cache lookups and stores, by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		httpInflight,
		wordsGeneratedTotal,
		generationFailuresTotal,
		modelCacheRequestsTotal,
	)
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// MetricsMiddleware instruments requests for Prometheus.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInflight.Inc()
		defer httpInflight.Dec()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		// The route pattern is only known once chi has routed the request.
		path := routePatternOrPath(r)
		status := strconv.Itoa(sr.status)
		httpRequestsTotal.WithLabelValues(path, r.Method, status).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, status).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// the URL path. This keeps label cardinality bounded.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

func recordWords(mode string, n int) {
	wordsGeneratedTotal.WithLabelValues(mode).Add(float64(n))
}

func recordFailure(reason string) {
	generationFailuresTotal.WithLabelValues(reason).Inc()
}

// instrumentedCache counts hits, misses and store failures of the wrapped cache.
type instrumentedCache struct {
	modelcache.Backend
}

var _ modelcache.Backend = instrumentedCache{}

func (c instrumentedCache) Load(ctx context.Context, key modelcache.Key) (*markov.Model, bool) {
	model, ok := c.Backend.Load(ctx, key)
	if ok {
		modelCacheRequestsTotal.WithLabelValues("hit").Inc()
	} else {
		modelCacheRequestsTotal.WithLabelValues("miss").Inc()
	}
	return model, ok
}

func (c instrumentedCache) Store(ctx context.Context, key modelcache.Key, model *markov.Model) error {
	err := c.Backend.Store(ctx, key, model)
	if err != nil {
		modelCacheRequestsTotal.WithLabelValues("store_error").Inc()
	} else {
		modelCacheRequestsTotal.WithLabelValues("store").Inc()
	}
	return err
}
