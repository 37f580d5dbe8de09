package service

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the application counters.
type MetricsService struct {
	registry *prometheus.Registry

	httpDuration  *prometheus.HistogramVec
	httpTotal     *prometheus.CounterVec
	contentWrites *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
}

// NewMetricsService creates a new instance of MetricsService with all
// collectors registered.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &MetricsService{
		registry: registry,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"method", "path", "status"}),
		contentWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_writes_total",
			Help: "Content writes by key.",
		}, []string{"key"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_cache_hits_total",
			Help: "Content document cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_cache_misses_total",
			Help: "Content document cache misses.",
		}),
	}

	registry.MustRegister(s.httpDuration, s.httpTotal, s.contentWrites, s.cacheHits, s.cacheMisses)
	return s
}

// ObserveHTTP records one served request.
func (s *MetricsService) ObserveHTTP(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	s.httpDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	s.httpTotal.WithLabelValues(method, path, code).Inc()
}

// ContentWrite counts one content write for a key.
func (s *MetricsService) ContentWrite(key string) {
	s.contentWrites.WithLabelValues(key).Inc()
}

// CacheHit counts a content document cache hit.
func (s *MetricsService) CacheHit() {
	s.cacheHits.Inc()
}

// CacheMiss counts a content document cache miss.
func (s *MetricsService) CacheMiss() {
	s.cacheMisses.Inc()
}

// Handler exposes the registry for the /metrics route.
func (s *MetricsService) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
