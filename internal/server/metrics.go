package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/andrewwphillips/likecache/internal/catalog"
	"github.com/andrewwphillips/likecache/internal/handler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors in their own registry
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	listed     prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "likecache_graphql_operations_total",
			Help: "GraphQL operations executed, by operation name and type.",
		}, []string{"operation", "type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "likecache_http_request_duration_seconds",
			Help:    "HTTP request latency, by route and status code.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "status"}),
		listed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "likecache_products_listed_total",
			Help: "Products returned by the products query (each advances the id counter).",
		}),
	}
	m.registry.MustRegister(
		m.operations,
		m.duration,
		m.listed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is used by tests to gather the metrics directly
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveOperation is a handler.Observer
func (m *Metrics) ObserveOperation(info handler.OperationInfo) {
	name := info.Name
	if name == "" {
		name = "anonymous"
	}
	m.operations.WithLabelValues(name, info.Type).Inc()
}

// ProductListed is a catalog.OnList hook
func (m *Metrics) ProductListed(catalog.Product) {
	m.listed.Inc()
}

// Middleware records the request duration labelled with the matched route pattern.  Requests that match
// no route are labelled "unmatched".
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		m.duration.WithLabelValues(path, strconv.Itoa(status(ww))).Observe(time.Since(start).Seconds())
	})
}
