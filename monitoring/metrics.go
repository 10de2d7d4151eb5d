package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the server. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	predictions     *prometheus.CounterVec
	predictLatency  *prometheus.HistogramVec
	reloads         *prometheus.CounterVec
	modelLoaded     *prometheus.GaugeVec
	cacheLookups    *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	wsClients       prometheus.Gauge
}

// NewMetrics registers every collector on a private registry so tests can
// build as many instances as they like.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricelab",
			Name:      "predictions_total",
			Help:      "Predictions served, by app and outcome.",
		}, []string{"app", "status"}),
		predictLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pricelab",
			Name:      "prediction_duration_seconds",
			Help:      "Time spent encoding and predicting one record.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"app"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricelab",
			Name:      "model_reloads_total",
			Help:      "Model (re)loads from disk, by app and result.",
		}, []string{"app", "result"}),
		modelLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pricelab",
			Name:      "model_loaded",
			Help:      "1 when the app has a model being served.",
		}, []string{"app"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricelab",
			Name:      "prediction_cache_lookups_total",
			Help:      "Prediction memo lookups, by app and result.",
		}, []string{"app", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricelab",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method and status code.",
		}, []string{"method", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pricelab",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricelab",
			Name:      "event_clients",
			Help:      "Connected event feed clients.",
		}),
	}
	reg.MustRegister(
		m.predictions,
		m.predictLatency,
		m.reloads,
		m.modelLoaded,
		m.cacheLookups,
		m.requests,
		m.requestDuration,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePrediction(app string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.predictions.WithLabelValues(app, status).Inc()
	m.predictLatency.WithLabelValues(app).Observe(d.Seconds())
}

func (m *Metrics) ObserveReload(app string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.reloads.WithLabelValues(app, result).Inc()
}

func (m *Metrics) SetModelLoaded(app string, loaded bool) {
	if m == nil {
		return
	}
	v := 0.0
	if loaded {
		v = 1
	}
	m.modelLoaded.WithLabelValues(app).Set(v)
}

func (m *Metrics) ObserveCache(app string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(app, result).Inc()
}

func (m *Metrics) ObserveRequest(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
