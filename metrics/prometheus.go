// Package metrics 封装 Prometheus 注册表，集中定义服务的 HTTP 指标与聚类业务指标。
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 封装了基于 Prometheus 的指标采集注册表及预定义的监控指标。
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec   // method, path, status
	HTTPRequestDuration *prometheus.HistogramVec // method, path
	HTTPInFlight        prometheus.Gauge

	FitsTotal          *prometheus.CounterVec // result: done | failed | rejected
	FitDuration        prometheus.Histogram
	FitIterations      prometheus.Histogram
	PredictionsTotal   *prometheus.CounterVec // result
	RateLimitedTotal   *prometheus.CounterVec // scope: global | route
	WorkerQueueLength  *prometheus.GaugeVec   // pool
	WorkerActive       *prometheus.GaugeVec   // pool
	BreakerState       *prometheus.GaugeVec   // name
	SnapshotCacheTotal *prometheus.CounterVec // result: hit | miss
}

// NewMetrics 初始化并返回一个新的指标采集器，自动注册 Go 运行时指标和进程指标。
func NewMetrics(serviceName string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}

	m.HTTPRequestsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	m.HTTPRequestDuration = m.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	m.HTTPInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_server_requests_in_flight",
		Help: "Number of HTTP requests being served",
	})
	reg.MustRegister(m.HTTPInFlight)

	m.FitsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "kmeans_fits_total",
		Help: "Total number of k-means fits by result",
	}, []string{"result"})

	m.FitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kmeans_fit_duration_seconds",
		Help:    "Wall time of a single k-means fit",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	m.FitIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kmeans_fit_iterations",
		Help:    "Lloyd iterations run per fit",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	reg.MustRegister(m.FitDuration, m.FitIterations)

	m.PredictionsTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "kmeans_predictions_total",
		Help: "Total number of predict calls by result",
	}, []string{"result"})

	m.RateLimitedTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"scope"})

	m.WorkerQueueLength = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_pool_queue_length",
		Help: "Tasks waiting in the worker pool queue",
	}, []string{"pool"})

	m.WorkerActive = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_pool_active_tasks",
		Help: "Tasks currently executing in the worker pool",
	}, []string{"pool"})

	m.BreakerState = m.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0: closed, 1: half-open, 2: open)",
	}, []string{"name"})

	m.SnapshotCacheTotal = m.NewCounterVec(prometheus.CounterOpts{
		Name: "kmeans_snapshot_cache_total",
		Help: "Model snapshot cache lookups by result",
	}, []string{"result"})

	slog.Info("unified metrics registry initialized", "service", serviceName)
	return m
}

// NewCounterVec 创建并注册一个新的计数器指标。
func (m *Metrics) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(opts, labelNames)
	m.registry.MustRegister(cv)
	return cv
}

// NewGaugeVec 创建并注册一个新的仪表盘指标。
func (m *Metrics) NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(opts, labelNames)
	m.registry.MustRegister(gv)
	return gv
}

// NewHistogramVec 创建并注册一个新的直方图指标。
func (m *Metrics) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	m.registry.MustRegister(hv)
	return hv
}

// Handler 返回用于暴露指标的 HTTP 处理器。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
