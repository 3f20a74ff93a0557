package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ルートに一致しなかったリクエストと、Gateway自身のエンドポイントのラベル。
const (
	routeLabelUnmatched = "unmatched"
	routeLabelLocal     = "local"
)

// Metrics はGatewayのPrometheusメトリクス。
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	upstreamFailures *prometheus.CounterVec
	rateLimited      prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics はGateway専用のレジストリにメトリクスを登録して返す。
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "status_code"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),

		upstreamFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_failures_total",
				Help: "Total number of failed upstream calls by route and reason",
			},
			[]string{"route", "reason"},
		),

		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_rate_limited_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.upstreamFailures,
		m.rateLimited,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler は/metricsで公開するHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordUpstreamFailure はバックエンド呼び出しの失敗を記録する。
func (m *Metrics) RecordUpstreamFailure(route, reason string) {
	m.upstreamFailures.WithLabelValues(route, reason).Inc()
}

// middleware はリクエスト数と処理時間を記録するGinミドルウェアを返す。
// ルートラベルはルート解決ステージが設定した値を使う。ルート解決より前に
// 中断されたリクエストは unmatched として数える。
func (m *Metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.GetString(contextKeyRouteLabel)
		if route == "" {
			route = routeLabelUnmatched
			if c.FullPath() != "" {
				route = routeLabelLocal
			}
		}
		status := c.Writer.Status()
		m.requestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
		if status == http.StatusTooManyRequests {
			m.rateLimited.Inc()
		}
	}
}
