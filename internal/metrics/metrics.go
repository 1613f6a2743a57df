// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// リゾルバーとHTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordOperation(operation, code string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordHTTPLatency(route string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	operations       *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	httpStatus       *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deepthoughts_operations_total",
			Help: "操作別・結果コード別の実行回数",
		}, []string{"operation", "code"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deepthoughts_operation_duration_seconds",
			Help:    "操作のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deepthoughts_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deepthoughts_http_request_duration_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		c.operations,
		c.operationLatency,
		c.httpStatus,
		c.httpLatency,
	)

	return c
}

// RecordOperation は操作の結果とレイテンシを記録する。成功時のcodeは"OK"とする。
func (c *Collector) RecordOperation(operation, code string, duration time.Duration) {
	if code == "" {
		code = "OK"
	}
	c.operations.WithLabelValues(operation, code).Inc()
	c.operationLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordHTTPLatency はルート別のHTTPレイテンシを記録する。
func (c *Collector) RecordHTTPLatency(route string, duration time.Duration) {
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
