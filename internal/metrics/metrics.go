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
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordLogin(provider string)
	RecordRegistration()
	RecordCartMutation(action string)
	RecordOrderPlaced(total int64)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	registrations  prometheus.Counter
	cartMutations  *prometheus.CounterVec
	ordersPlaced   prometheus.Counter
	orderValue     prometheus.Counter
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keebstore_logins_total",
			Help: "ログイン成功の合計数（プロバイダ別）",
		}, []string{"provider"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keebstore_registrations_total",
			Help: "ユーザー登録の合計数",
		}),
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keebstore_cart_mutations_total",
			Help: "カート操作の合計数（操作別）",
		}, []string{"action"}),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keebstore_orders_placed_total",
			Help: "作成された注文の合計数",
		}),
		orderValue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keebstore_order_value_yen_total",
			Help: "作成された注文の合計金額（円）",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keebstore_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "keebstore_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.registrations,
		c.cartMutations,
		c.ordersPlaced,
		c.orderValue,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin(provider string) {
	c.logins.WithLabelValues(provider).Inc()
}

// RecordRegistration はユーザー登録を記録する。
func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

// RecordCartMutation はカート操作を記録する。
func (c *Collector) RecordCartMutation(action string) {
	c.cartMutations.WithLabelValues(action).Inc()
}

// RecordOrderPlaced は注文の作成と金額を記録する。
func (c *Collector) RecordOrderPlaced(total int64) {
	c.ordersPlaced.Inc()
	c.orderValue.Add(float64(total))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
