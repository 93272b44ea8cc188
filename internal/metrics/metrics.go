// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordPullSuccess(storeID string)
	RecordPullFailure(storeID string, reason string)
	RecordPagesFetched(count int)
	RecordProductsInserted(count int)
	RecordTokenRefresh(storeID string)
	RecordPullLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pullSuccess      prometheus.Counter
	pullFail         prometheus.Counter
	pagesFetched     prometheus.Counter
	productsInserted prometheus.Counter
	tokenRefresh     prometheus.Counter
	pullLatency      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pullSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopsync_pull_success_total",
			Help: "商品プル成功の合計数",
		}),
		pullFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopsync_pull_fail_total",
			Help: "商品プル失敗の合計数",
		}),
		pagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopsync_pages_fetched_total",
			Help: "取得した商品ページの合計数",
		}),
		productsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopsync_products_inserted_total",
			Help: "保存した商品の合計数",
		}),
		tokenRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shopsync_token_refresh_total",
			Help: "アクセストークン更新の合計数",
		}),
		pullLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shopsync_pull_latency_seconds",
			Help:    "商品プルのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.pullSuccess,
		c.pullFail,
		c.pagesFetched,
		c.productsInserted,
		c.tokenRefresh,
		c.pullLatency,
	)

	return c
}

// RecordPullSuccess は商品プル成功を記録する。
func (c *Collector) RecordPullSuccess(storeID string) {
	c.pullSuccess.Inc()
}

// RecordPullFailure は商品プル失敗を記録する。
func (c *Collector) RecordPullFailure(storeID string, reason string) {
	c.pullFail.Inc()
}

// RecordPagesFetched は取得した商品ページ数を記録する。
func (c *Collector) RecordPagesFetched(count int) {
	c.pagesFetched.Add(float64(count))
}

// RecordProductsInserted は保存した商品数を記録する。
func (c *Collector) RecordProductsInserted(count int) {
	c.productsInserted.Add(float64(count))
}

// RecordTokenRefresh はアクセストークン更新を記録する。
func (c *Collector) RecordTokenRefresh(storeID string) {
	c.tokenRefresh.Inc()
}

// RecordPullLatency は商品プルのレイテンシを記録する。
func (c *Collector) RecordPullLatency(duration time.Duration) {
	c.pullLatency.Observe(duration.Seconds())
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
