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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordSyncSuccess(count int)
	RecordSyncFallback()
	RecordStaleDiscard()
	RecordHTTPStatus(statusCode int)
	RecordDiscoveryLatency(duration time.Duration)
	RecordCollaboratorCall(collaborator string, success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess       prometheus.Counter
	syncFallback      prometheus.Counter
	staleDiscard      prometheus.Counter
	listingsSynced    prometheus.Counter
	httpStatus        *prometheus.CounterVec
	discoveryLatency  prometheus.Histogram
	collaboratorCalls *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeyconnect_sync_success_total",
			Help: "掲載同期成功の合計数",
		}),
		syncFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeyconnect_sync_fallback_total",
			Help: "リモート不達によるキャッシュフォールバックの合計数",
		}),
		staleDiscard: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeyconnect_sync_stale_discard_total",
			Help: "競合により破棄された古い同期応答の合計数",
		}),
		listingsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journeyconnect_listings_synced_total",
			Help: "同期された掲載の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeyconnect_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		discoveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "journeyconnect_discovery_latency_seconds",
			Help:    "ディスカバリ検索のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		collaboratorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journeyconnect_collaborator_calls_total",
			Help: "コラボレータ呼び出しの結果別の合計数",
		}, []string{"collaborator", "result"}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFallback,
		c.staleDiscard,
		c.listingsSynced,
		c.httpStatus,
		c.discoveryLatency,
		c.collaboratorCalls,
	)

	return c
}

// RecordSyncSuccess は同期成功と同期された掲載数を記録する。
func (c *Collector) RecordSyncSuccess(count int) {
	c.syncSuccess.Inc()
	c.listingsSynced.Add(float64(count))
}

// RecordSyncFallback はキャッシュフォールバックを記録する。
func (c *Collector) RecordSyncFallback() {
	c.syncFallback.Inc()
}

// RecordStaleDiscard は古い同期応答の破棄を記録する。
func (c *Collector) RecordStaleDiscard() {
	c.staleDiscard.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordDiscoveryLatency はディスカバリ検索のレイテンシを記録する。
func (c *Collector) RecordDiscoveryLatency(duration time.Duration) {
	c.discoveryLatency.Observe(duration.Seconds())
}

// RecordCollaboratorCall はコラボレータ呼び出しの結果を記録する。
func (c *Collector) RecordCollaboratorCall(collaborator string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.collaboratorCalls.WithLabelValues(collaborator, result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
