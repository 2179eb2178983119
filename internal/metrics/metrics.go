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
// アカウント削除サービスやワーカーから利用する。
type MetricsCollector interface {
	RecordDeletion(outcome string)
	RecordDeletionLatency(duration time.Duration)
	RecordPurgedRecords(collection string, count int)
	RecordBatchesCommitted(count int)
	RecordHTTPStatus(statusCode int)
	RecordSessionsCleaned(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	deletions       *prometheus.CounterVec
	deletionLatency prometheus.Histogram
	purgedRecords   *prometheus.CounterVec
	batches         prometheus.Counter
	httpStatus      *prometheus.CounterVec
	sessionsCleaned prometheus.Counter
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkbox_account_deletions_total",
			Help: "結果別のアカウント削除要求数",
		}, []string{"outcome"}),
		deletionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "talkbox_account_deletion_duration_seconds",
			Help:    "アカウント削除全体の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		purgedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkbox_purged_records_total",
			Help: "コレクション別の削除・更新したドキュメント数",
		}, []string{"collection"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkbox_purge_batches_committed_total",
			Help: "コミットしたバッチの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talkbox_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "talkbox_sessions_cleaned_total",
			Help: "クリーンアップで削除した期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.deletions,
		c.deletionLatency,
		c.purgedRecords,
		c.batches,
		c.httpStatus,
		c.sessionsCleaned,
	)

	return c
}

// RecordDeletion はアカウント削除の結果を記録する。
// outcomeは "success" またはエラー種別名。
func (c *Collector) RecordDeletion(outcome string) {
	c.deletions.WithLabelValues(outcome).Inc()
}

// RecordDeletionLatency はアカウント削除の所要時間を記録する。
func (c *Collector) RecordDeletionLatency(duration time.Duration) {
	c.deletionLatency.Observe(duration.Seconds())
}

// RecordPurgedRecords はコレクションごとの削除件数を記録する。
func (c *Collector) RecordPurgedRecords(collection string, count int) {
	if count <= 0 {
		return
	}
	c.purgedRecords.WithLabelValues(collection).Add(float64(count))
}

// RecordBatchesCommitted はコミットしたバッチ数を記録する。
func (c *Collector) RecordBatchesCommitted(count int) {
	c.batches.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int) {
	c.sessionsCleaned.Add(float64(count))
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
