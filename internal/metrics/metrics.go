// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// RPCルーターのMetricsRecorderと認証サービスのMetricsを兼ねる。
type Collector struct {
	rpcRequests      *prometheus.CounterVec
	rpcDuration      prometheus.Histogram
	sessionsIssued   prometheus.Counter
	sessionCacheHit  prometheus.Counter
	sessionCacheMiss prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskdeck_rpc_requests_total",
			Help: "プロシージャ・結果コード別のRPCリクエスト数",
		}, []string{"procedure", "code"}),
		rpcDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskdeck_rpc_duration_seconds",
			Help:    "RPCディスパッチの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdeck_sessions_issued_total",
			Help: "発行されたセッションの合計数",
		}),
		sessionCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdeck_session_cache_hits_total",
			Help: "セッションキャッシュヒットの合計数",
		}),
		sessionCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskdeck_session_cache_misses_total",
			Help: "セッションキャッシュミスの合計数",
		}),
	}

	reg.MustRegister(
		c.rpcRequests,
		c.rpcDuration,
		c.sessionsIssued,
		c.sessionCacheHit,
		c.sessionCacheMiss,
	)

	return c
}

// RecordRPCRequest はRPCリクエストの結果と処理時間を記録する。
func (c *Collector) RecordRPCRequest(procedure, code string, duration time.Duration) {
	c.rpcRequests.WithLabelValues(procedure, code).Inc()
	c.rpcDuration.Observe(duration.Seconds())
}

// RecordSessionIssued はセッション発行を記録する。
func (c *Collector) RecordSessionIssued() {
	c.sessionsIssued.Inc()
}

// RecordSessionCacheHit はセッションキャッシュヒットを記録する。
func (c *Collector) RecordSessionCacheHit() {
	c.sessionCacheHit.Inc()
}

// RecordSessionCacheMiss はセッションキャッシュミスを記録する。
func (c *Collector) RecordSessionCacheMiss() {
	c.sessionCacheMiss.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
