// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベルの値
const (
	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultExpired     = "expired"
	ResultMalformed   = "malformed"
	ResultInvalid     = "invalid"
	ResultUnavailable = "unavailable"

	ReasonLogin   = "login"
	ReasonRefresh = "refresh"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやクリーンアップジョブから利用する。
type MetricsCollector interface {
	RecordAuthAttempt(result string)
	RecordAuthLatency(duration time.Duration)
	RecordTokenIssued(reason string)
	RecordTokenVerification(result string)
	RecordSessionRevocation(result string)
	RecordSessionsPruned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authAttempts       *prometheus.CounterVec
	authLatency        prometheus.Histogram
	tokensIssued       *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	revocations        *prometheus.CounterVec
	sessionsPruned     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credgate_auth_attempts_total",
			Help: "結果別の認証試行数",
		}, []string{"result"}),
		authLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "credgate_auth_latency_seconds",
			Help:    "認証処理（シークレット検証を含む）のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credgate_tokens_issued_total",
			Help: "発行理由別のトークン発行数",
		}, []string{"reason"}),
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credgate_token_verifications_total",
			Help: "結果別のトークン検証数",
		}, []string{"result"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "credgate_session_revocations_total",
			Help: "結果別のセッション失効要求数",
		}, []string{"result"}),
		sessionsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "credgate_sessions_pruned_total",
			Help: "保持期間超過で削除されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.authLatency,
		c.tokensIssued,
		c.tokenVerifications,
		c.revocations,
		c.sessionsPruned,
	)

	return c
}

// RecordAuthAttempt は認証試行を結果別に記録する。
func (c *Collector) RecordAuthAttempt(result string) {
	c.authAttempts.WithLabelValues(result).Inc()
}

// RecordAuthLatency は認証処理のレイテンシを記録する。
func (c *Collector) RecordAuthLatency(duration time.Duration) {
	c.authLatency.Observe(duration.Seconds())
}

// RecordTokenIssued はトークン発行を理由別に記録する。
func (c *Collector) RecordTokenIssued(reason string) {
	c.tokensIssued.WithLabelValues(reason).Inc()
}

// RecordTokenVerification はトークン検証を結果別に記録する。
func (c *Collector) RecordTokenVerification(result string) {
	c.tokenVerifications.WithLabelValues(result).Inc()
}

// RecordSessionRevocation はセッション失効要求を結果別に記録する。
func (c *Collector) RecordSessionRevocation(result string) {
	c.revocations.WithLabelValues(result).Inc()
}

// RecordSessionsPruned は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsPruned(count int64) {
	c.sessionsPruned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
