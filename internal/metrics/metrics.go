// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン・登録結果のラベル値
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスやミドルウェアから利用する。
type MetricsCollector interface {
	RecordRegistration(outcome string)
	RecordLogin(outcome string)
	RecordSessionCreated()
	RecordSessionDestroyed()
	RecordResetTokenIssued()
	RecordPasswordUpdate(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations   *prometheus.CounterVec
	logins          *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	sessionsDestroy prometheus.Counter
	resetTokens     prometheus.Counter
	passwordUpdates *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userauth_registrations_total",
			Help: "ユーザー登録要求の結果別件数",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userauth_logins_total",
			Help: "ログイン試行の結果別件数",
		}, []string{"outcome"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userauth_sessions_created_total",
			Help: "発行したセッションの合計数",
		}),
		sessionsDestroy: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userauth_sessions_destroyed_total",
			Help: "破棄したセッションの合計数",
		}),
		resetTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "userauth_reset_tokens_issued_total",
			Help: "発行したパスワードリセットトークンの合計数",
		}),
		passwordUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userauth_password_updates_total",
			Help: "パスワード更新要求の結果別件数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "userauth_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "userauth_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.sessionsCreated,
		c.sessionsDestroy,
		c.resetTokens,
		c.passwordUpdates,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordRegistration はユーザー登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordSessionCreated はセッション発行を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// RecordSessionDestroyed はセッション破棄を記録する。
func (c *Collector) RecordSessionDestroyed() {
	c.sessionsDestroy.Inc()
}

// RecordResetTokenIssued はリセットトークン発行を記録する。
func (c *Collector) RecordResetTokenIssued() {
	c.resetTokens.Inc()
}

// RecordPasswordUpdate はパスワード更新の結果を記録する。
func (c *Collector) RecordPasswordUpdate(outcome string) {
	c.passwordUpdates.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// NopCollector は何も記録しないMetricsCollector。
// テストやメトリクス無効時に使用する。
type NopCollector struct{}

func (NopCollector) RecordRegistration(string) {}
func (NopCollector) RecordLogin(string) {}
func (NopCollector) RecordSessionCreated() {}
func (NopCollector) RecordSessionDestroyed() {}
func (NopCollector) RecordResetTokenIssued() {}
func (NopCollector) RecordPasswordUpdate(string) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordRequestLatency(time.Duration) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
