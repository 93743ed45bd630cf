// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証操作名。auth.Op* と同じ値。
const (
	OpSignup  = "signup"
	OpLogin   = "login"
	OpRefresh = "refresh"
	OpLogout  = "logout"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、HTTPミドルウェア、クリーンアップジョブから利用する。
type MetricsCollector interface {
	RecordAuthOutcome(operation, result string)
	ObserveHTTPStatus(statusCode int)
	RecordSessionsSwept(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcomes  map[string]*prometheus.CounterVec
	sessionsSwept prometheus.Counter
	httpStatus    *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	newAuthCounter := func(op, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "almuetasim_auth_" + op + "_total",
			Help: help,
		}, []string{"result"})
	}

	c := &Collector{
		authOutcomes: map[string]*prometheus.CounterVec{
			OpSignup:  newAuthCounter(OpSignup, "結果別のサインアップ数"),
			OpLogin:   newAuthCounter(OpLogin, "結果別のログイン数"),
			OpRefresh: newAuthCounter(OpRefresh, "結果別のトークンリフレッシュ数"),
			OpLogout:  newAuthCounter(OpLogout, "結果別のログアウト数"),
		},
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "almuetasim_sessions_swept_total",
			Help: "期限切れで削除されたセッションの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "almuetasim_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authOutcomes[OpSignup],
		c.authOutcomes[OpLogin],
		c.authOutcomes[OpRefresh],
		c.authOutcomes[OpLogout],
		c.sessionsSwept,
		c.httpStatus,
	)

	return c
}

// RecordAuthOutcome は認証操作の結果を記録する。未知の操作名は無視する。
func (c *Collector) RecordAuthOutcome(operation, result string) {
	vec, ok := c.authOutcomes[operation]
	if !ok {
		return
	}
	vec.WithLabelValues(result).Inc()
}

// ObserveHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) ObserveHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsSwept は削除された期限切れセッション数を加算する。
func (c *Collector) RecordSessionsSwept(count int64) {
	if count <= 0 {
		return
	}
	c.sessionsSwept.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスのように、APIルーターを持たないプロセスで使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
