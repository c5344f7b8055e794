// Package metrics は認証フローの Prometheus メトリクスを提供します。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// result ラベルの値。
const (
	ResultSuccess = "success"
	// ResultQueued はメールを配送キューに投入しただけで、まだ送信していないことを表します。
	ResultQueued = "queued"
)

// Metrics は認証フローのカウンター群です。nil レシーバでも安全に呼び出せます。
type Metrics struct {
	registrations *prometheus.CounterVec
	logins        *prometheus.CounterVec
	resetRequests *prometheus.CounterVec
	resets        *prometheus.CounterVec
	mails         *prometheus.CounterVec
}

// New は reg にカウンターを登録して Metrics を作成します。
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Registration attempts by result.",
		}, []string{"result"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		resetRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_password_reset_requests_total",
			Help: "Forgot-password requests by result.",
		}, []string{"result"}),
		resets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_password_resets_total",
			Help: "Password reset submissions by result.",
		}, []string{"result"}),
		mails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_mail_deliveries_total",
			Help: "Transactional mail deliveries by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// Handler は gatherer の内容を公開する HTTP ハンドラーを返します。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRegistration は登録試行を1件記録します。
func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// ObserveLogin はログイン試行を1件記録します。
func (m *Metrics) ObserveLogin(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

// ObserveResetRequest はリセット申請を1件記録します。
func (m *Metrics) ObserveResetRequest(result string) {
	if m == nil {
		return
	}
	m.resetRequests.WithLabelValues(result).Inc()
}

// ObserveReset はパスワード再設定を1件記録します。
func (m *Metrics) ObserveReset(result string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(result).Inc()
}

// ObserveMail はメール配送を種別と結果ごとに記録します。
func (m *Metrics) ObserveMail(kind, result string) {
	if m == nil {
		return
	}
	m.mails.WithLabelValues(kind, result).Inc()
}
