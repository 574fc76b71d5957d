package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Результаты покупки для shop_purchases_total.
const (
	ResultOK             = "ok"
	ResultReplayed       = "replayed"
	ResultInsufficient   = "insufficient_funds"
	ResultUnavailable    = "unavailable"
	ResultNotFound       = "not_found"
	ResultPriceChanged   = "price_changed"
	ResultDeliveryFailed = "delivery_failed"
	ResultError          = "error"
)

type Metrics struct {
	Purchases     *prometheus.CounterVec
	AccountsAdded prometheus.Counter
	Credits       *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New регистрирует метрики в reg. В тестах передаётся prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_purchases_total",
			Help: "Purchase attempts by result.",
		}, []string{"result"}),
		AccountsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shop_accounts_added_total",
			Help: "Credentials added to the pool.",
		}),
		Credits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shop_balance_credits_total",
			Help: "Balance credits by source.",
		}, []string{"source"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "shop_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.Purchases, m.AccountsAdded, m.Credits, m.HTTPDuration)
	return m
}

// Nop для компонентов, которым метрики не нужны (тесты, утилиты).
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
