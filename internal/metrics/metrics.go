package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finflow",
		Name:      "rate_refresh_total",
		Help:      "Exchange-rate refresh attempts by outcome.",
	}, []string{"outcome"})

	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finflow",
		Name:      "import_rows_total",
		Help:      "Bulk import rows by outcome.",
	}, []string{"outcome"})

	BalanceAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finflow",
		Name:      "balance_adjustments_total",
		Help:      "Ledger balance updates by path.",
	}, []string{"path"})

	BalanceDrift = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "finflow",
		Name:      "balance_drift_accounts",
		Help:      "Accounts whose stored balance differed from the recomputed value in the last integrity check.",
	})

	BalanceSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "finflow",
		Name:      "balance_subscribers",
		Help:      "Open websocket connections receiving balance updates.",
	})

	BalancePushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "finflow",
		Name:      "balance_pushes_total",
		Help:      "Balance updates queued to websocket clients by outcome.",
	}, []string{"outcome"})

	AnalyticsDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "finflow",
		Name:      "analytics_duration_seconds",
		Help:      "Time spent building an analytics response.",
		Buckets:   prometheus.DefBuckets,
	})
)
