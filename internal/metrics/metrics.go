// Package metrics exposes Prometheus metrics for the evaluation engine.
//
// Primary series updated during operation:
//   - propdesk_orders_total{type,side}        – orders accepted (market|limit)
//   - propdesk_rejections_total{reason}       – typed order rejections
//   - propdesk_closes_total{reason}           – trade closes by reason
//   - propdesk_violations_total{type}         – recorded rule violations
//   - propdesk_account_equity{account}        – latest equity snapshot (gauge)
//   - propdesk_ticks_total{symbol}            – oracle ticks emitted
//   - propdesk_loop_errors_total{loop}        – isolated background-loop faults
//
// Registered in init() and served at /metrics by the run command.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propdesk_orders_total",
			Help: "Orders accepted",
		},
		[]string{"type", "side"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propdesk_rejections_total",
			Help: "Order rejections by typed reason",
		},
		[]string{"reason"},
	)

	closesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propdesk_closes_total",
			Help: "Trade closes by reason",
		},
		[]string{"reason"},
	)

	violationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propdesk_violations_total",
			Help: "Recorded rule violations by type",
		},
		[]string{"type"},
	)

	accountEquity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "propdesk_account_equity",
			Help: "Latest account equity snapshot",
		},
		[]string{"account"},
	)

	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propdesk_ticks_total",
			Help: "Oracle ticks emitted",
		},
		[]string{"symbol"},
	)

	loopErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "propdesk_loop_errors_total",
			Help: "Background loop iteration faults caught and skipped",
		},
		[]string{"loop"},
	)
)

func init() {
	prometheus.MustRegister(ordersTotal, rejectionsTotal, closesTotal,
		violationsTotal, accountEquity, ticksTotal, loopErrorsTotal)
}

// RecordOrder counts an accepted order.
func RecordOrder(orderType, side string) {
	ordersTotal.WithLabelValues(orderType, side).Inc()
}

// RecordRejection counts a typed rejection.
func RecordRejection(reason string) {
	rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordClose counts a trade close.
func RecordClose(reason string) {
	closesTotal.WithLabelValues(reason).Inc()
}

// RecordViolation counts a recorded violation.
func RecordViolation(violationType string) {
	violationsTotal.WithLabelValues(violationType).Inc()
}

// SetEquity publishes the latest equity for an account.
func SetEquity(accountID string, equity float64) {
	accountEquity.WithLabelValues(accountID).Set(equity)
}

// RecordTick counts an emitted oracle tick.
func RecordTick(symbol string) {
	ticksTotal.WithLabelValues(symbol).Inc()
}

// RecordLoopError counts an isolated background-loop fault.
func RecordLoopError(loop string) {
	loopErrorsTotal.WithLabelValues(loop).Inc()
}
