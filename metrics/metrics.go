package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsengine_signals_total",
			Help: "Strategy votes produced (by strategy and action).",
		},
		[]string{"strategy", "action"},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsengine_decisions_total",
			Help: "Fused decisions (by action).",
		},
		[]string{"action"},
	)

	GateRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsengine_gate_rejections_total",
			Help: "Orders vetoed by the risk gate (by reason).",
		},
		[]string{"reason"},
	)

	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsengine_orders_submitted_total",
			Help: "Total number of orders submitted (by side and trigger).",
		},
		[]string{"side", "trigger"},
	)

	ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsengine_execution_reports_total",
			Help: "Execution reports received (by status).",
		},
		[]string{"status"},
	)

	FillsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gotsengine_fills_total",
			Help: "Execution reports that filled shares, partial fills included.",
		},
	)

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gotsengine_position_transitions_total",
			Help: "Position ledger state transitions.",
		},
		[]string{"from", "to"},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotsengine_positions_open",
			Help: "Instruments not in the FLAT state.",
		},
	)

	DailyRealizedLoss = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotsengine_daily_realized_loss",
			Help: "Realized loss accumulated in the current session (currency units).",
		},
	)

	Halted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotsengine_daily_halted",
			Help: "1 while the daily loss breaker is tripped.",
		},
	)

	CashGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gotsengine_cash",
			Help: "Tradable cash tracked by the risk gate.",
		},
	)

	RSIGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gotsengine_indicator_rsi",
			Help: "Latest RSI reading per instrument, set once the window is long enough.",
		},
		[]string{"instrument"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, DecisionsTotal, GateRejections, OrdersSubmitted,
		ReportsTotal, FillsTotal, Transitions, PositionsOpen, DailyRealizedLoss, Halted, CashGauge, RSIGauge)
}
