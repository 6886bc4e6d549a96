// Package observe carries engine events to logging and metrics.
package observe

import (
	"time"

	"github.com/evdnx/gotsengine/indicator"
	"github.com/evdnx/gotsengine/logger"
	"github.com/evdnx/gotsengine/metrics"
	"github.com/evdnx/gotsengine/types"
)

// Transition describes one position ledger state change.
type Transition struct {
	Instrument string
	From, To   string
	Event      string
	OrderID    string
}

// Rejection is a gate veto with its reason code.
type Rejection struct {
	Instrument string
	Side       types.Side
	Reason     string
	Price      float64
}

// Risk is a snapshot of the process-wide risk figures.
type Risk struct {
	OpenPositions int
	RealizedLoss  int64
	Halted        bool
	Cash          int64
}

// Sink receives every structured engine event. Implementations must be
// safe for concurrent use and must not block.
type Sink interface {
	Indicators(instrument string, at time.Time, s indicator.Snapshot)
	Signal(instrument string, s types.Signal)
	Decision(instrument string, d types.FusedDecision)
	Rejection(r Rejection)
	Transition(t Transition)
	Risk(r Risk)
}

// LogSink writes events to a logger and updates prometheus collectors.
type LogSink struct {
	Log logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink { return &LogSink{Log: log} }

func (s *LogSink) Indicators(instrument string, at time.Time, snap indicator.Snapshot) {
	if rsi, ok := snap.RSI.Get(); ok {
		metrics.RSIGauge.WithLabelValues(instrument).Set(rsi)
	}
	s.Log.Debug("indicators",
		logger.String("instrument", instrument),
		logger.Time("ts", at),
		logger.String("sma_short", snap.SMAShort.String()),
		logger.String("sma_long", snap.SMALong.String()),
		logger.String("rsi", snap.RSI.String()),
		logger.String("macd_line", snap.MACDLine.String()),
		logger.String("macd_signal", snap.MACDSignal.String()),
		logger.String("macd_hist", snap.MACDHist.String()),
		logger.String("bb_upper", snap.BBUpper.String()),
		logger.String("bb_mid", snap.BBMid.String()),
		logger.String("bb_lower", snap.BBLower.String()),
	)
}

func (s *LogSink) Signal(instrument string, sig types.Signal) {
	metrics.SignalsTotal.WithLabelValues(sig.Strategy, sig.Action.String()).Inc()
	s.Log.Debug("signal",
		logger.String("instrument", instrument),
		logger.String("strategy", sig.Strategy),
		logger.String("action", sig.Action.String()),
		logger.Float64("strength", sig.Strength),
	)
}

func (s *LogSink) Decision(instrument string, d types.FusedDecision) {
	metrics.DecisionsTotal.WithLabelValues(d.Action.String()).Inc()
	s.Log.Debug("decision",
		logger.String("instrument", instrument),
		logger.String("action", d.Action.String()),
		logger.Int("agree", d.Agree),
		logger.Int("buy", d.Buy),
		logger.Int("sell", d.Sell),
		logger.Int("hold", d.Hold),
		logger.Float64("strength", d.Strength),
	)
}

func (s *LogSink) Rejection(r Rejection) {
	metrics.GateRejections.WithLabelValues(r.Reason).Inc()
	s.Log.Info("gate_rejected",
		logger.String("instrument", r.Instrument),
		logger.String("side", string(r.Side)),
		logger.String("reason", r.Reason),
		logger.Float64("price", r.Price),
	)
}

func (s *LogSink) Transition(t Transition) {
	metrics.Transitions.WithLabelValues(t.From, t.To).Inc()
	s.Log.Info("position_transition",
		logger.String("instrument", t.Instrument),
		logger.String("from", t.From),
		logger.String("to", t.To),
		logger.String("event", t.Event),
		logger.String("order_id", t.OrderID),
	)
}

func (s *LogSink) Risk(r Risk) {
	metrics.PositionsOpen.Set(float64(r.OpenPositions))
	metrics.DailyRealizedLoss.Set(float64(r.RealizedLoss))
	metrics.CashGauge.Set(float64(r.Cash))
	if r.Halted {
		metrics.Halted.Set(1)
	} else {
		metrics.Halted.Set(0)
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Indicators(string, time.Time, indicator.Snapshot) {}
func (Nop) Signal(string, types.Signal) {}
func (Nop) Decision(string, types.FusedDecision) {}
func (Nop) Rejection(Rejection) {}
func (Nop) Transition(Transition) {}
func (Nop) Risk(Risk) {}
