package observe_test

import (
	"testing"
	"time"

	"github.com/evdnx/gotsengine/indicator"
	"github.com/evdnx/gotsengine/metrics"
	"github.com/evdnx/gotsengine/observe"
	"github.com/evdnx/gotsengine/testutils"
	"github.com/evdnx/gotsengine/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLogSinkCountsAndLogs(t *testing.T) {
	log := testutils.NewMockLogger()
	s := observe.NewLogSink(log)

	before := testutil.ToFloat64(metrics.GateRejections.WithLabelValues("oversized"))
	s.Rejection(observe.Rejection{Instrument: "A", Side: types.Buy, Reason: "oversized", Price: 10})
	if got := testutil.ToFloat64(metrics.GateRejections.WithLabelValues("oversized")); got != before+1 {
		t.Fatalf("rejections = %v, want %v", got, before+1)
	}
	if lv := log.Levels("gate_rejected"); len(lv) != 1 || lv[0] != "info" {
		t.Fatalf("gate_rejected levels = %v", lv)
	}

	s.Signal("A", types.Signal{Strategy: "rsi", Action: types.BuyAction, Strength: 0.4})
	s.Decision("A", types.FusedDecision{Action: types.Hold})
	if lv := log.Levels("signal"); len(lv) != 1 || lv[0] != "debug" {
		t.Fatalf("signal levels = %v", lv)
	}

	s.Transition(observe.Transition{Instrument: "A", From: "FLAT", To: "ENTERING", Event: "enter", OrderID: "1"})
	if log.LastMessage() != "position_transition" {
		t.Fatalf("last = %s", log.LastMessage())
	}

	s.Risk(observe.Risk{OpenPositions: 2, RealizedLoss: 500, Halted: true, Cash: 9_000})
	if testutil.ToFloat64(metrics.PositionsOpen) != 2 || testutil.ToFloat64(metrics.Halted) != 1 || testutil.ToFloat64(metrics.CashGauge) != 9_000 {
		t.Fatal("risk gauges not updated")
	}
	s.Risk(observe.Risk{})
	if testutil.ToFloat64(metrics.Halted) != 0 {
		t.Fatal("halted gauge should clear")
	}
}

func TestLogSinkIndicators(t *testing.T) {
	log := testutils.NewMockLogger()
	s := observe.NewLogSink(log)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	s.Indicators("B", at, indicator.Snapshot{SMAShort: indicator.Some(10)})
	if lv := log.Levels("indicators"); len(lv) != 1 || lv[0] != "debug" {
		t.Fatalf("indicators levels = %v", lv)
	}

	s.Indicators("B", at, indicator.Snapshot{RSI: indicator.Some(42)})
	if got := testutil.ToFloat64(metrics.RSIGauge.WithLabelValues("B")); got != 42 {
		t.Fatalf("rsi gauge = %v", got)
	}
	s.Indicators("B", at, indicator.Snapshot{})
	if got := testutil.ToFloat64(metrics.RSIGauge.WithLabelValues("B")); got != 42 {
		t.Fatalf("missing RSI must leave the gauge alone, got %v", got)
	}
}

func TestNopSatisfiesSink(t *testing.T) {
	var s observe.Sink = observe.Nop{}
	s.Indicators("A", time.Time{}, indicator.Snapshot{})
	s.Signal("A", types.HoldSignal("x"))
	s.Risk(observe.Risk{})
}
