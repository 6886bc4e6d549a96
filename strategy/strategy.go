package strategy

import (
	"math"

	"github.com/evdnx/gotsengine/config"
	"github.com/evdnx/gotsengine/types"
)

// Strategy maps a price window (oldest first) to one vote. Implementations
// hold only their configuration, so a Strategy may be shared across
// instruments and goroutines.
type Strategy interface {
	Name() string
	Evaluate(prices []float64) types.Signal
}

// Build returns the strategies enabled in cfg, in a fixed order.
func Build(cfg config.EngineConfig) ([]Strategy, error) {
	ind := cfg.Indicators
	st := cfg.Strategies
	var out []Strategy
	if st.MACross.Enabled {
		out = append(out, NewMACrossover(ind.SMAShort, ind.SMALong, st.MACross.FullGap))
	}
	if st.RSI.Enabled {
		out = append(out, NewRSI(ind.RSIPeriod, st.RSI.Oversold, st.RSI.Overbought))
	}
	if st.MACD.Enabled {
		out = append(out, NewMACD(ind.MACDFast, ind.MACDSlow, ind.MACDSignal, st.MACD.FullGap))
	}
	if st.Bollinger.Enabled {
		out = append(out, NewBollingerReversion(ind.BollingerPeriod, ind.BollingerK))
	}
	if st.HMA.Enabled {
		h, err := NewHMATrend(st.HMA.Window, st.HMA.Strength)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// EvaluateAll runs every strategy over the same window.
func EvaluateAll(strategies []Strategy, prices []float64) []types.Signal {
	out := make([]types.Signal, 0, len(strategies))
	for _, s := range strategies {
		out = append(out, s.Evaluate(prices))
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func vote(name string, a types.Action, strength float64) types.Signal {
	return types.Signal{Strategy: name, Action: a, Strength: clamp01(strength)}
}
