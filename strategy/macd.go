package strategy

import (
	"math"

	"github.com/evdnx/gotsengine/indicator"
	"github.com/evdnx/gotsengine/types"
)

// MACD votes with the side of the MACD line relative to its signal line.
type MACD struct {
	Fast, Slow, Signal int
	// FullGap is the |histogram|/price ratio that reads as full strength.
	FullGap float64
}

func NewMACD(fast, slow, signal int, fullGap float64) *MACD {
	return &MACD{Fast: fast, Slow: slow, Signal: signal, FullGap: fullGap}
}

func (m *MACD) Name() string { return "macd" }

func (m *MACD) Evaluate(prices []float64) types.Signal {
	res, err := indicator.MACD(prices, m.Fast, m.Slow, m.Signal)
	if err != nil {
		return types.HoldSignal(m.Name())
	}
	strength := 1.0
	if last := math.Abs(prices[len(prices)-1]); last > 0 {
		strength = math.Abs(res.Hist) / (last * m.FullGap)
	}
	switch {
	case res.Line > res.Signal:
		return vote(m.Name(), types.BuyAction, strength)
	case res.Line < res.Signal:
		return vote(m.Name(), types.SellAction, strength)
	}
	return types.HoldSignal(m.Name())
}
