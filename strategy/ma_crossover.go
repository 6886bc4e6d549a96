package strategy

import (
	"math"

	"github.com/evdnx/gotsengine/indicator"
	"github.com/evdnx/gotsengine/types"
)

// MACrossover votes with the side of the short SMA relative to the long SMA.
type MACrossover struct {
	Short, Long int
	// FullGap is the relative SMA gap that reads as full strength.
	FullGap float64
}

func NewMACrossover(short, long int, fullGap float64) *MACrossover {
	return &MACrossover{Short: short, Long: long, FullGap: fullGap}
}

func (m *MACrossover) Name() string { return "ma_cross" }

func (m *MACrossover) Evaluate(prices []float64) types.Signal {
	short, err := indicator.SMA(prices, m.Short)
	if err != nil {
		return types.HoldSignal(m.Name())
	}
	long, err := indicator.SMA(prices, m.Long)
	if err != nil || long == 0 {
		return types.HoldSignal(m.Name())
	}
	strength := math.Abs(short-long) / math.Abs(long) / m.FullGap
	switch {
	case short > long:
		return vote(m.Name(), types.BuyAction, strength)
	case short < long:
		return vote(m.Name(), types.SellAction, strength)
	}
	return types.HoldSignal(m.Name())
}
