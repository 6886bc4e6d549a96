package strategy

import (
	"github.com/evdnx/gotsengine/indicator"
	"github.com/evdnx/gotsengine/types"
)

// RSI buys oversold and sells overbought readings.
type RSI struct {
	Period     int
	Oversold   float64
	Overbought float64
}

func NewRSI(period int, oversold, overbought float64) *RSI {
	return &RSI{Period: period, Oversold: oversold, Overbought: overbought}
}

func (r *RSI) Name() string { return "rsi" }

func (r *RSI) Evaluate(prices []float64) types.Signal {
	v, err := indicator.RSI(prices, r.Period)
	if err != nil {
		return types.HoldSignal(r.Name())
	}
	switch {
	case v < r.Oversold:
		return vote(r.Name(), types.BuyAction, depth(r.Oversold-v, r.Oversold))
	case v > r.Overbought:
		return vote(r.Name(), types.SellAction, depth(v-r.Overbought, 100-r.Overbought))
	}
	return types.HoldSignal(r.Name())
}

// depth is how far past the threshold a reading sits, relative to the room
// between the threshold and the scale bound.
func depth(past, room float64) float64 {
	if room <= 0 {
		return 1
	}
	return past / room
}
