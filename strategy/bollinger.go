package strategy

import (
	"github.com/evdnx/gotsengine/indicator"
	"github.com/evdnx/gotsengine/types"
)

// BollingerReversion fades closes outside the bands: a close under the
// lower band is a buy, a close over the upper band a sell.
type BollingerReversion struct {
	Period int
	K      float64
}

func NewBollingerReversion(period int, k float64) *BollingerReversion {
	return &BollingerReversion{Period: period, K: k}
}

func (b *BollingerReversion) Name() string { return "bollinger" }

func (b *BollingerReversion) Evaluate(prices []float64) types.Signal {
	bands, err := indicator.Bollinger(prices, b.Period, b.K)
	if err != nil || bands.Width() <= 0 {
		return types.HoldSignal(b.Name())
	}
	last := prices[len(prices)-1]
	switch {
	case last < bands.Lower:
		return vote(b.Name(), types.BuyAction, (bands.Lower-last)/bands.Width())
	case last > bands.Upper:
		return vote(b.Name(), types.SellAction, (last-bands.Upper)/bands.Width())
	}
	return types.HoldSignal(b.Name())
}
