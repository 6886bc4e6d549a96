package strategy

import (
	"fmt"

	"github.com/evdnx/goti"
	"github.com/evdnx/gotsengine/types"
)

// HMATrend replays the most recent Window prices into a fresh goti
// IndicatorSuite and votes on a Hull moving average crossover on the last
// bar. A fresh suite per call keeps the strategy free of state.
type HMATrend struct {
	Window   int
	Strength float64

	suiteFactory func() (*goti.IndicatorSuite, error)
}

// NewHMATrend validates the suite configuration once up front.
func NewHMATrend(window int, strength float64) (*HMATrend, error) {
	h := &HMATrend{
		Window:   window,
		Strength: strength,
		suiteFactory: func() (*goti.IndicatorSuite, error) {
			ic := goti.DefaultConfig()
			ic.RSIOverbought = 70
			ic.RSIOversold = 30
			ic.MFIOverbought = 80
			ic.MFIOversold = 20
			ic.VWAOStrongTrend = 70
			return goti.NewIndicatorSuiteWithConfig(ic)
		},
	}
	if _, err := h.suiteFactory(); err != nil {
		return nil, fmt.Errorf("hma suite: %w", err)
	}
	return h, nil
}

func (h *HMATrend) Name() string { return "hma_trend" }

func (h *HMATrend) Evaluate(prices []float64) types.Signal {
	if len(prices) < h.Window {
		return types.HoldSignal(h.Name())
	}
	suite, err := h.suiteFactory()
	if err != nil {
		return types.HoldSignal(h.Name())
	}
	for _, p := range prices[len(prices)-h.Window:] {
		// The feed carries trades only; a narrow synthetic range keeps the
		// volume-weighted members of the suite well defined.
		spread := p * 0.0005
		if err := suite.Add(p+spread, p-spread, p, 1); err != nil {
			return types.HoldSignal(h.Name())
		}
	}
	if ok, err := suite.GetHMA().IsBullishCrossover(); err == nil && ok {
		return vote(h.Name(), types.BuyAction, h.Strength)
	}
	if ok, err := suite.GetHMA().IsBearishCrossover(); err == nil && ok {
		return vote(h.Name(), types.SellAction, h.Strength)
	}
	return types.HoldSignal(h.Name())
}
