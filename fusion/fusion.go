// Package fusion turns independent strategy votes into one decision.
package fusion

import "github.com/evdnx/gotsengine/types"

// Fuse counts BUY and SELL votes (HOLD votes count for neither side) and
// picks a direction only when it reaches minAgreement and strictly beats
// the opposite side. A minAgreement larger than the number of voters is
// allowed and always yields HOLD.
func Fuse(signals []types.Signal, minAgreement int) types.FusedDecision {
	var d types.FusedDecision
	var buyStrength, sellStrength float64
	for _, s := range signals {
		switch s.Action {
		case types.BuyAction:
			d.Buy++
			buyStrength += s.Strength
		case types.SellAction:
			d.Sell++
			sellStrength += s.Strength
		default:
			d.Hold++
		}
	}
	if minAgreement < 1 {
		minAgreement = 1
	}
	switch {
	case d.Buy >= minAgreement && d.Buy > d.Sell:
		d.Action = types.BuyAction
		d.Agree = d.Buy
		d.Strength = buyStrength / float64(d.Buy)
	case d.Sell >= minAgreement && d.Sell > d.Buy:
		d.Action = types.SellAction
		d.Agree = d.Sell
		d.Strength = sellStrength / float64(d.Sell)
	default:
		d.Action = types.Hold
	}
	return d
}
