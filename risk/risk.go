package risk

import (
	"github.com/evdnx/gotsengine/fee"
	"github.com/shopspring/decimal"
)

// Budget is sizePct percent of capital, floored to whole currency units.
func Budget(capital int64, sizePct float64) int64 {
	return decimal.NewFromInt(capital).
		Mul(decimal.NewFromFloat(sizePct)).
		Div(decimal.NewFromInt(100)).
		Floor().IntPart()
}

// CalcQty is the largest whole share count whose cost, buy commission
// included, fits in the sizePct budget of capital.
func CalcQty(capital int64, sizePct float64, price int64, fees fee.Schedule) int64 {
	if price <= 0 || capital <= 0 {
		return 0
	}
	budget := Budget(capital, sizePct)
	qty := budget / price
	for qty > 0 && qty*price+fees.BuyFee(qty*price) > budget {
		qty--
	}
	return qty
}
