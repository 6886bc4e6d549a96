// Package fee prices the trading costs of a round trip in integer currency
// units. Rates are applied with decimal arithmetic and every component is
// rounded to the nearest unit on its own before the components are summed.
package fee

import (
	"fmt"
	"math"

	"github.com/evdnx/gotsengine/config"
	"github.com/shopspring/decimal"
)

// Schedule is a set of commission and tax rates.
type Schedule struct {
	Name         string
	BuyRate      decimal.Decimal // commission on the buy amount
	SellRate     decimal.Decimal // commission on the sell amount
	TaxRate      decimal.Decimal // transaction tax on the sell amount
	RuralTaxRate decimal.Decimal // secondary tax, a share of the transaction tax
}

// Simulation charges one flat rate on both sides and no tax.
func Simulation() Schedule {
	return Schedule{
		Name:         config.FeeModeSimulation,
		BuyRate:      decimal.RequireFromString(config.SimulationFeeRate),
		SellRate:     decimal.RequireFromString(config.SimulationFeeRate),
		TaxRate:      decimal.Zero,
		RuralTaxRate: decimal.Zero,
	}
}

// Real is the live-account schedule: separate buy and sell commissions
// (equal by default), a sell-side transaction tax and a rural tax levied
// on that tax.
func Real() Schedule {
	return Schedule{
		Name:         config.FeeModeReal,
		BuyRate:      decimal.RequireFromString(config.RealBuyFeeRate),
		SellRate:     decimal.RequireFromString(config.RealSellFeeRate),
		TaxRate:      decimal.RequireFromString(config.RealTaxRate),
		RuralTaxRate: decimal.RequireFromString(config.RealRuralTaxRate),
	}
}

// FromConfig picks the schedule for cfg.Mode and applies rate overrides.
func FromConfig(cfg config.FeeConfig) (Schedule, error) {
	var s Schedule
	switch cfg.Mode {
	case config.FeeModeSimulation:
		s = Simulation()
	case config.FeeModeReal:
		s = Real()
	default:
		return Schedule{}, fmt.Errorf("%w: unknown fee mode %q", config.ErrInvalidConfiguration, cfg.Mode)
	}
	for _, o := range []struct {
		raw string
		dst *decimal.Decimal
	}{
		{cfg.BuyRate, &s.BuyRate},
		{cfg.SellRate, &s.SellRate},
		{cfg.TaxRate, &s.TaxRate},
		{cfg.RuralTaxRate, &s.RuralTaxRate},
	} {
		if o.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(o.raw)
		if err != nil {
			return Schedule{}, fmt.Errorf("%w: fee rate %q: %v", config.ErrInvalidConfiguration, o.raw, err)
		}
		*o.dst = d
	}
	if !s.sellKeep().IsPositive() {
		return Schedule{}, fmt.Errorf("%w: sell commission plus taxes must be below 1", config.ErrInvalidConfiguration)
	}
	return s, nil
}

func apply(amount int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(rate).Round(0).IntPart()
}

// BuyFee is the commission on a buy of amount.
func (s Schedule) BuyFee(amount int64) int64 {
	return apply(amount, s.BuyRate)
}

// SellCost itemises the costs of a sell.
type SellCost struct {
	Commission int64
	Tax        int64
	RuralTax   int64
}

func (c SellCost) Total() int64 { return c.Commission + c.Tax + c.RuralTax }

// SellFee itemises the costs of a sell of amount. The rural tax is taken
// from the already rounded transaction tax.
func (s Schedule) SellFee(amount int64) SellCost {
	tax := apply(amount, s.TaxRate)
	return SellCost{
		Commission: apply(amount, s.SellRate),
		Tax:        tax,
		RuralTax:   apply(tax, s.RuralTaxRate),
	}
}

// NetProfit is what a round trip of qty shares returns after every fee
// and tax on both sides.
func (s Schedule) NetProfit(buyPrice, sellPrice, qty int64) int64 {
	buyAmt := buyPrice * qty
	sellAmt := sellPrice * qty
	return sellAmt - s.SellFee(sellAmt).Total() - buyAmt - s.BuyFee(buyAmt)
}

// sellKeep is the share of a sell amount left after commission and taxes.
func (s Schedule) sellKeep() decimal.Decimal {
	rate := s.SellRate.Add(s.TaxRate).Add(s.TaxRate.Mul(s.RuralTaxRate))
	return decimal.NewFromInt(1).Sub(rate)
}

// NoBreakeven is returned by Breakeven when sell-side costs swallow the
// whole sell amount and no price recovers the buy.
const NoBreakeven = math.MaxInt64

// Breakeven is the lowest per-share sell price at which NetProfit is not
// negative, i.e. NetProfit(b) >= 0 and NetProfit(b-1) < 0.
func (s Schedule) Breakeven(buyPrice, qty int64) int64 {
	if qty < 1 {
		qty = 1
	}
	keep := s.sellKeep()
	if !keep.IsPositive() {
		return NoBreakeven
	}
	buyAmt := buyPrice * qty
	cost := decimal.NewFromInt(buyAmt + s.BuyFee(buyAmt))
	keep = keep.Mul(decimal.NewFromInt(qty))

	p := buyPrice
	if est := cost.Div(keep).Floor().IntPart() - 2; est > p {
		p = est
	}
	for s.NetProfit(buyPrice, p, qty) < 0 {
		p++
	}
	for p > buyPrice && s.NetProfit(buyPrice, p-1, qty) >= 0 {
		p--
	}
	return p
}

// Quote is the cost picture for a price/quantity pair.
type Quote struct {
	BuyFee    int64
	SellFee   int64
	Breakeven int64
}

// Quote prices a buy and an immediate sell of qty at price.
func (s Schedule) Quote(price, qty int64) Quote {
	amt := price * qty
	return Quote{
		BuyFee:    s.BuyFee(amt),
		SellFee:   s.SellFee(amt).Total(),
		Breakeven: s.Breakeven(price, qty),
	}
}

// Units converts a feed price to whole currency units.
func Units(price float64) int64 {
	return int64(math.Round(price))
}
