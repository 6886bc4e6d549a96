package fee

import (
	"errors"
	"testing"

	"github.com/evdnx/gotsengine/config"
	"github.com/shopspring/decimal"
)

func TestSimulationBuyFee(t *testing.T) {
	if got := Simulation().BuyFee(750_000); got != 2_625 {
		t.Fatalf("simulation buy fee = %d, want 2625", got)
	}
	c := Simulation().SellFee(750_000)
	if c.Commission != 2_625 || c.Tax != 0 || c.RuralTax != 0 {
		t.Fatalf("simulation sell fee = %+v", c)
	}
}

func TestRealSellFeeRoundsEachComponent(t *testing.T) {
	c := Real().SellFee(780_000)
	if c.Commission != 117 || c.Tax != 1_794 || c.RuralTax != 3 {
		t.Fatalf("components = %+v, want 117/1794/3", c)
	}
	if c.Total() != 1_914 {
		t.Fatalf("total = %d, want 1914", c.Total())
	}
}

func TestRealBuyFeeRoundsHalfAwayFromZero(t *testing.T) {
	// 750000 * 0.00015 = 112.5
	if got := Real().BuyFee(750_000); got != 113 {
		t.Fatalf("buy fee = %d, want 113", got)
	}
}

func TestBreakevenReal(t *testing.T) {
	s := Real()
	b := s.Breakeven(75_000, 1)
	if b < 75_000 {
		t.Fatalf("breakeven %d below buy price", b)
	}
	if b != 75_195 {
		t.Fatalf("breakeven = %d, want 75195", b)
	}
	if got := s.NetProfit(75_000, b, 1); got != 0 {
		t.Fatalf("net profit at breakeven = %d, want 0", got)
	}
	if s.NetProfit(75_000, b-1, 1) >= 0 {
		t.Fatal("one unit below breakeven must lose money")
	}
}

func TestBreakevenProperties(t *testing.T) {
	for _, s := range []Schedule{Simulation(), Real()} {
		for _, price := range []int64{1_000, 9_990, 75_000, 123_456, 1_000_000} {
			for _, qty := range []int64{1, 3, 17, 250} {
				b := s.Breakeven(price, qty)
				if b < price {
					t.Fatalf("%s %d x%d: breakeven %d below buy", s.Name, price, qty, b)
				}
				if s.NetProfit(price, b, qty) < 0 {
					t.Fatalf("%s %d x%d: loss at breakeven %d", s.Name, price, qty, b)
				}
				if s.NetProfit(price, b-1, qty) >= 0 {
					t.Fatalf("%s %d x%d: breakeven %d not minimal", s.Name, price, qty, b)
				}
			}
		}
	}
}

func TestBreakevenWithoutFees(t *testing.T) {
	s, err := FromConfig(config.FeeConfig{Mode: config.FeeModeSimulation, BuyRate: "0", SellRate: "0"})
	if err != nil {
		t.Fatal(err)
	}
	if b := s.Breakeven(5_000, 10); b != 5_000 {
		t.Fatalf("fee-free breakeven = %d, want 5000", b)
	}
}

func TestQuote(t *testing.T) {
	q := Real().Quote(75_000, 10)
	if q.BuyFee != Real().BuyFee(750_000) || q.SellFee != Real().SellFee(750_000).Total() {
		t.Fatalf("quote = %+v", q)
	}
	if q.Breakeven <= 75_000 {
		t.Fatalf("breakeven = %d", q.Breakeven)
	}
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(config.FeeConfig{Mode: config.FeeModeReal, SellRate: "0.0002"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != config.FeeModeReal || s.SellRate.String() != "0.0002" || s.BuyRate.String() != "0.00015" {
		t.Fatalf("schedule = %+v", s)
	}
	if _, err := FromConfig(config.FeeConfig{Mode: "paper"}); !errors.Is(err, config.ErrInvalidConfiguration) {
		t.Fatalf("want ErrInvalidConfiguration, got %v", err)
	}
	if _, err := FromConfig(config.FeeConfig{Mode: config.FeeModeReal, TaxRate: "x"}); err == nil {
		t.Fatal("expected error for malformed rate")
	}
}

func TestBreakevenUnreachable(t *testing.T) {
	s := Real()
	s.SellRate = decimal.RequireFromString("0.6")
	s.TaxRate = decimal.RequireFromString("0.5")
	if b := s.Breakeven(75_000, 1); b != NoBreakeven {
		t.Fatalf("breakeven = %d, want NoBreakeven", b)
	}
	_, err := FromConfig(config.FeeConfig{Mode: config.FeeModeReal, SellRate: "0.6", TaxRate: "0.5"})
	if !errors.Is(err, config.ErrInvalidConfiguration) {
		t.Fatalf("want ErrInvalidConfiguration, got %v", err)
	}
}

func TestUnits(t *testing.T) {
	if Units(74_999.6) != 75_000 || Units(10.4) != 10 {
		t.Fatal("units should round to nearest")
	}
}
