package risk

import "time"

// DailyLossCounter tracks realized results for one trading session. Once
// Halted is set it stays set until the next session reset.
type DailyLossCounter struct {
	SessionStart   time.Time
	BaseCapital    int64 // equity at session start; denominator of the loss ratio
	RealizedLoss   int64 // sum of losing closes, as a positive number
	RealizedProfit int64 // sum of winning closes
	Halted         bool
}

func newDailyLossCounter(base int64, start time.Time) DailyLossCounter {
	return DailyLossCounter{SessionStart: start, BaseCapital: base}
}

// LossRatio is RealizedLoss as a percentage of BaseCapital.
func (d DailyLossCounter) LossRatio() float64 {
	if d.BaseCapital <= 0 {
		return 0
	}
	return float64(d.RealizedLoss) / float64(d.BaseCapital) * 100
}

// Record adds one realized result and reports whether this call tripped
// the breaker.
func (d *DailyLossCounter) Record(pnl int64, limitPct float64) bool {
	if pnl >= 0 {
		d.RealizedProfit += pnl
		return false
	}
	d.RealizedLoss -= pnl
	if d.Halted || d.LossRatio() <= limitPct {
		return false
	}
	d.Halted = true
	return true
}
