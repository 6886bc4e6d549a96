// Package indicator computes technical indicators over a price window.
//
// Every function is pure: it reads the supplied slice, never retains it and
// keeps no package state, so concurrent calls for different instruments are
// safe. A window that is too short yields ErrInsufficientData rather than a
// numeric default.
package indicator

import (
	"errors"
	"math"
)

// ErrInsufficientData is returned when the window is shorter than the
// indicator needs.
var ErrInsufficientData = errors.New("indicator: insufficient data")

// SMA is the arithmetic mean of the last period prices.
func SMA(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period {
		return 0, ErrInsufficientData
	}
	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period), nil
}

// EMASeries returns the exponential moving average at every index of prices.
// The recurrence is seeded with the first price of the window, not with an
// SMA warm-up.
func EMASeries(prices []float64, period int) ([]float64, error) {
	if period <= 0 || len(prices) < period {
		return nil, ErrInsufficientData
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(prices))
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = prices[i]*k + out[i-1]*(1-k)
	}
	return out, nil
}

// EMA is the last value of EMASeries.
func EMA(prices []float64, period int) (float64, error) {
	s, err := EMASeries(prices, period)
	if err != nil {
		return 0, err
	}
	return s[len(s)-1], nil
}

// RSI uses simple averages of the gains and losses across the last period
// deltas. A window with no losses reads 100.
func RSI(prices []float64, period int) (float64, error) {
	if period <= 0 || len(prices) < period+1 {
		return 0, ErrInsufficientData
	}
	window := prices[len(prices)-period-1:]
	gain, loss := 0.0, 0.0
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		return 100, nil
	}
	rsi := 100 - 100/(1+avgGain/avgLoss)
	return math.Max(0, math.Min(100, rsi)), nil
}

// MACDResult holds the last values of the MACD line, its signal line and
// their difference.
type MACDResult struct {
	Line   float64
	Signal float64
	Hist   float64
}

// MACD computes the fast/slow EMA difference over the full array, then an
// EMA of that difference series as the signal line.
func MACD(prices []float64, fast, slow, signal int) (MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 || len(prices) < slow+signal {
		return MACDResult{}, ErrInsufficientData
	}
	fastS, err := EMASeries(prices, fast)
	if err != nil {
		return MACDResult{}, err
	}
	slowS, err := EMASeries(prices, slow)
	if err != nil {
		return MACDResult{}, err
	}
	line := make([]float64, len(prices))
	for i := range prices {
		line[i] = fastS[i] - slowS[i]
	}
	sig, err := EMA(line, signal)
	if err != nil {
		return MACDResult{}, err
	}
	last := line[len(line)-1]
	return MACDResult{Line: last, Signal: sig, Hist: last - sig}, nil
}

// Bands are Bollinger bands around an SMA.
type Bands struct {
	Upper float64
	Mid   float64
	Lower float64
}

// Width is Upper-Lower.
func (b Bands) Width() float64 { return b.Upper - b.Lower }

// Bollinger places bands k population standard deviations around the
// period SMA.
func Bollinger(prices []float64, period int, k float64) (Bands, error) {
	mid, err := SMA(prices, period)
	if err != nil {
		return Bands{}, err
	}
	variance := 0.0
	for _, p := range prices[len(prices)-period:] {
		d := p - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))
	return Bands{Upper: mid + k*sd, Mid: mid, Lower: mid - k*sd}, nil
}
