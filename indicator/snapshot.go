package indicator

import "fmt"

// Value is an indicator reading that is either present or explicitly
// missing because the window was too short.
type Value struct {
	v  float64
	ok bool
}

func Some(v float64) Value { return Value{v: v, ok: true} }

// Missing marks an indicator that could not be computed.
func Missing() Value { return Value{} }

func (v Value) Valid() bool { return v.ok }

// Get returns the reading and whether it exists.
func (v Value) Get() (float64, bool) { return v.v, v.ok }

func (v Value) String() string {
	if !v.ok {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v.v)
}

func fromResult(v float64, err error) Value {
	if err != nil {
		return Missing()
	}
	return Some(v)
}

// Params are the periods used to build a Snapshot.
type Params struct {
	SMAShort        int
	SMALong         int
	RSIPeriod       int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	BollingerPeriod int
	BollingerK      float64
}

// DefaultParams are the conventional periods.
func DefaultParams() Params {
	return Params{
		SMAShort:        5,
		SMALong:         20,
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerPeriod: 20,
		BollingerK:      2,
	}
}

// Required is the shortest window for which every field of a Snapshot is
// valid.
func (p Params) Required() int {
	n := p.SMALong
	for _, m := range []int{p.SMAShort, p.RSIPeriod + 1, p.MACDSlow + p.MACDSignal, p.BollingerPeriod} {
		if m > n {
			n = m
		}
	}
	return n
}

// Snapshot is an immutable set of indicator readings for one window.
type Snapshot struct {
	SMAShort   Value
	SMALong    Value
	RSI        Value
	MACDLine   Value
	MACDSignal Value
	MACDHist   Value
	BBUpper    Value
	BBMid      Value
	BBLower    Value
}

// Compute evaluates every indicator in p against prices.
func Compute(prices []float64, p Params) Snapshot {
	var s Snapshot
	s.SMAShort = fromResult(SMA(prices, p.SMAShort))
	s.SMALong = fromResult(SMA(prices, p.SMALong))
	s.RSI = fromResult(RSI(prices, p.RSIPeriod))
	if m, err := MACD(prices, p.MACDFast, p.MACDSlow, p.MACDSignal); err == nil {
		s.MACDLine, s.MACDSignal, s.MACDHist = Some(m.Line), Some(m.Signal), Some(m.Hist)
	}
	if b, err := Bollinger(prices, p.BollingerPeriod, p.BollingerK); err == nil {
		s.BBUpper, s.BBMid, s.BBLower = Some(b.Upper), Some(b.Mid), Some(b.Lower)
	}
	return s
}
