package indicator

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
)

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestShortWindowsAreInsufficient(t *testing.T) {
	p := []float64{1, 2, 3, 4}
	if _, err := SMA(p, 5); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("SMA: want ErrInsufficientData, got %v", err)
	}
	if _, err := EMA(p, 5); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("EMA: want ErrInsufficientData, got %v", err)
	}
	// RSI needs period+1 samples.
	if _, err := RSI(p, 4); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("RSI: want ErrInsufficientData, got %v", err)
	}
	if _, err := RSI(append(p, 5), 4); err != nil {
		t.Fatalf("RSI with period+1 samples: %v", err)
	}
	// MACD needs slow+signal samples.
	if _, err := MACD(ramp(34, 1, 1), 12, 26, 9); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("MACD: want ErrInsufficientData, got %v", err)
	}
	if _, err := MACD(ramp(35, 1, 1), 12, 26, 9); err != nil {
		t.Fatalf("MACD with slow+signal samples: %v", err)
	}
	if _, err := Bollinger(p, 5, 2); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Bollinger: want ErrInsufficientData, got %v", err)
	}
}

func TestSMA(t *testing.T) {
	got, err := SMA([]float64{10, 1, 2, 3}, 3)
	if err != nil || got != 2 {
		t.Fatalf("SMA = %v, %v; want 2", got, err)
	}
}

func TestEMASeededWithFirstPrice(t *testing.T) {
	// k = 2/(3+1) = 0.5
	s, err := EMASeries([]float64{10, 20, 30}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{10, 15, 22.5}
	for i := range want {
		if !almost(s[i], want[i]) {
			t.Fatalf("ema[%d] = %v, want %v", i, s[i], want[i])
		}
	}
}

func TestRSI(t *testing.T) {
	// Only gains → 100.
	if v, _ := RSI(ramp(15, 100, 1), 14); v != 100 {
		t.Fatalf("all gains RSI = %v, want 100", v)
	}
	// Only losses → 0.
	if v, _ := RSI(ramp(15, 100, -1), 14); v != 0 {
		t.Fatalf("all losses RSI = %v, want 0", v)
	}
	// Deltas +2, -1 over period 2: avg gain 1, avg loss 0.5, rs 2 → 66.67.
	v, err := RSI([]float64{10, 12, 11}, 2)
	if err != nil || !almost(v, 100-100/3.0) {
		t.Fatalf("RSI = %v, %v", v, err)
	}
}

func TestRSIBounded(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	prices := make([]float64, 200)
	prices[0] = 100
	for i := 1; i < len(prices); i++ {
		prices[i] = prices[i-1] + r.NormFloat64()*3
	}
	for end := 15; end <= len(prices); end++ {
		v, err := RSI(prices[:end], 14)
		if err != nil {
			t.Fatal(err)
		}
		if v < 0 || v > 100 {
			t.Fatalf("RSI out of range: %v", v)
		}
	}
}

func TestMACDRisingTrend(t *testing.T) {
	m, err := MACD(ramp(60, 100, 1), 12, 26, 9)
	if err != nil {
		t.Fatal(err)
	}
	if m.Line <= 0 {
		t.Fatalf("rising prices should give a positive MACD line, got %v", m.Line)
	}
	if !almost(m.Hist, m.Line-m.Signal) {
		t.Fatalf("hist %v != line-signal %v", m.Hist, m.Line-m.Signal)
	}
}

func TestBollingerOrdering(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 100; i++ {
		prices := make([]float64, 20+r.Intn(20))
		for j := range prices {
			prices[j] = 50 + r.Float64()*10
		}
		b, err := Bollinger(prices, 20, 2)
		if err != nil {
			t.Fatal(err)
		}
		if !(b.Upper >= b.Mid && b.Mid >= b.Lower) {
			t.Fatalf("band ordering violated: %+v", b)
		}
	}
	flat, _ := Bollinger(ramp(20, 5, 0), 20, 2)
	if flat.Width() != 0 {
		t.Fatalf("flat prices should give zero width, got %v", flat.Width())
	}
}

func TestBollingerPopulationStdDev(t *testing.T) {
	// mean 5, population variance 4 → sd 2.
	b, err := Bollinger([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !almost(b.Upper, 7) || !almost(b.Lower, 3) {
		t.Fatalf("bands = %+v, want 7/5/3", b)
	}
}

func TestSnapshotMarksMissingFields(t *testing.T) {
	s := Compute(ramp(10, 1, 1), DefaultParams())
	if !s.SMAShort.Valid() {
		t.Fatal("SMA short should be valid with 10 prices")
	}
	for name, v := range map[string]Value{
		"sma_long": s.SMALong, "rsi": s.RSI, "macd": s.MACDLine,
		"bb_upper": s.BBUpper,
	} {
		if v.Valid() {
			t.Fatalf("%s should be missing", name)
		}
		if v.String() != "n/a" {
			t.Fatalf("%s should print n/a", name)
		}
	}

	full := Compute(ramp(DefaultParams().Required(), 1, 1), DefaultParams())
	for _, v := range []Value{full.SMALong, full.RSI, full.MACDLine, full.MACDSignal, full.MACDHist, full.BBUpper, full.BBMid, full.BBLower} {
		if !v.Valid() {
			t.Fatal("all fields should be valid at the required length")
		}
	}
}

func TestConcurrentCompute(t *testing.T) {
	prices := ramp(100, 10, 0.5)
	want := Compute(prices, DefaultParams())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := Compute(prices, DefaultParams()); got != want {
				t.Errorf("non-deterministic snapshot")
			}
		}()
	}
	wg.Wait()
}
