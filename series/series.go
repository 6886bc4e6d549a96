package series

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrOutOfOrder is returned when a sample is older than the last one held.
var ErrOutOfOrder = errors.New("series: sample out of time order")

// PriceSeries keeps a rolling window of trade prices for one instrument,
// oldest first. It is not safe for concurrent use; Book serialises access
// per instrument.
type PriceSeries struct {
	max   int
	buf   []float64
	times []time.Time
}

func NewPriceSeries(max int) *PriceSeries {
	if max <= 0 {
		max = 64
	}
	return &PriceSeries{max: max}
}

// Append adds a sample. Equal timestamps are accepted; earlier ones are not.
func (p *PriceSeries) Append(price float64, ts time.Time) error {
	if n := len(p.times); n > 0 && ts.Before(p.times[n-1]) {
		return ErrOutOfOrder
	}
	p.buf = append(p.buf, price)
	p.times = append(p.times, ts)
	if len(p.buf) > p.max {
		drop := len(p.buf) - p.max
		p.buf = append(p.buf[:0:0], p.buf[drop:]...)
		p.times = append(p.times[:0:0], p.times[drop:]...)
	}
	return nil
}

// Values returns a copy of the window.
func (p *PriceSeries) Values() []float64 {
	out := make([]float64, len(p.buf))
	copy(out, p.buf)
	return out
}

func (p *PriceSeries) Len() int { return len(p.buf) }

func (p *PriceSeries) Cap() int { return p.max }

func (p *PriceSeries) Last() float64 {
	if len(p.buf) == 0 {
		return 0
	}
	return p.buf[len(p.buf)-1]
}

// LastTime is the timestamp of the newest sample.
func (p *PriceSeries) LastTime() time.Time {
	if len(p.times) == 0 {
		return time.Time{}
	}
	return p.times[len(p.times)-1]
}

// Book holds one PriceSeries per instrument.
type Book struct {
	retention int
	mu        sync.Mutex
	series    map[string]*PriceSeries
}

func NewBook(retention int) *Book {
	return &Book{retention: retention, series: make(map[string]*PriceSeries)}
}

// Append records a sample and returns a snapshot of the instrument's window
// including it.
func (b *Book) Append(instrument string, price float64, ts time.Time) ([]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.series[instrument]
	if !ok {
		s = NewPriceSeries(b.retention)
		b.series[instrument] = s
	}
	if err := s.Append(price, ts); err != nil {
		return nil, err
	}
	return s.Values(), nil
}

// Window returns a copy of the instrument's prices and the time of the
// newest one, or nil if the instrument is unseen.
func (b *Book) Window(instrument string) ([]float64, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.series[instrument]; ok {
		return s.Values(), s.LastTime()
	}
	return nil, time.Time{}
}

// Instruments lists every instrument with a series, sorted.
func (b *Book) Instruments() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.series))
	for k := range b.series {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
