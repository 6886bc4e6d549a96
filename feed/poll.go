package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/evdnx/gotsengine/executor"
	"github.com/evdnx/gotsengine/logger"
	"github.com/evdnx/gotsengine/types"
	"github.com/piquette/finance-go/quote"
)

var ErrNoQuote = errors.New("feed: no quote")

// QuoteSource returns the latest trade for one instrument.
type QuoteSource interface {
	Last(ctx context.Context, instrument string) (types.Tick, error)
}

// PollFeed asks a QuoteSource for every instrument once per Interval.
// A quote whose time is not newer than the previous one for the same
// instrument is not delivered again.
type PollFeed struct {
	Source      QuoteSource
	Instruments []string
	Interval    time.Duration
	Log         logger.Logger
	Tap         func(types.Tick)
}

func (f *PollFeed) Subscribe(ctx context.Context) (<-chan types.Tick, error) {
	if f.Source == nil || len(f.Instruments) == 0 {
		return nil, errors.New("feed: poll feed needs a source and instruments")
	}
	interval := f.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log := f.Log
	if log == nil {
		log = logger.Nop()
	}
	out := make(chan types.Tick, len(f.Instruments))
	go func() {
		defer close(out)
		seen := make(map[string]time.Time, len(f.Instruments))
		tk := time.NewTicker(interval)
		defer tk.Stop()
		for {
			for _, inst := range f.Instruments {
				t, err := f.Source.Last(ctx, inst)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Warn("feed_quote_failed", logger.String("instrument", inst), logger.Err(err))
					continue
				}
				if prev, ok := seen[inst]; ok && !t.Time.After(prev) {
					continue
				}
				seen[inst] = t.Time
				if f.Tap != nil {
					f.Tap(t)
				}
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
			}
		}
	}()
	return out, nil
}

// YahooSource reads regular-market quotes from Yahoo Finance.
type YahooSource struct{}

func (YahooSource) Last(_ context.Context, instrument string) (types.Tick, error) {
	q, err := quote.Get(instrument)
	if err != nil {
		return types.Tick{}, fmt.Errorf("feed: quote %s: %w", instrument, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return types.Tick{}, fmt.Errorf("%w: %s", ErrNoQuote, instrument)
	}
	ts := time.Now()
	if q.RegularMarketTime > 0 {
		ts = time.Unix(int64(q.RegularMarketTime), 0)
	}
	return types.Tick{Instrument: instrument, Price: q.RegularMarketPrice, Time: ts}, nil
}

// StockInfoSource polls a broker's StockInfo endpoint. The broker carries
// no trade time, so ticks are stamped with the poll time.
type StockInfoSource struct {
	Broker executor.Broker
	Clock  func() time.Time
}

func (s StockInfoSource) Last(ctx context.Context, instrument string) (types.Tick, error) {
	info, err := s.Broker.StockInfo(ctx, instrument)
	if err != nil {
		return types.Tick{}, err
	}
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	return types.Tick{Instrument: instrument, Price: info.Price, Time: now()}, nil
}
