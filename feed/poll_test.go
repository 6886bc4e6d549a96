package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/evdnx/gotsengine/executor"
	"github.com/evdnx/gotsengine/fee"
	"github.com/evdnx/gotsengine/testutils"
	"github.com/evdnx/gotsengine/types"
)

// scriptedSource replays a fixed list of answers per instrument and then
// repeats the last one.
type scriptedSource struct {
	mu      sync.Mutex
	answers map[string][]types.Tick
	fail    map[string]bool
}

func (s *scriptedSource) Last(_ context.Context, inst string) (types.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[inst] {
		return types.Tick{}, ErrNoQuote
	}
	q := s.answers[inst]
	t := q[0]
	if len(q) > 1 {
		s.answers[inst] = q[1:]
	}
	return t, nil
}

func TestPollFeedDedupesByTime(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	src := &scriptedSource{
		answers: map[string][]types.Tick{
			"A": {
				{Instrument: "A", Price: 1, Time: t0},
				{Instrument: "A", Price: 1, Time: t0},
				{Instrument: "A", Price: 2, Time: t0.Add(time.Second)},
			},
		},
		fail: map[string]bool{"B": true},
	}
	log := testutils.NewMockLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &PollFeed{Source: src, Instruments: []string{"A", "B"}, Interval: time.Millisecond, Log: log}
	ch, err := f.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var got []types.Tick
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case tk := <-ch:
			got = append(got, tk)
		case <-timeout:
			t.Fatalf("got %d ticks", len(got))
		}
	}
	if got[0].Price != 1 || got[1].Price != 2 {
		t.Fatalf("ticks = %+v", got)
	}
	select {
	case tk := <-ch:
		t.Fatalf("repeated quote delivered: %+v", tk)
	case <-time.After(20 * time.Millisecond):
	}
	if log.Count("feed_quote_failed") == 0 {
		t.Fatal("failing source should be logged")
	}
	cancel()
	collect(t, ch)
}

func TestPollFeedNeedsSource(t *testing.T) {
	if _, err := (&PollFeed{}).Subscribe(context.Background()); err == nil {
		t.Fatal("expected an error")
	}
}

func TestStockInfoSource(t *testing.T) {
	ctx := context.Background()
	p, err := executor.NewPaperBroker(0, fee.Simulation(), 1)
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	src := StockInfoSource{Broker: p, Clock: func() time.Time { return at }}
	if _, err := src.Last(ctx, "A"); !errors.Is(err, executor.ErrUnknownInstrument) {
		t.Fatalf("want ErrUnknownInstrument, got %v", err)
	}
	p.Publish(types.Tick{Instrument: "A", Price: 42})
	tk, err := src.Last(ctx, "A")
	if err != nil || tk.Price != 42 || !tk.Time.Equal(at) {
		t.Fatalf("tick = %+v, %v", tk, err)
	}
}
