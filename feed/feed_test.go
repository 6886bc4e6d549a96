package feed

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/evdnx/gotsengine/executor"
	"github.com/evdnx/gotsengine/fee"
	"github.com/evdnx/gotsengine/testutils"
	"github.com/evdnx/gotsengine/types"
)

func collect(t *testing.T, ch <-chan types.Tick) []types.Tick {
	t.Helper()
	var out []types.Tick
	timeout := time.After(2 * time.Second)
	for {
		select {
		case tk, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, tk)
		case <-timeout:
			t.Fatal("feed did not close")
		}
	}
}

const sample = `instrument,price,timestamp
005930,75000,2026-03-02T09:00:00+09:00
# a comment
000660,120500.5,2026-03-02T09:00:01+09:00

005930,oops,2026-03-02T09:00:02+09:00
005930,75100,2026-03-02T09:00:03+09:00
`

func TestCSVFeedReplaysRows(t *testing.T) {
	log := testutils.NewMockLogger()
	var tapped int
	f := &CSVFeed{R: strings.NewReader(sample), Log: log, Tap: func(types.Tick) { tapped++ }}
	ch, err := f.Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ticks := collect(t, ch)
	if len(ticks) != 3 {
		t.Fatalf("got %d ticks: %+v", len(ticks), ticks)
	}
	if ticks[1].Instrument != "000660" || ticks[1].Price != 120500.5 {
		t.Fatalf("second tick = %+v", ticks[1])
	}
	if ticks[2].Price != 75100 {
		t.Fatalf("third tick = %+v", ticks[2])
	}
	if log.Count("feed_row_skipped") != 1 {
		t.Fatalf("skipped rows = %d", log.Count("feed_row_skipped"))
	}
	if tapped != 3 {
		t.Fatalf("tapped = %d", tapped)
	}
}

func TestCSVFeedStrictStops(t *testing.T) {
	f := &CSVFeed{R: strings.NewReader(sample), Strict: true}
	ch, _ := f.Subscribe(context.Background())
	if ticks := collect(t, ch); len(ticks) != 2 {
		t.Fatalf("strict replay should stop at the bad row, got %d ticks", len(ticks))
	}
}

func TestCSVFeedCancel(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 1000; i++ {
		b.WriteString("A,1,2026-03-02T09:00:00Z\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := (&CSVFeed{R: strings.NewReader(b.String())}).Subscribe(ctx)
	<-ch
	cancel()
	if ticks := collect(t, ch); len(ticks) >= 999 {
		t.Fatalf("cancel should stop the replay early, got %d more", len(ticks))
	}
}

func TestParseRow(t *testing.T) {
	bad := [][]string{
		{"A", "1"},
		{"", "1", "2026-03-02T09:00:00Z"},
		{"A", "-1", "2026-03-02T09:00:00Z"},
		{"A", "1", "yesterday"},
		{"A", "NaN", "2026-03-02T09:00:00Z"},
		{"A", "+Inf", "2026-03-02T09:00:00Z"},
	}
	for _, rec := range bad {
		if _, err := ParseRow(rec); !errors.Is(err, ErrMalformedRow) {
			t.Fatalf("%v: want ErrMalformedRow, got %v", rec, err)
		}
	}
	tk, err := ParseRow([]string{" A ", " 10.5", "2026-03-02T09:00:00Z"})
	if err != nil || tk.Instrument != "A" || tk.Price != 10.5 {
		t.Fatalf("tick = %+v, %v", tk, err)
	}
}

func TestChanFeed(t *testing.T) {
	src := make(chan types.Tick, 2)
	src <- types.Tick{Instrument: "A", Price: 1}
	src <- types.Tick{Instrument: "B", Price: 2}
	close(src)
	ch, _ := ChanFeed{C: src}.Subscribe(context.Background())
	if ticks := collect(t, ch); len(ticks) != 2 {
		t.Fatalf("got %d ticks", len(ticks))
	}
}

func TestBrokerFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, err := executor.NewPaperBroker(0, fee.Simulation(), 1)
	if err != nil {
		t.Fatal(err)
	}
	f := &BrokerFeed{Broker: p, Instruments: []string{"A"}}
	if _, err := f.Subscribe(ctx); !errors.Is(err, executor.ErrNotLoggedIn) {
		t.Fatalf("want ErrNotLoggedIn before login, got %v", err)
	}
	_ = p.Login(ctx)
	ch, err := f.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	p.Publish(types.Tick{Instrument: "A", Price: 5})
	select {
	case tk := <-ch:
		if tk.Price != 5 {
			t.Fatalf("tick = %+v", tk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no tick relayed")
	}
	p.Close()
	collect(t, ch)
}
