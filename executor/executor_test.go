package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evdnx/gotsengine/fee"
	"github.com/evdnx/gotsengine/testutils"
	"github.com/evdnx/gotsengine/types"
)

func newPaper(t *testing.T, cash int64, opts ...PaperOption) *PaperBroker {
	t.Helper()
	p, err := NewPaperBroker(cash, fee.Simulation(), 1, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Login(context.Background()); err != nil {
		t.Fatal(err)
	}
	return p
}

func next(t *testing.T, ch <-chan types.ExecutionReport) types.ExecutionReport {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a report")
	}
	return types.ExecutionReport{}
}

func TestPaperBroker_BuyAndPosition(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, 1_000_000)

	id, err := p.Buy(ctx, "005930", 10, 75_000)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	r := next(t, p.Reports())
	if r.OrderID != id || r.Status != types.StatusFilled || r.Qty != 10 || r.Price != 75_000 {
		t.Fatalf("unexpected report %+v", r)
	}
	bal, _ := p.Balance(ctx)
	// 750,000 plus the 2,625 simulation commission.
	if bal.Cash != 1_000_000-752_625 {
		t.Fatalf("cash = %d", bal.Cash)
	}
	hs, _ := p.Positions(ctx)
	if len(hs) != 1 || hs[0].Qty != 10 || hs[0].AvgPrice != 75_000 {
		t.Fatalf("holdings = %+v", hs)
	}

	if _, err := p.Sell(ctx, "005930", 10, 76_000); err != nil {
		t.Fatal(err)
	}
	if r := next(t, p.Reports()); !r.Filled() {
		t.Fatalf("sell report %+v", r)
	}
	if hs, _ := p.Positions(ctx); len(hs) != 0 {
		t.Fatalf("holdings after full sell = %+v", hs)
	}
}

func TestPaperBroker_InsufficientCash(t *testing.T) {
	p := newPaper(t, 1000)
	if _, err := p.Buy(context.Background(), "ETH", 1, 2000); err != nil {
		t.Fatalf("expected graceful handling, got error %v", err)
	}
	if r := next(t, p.Reports()); r.Status != types.StatusRejected {
		t.Fatalf("want rejection, got %+v", r)
	}
	if bal, _ := p.Balance(context.Background()); bal.Cash != 1000 {
		t.Fatalf("cash should stay unchanged on insufficient cash")
	}
}

func TestPaperBroker_SellWithoutHolding(t *testing.T) {
	p := newPaper(t, 1000)
	if _, err := p.Sell(context.Background(), "X", 1, 10); err != nil {
		t.Fatal(err)
	}
	if r := next(t, p.Reports()); r.Status != types.StatusRejected {
		t.Fatalf("want rejection, got %+v", r)
	}
}

func TestPaperBroker_RequiresLogin(t *testing.T) {
	p, err := NewPaperBroker(1000, fee.Simulation(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Buy(context.Background(), "X", 1, 10); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("want ErrNotLoggedIn, got %v", err)
	}
	if _, err := NewPaperBroker(1000, fee.Simulation(), 5000); err == nil {
		t.Fatal("snowflake node ids above 1023 must be rejected")
	}
}

func TestPaperBroker_MarketOrderUsesLastPrice(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, 1_000_000)
	if _, err := p.Buy(ctx, "A", 1, 0); !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("want ErrUnknownInstrument, got %v", err)
	}
	p.Publish(types.Tick{Instrument: "A", Price: 1234, Time: time.Now()})
	if _, err := p.Buy(ctx, "A", 1, 0); err != nil {
		t.Fatal(err)
	}
	if r := next(t, p.Reports()); r.Price != 1234 {
		t.Fatalf("fill price = %v", r.Price)
	}
	info, err := p.StockInfo(ctx, "A")
	if err != nil || info.Price != 1234 {
		t.Fatalf("stock info = %+v, %v", info, err)
	}
}

func TestPaperBroker_TicksOnlyForSubscribed(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, 0)
	if err := p.Subscribe(ctx, "A"); err != nil {
		t.Fatal(err)
	}
	p.Publish(types.Tick{Instrument: "B", Price: 1})
	p.Publish(types.Tick{Instrument: "A", Price: 2})
	if tk := <-p.Ticks(); tk.Instrument != "A" {
		t.Fatalf("got tick for %s", tk.Instrument)
	}
	_ = p.Unsubscribe(ctx, "A")
	p.Publish(types.Tick{Instrument: "A", Price: 3})
	select {
	case tk := <-p.Ticks():
		t.Fatalf("unsubscribed tick delivered: %+v", tk)
	default:
	}
	p.Close()
	if _, ok := <-p.Ticks(); ok {
		t.Fatal("tick stream should be closed")
	}
}

func TestPaperBroker_ManualMatchAndCancel(t *testing.T) {
	ctx := context.Background()
	p := newPaper(t, 1_000_000, ManualFills())
	id, _ := p.Buy(ctx, "A", 10, 1000)
	if err := p.Match(ctx, id, 4); err != nil {
		t.Fatal(err)
	}
	if r := next(t, p.Reports()); r.Qty != 4 {
		t.Fatalf("partial fill = %+v", r)
	}
	if err := p.CancelOrder(ctx, id); err != nil {
		t.Fatal(err)
	}
	if r := next(t, p.Reports()); r.Status != types.StatusCancelled {
		t.Fatalf("cancel report = %+v", r)
	}
	if err := p.CancelOrder(ctx, id); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestBrokerExecutor_RekeysReports(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := newPaper(t, 1_000_000)
	log := testutils.NewMockLogger()
	ex := NewBrokerExecutor(p, log, 16)
	go func() { _ = ex.Run(ctx) }()

	if err := ex.SubmitOrder(ctx, types.Order{ID: "c-1", Instrument: "A", Side: types.Buy, Qty: 5, Price: 1000}); err != nil {
		t.Fatal(err)
	}
	r := next(t, ex.Reports())
	if r.OrderID != "c-1" || !r.Filled() || r.Qty != 5 {
		t.Fatalf("report = %+v", r)
	}
	if log.Count("order_routed") != 1 {
		t.Fatal("routing should be logged")
	}
	// Fully filled orders are forgotten.
	if err := ex.CancelOrder(ctx, "c-1"); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("want ErrUnknownOrder, got %v", err)
	}
}

func TestBrokerExecutor_CancelRoutesToBroker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := newPaper(t, 1_000_000, ManualFills())
	ex := NewBrokerExecutor(p, nil, 16)
	go func() { _ = ex.Run(ctx) }()

	if err := ex.SubmitOrder(ctx, types.Order{ID: "c-2", Instrument: "A", Side: types.Buy, Qty: 5, Price: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := ex.CancelOrder(ctx, "c-2"); err != nil {
		t.Fatal(err)
	}
	r := next(t, ex.Reports())
	if r.OrderID != "c-2" || r.Status != types.StatusCancelled {
		t.Fatalf("report = %+v", r)
	}
}

func TestBrokerExecutor_SubmitErrors(t *testing.T) {
	ctx := context.Background()
	p, _ := NewPaperBroker(1000, fee.Simulation(), 1)
	ex := NewBrokerExecutor(p, nil, 1)
	err := ex.SubmitOrder(ctx, types.Order{ID: "c-3", Instrument: "A", Side: types.Buy, Qty: 1, Price: 1})
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("want wrapped ErrNotLoggedIn, got %v", err)
	}
	if err := ex.SubmitOrder(ctx, types.Order{ID: "c-4", Side: types.Buy}); err == nil {
		t.Fatal("zero quantity must be refused")
	}
}
