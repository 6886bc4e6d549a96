package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/evdnx/gotsengine/fee"
	"github.com/evdnx/gotsengine/logger"
	"github.com/evdnx/gotsengine/types"
)

// PaperBroker is an in-process simulated broker. By default every order
// fills immediately at its limit price (or the last published price for
// market orders) with no slippage; with ManualFills orders rest until
// Match or CancelOrder.
type PaperBroker struct {
	node  *snowflake.Node
	fees  fee.Schedule
	log   logger.Logger
	clock func() time.Time

	manual bool

	mu         sync.Mutex
	loggedIn   bool
	closed     bool
	cash       int64
	holdings   map[string]*Holding
	last       map[string]float64
	subscribed map[string]bool
	resting    map[string]types.Order // broker id -> order

	ticks   chan types.Tick
	reports chan types.ExecutionReport

	streamMu     sync.RWMutex
	streamClosed bool
}

type PaperOption func(*PaperBroker)

func WithPaperLogger(l logger.Logger) PaperOption { return func(p *PaperBroker) { p.log = l } }

func WithClock(now func() time.Time) PaperOption { return func(p *PaperBroker) { p.clock = now } }

// ManualFills keeps orders resting until Match is called.
func ManualFills() PaperOption { return func(p *PaperBroker) { p.manual = true } }

// NewPaperBroker creates a simulated account holding cash. nodeID seeds
// the snowflake generator for broker order ids.
func NewPaperBroker(cash int64, fees fee.Schedule, nodeID int64, opts ...PaperOption) (*PaperBroker, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("executor: snowflake node %d: %w", nodeID, err)
	}
	p := &PaperBroker{
		node:       node,
		fees:       fees,
		log:        logger.Nop(),
		clock:      time.Now,
		cash:       cash,
		holdings:   make(map[string]*Holding),
		last:       make(map[string]float64),
		subscribed: make(map[string]bool),
		resting:    make(map[string]types.Order),
		ticks:      make(chan types.Tick, 1024),
		reports:    make(chan types.ExecutionReport, 1024),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

func (p *PaperBroker) Login(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.loggedIn = true
	return nil
}

func (p *PaperBroker) Balance(context.Context) (Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loggedIn {
		return Balance{}, ErrNotLoggedIn
	}
	eq := p.cash
	for inst, h := range p.holdings {
		mark := p.last[inst]
		if mark == 0 {
			mark = h.AvgPrice
		}
		eq += fee.Units(mark) * h.Qty
	}
	return Balance{Cash: p.cash, Equity: eq}, nil
}

func (p *PaperBroker) Positions(context.Context) ([]Holding, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loggedIn {
		return nil, ErrNotLoggedIn
	}
	out := make([]Holding, 0, len(p.holdings))
	for _, h := range p.holdings {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out, nil
}

func (p *PaperBroker) Buy(ctx context.Context, instrument string, qty int64, price float64) (string, error) {
	return p.place(ctx, types.Order{Instrument: instrument, Side: types.Buy, Qty: qty, Price: price})
}

func (p *PaperBroker) Sell(ctx context.Context, instrument string, qty int64, price float64) (string, error) {
	return p.place(ctx, types.Order{Instrument: instrument, Side: types.Sell, Qty: qty, Price: price})
}

func (p *PaperBroker) place(ctx context.Context, o types.Order) (string, error) {
	p.mu.Lock()
	if !p.loggedIn {
		p.mu.Unlock()
		return "", ErrNotLoggedIn
	}
	if o.Price <= 0 {
		last, ok := p.last[o.Instrument]
		if !ok {
			p.mu.Unlock()
			return "", fmt.Errorf("%w: %s has no price yet", ErrUnknownInstrument, o.Instrument)
		}
		o.Price = last
	}
	o.ID = p.node.Generate().String()
	if p.manual {
		p.resting[o.ID] = o
		p.mu.Unlock()
		return o.ID, nil
	}
	r := p.fillLocked(o)
	p.mu.Unlock()
	return o.ID, p.emit(ctx, r)
}

// fillLocked settles o in full, or rejects it when cash or holdings do
// not cover it.
func (p *PaperBroker) fillLocked(o types.Order) types.ExecutionReport {
	now := p.clock()
	units := fee.Units(o.Price)
	amount := units * o.Qty
	switch o.Side {
	case types.Buy:
		cost := amount + p.fees.BuyFee(amount)
		if cost > p.cash {
			p.log.Warn("paper_insufficient_cash",
				logger.String("instrument", o.Instrument),
				logger.Int64("cost", cost),
				logger.Int64("cash", p.cash),
			)
			return types.ExecutionReport{OrderID: o.ID, Status: types.StatusRejected, Time: now}
		}
		p.cash -= cost
		h, ok := p.holdings[o.Instrument]
		if !ok {
			h = &Holding{Instrument: o.Instrument}
			p.holdings[o.Instrument] = h
		}
		h.AvgPrice = (h.AvgPrice*float64(h.Qty) + float64(amount)) / float64(h.Qty+o.Qty)
		h.Qty += o.Qty
	case types.Sell:
		h, ok := p.holdings[o.Instrument]
		if !ok || h.Qty < o.Qty {
			p.log.Warn("paper_insufficient_holding",
				logger.String("instrument", o.Instrument),
				logger.Int64("qty", o.Qty),
			)
			return types.ExecutionReport{OrderID: o.ID, Status: types.StatusRejected, Time: now}
		}
		p.cash += amount - p.fees.SellFee(amount).Total()
		h.Qty -= o.Qty
		if h.Qty == 0 {
			delete(p.holdings, o.Instrument)
		}
	}
	p.log.Info("paper_fill",
		logger.String("broker_order_id", o.ID),
		logger.String("instrument", o.Instrument),
		logger.String("side", string(o.Side)),
		logger.Int64("qty", o.Qty),
		logger.Float64("price", o.Price),
		logger.Int64("cash", p.cash),
	)
	return types.ExecutionReport{OrderID: o.ID, Status: types.StatusFilled, Price: o.Price, Qty: o.Qty, Time: now}
}

// Match fills a resting order; qty below the order's size fills part of
// it and leaves the rest resting.
func (p *PaperBroker) Match(ctx context.Context, brokerOrderID string, qty int64) error {
	p.mu.Lock()
	o, ok := p.resting[brokerOrderID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOrder, brokerOrderID)
	}
	if qty <= 0 || qty > o.Qty {
		qty = o.Qty
	}
	part := o
	part.Qty = qty
	r := p.fillLocked(part)
	if o.Qty -= qty; o.Qty == 0 || !r.Filled() {
		delete(p.resting, brokerOrderID)
	} else {
		p.resting[brokerOrderID] = o
	}
	p.mu.Unlock()
	return p.emit(ctx, r)
}

func (p *PaperBroker) CancelOrder(ctx context.Context, brokerOrderID string) error {
	p.mu.Lock()
	if _, ok := p.resting[brokerOrderID]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOrder, brokerOrderID)
	}
	delete(p.resting, brokerOrderID)
	now := p.clock()
	p.mu.Unlock()
	return p.emit(ctx, types.ExecutionReport{OrderID: brokerOrderID, Status: types.StatusCancelled, Time: now})
}

func (p *PaperBroker) StockInfo(_ context.Context, instrument string) (StockInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.last[instrument]
	if !ok {
		return StockInfo{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	return StockInfo{Instrument: instrument, Price: last}, nil
}

func (p *PaperBroker) Subscribe(_ context.Context, instrument string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loggedIn {
		return ErrNotLoggedIn
	}
	p.subscribed[instrument] = true
	return nil
}

func (p *PaperBroker) Unsubscribe(_ context.Context, instrument string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subscribed, instrument)
	return nil
}

func (p *PaperBroker) Ticks() <-chan types.Tick { return p.ticks }

func (p *PaperBroker) Reports() <-chan types.ExecutionReport { return p.reports }

// Publish records t as the instrument's last price and forwards it to the
// tick stream when the instrument is subscribed. A full stream drops the
// tick.
func (p *PaperBroker) Publish(t types.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.last[t.Instrument] = t.Price
	if !p.subscribed[t.Instrument] {
		return
	}
	select {
	case p.ticks <- t:
	default:
		p.log.Warn("paper_tick_dropped", logger.String("instrument", t.Instrument))
	}
}

// Close ends both streams. Further orders fail with ErrNotLoggedIn.
func (p *PaperBroker) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.loggedIn = false
	close(p.ticks)
	p.mu.Unlock()

	p.streamMu.Lock()
	p.streamClosed = true
	close(p.reports)
	p.streamMu.Unlock()
}

func (p *PaperBroker) emit(ctx context.Context, r types.ExecutionReport) error {
	p.streamMu.RLock()
	defer p.streamMu.RUnlock()
	if p.streamClosed {
		return ErrClosed
	}
	select {
	case p.reports <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
