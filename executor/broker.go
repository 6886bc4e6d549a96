package executor

import (
	"context"
	"fmt"
	"sync"

	"github.com/evdnx/gotsengine/logger"
	"github.com/evdnx/gotsengine/types"
)

// Balance is the account's cash and equity in currency units.
type Balance struct {
	Cash   int64
	Equity int64
}

// Holding is one instrument held at the broker.
type Holding struct {
	Instrument string
	Qty        int64
	AvgPrice   float64
}

type StockInfo struct {
	Instrument string
	Price      float64
}

// Broker is the capability set a brokerage connection provides. Order
// methods return the broker's own order id; results are delivered on
// Reports under that id.
type Broker interface {
	Login(ctx context.Context) error
	Balance(ctx context.Context) (Balance, error)
	Positions(ctx context.Context) ([]Holding, error)
	Buy(ctx context.Context, instrument string, qty int64, price float64) (string, error)
	Sell(ctx context.Context, instrument string, qty int64, price float64) (string, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
	StockInfo(ctx context.Context, instrument string) (StockInfo, error)
	Subscribe(ctx context.Context, instrument string) error
	Unsubscribe(ctx context.Context, instrument string) error
	Ticks() <-chan types.Tick
	Reports() <-chan types.ExecutionReport
}

type route struct {
	clientID string
	qty      int64
	filled   int64
}

// BrokerExecutor adapts a Broker to the Executor contract. It keeps the
// mapping between client and broker order ids and re-keys the broker's
// reports; Run must be running for reports to flow.
type BrokerExecutor struct {
	broker Broker
	log    logger.Logger

	mu       sync.Mutex
	byBroker map[string]*route
	byClient map[string]string
	early    map[string][]types.ExecutionReport // reports that beat SubmitOrder's bookkeeping

	reports chan types.ExecutionReport
}

func NewBrokerExecutor(b Broker, log logger.Logger, buffer int) *BrokerExecutor {
	if log == nil {
		log = logger.Nop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &BrokerExecutor{
		broker:   b,
		log:      log,
		byBroker: make(map[string]*route),
		byClient: make(map[string]string),
		early:    make(map[string][]types.ExecutionReport),
		reports:  make(chan types.ExecutionReport, buffer),
	}
}

func (e *BrokerExecutor) Reports() <-chan types.ExecutionReport { return e.reports }

func (e *BrokerExecutor) SubmitOrder(ctx context.Context, o types.Order) error {
	if o.Qty <= 0 {
		return fmt.Errorf("executor: order %s has non-positive quantity %d", o.ID, o.Qty)
	}
	var (
		brokerID string
		err      error
	)
	switch o.Side {
	case types.Buy:
		brokerID, err = e.broker.Buy(ctx, o.Instrument, o.Qty, o.Price)
	case types.Sell:
		brokerID, err = e.broker.Sell(ctx, o.Instrument, o.Qty, o.Price)
	default:
		return fmt.Errorf("executor: order %s has unknown side %q", o.ID, o.Side)
	}
	if err != nil {
		return fmt.Errorf("executor: submit %s: %w", o.ID, err)
	}

	e.mu.Lock()
	rt := &route{clientID: o.ID, qty: o.Qty}
	e.byBroker[brokerID] = rt
	e.byClient[o.ID] = brokerID
	backlog := e.early[brokerID]
	delete(e.early, brokerID)
	var out []types.ExecutionReport
	for _, r := range backlog {
		out = append(out, e.rekeyLocked(brokerID, rt, r))
	}
	e.mu.Unlock()

	e.log.Info("order_routed",
		logger.String("order_id", o.ID),
		logger.String("broker_order_id", brokerID),
		logger.String("instrument", o.Instrument),
		logger.String("side", string(o.Side)),
		logger.Int64("qty", o.Qty),
	)
	for _, r := range out {
		if err := e.emit(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (e *BrokerExecutor) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	brokerID, ok := e.byClient[orderID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	return e.broker.CancelOrder(ctx, brokerID)
}

// Run forwards broker reports until ctx is done or the broker closes its
// report stream.
func (e *BrokerExecutor) Run(ctx context.Context) error {
	in := e.broker.Reports()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-in:
			if !ok {
				return nil
			}
			e.mu.Lock()
			rt, known := e.byBroker[r.OrderID]
			if !known {
				e.early[r.OrderID] = append(e.early[r.OrderID], r)
				e.mu.Unlock()
				continue
			}
			out := e.rekeyLocked(r.OrderID, rt, r)
			e.mu.Unlock()
			if err := e.emit(ctx, out); err != nil {
				return err
			}
		}
	}
}

// rekeyLocked swaps in the client id and drops the route once the order
// can produce no further reports.
func (e *BrokerExecutor) rekeyLocked(brokerID string, rt *route, r types.ExecutionReport) types.ExecutionReport {
	r.OrderID = rt.clientID
	done := true
	if r.Filled() {
		rt.filled += r.Qty
		done = rt.filled >= rt.qty
	}
	if done {
		delete(e.byBroker, brokerID)
		delete(e.byClient, rt.clientID)
	}
	return r
}

func (e *BrokerExecutor) emit(ctx context.Context, r types.ExecutionReport) error {
	select {
	case e.reports <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
