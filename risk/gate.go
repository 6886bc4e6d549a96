package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evdnx/gotsengine/config"
	"github.com/evdnx/gotsengine/fee"
	"github.com/evdnx/gotsengine/logger"
	"github.com/evdnx/gotsengine/observe"
	"github.com/evdnx/gotsengine/types"
)

var ErrUnknownOrder = errors.New("risk: unknown order id")

// RejectReason is why the gate vetoed an order. A rejection is a decision
// outcome, not an error.
type RejectReason string

const (
	DailyHalt      RejectReason = "daily-halt"
	MaxPositions   RejectReason = "max-positions"
	Oversized      RejectReason = "oversized"
	BelowBreakeven RejectReason = "below-breakeven"
)

// Trigger names what caused an accepted order.
type Trigger string

const (
	TriggerSignal     Trigger = "signal"
	TriggerStopLoss   Trigger = "stop-loss"
	TriggerTakeProfit Trigger = "take-profit"
)

type Verdict int

const (
	NoAction Verdict = iota
	Accepted
	Rejected
)

// Outcome is the gate's answer for one evaluation.
type Outcome struct {
	Verdict Verdict
	Reason  RejectReason // set when Rejected
	Trigger Trigger      // set when Accepted
	Order   types.Order  // set when Accepted
}

// Position is one instrument's ledger entry.
type Position struct {
	Instrument    string
	Quantity      int64
	AvgEntryPrice float64
	OpenedAt      time.Time
	State         State
	EntryFees     int64 // buy commission still attributed to the open quantity

	pending *pendingOrder
}

// PendingOrderID is the id of the order awaiting confirmation, if any.
func (p Position) PendingOrderID() string {
	if p.pending == nil {
		return ""
	}
	return p.pending.id
}

type pendingOrder struct {
	id      string
	side    types.Side
	qty     int64
	filled  int64
	trigger Trigger
	since   time.Time
}

// Option customises a Gate.
type Option func(*Gate)

func WithSink(s observe.Sink) Option { return func(g *Gate) { g.sink = s } }

func WithLogger(l logger.Logger) Option { return func(g *Gate) { g.log = l } }

// WithOrderIDs sets the generator for client order ids.
func WithOrderIDs(next func() string) Option { return func(g *Gate) { g.nextID = next } }

// Gate is the single serialised owner of positions, cash and the daily
// loss counter. Every check and every mutation runs under one mutex, so
// the global figures it gates on (open positions, loss ratio) are always
// consistent across instruments.
type Gate struct {
	cfg    config.RiskConfig
	fees   fee.Schedule
	sink   observe.Sink
	log    logger.Logger
	nextID func() string

	mu        sync.Mutex
	cash      int64
	positions map[string]*Position
	orders    map[string]string // order id -> instrument
	daily     DailyLossCounter
}

func NewGate(cfg config.RiskConfig, fees fee.Schedule, opts ...Option) *Gate {
	var seq atomic.Int64
	g := &Gate{
		cfg:       cfg,
		fees:      fees,
		sink:      observe.Nop{},
		log:       logger.Nop(),
		nextID:    func() string { return fmt.Sprintf("ord-%d", seq.Add(1)) },
		cash:      cfg.InitialCapital,
		positions: make(map[string]*Position),
		orders:    make(map[string]string),
		daily:     newDailyLossCounter(cfg.InitialCapital, time.Time{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Review runs the gate for one instrument at price under the fused
// decision. It is called on every price update, including HOLD decisions,
// because stop-loss and take-profit exits are price driven.
func (g *Gate) Review(instrument string, d types.FusedDecision, price float64, now time.Time) Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, ok := g.positions[instrument]
	switch {
	case !ok:
		if d.Action != types.BuyAction {
			return Outcome{}
		}
		return g.reviewEntry(instrument, price, now)
	case pos.State == Open && pos.pending == nil:
		return g.reviewExit(pos, d, price, now)
	}
	// ENTERING, EXITING, or OPEN with an entry order still filling.
	return Outcome{}
}

func (g *Gate) reviewEntry(instrument string, price float64, now time.Time) Outcome {
	if g.daily.Halted {
		return g.reject(instrument, types.Buy, DailyHalt, price)
	}
	if len(g.positions) >= g.cfg.MaxStocks {
		return g.reject(instrument, types.Buy, MaxPositions, price)
	}
	units := fee.Units(price)
	qty := CalcQty(g.cash, g.cfg.PositionSizePercent, units, g.fees)
	if qty < 1 || qty*units+g.fees.BuyFee(qty*units) > Budget(g.cash, g.cfg.PositionSizePercent) {
		return g.reject(instrument, types.Buy, Oversized, price)
	}

	pos := &Position{Instrument: instrument, State: Flat}
	id := g.nextID()
	if err := g.transition(pos, EvEnter, id); err != nil {
		g.log.Error("ledger_transition_failed", logger.String("instrument", instrument), logger.Err(err))
		return Outcome{}
	}
	pos.pending = &pendingOrder{id: id, side: types.Buy, qty: qty, trigger: TriggerSignal, since: now}
	g.positions[instrument] = pos
	g.orders[id] = instrument
	g.publishRisk()
	return Outcome{
		Verdict: Accepted,
		Trigger: TriggerSignal,
		Order: types.Order{
			ID:         id,
			Instrument: instrument,
			Side:       types.Buy,
			Qty:        qty,
			Price:      price,
			Comment:    string(TriggerSignal),
		},
	}
}

func (g *Gate) reviewExit(pos *Position, d types.FusedDecision, price float64, now time.Time) Outcome {
	if pos.AvgEntryPrice <= 0 {
		return Outcome{}
	}
	move := (price - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
	var trigger Trigger
	switch {
	case move <= -g.cfg.StopLossPercent:
		trigger = TriggerStopLoss
	case move >= g.cfg.TakeProfitPercent:
		trigger = TriggerTakeProfit
	case d.Action == types.SellAction:
		// Discretionary exits must at least cover the round-trip costs.
		breakeven := g.fees.Breakeven(int64(math.Ceil(pos.AvgEntryPrice)), pos.Quantity)
		if fee.Units(price) < breakeven {
			return g.reject(pos.Instrument, types.Sell, BelowBreakeven, price)
		}
		trigger = TriggerSignal
	default:
		return Outcome{}
	}

	id := g.nextID()
	if err := g.transition(pos, EvExit, id); err != nil {
		g.log.Error("ledger_transition_failed", logger.String("instrument", pos.Instrument), logger.Err(err))
		return Outcome{}
	}
	pos.pending = &pendingOrder{id: id, side: types.Sell, qty: pos.Quantity, trigger: trigger, since: now}
	g.orders[id] = pos.Instrument
	return Outcome{
		Verdict: Accepted,
		Trigger: trigger,
		Order: types.Order{
			ID:         id,
			Instrument: pos.Instrument,
			Side:       types.Sell,
			Qty:        pos.Quantity,
			Price:      price,
			Comment:    string(trigger),
		},
	}
}

func (g *Gate) reject(instrument string, side types.Side, reason RejectReason, price float64) Outcome {
	g.sink.Rejection(observe.Rejection{Instrument: instrument, Side: side, Reason: string(reason), Price: price})
	return Outcome{Verdict: Rejected, Reason: reason}
}

// ConfirmFill applies an execution report. Reports that are not fills
// are treated as Abort.
func (g *Gate) ConfirmFill(r types.ExecutionReport) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pos, err := g.lookup(r.OrderID)
	if err != nil {
		return err
	}
	if !r.Filled() {
		return g.abortLocked(pos, r.OrderID)
	}
	p := pos.pending
	qty := r.Qty
	if remaining := p.qty - p.filled; qty > remaining {
		g.log.Warn("overfill_clamped",
			logger.String("order_id", r.OrderID),
			logger.Int64("reported", r.Qty),
			logger.Int64("remaining", remaining),
		)
		qty = remaining
	}
	units := fee.Units(r.Price)
	amount := units * qty
	p.filled += qty

	switch p.side {
	case types.Buy:
		buyFee := g.fees.BuyFee(amount)
		g.cash -= amount + buyFee
		total := pos.Quantity + qty
		pos.AvgEntryPrice = (pos.AvgEntryPrice*float64(pos.Quantity) + float64(amount)) / float64(total)
		pos.Quantity = total
		pos.EntryFees += buyFee
		if pos.State == Entering {
			pos.OpenedAt = r.Time
			if err := g.transition(pos, EvFill, r.OrderID); err != nil {
				return err
			}
		}
	case types.Sell:
		sellFee := g.fees.SellFee(amount).Total()
		g.cash += amount - sellFee
		entryFees := pos.EntryFees * qty / pos.Quantity
		cost := int64(math.Round(pos.AvgEntryPrice*float64(qty))) + entryFees
		pnl := amount - sellFee - cost
		pos.EntryFees -= entryFees
		pos.Quantity -= qty
		g.recordPnL(pos.Instrument, pnl)
		if pos.Quantity == 0 {
			if err := g.transition(pos, EvClose, r.OrderID); err != nil {
				return err
			}
			delete(g.positions, pos.Instrument)
		}
	}
	if p.filled >= p.qty {
		pos.pending = nil
		delete(g.orders, r.OrderID)
	}
	g.publishRisk()
	return nil
}

// Abort handles an order that will never be (further) filled: cancelled,
// rejected by the broker or timed out. The ledger steps back instead of
// advancing: ENTERING returns to FLAT, EXITING to OPEN.
func (g *Gate) Abort(orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	pos, err := g.lookup(orderID)
	if err != nil {
		return err
	}
	return g.abortLocked(pos, orderID)
}

func (g *Gate) abortLocked(pos *Position, orderID string) error {
	delete(g.orders, orderID)
	pos.pending = nil
	switch pos.State {
	case Entering:
		if err := g.transition(pos, EvAbort, orderID); err != nil {
			return err
		}
		delete(g.positions, pos.Instrument)
	case Exiting:
		if err := g.transition(pos, EvAbort, orderID); err != nil {
			return err
		}
	}
	// OPEN here means a partially filled entry; the filled shares stay.
	g.publishRisk()
	return nil
}

func (g *Gate) lookup(orderID string) (*Position, error) {
	instrument, ok := g.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	pos, ok := g.positions[instrument]
	if !ok || pos.pending == nil || pos.pending.id != orderID {
		delete(g.orders, orderID)
		return nil, fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	return pos, nil
}

func (g *Gate) transition(pos *Position, ev Event, orderID string) error {
	to, err := next(pos.State, ev)
	if err != nil {
		return err
	}
	from := pos.State
	pos.State = to
	if from != to {
		g.sink.Transition(observe.Transition{
			Instrument: pos.Instrument,
			From:       string(from),
			To:         string(to),
			Event:      string(ev),
			OrderID:    orderID,
		})
	}
	return nil
}

func (g *Gate) recordPnL(instrument string, pnl int64) {
	if g.daily.Record(pnl, g.cfg.DailyLossLimitPercent) {
		g.log.Warn("daily_loss_breaker_tripped",
			logger.String("instrument", instrument),
			logger.Int64("realized_loss", g.daily.RealizedLoss),
			logger.Float64("loss_ratio_pct", g.daily.LossRatio()),
			logger.Float64("limit_pct", g.cfg.DailyLossLimitPercent),
		)
	}
}

// ResetSession starts a new session: the loss counter is cleared and
// re-based on current equity. It shares the gate's lock, so no review
// observes a half-reset state.
func (g *Gate) ResetSession(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	prev := g.daily
	g.daily = newDailyLossCounter(g.equityLocked(), now)
	g.log.Info("session_reset",
		logger.Time("at", now),
		logger.Int64("base_capital", g.daily.BaseCapital),
		logger.Int64("prev_realized_loss", prev.RealizedLoss),
		logger.Int64("prev_realized_profit", prev.RealizedProfit),
		logger.Bool("prev_halted", prev.Halted),
	)
	g.publishRisk()
}

// SetCapital replaces the tracked cash, e.g. with the broker balance.
// Before the first session reset the loss counter is re-based as well.
func (g *Gate) SetCapital(cash int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cash = cash
	if g.daily.SessionStart.IsZero() {
		g.daily.BaseCapital = g.equityLocked()
	}
	g.publishRisk()
}

// equityLocked is cash plus open positions at cost.
func (g *Gate) equityLocked() int64 {
	eq := g.cash
	for _, p := range g.positions {
		eq += int64(math.Round(p.AvgEntryPrice*float64(p.Quantity))) + p.EntryFees
	}
	return eq
}

// StaleOrders lists pending orders submitted before now-olderThan.
func (g *Gate) StaleOrders(now time.Time, olderThan time.Duration) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, p := range g.positions {
		if p.pending != nil && now.Sub(p.pending.since) >= olderThan {
			out = append(out, p.pending.id)
		}
	}
	sort.Strings(out)
	return out
}

// PendingOrders lists every order still awaiting confirmation.
func (g *Gate) PendingOrders() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.orders))
	for id := range g.orders {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (g *Gate) Position(instrument string) (Position, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.positions[instrument]
	if !ok {
		return Position{Instrument: instrument, State: Flat}, false
	}
	return *p, true
}

// Positions returns copies of every non-FLAT position, sorted by instrument.
func (g *Gate) Positions() []Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Position, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

func (g *Gate) Daily() DailyLossCounter {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.daily
}

func (g *Gate) Cash() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cash
}

func (g *Gate) publishRisk() {
	g.sink.Risk(observe.Risk{
		OpenPositions: len(g.positions),
		RealizedLoss:  g.daily.RealizedLoss,
		Halted:        g.daily.Halted,
		Cash:          g.cash,
	})
}
