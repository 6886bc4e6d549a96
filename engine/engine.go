package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/evdnx/gotsengine/config"
	"github.com/evdnx/gotsengine/executor"
	"github.com/evdnx/gotsengine/fusion"
	"github.com/evdnx/gotsengine/indicator"
	"github.com/evdnx/gotsengine/logger"
	"github.com/evdnx/gotsengine/metrics"
	"github.com/evdnx/gotsengine/observe"
	"github.com/evdnx/gotsengine/risk"
	"github.com/evdnx/gotsengine/series"
	"github.com/evdnx/gotsengine/strategy"
	"github.com/evdnx/gotsengine/types"
	"github.com/sourcegraph/conc"
)

const (
	defaultQueueSize     = 256
	defaultSettleTimeout = 5 * time.Second
	settlePoll           = 5 * time.Millisecond
)

var ErrInvalidTick = errors.New("engine: invalid tick")

type Option func(*Engine)

func WithSink(s observe.Sink) Option { return func(e *Engine) { e.sink = s } }

func WithLogger(l logger.Logger) Option { return func(e *Engine) { e.log = l } }

// WithStrategies replaces the configured strategy set.
func WithStrategies(s ...strategy.Strategy) Option { return func(e *Engine) { e.strategies = s } }

func WithQueueSize(n int) Option { return func(e *Engine) { e.queueSize = n } }

// Engine runs the per-tick pipeline: price history, strategies, fusion,
// risk gate. Accepted orders are queued and handed to the executor by a
// dispatcher, never from inside an evaluation.
type Engine struct {
	cfg        config.EngineConfig
	strategies []strategy.Strategy
	params     indicator.Params
	book       *series.Book
	gate       *risk.Gate
	exec       executor.Executor
	sink       observe.Sink
	log        logger.Logger
	queueSize  int

	orders chan types.Order

	mu        sync.Mutex
	watermark time.Time // newest tick time seen
}

func New(cfg config.EngineConfig, gate *risk.Gate, exec executor.Executor, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gate == nil || exec == nil {
		return nil, errors.New("engine: gate and executor are required")
	}
	e := &Engine{
		cfg:       cfg,
		params:    cfg.Indicators.Params(),
		book:      series.NewBook(cfg.RetentionWindow()),
		gate:      gate,
		exec:      exec,
		sink:      observe.Nop{},
		log:       logger.Nop(),
		queueSize: defaultQueueSize,
	}
	for _, o := range opts {
		o(e)
	}
	if e.strategies == nil {
		s, err := strategy.Build(cfg)
		if err != nil {
			return nil, fmt.Errorf("engine: strategies: %w", err)
		}
		e.strategies = s
	}
	if e.queueSize <= 0 {
		e.queueSize = defaultQueueSize
	}
	e.orders = make(chan types.Order, e.queueSize)
	return e, nil
}

// SnowflakeIDs returns a client order id generator for risk.WithOrderIDs.
func SnowflakeIDs(nodeID int64) (func() string, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("engine: snowflake node %d: %w", nodeID, err)
	}
	return func() string { return node.Generate().String() }, nil
}

func (e *Engine) Gate() *risk.Gate { return e.gate }

// Instruments lists every instrument the engine has seen a tick for.
func (e *Engine) Instruments() []string { return e.book.Instruments() }

// Snapshot computes the indicators over an instrument's current window and
// returns them with the time of its newest tick. ok is false for an unseen
// instrument.
func (e *Engine) Snapshot(instrument string) (snap indicator.Snapshot, at time.Time, ok bool) {
	window, at := e.book.Window(instrument)
	if window == nil {
		return indicator.Snapshot{}, time.Time{}, false
	}
	return indicator.Compute(window, e.params), at, true
}

// Evaluate runs one tick through the pipeline. Ticks for one instrument
// must arrive in time order; Run guarantees this per instrument.
func (e *Engine) Evaluate(t types.Tick) (risk.Outcome, error) {
	if t.Instrument == "" || t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return risk.Outcome{}, fmt.Errorf("%w: %+v", ErrInvalidTick, t)
	}
	window, err := e.book.Append(t.Instrument, t.Price, t.Time)
	if err != nil {
		e.log.Warn("tick_rejected",
			logger.String("instrument", t.Instrument),
			logger.Time("ts", t.Time),
			logger.Err(err),
		)
		return risk.Outcome{}, fmt.Errorf("engine: %s: %w", t.Instrument, err)
	}
	e.advance(t.Time)
	e.sink.Indicators(t.Instrument, t.Time, indicator.Compute(window, e.params))

	signals := strategy.EvaluateAll(e.strategies, window)
	for _, s := range signals {
		e.sink.Signal(t.Instrument, s)
	}
	d := fusion.Fuse(signals, e.cfg.Fusion.MinAgreement)
	e.sink.Decision(t.Instrument, d)

	out := e.gate.Review(t.Instrument, d, t.Price, t.Time)
	if out.Verdict == risk.Accepted {
		e.enqueue(out.Order)
	}
	return out, nil
}

func (e *Engine) enqueue(o types.Order) {
	select {
	case e.orders <- o:
	default:
		e.log.Error("order_queue_full",
			logger.String("order_id", o.ID),
			logger.String("instrument", o.Instrument),
		)
		e.abort(o.ID)
	}
}

func (e *Engine) submit(ctx context.Context, o types.Order) {
	if err := e.exec.SubmitOrder(ctx, o); err != nil {
		e.log.Error("order_submit_failed",
			logger.String("order_id", o.ID),
			logger.String("instrument", o.Instrument),
			logger.Err(err),
		)
		e.abort(o.ID)
		return
	}
	metrics.OrdersSubmitted.WithLabelValues(string(o.Side), o.Comment).Inc()
	e.log.Info("order_submitted",
		logger.String("order_id", o.ID),
		logger.String("instrument", o.Instrument),
		logger.String("side", string(o.Side)),
		logger.Int64("qty", o.Qty),
		logger.Float64("price", o.Price),
		logger.String("trigger", o.Comment),
	)
}

// Flush submits every queued order and returns how many it took.
func (e *Engine) Flush(ctx context.Context) int {
	n := 0
	for {
		select {
		case o := <-e.orders:
			e.submit(ctx, o)
			n++
		default:
			return n
		}
	}
}

// HandleReport applies one execution report to the ledger.
func (e *Engine) HandleReport(r types.ExecutionReport) {
	metrics.ReportsTotal.WithLabelValues(string(r.Status)).Inc()
	if r.Filled() {
		metrics.FillsTotal.Inc()
	}
	if err := e.gate.ConfirmFill(r); err != nil {
		if errors.Is(err, risk.ErrUnknownOrder) {
			e.log.Warn("report_unknown_order", logger.String("order_id", r.OrderID), logger.String("status", string(r.Status)))
			return
		}
		e.log.Error("report_apply_failed", logger.String("order_id", r.OrderID), logger.Err(err))
		return
	}
	e.log.Debug("report_applied",
		logger.String("order_id", r.OrderID),
		logger.String("status", string(r.Status)),
		logger.Int64("qty", r.Qty),
		logger.Float64("price", r.Price),
	)
}

// CancelStale asks the executor to cancel orders pending longer than the
// configured order timeout, measured against now. Orders the executor no
// longer knows are aborted directly. It returns the number of orders
// acted on.
func (e *Engine) CancelStale(ctx context.Context, now time.Time) int {
	timeout := e.cfg.Engine.OrderTimeout
	if timeout <= 0 {
		return 0
	}
	ids := e.gate.StaleOrders(now, timeout)
	for _, id := range ids {
		e.cancel(ctx, id)
	}
	return len(ids)
}

func (e *Engine) cancel(ctx context.Context, id string) {
	e.log.Info("order_timeout", logger.String("order_id", id))
	if err := e.exec.CancelOrder(ctx, id); err != nil {
		e.log.Warn("order_cancel_failed", logger.String("order_id", id), logger.Err(err))
		e.abort(id)
	}
}

func (e *Engine) abort(id string) {
	if err := e.gate.Abort(id); err != nil && !errors.Is(err, risk.ErrUnknownOrder) {
		e.log.Error("order_abort_failed", logger.String("order_id", id), logger.Err(err))
	}
}

func (e *Engine) advance(ts time.Time) {
	e.mu.Lock()
	if ts.After(e.watermark) {
		e.watermark = ts
	}
	e.mu.Unlock()
}

// Watermark is the newest tick time seen. Order staleness is measured on
// this clock so replays behave like live sessions.
func (e *Engine) Watermark() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermark
}

func shard(instrument string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(instrument))
	return int(h.Sum32() % uint32(n))
}

// Run consumes ticks until the channel closes or ctx is done. Ticks are
// sharded by instrument over the configured workers, so one instrument is
// always evaluated in order while different instruments run in parallel.
// When the feed ends Run submits what is still queued and waits for the
// pending orders to settle before returning.
func (e *Engine) Run(ctx context.Context, ticks <-chan types.Tick) error {
	n := e.cfg.Engine.Workers
	if n < 1 {
		n = 1
	}
	bgCtx, stop := context.WithCancel(ctx)
	defer stop()

	var bg conc.WaitGroup
	bg.Go(func() { e.dispatch(bgCtx) })
	bg.Go(func() { e.consumeReports(bgCtx) })
	if e.cfg.Engine.OrderTimeout > 0 {
		bg.Go(func() { e.sweep(bgCtx) })
	}

	shards := make([]chan types.Tick, n)
	var workers conc.WaitGroup
	for i := range shards {
		ch := make(chan types.Tick, 64)
		shards[i] = ch
		workers.Go(func() {
			for t := range ch {
				if _, err := e.Evaluate(t); errors.Is(err, ErrInvalidTick) {
					e.log.Warn("tick_invalid",
						logger.String("instrument", t.Instrument),
						logger.Float64("price", t.Price),
						logger.Time("ts", t.Time),
						logger.Err(err),
					)
				}
			}
		})
	}
	e.log.Info("engine_started", logger.Int("workers", n), logger.Int("strategies", len(e.strategies)))

	var err error
feed:
	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case t, ok := <-ticks:
			if !ok {
				break feed
			}
			select {
			case shards[shard(t.Instrument, n)] <- t:
			case <-ctx.Done():
				err = ctx.Err()
				break feed
			}
		}
	}
	for _, ch := range shards {
		close(ch)
	}
	workers.Wait()

	if err == nil {
		e.Flush(ctx)
		e.settle(ctx)
	}
	stop()
	bg.Wait()
	// Nothing will submit these any more.
	for {
		select {
		case o := <-e.orders:
			e.log.Warn("order_dropped", logger.String("order_id", o.ID))
			e.abort(o.ID)
		default:
			e.log.Info("engine_stopped", logger.Int("open_positions", len(e.gate.Positions())))
			return err
		}
	}
}

func (e *Engine) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-e.orders:
			e.submit(ctx, o)
		}
	}
}

func (e *Engine) consumeReports(ctx context.Context) {
	reports := e.exec.Reports()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reports:
			if !ok {
				return
			}
			e.HandleReport(r)
		}
	}
}

func (e *Engine) sweep(ctx context.Context) {
	interval := e.cfg.Engine.OrderTimeout / 2
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if wm := e.Watermark(); !wm.IsZero() {
				e.CancelStale(ctx, wm)
			}
		}
	}
}

// settle waits for every pending order to be confirmed or aborted. Orders
// still pending at the deadline are cancelled.
func (e *Engine) settle(ctx context.Context) {
	timeout := e.cfg.Engine.OrderTimeout
	if timeout <= 0 {
		timeout = defaultSettleTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(settlePoll)
	defer poll.Stop()
	for {
		if len(e.orders) == 0 && len(e.gate.PendingOrders()) == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			pending := e.gate.PendingOrders()
			e.log.Warn("orders_unsettled", logger.Int("count", len(pending)))
			for _, id := range pending {
				e.cancel(ctx, id)
			}
			return
		case <-poll.C:
		}
	}
}
