package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/evdnx/gotsengine/config"
	"github.com/evdnx/gotsengine/engine"
	"github.com/evdnx/gotsengine/executor"
	"github.com/evdnx/gotsengine/fee"
	"github.com/evdnx/gotsengine/feed"
	"github.com/evdnx/gotsengine/indicator"
	"github.com/evdnx/gotsengine/logger"
	"github.com/evdnx/gotsengine/observe"
	"github.com/evdnx/gotsengine/risk"
	"github.com/evdnx/gotsengine/session"
	"github.com/evdnx/gotsengine/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	feedPath     string
	pollSymbols  []string
	pollInterval time.Duration
	withSession  bool
	metricsAddr  string
	strictReplay bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a price feed through the engine against the paper broker",
	Long: `Replay rows of instrument,price,timestamp (RFC 3339) through the
engine, or poll Yahoo Finance quotes for --poll symbols until
interrupted. Orders go to an in-process paper broker that fills at
the order price. A summary of positions and the session's realized
result is printed at the end.`,
	Example: `  gotsengine run --feed ticks.csv
  gotsengine run -c engine.yaml --feed - --metrics-addr :9102 < ticks.csv
  gotsengine run --poll AAPL,MSFT --poll-interval 10s --session`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&feedPath, "feed", "f", "", "CSV feed file, - for stdin")
	runCmd.Flags().StringSliceVar(&pollSymbols, "poll", nil, "poll Yahoo Finance quotes for these symbols instead of replaying a file")
	runCmd.Flags().DurationVar(&pollInterval, "poll-interval", 5*time.Second, "quote polling interval")
	runCmd.Flags().BoolVar(&withSession, "session", false, "run the market open/close scheduler alongside the replay")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /metrics on this address (overrides metrics.addr)")
	runCmd.Flags().BoolVar(&strictReplay, "strict", false, "stop at the first malformed feed row")
	runCmd.MarkFlagsOneRequired("feed", "poll")
	runCmd.MarkFlagsMutuallyExclusive("feed", "poll")
}

func runReplay(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}
	log, err := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		Encoding:   cfg.Log.Encoding,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if s, ok := log.(interface{ Sync() error }); ok {
		defer func() { _ = s.Sync() }()
	}

	var source feedFactory
	if len(pollSymbols) > 0 {
		source = func(tap func(types.Tick)) feed.Feed {
			return &feed.PollFeed{Source: feed.YahooSource{}, Instruments: pollSymbols, Interval: pollInterval, Log: log, Tap: tap}
		}
	} else {
		var src io.Reader = cmd.InOrStdin()
		if feedPath != "-" {
			f, err := os.Open(feedPath)
			if err != nil {
				return err
			}
			defer f.Close()
			src = f
		}
		source = csvSource(src, log, strictReplay)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := replay(ctx, cfg, source, log, replayOptions{session: withSession})
	if err != nil {
		return err
	}
	sum.print(cmd.OutOrStdout())
	return nil
}

type replayOptions struct {
	session bool
}

// feedFactory builds the feed once the paper broker exists; tap lets the
// broker see every price the engine sees.
type feedFactory func(tap func(types.Tick)) feed.Feed

func csvSource(r io.Reader, log logger.Logger, strict bool) feedFactory {
	return func(tap func(types.Tick)) feed.Feed {
		return &feed.CSVFeed{R: r, Log: log, Strict: strict, Tap: tap}
	}
}

type summary struct {
	positions  []risk.Position
	daily      risk.DailyLossCounter
	cash       int64
	balance    executor.Balance
	indicators []instrumentIndicators
}

type instrumentIndicators struct {
	instrument string
	at         time.Time
	snap       indicator.Snapshot
}

func (s summary) print(w io.Writer) {
	fmt.Fprintf(w, "cash (ledger):   %d\n", s.cash)
	fmt.Fprintf(w, "cash (broker):   %d\n", s.balance.Cash)
	fmt.Fprintf(w, "equity (broker): %d\n", s.balance.Equity)
	fmt.Fprintf(w, "realized loss:   %d\n", s.daily.RealizedLoss)
	fmt.Fprintf(w, "realized profit: %d\n", s.daily.RealizedProfit)
	fmt.Fprintf(w, "halted:          %t\n", s.daily.Halted)
	fmt.Fprintf(w, "positions:       %d\n", len(s.positions))
	for _, p := range s.positions {
		fmt.Fprintf(w, "  %-10s %-8s qty=%d avg=%.2f\n", p.Instrument, p.State, p.Quantity, p.AvgEntryPrice)
	}
	fmt.Fprintf(w, "indicators:      %d\n", len(s.indicators))
	for _, ind := range s.indicators {
		fmt.Fprintf(w, "  %-10s %s rsi=%s sma=%s/%s macd_hist=%s bb=%s..%s\n",
			ind.instrument, ind.at.Format(time.RFC3339), ind.snap.RSI,
			ind.snap.SMAShort, ind.snap.SMALong, ind.snap.MACDHist, ind.snap.BBLower, ind.snap.BBUpper)
	}
}

// replay wires the paper broker, risk gate and engine, runs the feed until
// it ends or ctx is done and returns the final state.
func replay(ctx context.Context, cfg config.EngineConfig, source feedFactory, log logger.Logger, opts replayOptions) (summary, error) {
	fees, err := fee.FromConfig(cfg.Fees)
	if err != nil {
		return summary{}, err
	}
	ids, err := engine.SnowflakeIDs(cfg.Engine.NodeID)
	if err != nil {
		return summary{}, err
	}
	sink := observe.NewLogSink(log)

	// Broker ids come from a separate node so they never read like client ids.
	broker, err := executor.NewPaperBroker(cfg.Risk.InitialCapital, fees, (cfg.Engine.NodeID+1)%1024, executor.WithPaperLogger(log))
	if err != nil {
		return summary{}, err
	}
	defer broker.Close()
	if err := broker.Login(ctx); err != nil {
		return summary{}, err
	}

	gate := risk.NewGate(cfg.Risk, fees, risk.WithSink(sink), risk.WithLogger(log), risk.WithOrderIDs(ids))
	bal, err := broker.Balance(ctx)
	if err != nil {
		return summary{}, err
	}
	gate.SetCapital(bal.Cash)

	bex := executor.NewBrokerExecutor(broker, log, 0)
	eng, err := engine.New(cfg, gate, bex, engine.WithSink(sink), engine.WithLogger(log))
	if err != nil {
		return summary{}, err
	}

	var sched *session.Scheduler
	if opts.session {
		sched, err = session.New(cfg.Session, gate, log)
		if err != nil {
			return summary{}, err
		}
		sched.Open()
	} else {
		gate.ResetSession(time.Now())
	}

	g, gctx := errgroup.WithContext(ctx)
	auxCtx, stopAux := context.WithCancel(gctx)
	defer stopAux()

	g.Go(func() error { return ignoreCanceled(bex.Run(auxCtx)) })
	if sched != nil {
		g.Go(func() error { return sched.Run(auxCtx) })
	}
	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("metrics_listening", logger.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-auxCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		defer stopAux()
		ticks, err := source(broker.Publish).Subscribe(auxCtx)
		if err != nil {
			return err
		}
		return ignoreCanceled(eng.Run(auxCtx, ticks))
	})
	if err := g.Wait(); err != nil {
		return summary{}, err
	}
	if sched != nil {
		sched.Close()
	}

	sum := summary{positions: gate.Positions(), daily: gate.Daily(), cash: gate.Cash()}
	for _, inst := range eng.Instruments() {
		if snap, at, ok := eng.Snapshot(inst); ok {
			sum.indicators = append(sum.indicators, instrumentIndicators{instrument: inst, at: at, snap: snap})
		}
	}
	sum.balance, _ = broker.Balance(context.Background())
	log.Info("replay_finished",
		logger.Int("positions", len(sum.positions)),
		logger.Int64("cash", sum.cash),
		logger.Int64("realized_loss", sum.daily.RealizedLoss),
		logger.Int64("realized_profit", sum.daily.RealizedProfit),
		logger.Bool("halted", sum.daily.Halted),
	)
	return sum, nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
