package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/gotsengine/config"
	"github.com/evdnx/gotsengine/logger"
	"github.com/evdnx/gotsengine/risk"
	"github.com/robfig/cron/v3"
)

// Ledger is the part of the risk gate the scheduler drives.
type Ledger interface {
	ResetSession(now time.Time)
	Daily() risk.DailyLossCounter
	Positions() []risk.Position
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.clock = now } }

// Scheduler resets the daily loss counter at market open and logs a
// session summary at market close, on cron schedules in the market's
// time zone.
type Scheduler struct {
	ledger Ledger
	log    logger.Logger
	loc    *time.Location
	clock  func() time.Time

	open  cron.Schedule
	close cron.Schedule
	cron  *cron.Cron

	mu     sync.Mutex
	isOpen bool
}

func New(cfg config.SessionConfig, ledger Ledger, log logger.Logger, opts ...Option) (*Scheduler, error) {
	if log == nil {
		log = logger.Nop()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("session: timezone %q: %w", cfg.Timezone, err)
	}
	openSched, err := cron.ParseStandard(cfg.OpenSpec)
	if err != nil {
		return nil, fmt.Errorf("session: open spec %q: %w", cfg.OpenSpec, err)
	}
	closeSched, err := cron.ParseStandard(cfg.CloseSpec)
	if err != nil {
		return nil, fmt.Errorf("session: close spec %q: %w", cfg.CloseSpec, err)
	}
	s := &Scheduler{
		ledger: ledger,
		log:    log,
		loc:    loc,
		clock:  time.Now,
		open:   openSched,
		close:  closeSched,
		cron:   cron.New(cron.WithLocation(loc)),
	}
	for _, o := range opts {
		o(s)
	}
	s.cron.Schedule(openSched, cron.FuncJob(s.Open))
	s.cron.Schedule(closeSched, cron.FuncJob(s.Close))
	return s, nil
}

// Open starts a session: the ledger's loss counter is reset and re-based.
func (s *Scheduler) Open() {
	now := s.clock().In(s.loc)
	s.ledger.ResetSession(now)
	s.mu.Lock()
	s.isOpen = true
	s.mu.Unlock()
	s.log.Info("session_open", logger.Time("at", now))
}

// Close ends the session and logs its result. Positions stay open.
func (s *Scheduler) Close() {
	now := s.clock().In(s.loc)
	s.mu.Lock()
	s.isOpen = false
	s.mu.Unlock()
	d := s.ledger.Daily()
	s.log.Info("session_close",
		logger.Time("at", now),
		logger.Time("session_start", d.SessionStart),
		logger.Int64("realized_loss", d.RealizedLoss),
		logger.Int64("realized_profit", d.RealizedProfit),
		logger.Float64("loss_ratio_pct", d.LossRatio()),
		logger.Bool("halted", d.Halted),
		logger.Int("positions", len(s.ledger.Positions())),
	)
}

func (s *Scheduler) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

// NextOpen is the first market open strictly after t.
func (s *Scheduler) NextOpen(t time.Time) time.Time { return s.open.Next(t.In(s.loc)) }

// NextClose is the first market close strictly after t.
func (s *Scheduler) NextClose(t time.Time) time.Time { return s.close.Next(t.In(s.loc)) }

// Run fires the schedules until ctx is done, then waits for a running
// job to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	s.log.Info("session_scheduler_started",
		logger.Time("next_open", s.NextOpen(s.clock())),
		logger.Time("next_close", s.NextClose(s.clock())),
	)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
