package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/evdnx/gotsengine/config"
	"github.com/evdnx/gotsengine/risk"
	"github.com/evdnx/gotsengine/testutils"
)

type fakeLedger struct {
	mu     sync.Mutex
	resets []time.Time
	daily  risk.DailyLossCounter
}

func (f *fakeLedger) ResetSession(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, now)
	f.daily = risk.DailyLossCounter{SessionStart: now, BaseCapital: 1_000}
}

func (f *fakeLedger) Daily() risk.DailyLossCounter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.daily
}

func (f *fakeLedger) Positions() []risk.Position { return nil }

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func TestOpenResetsLedger(t *testing.T) {
	loc := seoul(t)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	ledger := &fakeLedger{}
	log := testutils.NewMockLogger()
	s, err := New(config.Default().Session, ledger, log, WithClock(func() time.Time { return at }))
	if err != nil {
		t.Fatal(err)
	}
	s.Open()
	if len(ledger.resets) != 1 || !ledger.resets[0].Equal(at) {
		t.Fatalf("resets = %v", ledger.resets)
	}
	if !s.IsOpen() {
		t.Fatal("session should be open")
	}
	s.Close()
	if s.IsOpen() {
		t.Fatal("session should be closed")
	}
	if log.Count("session_open") != 1 || log.Count("session_close") != 1 {
		t.Fatal("open and close should each be logged once")
	}
	if len(ledger.resets) != 1 {
		t.Fatal("closing must not reset the counter")
	}
}

func TestNextOpenSkipsWeekend(t *testing.T) {
	loc := seoul(t)
	s, err := New(config.Default().Session, &fakeLedger{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	sat := time.Date(2026, 3, 7, 12, 0, 0, 0, loc)
	want := time.Date(2026, 3, 9, 9, 0, 0, 0, loc)
	if got := s.NextOpen(sat); !got.Equal(want) {
		t.Fatalf("next open = %v, want %v", got, want)
	}
	// 09:00 KST is midnight UTC.
	utc := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if got := s.NextOpen(sat.UTC()); !got.Equal(utc) {
		t.Fatalf("next open = %v, want %v", got, utc)
	}
	monNoon := time.Date(2026, 3, 9, 12, 0, 0, 0, loc)
	if got := s.NextClose(monNoon); !got.Equal(time.Date(2026, 3, 9, 15, 30, 0, 0, loc)) {
		t.Fatalf("next close = %v", got)
	}
}

func TestNewRejectsBadSpecs(t *testing.T) {
	cases := []config.SessionConfig{
		{OpenSpec: "bogus", CloseSpec: "30 15 * * 1-5", Timezone: "UTC"},
		{OpenSpec: "0 9 * * 1-5", CloseSpec: "61 15 * * *", Timezone: "UTC"},
		{OpenSpec: "0 9 * * 1-5", CloseSpec: "30 15 * * 1-5", Timezone: "Mars/Olympus"},
	}
	for _, c := range cases {
		if _, err := New(c, &fakeLedger{}, nil); err == nil {
			t.Fatalf("%+v: expected an error", c)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(config.Default().Session, &fakeLedger{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
