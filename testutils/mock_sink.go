package testutils

import (
	"sync"
	"time"

	"github.com/evdnx/gotsengine/indicator"
	"github.com/evdnx/gotsengine/observe"
	"github.com/evdnx/gotsengine/types"
)

// MockSink records every observability event.
type MockSink struct {
	mu          sync.Mutex
	snapshots   []indicator.Snapshot
	signals     []types.Signal
	decisions   []types.FusedDecision
	rejections  []observe.Rejection
	transitions []observe.Transition
	risk        []observe.Risk
}

func NewMockSink() *MockSink { return &MockSink{} }

func (s *MockSink) Indicators(_ string, _ time.Time, snap indicator.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
}

func (s *MockSink) Signal(_ string, sig types.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
}

func (s *MockSink) Decision(_ string, d types.FusedDecision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions = append(s.decisions, d)
}

func (s *MockSink) Rejection(r observe.Rejection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections = append(s.rejections, r)
}

func (s *MockSink) Transition(t observe.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
}

func (s *MockSink) Risk(r observe.Risk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.risk = append(s.risk, r)
}

func (s *MockSink) Snapshots() []indicator.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]indicator.Snapshot(nil), s.snapshots...)
}

func (s *MockSink) Signals() []types.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Signal(nil), s.signals...)
}

func (s *MockSink) Decisions() []types.FusedDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.FusedDecision(nil), s.decisions...)
}

func (s *MockSink) Rejections() []observe.Rejection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]observe.Rejection(nil), s.rejections...)
}

func (s *MockSink) Transitions() []observe.Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]observe.Transition(nil), s.transitions...)
}

// LastRisk is the most recent risk snapshot, zero if none.
func (s *MockSink) LastRisk() observe.Risk {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.risk) == 0 {
		return observe.Risk{}
	}
	return s.risk[len(s.risk)-1]
}
