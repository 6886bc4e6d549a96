package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evdnx/gotsengine/types"
)

// MockExecutor implements executor.Executor in-memory. Orders are
// recorded and left working; tests settle them with Fill, Reject or by
// cancelling. With AutoFill set every order fills in full on submit.
type MockExecutor struct {
	AutoFill  bool
	SubmitErr error // returned by every SubmitOrder when set
	CancelErr error

	mu        sync.RWMutex
	orders    []types.Order // captured for assertions
	working   map[string]types.Order
	cancelled []string
	reports   chan types.ExecutionReport
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{
		working: make(map[string]types.Order),
		reports: make(chan types.ExecutionReport, 1024),
	}
}

func (m *MockExecutor) SubmitOrder(_ context.Context, o types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return m.SubmitErr
	}
	m.orders = append(m.orders, o)
	if m.AutoFill {
		m.reports <- types.ExecutionReport{OrderID: o.ID, Status: types.StatusFilled, Price: o.Price, Qty: o.Qty, Time: time.Now()}
		return nil
	}
	m.working[o.ID] = o
	return nil
}

func (m *MockExecutor) CancelOrder(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CancelErr != nil {
		return m.CancelErr
	}
	if _, ok := m.working[orderID]; !ok {
		return fmt.Errorf("mock executor: unknown order %s", orderID)
	}
	delete(m.working, orderID)
	m.cancelled = append(m.cancelled, orderID)
	m.reports <- types.ExecutionReport{OrderID: orderID, Status: types.StatusCancelled, Time: time.Now()}
	return nil
}

func (m *MockExecutor) Reports() <-chan types.ExecutionReport { return m.reports }

// Fill reports qty of a working order filled at price. The order stays
// working until its full size has been filled.
func (m *MockExecutor) Fill(orderID string, price float64, qty int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.working[orderID]; ok {
		if o.Qty -= qty; o.Qty <= 0 {
			delete(m.working, orderID)
		} else {
			m.working[orderID] = o
		}
	}
	m.reports <- types.ExecutionReport{OrderID: orderID, Status: types.StatusFilled, Price: price, Qty: qty, Time: time.Now()}
}

func (m *MockExecutor) Reject(orderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.working, orderID)
	m.reports <- types.ExecutionReport{OrderID: orderID, Status: types.StatusRejected, Time: time.Now()}
}

// Orders returns a copy of all submitted orders (useful for assertions).
func (m *MockExecutor) Orders() []types.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Order, len(m.orders))
	copy(out, m.orders)
	return out
}

func (m *MockExecutor) Cancelled() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.cancelled...)
}
