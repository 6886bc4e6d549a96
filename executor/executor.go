package executor

import (
	"context"
	"errors"

	"github.com/evdnx/gotsengine/types"
)

var (
	ErrUnknownOrder      = errors.New("executor: unknown order id")
	ErrUnknownInstrument = errors.New("executor: unknown instrument")
	ErrNotLoggedIn       = errors.New("executor: broker session not established")
	ErrClosed            = errors.New("executor: closed")
)

// Executor is what the engine hands accepted orders to. Results arrive
// asynchronously on Reports, keyed by the client order id.
type Executor interface {
	SubmitOrder(ctx context.Context, o types.Order) error
	CancelOrder(ctx context.Context, orderID string) error
	Reports() <-chan types.ExecutionReport
}
