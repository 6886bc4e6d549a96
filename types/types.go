package types

import (
	"fmt"
	"time"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Action is the discrete vote a strategy casts, and the outcome of fusion.
type Action int

const (
	Hold Action = iota
	BuyAction
	SellAction
)

func (a Action) String() string {
	switch a {
	case BuyAction:
		return "BUY"
	case SellAction:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Side maps a directional action to an order side. HOLD has no side.
func (a Action) Side() (Side, bool) {
	switch a {
	case BuyAction:
		return Buy, true
	case SellAction:
		return Sell, true
	}
	return "", false
}

// Tick is one price observation from the feed.
type Tick struct {
	Instrument string
	Price      float64
	Time       time.Time
}

// Signal is produced by exactly one strategy for one evaluation.
type Signal struct {
	Strategy string
	Action   Action
	Strength float64 // [0,1]
}

// HoldSignal is what every strategy returns when it cannot evaluate.
func HoldSignal(strategy string) Signal {
	return Signal{Strategy: strategy, Action: Hold}
}

func (s Signal) String() string {
	return fmt.Sprintf("%s:%s(%.2f)", s.Strategy, s.Action, s.Strength)
}

// FusedDecision combines all strategy votes for one instrument.
type FusedDecision struct {
	Action   Action
	Agree    int     // voters backing Action (0 on HOLD)
	Strength float64 // mean strength of the agreeing voters
	Buy      int
	Sell     int
	Hold     int
}

type Order struct {
	ID         string
	Instrument string
	Side       Side
	Qty        int64
	Price      float64 // limit price; 0 = market
	// meta
	Comment string
}

// OrderStatus is the terminal or partial state reported by the executor.
type OrderStatus string

const (
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusExpired   OrderStatus = "EXPIRED"
)

// ExecutionReport is the asynchronous answer to a submitted order.
// Only StatusFilled carries Price/Qty; every other status means the order
// was not confirmed.
type ExecutionReport struct {
	OrderID string
	Status  OrderStatus
	Price   float64
	Qty     int64
	Time    time.Time
}

func (r ExecutionReport) Filled() bool { return r.Status == StatusFilled && r.Qty > 0 }
