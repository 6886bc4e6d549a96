package risk

import (
	"errors"
	"fmt"
)

// State is the lifecycle stage of one instrument's position.
type State string

const (
	Flat     State = "FLAT"
	Entering State = "ENTERING"
	Open     State = "OPEN"
	Exiting  State = "EXITING"
)

// Event drives the ledger state machine.
type Event string

const (
	EvEnter Event = "enter" // gate accepted a BUY
	EvFill  Event = "fill"  // a fill confirmation arrived
	EvExit  Event = "exit"  // gate accepted a SELL
	EvClose Event = "close" // the last share was sold
	EvAbort Event = "abort" // order cancelled, rejected or timed out
)

var ErrInvalidTransition = errors.New("invalid state transition")

var transitions = map[State]map[Event]State{
	Flat:     {EvEnter: Entering},
	Entering: {EvFill: Open, EvAbort: Flat},
	Open:     {EvExit: Exiting},
	Exiting:  {EvFill: Exiting, EvClose: Flat, EvAbort: Open},
}

// next looks up the target of event in state from.
func next(from State, ev Event) (State, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: event %s in state %s", ErrInvalidTransition, ev, from)
	}
	return to, nil
}
