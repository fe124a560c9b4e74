package bufferpool

import (
	"fmt"
	"sync/atomic"
)

type State uint32

const (
	StateFree = State(iota)
	StateHeld
	StateInFlight
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateHeld:
		return "held"
	case StateInFlight:
		return "in-flight"
	default:
		return fmt.Sprintf("unknown_state_%d", uint32(s))
	}
}

// Slot is a reusable buffer owned by a Pool.
//
// Value may be accessed only by the current owner: the producer between
// acquisition and Submit/Release, or the consumer between Submit and
// OnReclaimed.
type Slot[T any] struct {
	Index int
	Value T

	state atomic.Uint32
	pool  any
}

func (s *Slot[T]) State() State {
	return State(s.state.Load())
}

func (s *Slot[T]) transit(from, to State) error {
	if s.state.CompareAndSwap(uint32(from), uint32(to)) {
		return nil
	}
	return ErrUnexpectedState{
		Index:    s.Index,
		Expected: from,
		Actual:   s.State(),
	}
}
