package bufferpool

import (
	"errors"
	"fmt"
)

var (
	ErrClosed      = errors.New("the pool is closed")
	ErrNotHeld     = errors.New("the slot is not held")
	ErrNotInFlight = errors.New("the slot is not in flight")
)

type ErrInvalidSize struct {
	Size int
}

func (e ErrInvalidSize) Error() string {
	return fmt.Sprintf("invalid pool size %d: must be positive", e.Size)
}

type ErrUnexpectedState struct {
	Index    int
	Expected State
	Actual   State
}

func (e ErrUnexpectedState) Error() string {
	return fmt.Sprintf("slot #%d is in state '%s', but expected '%s'", e.Index, e.Actual, e.Expected)
}

func (e ErrUnexpectedState) Unwrap() error {
	switch e.Expected {
	case StateHeld:
		return ErrNotHeld
	case StateInFlight:
		return ErrNotInFlight
	}
	return nil
}

type ErrForeignSlot struct {
	Index int
}

func (e ErrForeignSlot) Error() string {
	return fmt.Sprintf("slot #%d does not belong to this pool", e.Index)
}
