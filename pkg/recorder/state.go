package recorder

import (
	"fmt"
)

type State uint

const (
	StateUnstarted = State(iota)
	StateArmed
	StateRecording
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateArmed:
		return "armed"
	case StateRecording:
		return "recording"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown_state_%d", uint(s))
	}
}
