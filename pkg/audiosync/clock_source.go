package audiosync

import (
	"fmt"
)

type ClockSource uint

const (
	ClockSourceUndecided = ClockSource(iota)
	ClockSourceDevice
	ClockSourceSynthesized
)

func (s ClockSource) String() string {
	switch s {
	case ClockSourceUndecided:
		return "undecided"
	case ClockSourceDevice:
		return "device"
	case ClockSourceSynthesized:
		return "synthesized"
	default:
		return fmt.Sprintf("unknown_clock_source_%d", uint(s))
	}
}
