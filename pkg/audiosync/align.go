package audiosync

import (
	"fmt"

	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

type Outcome uint

const (
	OutcomeUndefined = Outcome(iota)
	OutcomePassThrough
	OutcomeTrimmed
	OutcomeDiscarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUndefined:
		return "<undefined>"
	case OutcomePassThrough:
		return "pass-through"
	case OutcomeTrimmed:
		return "trimmed"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("unknown_outcome_%d", uint(o))
	}
}

// Align cuts off the part of the block that precedes the session start.
//
// The block's Time must already be in the session clock domain. The
// returned block shares Data with the input one.
func Align(
	block types.Block,
	start clock.Ticks,
	sampleRate types.SampleRate,
	bytesPerFrame uint32,
	frequency clock.Frequency,
) (types.Block, Outcome) {
	if block.Time >= start {
		return block, OutcomePassThrough
	}

	timeToSkip := int64(start - block.Time)
	framesToSkip := clock.MulDivRoundUp(timeToSkip, int64(sampleRate), int64(frequency))
	if framesToSkip >= int64(block.Frames) {
		return types.Block{}, OutcomeDiscarded
	}

	block.Frames -= uint32(framesToSkip)
	block.Position += uint64(framesToSkip)
	block.Time += clock.Ticks(clock.MulDiv(framesToSkip, int64(frequency), int64(sampleRate)))
	if block.Data != nil {
		block.Data = block.Data[uint64(framesToSkip)*uint64(bytesPerFrame):]
	}
	return block, OutcomeTrimmed
}
