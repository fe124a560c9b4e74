package types

import (
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

// Block is a chunk of captured audio.
type Block struct {
	// Data is borrowed from the source; it is nil if Silent.
	Data []byte

	Frames uint32

	// Time is the capture instant of the first frame, in 100ns units of
	// the device clock.
	Time clock.Ticks

	// Position is the index of the first frame since the stream start.
	Position uint64

	// TimestampError signals that the device could not produce a
	// trustworthy Time (or that data was lost right before this block).
	TimestampError bool

	// Silent means the block contains silence and Data is not provided.
	Silent bool
}
