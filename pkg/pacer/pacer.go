// Package pacer decimates a variable-rate frame stream down to a fixed
// frame rate.
package pacer

import (
	"fmt"

	"github.com/xaionaro-go/screenrec/pkg/clock"
)

// Pacer decides which of the incoming frames to keep to produce a stream
// with a fixed frame rate.
//
// The decision is made in pre-multiplied fixed-point arithmetic:
// timestamps are multiplied by the frame rate, and the deadline is
// advanced by the counter frequency per accepted frame, so no rounding
// errors accumulate.
//
// Pacer is not thread-safe.
type Pacer struct {
	frameRate    uint32
	frequency    clock.Frequency
	maxLateness  int64
	nextDeadline int64
	deadlineSet  bool
}

// Option is an optional setting of a Pacer.
type Option interface {
	apply(*Pacer)
}

// OptionMaxLateness defines how late (relative to the deadline) an
// accepted frame may be before the deadline is re-anchored to its
// timestamp. It bounds the catch-up burst after a stall, and makes
// accepted frames be spaced by at least Period()-MaxLateness.
//
// The default value is one frame period.
type OptionMaxLateness clock.Ticks

func (opt OptionMaxLateness) apply(p *Pacer) {
	p.maxLateness = int64(opt) * int64(p.frameRate)
}

func New(
	frameRate uint32,
	frequency clock.Frequency,
	opts ...Option,
) (*Pacer, error) {
	if frameRate == 0 {
		return nil, fmt.Errorf("frame rate must be positive")
	}
	if frequency <= 0 {
		return nil, fmt.Errorf("counter frequency must be positive, but is %d", frequency)
	}
	p := &Pacer{
		frameRate:   frameRate,
		frequency:   frequency,
		maxLateness: int64(frequency),
	}
	for _, opt := range opts {
		opt.apply(p)
	}
	return p, nil
}

func (p *Pacer) FrameRate() uint32 {
	return p.frameRate
}

// Period returns the duration of one output frame in counter ticks
// (rounded down).
func (p *Pacer) Period() clock.Ticks {
	return clock.Ticks(int64(p.frequency) / int64(p.frameRate))
}

// Accept returns true if the frame captured at the given counter reading
// should be kept.
func (p *Pacer) Accept(t clock.Ticks) bool {
	scaled := int64(t) * int64(p.frameRate)
	if p.deadlineSet && scaled < p.nextDeadline {
		return false
	}

	if !p.deadlineSet || scaled-p.nextDeadline > p.maxLateness {
		p.nextDeadline = scaled
		p.deadlineSet = true
	}
	p.nextDeadline += int64(p.frequency)
	return true
}

// Reset forgets the deadline; the next frame will be accepted.
func (p *Pacer) Reset() {
	p.deadlineSet = false
	p.nextDeadline = 0
}
