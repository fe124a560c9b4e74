// Package audiosync places captured audio on the session timeline.
package audiosync

import (
	"context"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

const (
	DefaultAnomalyThreshold = 500 * time.Millisecond
)

// Reconciler decides (once, on the first block) whether audio device
// timestamps can be trusted, and converts block timestamps into the
// session clock domain accordingly.
//
// If the device clock disagrees with the session clock by more than the
// anomaly threshold, timestamps are synthesized from the frame position:
// the frame at StartPosition is the one captured at StartCounter.
type Reconciler struct {
	Frequency        clock.Frequency
	SampleRate       types.SampleRate
	StartCounter     clock.Ticks
	StartPosition    uint64
	AnomalyThreshold time.Duration

	source ClockSource
}

func NewReconciler(
	frequency clock.Frequency,
	sampleRate types.SampleRate,
	startCounter clock.Ticks,
) *Reconciler {
	return &Reconciler{
		Frequency:        frequency,
		SampleRate:       sampleRate,
		StartCounter:     startCounter,
		AnomalyThreshold: DefaultAnomalyThreshold,
	}
}

func (r *Reconciler) Source() ClockSource {
	return r.source
}

// Timestamp returns the session-domain capture time of the block.
//
// expected is the current session counter reading; anchored is false if
// the session timeline is not established yet.
func (r *Reconciler) Timestamp(
	ctx context.Context,
	expected clock.Ticks,
	anchored bool,
	block types.Block,
) clock.Ticks {
	deviceTime := block.Time.Convert(clock.FrequencyHNS, r.Frequency)
	if r.source == ClockSourceUndecided {
		r.decide(ctx, expected, anchored, deviceTime, block)
	}

	switch r.source {
	case ClockSourceSynthesized:
		return r.StartCounter + clock.Ticks(clock.MulDiv(
			int64(block.Position)-int64(r.StartPosition),
			int64(r.Frequency),
			int64(r.SampleRate),
		))
	default:
		return deviceTime
	}
}

func (r *Reconciler) decide(
	ctx context.Context,
	expected clock.Ticks,
	anchored bool,
	deviceTime clock.Ticks,
	block types.Block,
) {
	if !anchored {
		logger.Debugf(ctx, "no timeline anchor yet, trusting the audio device clock")
		r.source = ClockSourceDevice
		return
	}

	delta := expected - deviceTime
	if delta < 0 {
		delta = -delta
	}
	threshold := clock.FromDuration(r.AnomalyThreshold, r.Frequency)
	if delta <= threshold && !block.TimestampError {
		logger.Debugf(ctx, "the audio device clock is off by %v, trusting it", delta.Duration(r.Frequency))
		r.source = ClockSourceDevice
		return
	}

	logger.Warnf(ctx,
		"the audio device clock is off by %v (timestamp error: %t), synthesizing timestamps from the sample position",
		delta.Duration(r.Frequency), block.TimestampError,
	)
	r.source = ClockSourceSynthesized
}
