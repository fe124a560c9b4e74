package recorder

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/screenrec/pkg/audiosync"
	"github.com/xaionaro-go/screenrec/pkg/bufferpool"
	"github.com/xaionaro-go/screenrec/pkg/encoder"
	"github.com/xaionaro-go/xsync"
)

type Stats struct {
	State       State
	ClockSource audiosync.ClockSource

	FramesReceived  uint64
	FramesPacedOut  uint64
	FramesDropped   uint64
	FramesSubmitted uint64
	TimelineTicks   uint64

	AudioBlocksBeforeStart uint64
	AudioBlocksPassed      uint64
	AudioBlocksTrimmed     uint64
	AudioBlocksDiscarded   uint64
	AudioChunksSubmitted   uint64
	AudioFramesSubmitted   uint64

	VideoPool bufferpool.Stats
	AudioPool bufferpool.Stats
	Encoder   encoder.Stats
}

func (s Stats) String() string {
	return fmt.Sprintf(
		"video frames: %d received, %d paced out, %d dropped, %d submitted, %d ticks; audio: %d chunks (%d frames) submitted, clock %s",
		s.FramesReceived, s.FramesPacedOut, s.FramesDropped, s.FramesSubmitted, s.TimelineTicks,
		s.AudioChunksSubmitted, s.AudioFramesSubmitted, s.ClockSource,
	)
}

func (s *Session) Stats(ctx context.Context) Stats {
	return xsync.DoA1R1(xsync.WithNoLogging(ctx, true), &s.locker, s.statsLocked, ctx)
}

func (s *Session) statsLocked(ctx context.Context) Stats {
	if s.state == StateRecording {
		s.updateEncoderStatsLocked(ctx)
	}
	result := s.stats
	result.State = s.state
	if s.videoPool != nil {
		result.VideoPool = s.videoPool.Stats()
	}
	if s.audioPool != nil {
		result.AudioPool = s.audioPool.Stats()
	}
	return result
}
