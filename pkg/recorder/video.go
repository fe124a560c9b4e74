package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrec/pkg/clock"
	"github.com/xaionaro-go/screenrec/pkg/encoder"
	"github.com/xaionaro-go/xsync"
)

// NewFrame offers a captured frame to the session. It never waits for the
// encoder.
func (s *Session) NewFrame(ctx context.Context, frame VideoFrame) error {
	return xsync.DoA2R1(xsync.WithNoLogging(ctx, true), &s.locker, s.newFrameLocked, ctx, frame)
}

func (s *Session) newFrameLocked(
	ctx context.Context,
	frame VideoFrame,
) error {
	if s.state != StateRecording {
		return ErrNotRecording
	}
	s.stats.FramesReceived++

	if !s.pacer.Accept(frame.Time) {
		s.stats.FramesPacedOut++
		return nil
	}
	s.lastVideoTime = frame.Time
	s.videoSeen = true
	if !s.startSet {
		s.startTime = frame.Time
		s.startSet = true
		logger.Debugf(ctx, "the recording timeline starts at %d", frame.Time)
	}
	elapsed := s.elapsed(frame.Time)

	slot, ok := s.videoPool.TryAcquire()
	if !ok {
		s.stats.FramesDropped++
		s.discontinuity = true
		logger.Tracef(ctx, "no free video slots, dropping the frame at %v", elapsed)
		if err := s.encoder.SendTimelineTick(ctx, elapsed); err != nil {
			return fmt.Errorf("unable to send a timeline tick at %v: %w", elapsed, err)
		}
		return nil
	}

	if err := copyFrame(slot.Value, frame, &s.scratch); err != nil {
		if releaseErr := s.videoPool.Release(slot); releaseErr != nil {
			logger.Errorf(ctx, "unable to release video slot #%d: %v", slot.Index, releaseErr)
		}
		return fmt.Errorf("unable to copy the frame: %w", err)
	}

	sample := encoder.VideoSample{
		SlotIndex:     slot.Index,
		Image:         slot.Value,
		Timestamp:     elapsed,
		Duration:      time.Second / time.Duration(s.Config.FrameRate),
		Discontinuity: s.discontinuity,
	}
	if err := s.videoPool.Submit(slot); err != nil {
		return fmt.Errorf("unable to submit video slot #%d: %w", slot.Index, err)
	}
	if err := s.encoder.SubmitVideo(ctx, sample); err != nil {
		if reclaimErr := s.videoPool.OnReclaimed(slot); reclaimErr != nil {
			logger.Errorf(ctx, "unable to reclaim video slot #%d: %v", slot.Index, reclaimErr)
		}
		return fmt.Errorf("unable to submit the frame at %v: %w", elapsed, err)
	}
	s.discontinuity = false
	s.stats.FramesSubmitted++
	return nil
}

// Tick keeps the container timeline moving while no frames arrive (for
// example, while the screen content does not change).
func (s *Session) Tick(ctx context.Context, now clock.Ticks) error {
	return xsync.DoA2R1(xsync.WithNoLogging(ctx, true), &s.locker, s.tickLocked, ctx, now)
}

func (s *Session) tickLocked(
	ctx context.Context,
	now clock.Ticks,
) error {
	if s.state != StateRecording {
		return ErrNotRecording
	}
	if !s.videoSeen {
		return nil
	}
	if now-s.lastVideoTime < clock.FromDuration(s.Config.StallTimeout, s.Config.Frequency) {
		return nil
	}

	s.lastVideoTime = now
	s.discontinuity = true
	s.stats.TimelineTicks++
	elapsed := s.elapsed(now)
	logger.Tracef(ctx, "no video for %v, sending a timeline tick at %v", s.Config.StallTimeout, elapsed)
	if err := s.encoder.SendTimelineTick(ctx, elapsed); err != nil {
		return fmt.Errorf("unable to send a timeline tick at %v: %w", elapsed, err)
	}
	return nil
}
