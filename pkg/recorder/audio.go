package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrec/pkg/audio/resampler"
	"github.com/xaionaro-go/screenrec/pkg/audiosync"
	"github.com/xaionaro-go/screenrec/pkg/clock"
	"github.com/xaionaro-go/screenrec/pkg/encoder"
	"github.com/xaionaro-go/xsync"
)

// audioTarget is what the audio path needs from the session state; it is
// taken under the session lock and then used without it.
type audioTarget struct {
	started   bool
	startTime clock.Ticks
	encoder   encoder.Encoder
	stopping  context.Context
}

func (s *Session) audioTargetLocked() audioTarget {
	return audioTarget{
		started:   s.startSet,
		startTime: s.startTime,
		encoder:   s.encoder,
		stopping:  s.stopping,
	}
}

// NewSamples places a captured audio block on the recording timeline and
// hands it to the encoder. It may wait for a free audio slot; video
// delivery and Stats are not blocked meanwhile.
//
// Audio captured before the first video frame is discarded, since the
// timeline is anchored by video.
func (s *Session) NewSamples(ctx context.Context, block AudioBlock) error {
	return xsync.DoA2R1(xsync.WithNoLogging(ctx, true), &s.audioLocker, s.newSamplesAudioLocked, ctx, block)
}

func (s *Session) newSamplesAudioLocked(
	ctx context.Context,
	block AudioBlock,
) error {
	target, err := xsync.DoR2(xsync.WithNoLogging(ctx, true), &s.locker, func() (audioTarget, error) {
		if s.state != StateRecording {
			return audioTarget{}, ErrNotRecording
		}
		if s.resampler == nil {
			return audioTarget{}, ErrAudioNotEnabled
		}
		if !s.startSet {
			s.stats.AudioBlocksBeforeStart++
		}
		return s.audioTargetLocked(), nil
	})
	if err != nil || !target.started {
		return err
	}

	block.Time = s.reconciler.Timestamp(ctx, target.startTime, true, block)

	input := s.resampler.InputFormat()
	aligned, outcome := audiosync.Align(
		block,
		target.startTime,
		input.SampleRate,
		input.BytesPerFrame(),
		s.Config.Frequency,
	)
	s.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		s.stats.ClockSource = s.reconciler.Source()
		switch outcome {
		case audiosync.OutcomePassThrough:
			s.stats.AudioBlocksPassed++
		case audiosync.OutcomeTrimmed:
			s.stats.AudioBlocksTrimmed++
		case audiosync.OutcomeDiscarded:
			s.stats.AudioBlocksDiscarded++
		}
	})
	switch outcome {
	case audiosync.OutcomeTrimmed:
		logger.Debugf(ctx, "trimmed %d audio frames preceding the recording start", block.Frames-aligned.Frames)
	case audiosync.OutcomeDiscarded:
		logger.Debugf(ctx, "discarded %d audio frames preceding the recording start", block.Frames)
		return nil
	}

	if err := s.resampler.Push(aligned); err != nil {
		return fmt.Errorf("unable to push the audio into the resampler: %w", err)
	}

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(target.stopping, cancel)()
	err = s.submitAudio(ctx, waitCtx, target)
	if err != nil && target.stopping.Err() != nil {
		logger.Debugf(ctx, "stopped while waiting for a free audio slot")
		return ErrNotRecording
	}
	return err
}

// flushAudio submits the audio remaining in the resampler. It is called
// by Stop with the audio lock held.
func (s *Session) flushAudio(ctx context.Context) error {
	target := xsync.DoR1(xsync.WithNoLogging(ctx, true), &s.locker, s.audioTargetLocked)
	if !target.started {
		return nil
	}

	s.resampler.Drain()
	waitCtx, cancel := context.WithTimeout(ctx, s.Config.DrainTimeout)
	defer cancel()
	err := s.submitAudio(ctx, waitCtx, target)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warnf(ctx, "no free audio slots for %v, dropping the rest of the audio", s.Config.DrainTimeout)
	}
	return err
}

// submitAudio moves everything the resampler can produce into audio slots
// and submits them. waitCtx limits waiting for a free slot; nothing is
// waited for if there is no complete chunk.
func (s *Session) submitAudio(
	ctx context.Context,
	waitCtx context.Context,
	target audioTarget,
) error {
	output := s.resampler.OutputFormat()
	frameSize := output.BytesPerFrame()
	for s.resampler.Ready() {
		slot, err := s.audioPool.AcquireBlocking(waitCtx)
		if err != nil {
			return fmt.Errorf("unable to get a free audio slot: %w", err)
		}

		frames, ts, err := s.resampler.Pull(slot.Value)
		if err != nil {
			if releaseErr := s.audioPool.Release(slot); releaseErr != nil {
				logger.Errorf(ctx, "unable to release audio slot #%d: %v", slot.Index, releaseErr)
			}
			if errors.Is(err, resampler.ErrNeedMoreInput) {
				return nil
			}
			return fmt.Errorf("unable to get the resampled audio: %w", err)
		}

		sample := encoder.AudioSample{
			SlotIndex: slot.Index,
			Data:      slot.Value[:frames*frameSize],
			Frames:    frames,
			Timestamp: s.elapsedSince(target.startTime, ts),
			Duration:  clock.Ticks(frames).Duration(clock.Frequency(output.SampleRate)),
		}
		if err := s.audioPool.Submit(slot); err != nil {
			return fmt.Errorf("unable to submit audio slot #%d: %w", slot.Index, err)
		}
		if err := target.encoder.SubmitAudio(ctx, sample); err != nil {
			if reclaimErr := s.audioPool.OnReclaimed(slot); reclaimErr != nil {
				logger.Errorf(ctx, "unable to reclaim audio slot #%d: %v", slot.Index, reclaimErr)
			}
			return fmt.Errorf("unable to submit the audio at %v: %w", sample.Timestamp, err)
		}
		s.locker.Do(xsync.WithNoLogging(ctx, true), func() {
			s.stats.AudioChunksSubmitted++
			s.stats.AudioFramesSubmitted += uint64(frames)
		})
	}
	return nil
}
