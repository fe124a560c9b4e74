package flv

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/screenrec/pkg/encoder"
	"github.com/xaionaro-go/xsync"
	goflv "github.com/yutopp/go-flv"
	flvtag "github.com/yutopp/go-flv/tag"
)

var (
	ErrClosed = errors.New("the encoder is closed")
)

const (
	commandSeekStart = 0x00
	commandSeekEnd   = 0x01
)

// Encoder encodes video frames as JPEG and audio as uncompressed PCM
// into an FLV file.
//
// Each of the streams is processed by its own goroutine; both share the
// same FLV writer.
type Encoder struct {
	Locker    xsync.Mutex
	Config    encoder.Config
	Callbacks encoder.Callbacks

	file        *os.File
	fileCounter *datacounter.WriterCounter
	output      *bufio.Writer
	flvEncoder  *goflv.Encoder
	writeLocker xsync.Mutex
	soundParams *soundParams

	videoQueue chan videoItem
	audioQueue chan encoder.AudioSample
	workersWG  sync.WaitGroup
	isClosed   bool
	isDrained  bool
	aborted    atomic.Bool

	errLocker sync.Mutex
	writeErr  error

	stats struct {
		videoFrames     atomic.Uint64
		audioFrames     atomic.Uint64
		timelineTicks   atomic.Uint64
		discontinuities atomic.Uint64
	}
}

var _ encoder.Encoder = (*Encoder)(nil)

type videoItem struct {
	Sample *encoder.VideoSample
	Tick   time.Duration
}

func (e *Encoder) SubmitVideo(
	ctx context.Context,
	sample encoder.VideoSample,
) error {
	if sample.Image == nil {
		return fmt.Errorf("no image in the video sample")
	}
	return xsync.DoR1(ctx, &e.Locker, func() error {
		if e.isClosed {
			return ErrClosed
		}
		e.videoQueue <- videoItem{Sample: &sample}
		return nil
	})
}

func (e *Encoder) SubmitAudio(
	ctx context.Context,
	sample encoder.AudioSample,
) error {
	if e.soundParams == nil {
		return fmt.Errorf("the encoder was configured without audio")
	}
	return xsync.DoR1(ctx, &e.Locker, func() error {
		if e.isClosed {
			return ErrClosed
		}
		e.audioQueue <- sample
		return nil
	})
}

func (e *Encoder) SendTimelineTick(
	ctx context.Context,
	ts time.Duration,
) error {
	return xsync.DoR1(ctx, &e.Locker, func() error {
		if e.isClosed {
			return ErrClosed
		}
		select {
		case e.videoQueue <- videoItem{Tick: ts}:
		default:
			logger.Debugf(ctx, "the video queue is full, skipping the timeline tick at %v", ts)
		}
		return nil
	})
}

func (e *Encoder) videoLoop(ctx context.Context) {
	var buf bytes.Buffer
	for item := range e.videoQueue {
		if item.Sample == nil {
			e.stats.timelineTicks.Add(1)
			e.writeCommandFrame(ctx, item.Tick, commandSeekEnd)
			continue
		}

		sample := item.Sample
		if !e.aborted.Load() {
			e.writeVideo(ctx, &buf, sample)
		}
		if e.Callbacks.OnVideoDone != nil {
			e.Callbacks.OnVideoDone(sample.SlotIndex)
		}
	}
}

func (e *Encoder) writeVideo(
	ctx context.Context,
	buf *bytes.Buffer,
	sample *encoder.VideoSample,
) {
	if sample.Discontinuity {
		e.stats.discontinuities.Add(1)
		e.writeCommandFrame(ctx, sample.Timestamp, commandSeekStart)
	}

	buf.Reset()
	if err := jpeg.Encode(buf, sample.Image, &jpeg.Options{Quality: e.Config.Video.Quality}); err != nil {
		e.setError(ctx, fmt.Errorf("unable to encode a frame at %v to JPEG: %w", sample.Timestamp, err))
		return
	}

	e.writeTag(ctx, &flvtag.FlvTag{
		TagType:   flvtag.TagTypeVideo,
		Timestamp: timestampMS(sample.Timestamp),
		Data: &flvtag.VideoData{
			FrameType: flvtag.FrameTypeKeyFrame,
			CodecID:   flvtag.CodecIDJPEG,
			Data:      bytes.NewReader(buf.Bytes()),
		},
	})
	e.stats.videoFrames.Add(1)
}

func (e *Encoder) writeCommandFrame(
	ctx context.Context,
	ts time.Duration,
	command byte,
) {
	if e.aborted.Load() {
		return
	}
	e.writeTag(ctx, &flvtag.FlvTag{
		TagType:   flvtag.TagTypeVideo,
		Timestamp: timestampMS(ts),
		Data: &flvtag.VideoData{
			FrameType: flvtag.FrameTypeVideoInfoCommandFrame,
			CodecID:   flvtag.CodecIDJPEG,
			Data:      bytes.NewReader([]byte{command}),
		},
	})
}

func (e *Encoder) audioLoop(ctx context.Context) {
	for sample := range e.audioQueue {
		if !e.aborted.Load() {
			e.writeTag(ctx, &flvtag.FlvTag{
				TagType:   flvtag.TagTypeAudio,
				Timestamp: timestampMS(sample.Timestamp),
				Data: &flvtag.AudioData{
					SoundFormat: e.soundParams.Format,
					SoundRate:   e.soundParams.Rate,
					SoundSize:   e.soundParams.Size,
					SoundType:   e.soundParams.Type,
					Data:        bytes.NewReader(sample.Data),
				},
			})
			e.stats.audioFrames.Add(uint64(sample.Frames))
		}
		if e.Callbacks.OnAudioDone != nil {
			e.Callbacks.OnAudioDone(sample.SlotIndex)
		}
	}
}

func (e *Encoder) writeTag(ctx context.Context, tag *flvtag.FlvTag) {
	e.writeLocker.Do(xsync.WithNoLogging(ctx, true), func() {
		if e.getError() != nil {
			return
		}
		if err := e.flvEncoder.Encode(tag); err != nil {
			e.setError(ctx, fmt.Errorf("unable to write a tag (type: %v, ts: %dms): %w", tag.TagType, tag.Timestamp, err))
		}
	})
}

func (e *Encoder) setError(ctx context.Context, err error) {
	logger.Errorf(ctx, "%v", err)
	e.errLocker.Lock()
	defer e.errLocker.Unlock()
	if e.writeErr == nil {
		e.writeErr = err
	}
}

func (e *Encoder) getError() error {
	e.errLocker.Lock()
	defer e.errLocker.Unlock()
	return e.writeErr
}

func timestampMS(ts time.Duration) uint32 {
	if ts < 0 {
		return 0
	}
	return uint32(ts.Milliseconds())
}

// stopWorkers makes the workers finish the queued items and waits for them.
func (e *Encoder) stopWorkers(ctx context.Context) error {
	alreadyClosed := xsync.DoR1(ctx, &e.Locker, func() bool {
		if e.isClosed {
			return true
		}
		e.isClosed = true
		close(e.videoQueue)
		close(e.audioQueue)
		return false
	})
	if alreadyClosed {
		return nil
	}

	done := make(chan struct{})
	go func() {
		e.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.aborted.Store(true)
		<-done
		return ctx.Err()
	}
}

func (e *Encoder) Drain(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Drain")
	defer func() { logger.Debugf(ctx, "/Drain: %v", _err) }()

	var result *multierror.Error
	result = multierror.Append(result, e.stopWorkers(ctx))
	result = multierror.Append(result, e.getError())
	e.writeLocker.Do(ctx, func() {
		if err := e.output.Flush(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to flush the output: %w", err))
		}
	})
	if err := e.file.Sync(); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to sync '%s': %w", e.Config.OutputPath, err))
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	e.Locker.Do(ctx, func() {
		e.isDrained = true
	})
	logger.Infof(ctx, "wrote %s into '%s'", humanize.Bytes(e.fileCounter.Count()), e.Config.OutputPath)
	return nil
}

func (e *Encoder) Close() (_err error) {
	ctx := context.TODO()
	logger.Debug(ctx, "closing the Encoder")
	defer func() { logger.Debugf(ctx, "closed the Encoder: %v", _err) }()

	isDrained := xsync.DoR1(ctx, &e.Locker, func() bool {
		return e.isDrained
	})
	if !isDrained {
		e.aborted.Store(true)
	}

	var result *multierror.Error
	result = multierror.Append(result, e.stopWorkers(ctx))
	if e.file != nil {
		if err := e.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("unable to close '%s': %w", e.Config.OutputPath, err))
		}
		if !isDrained {
			if err := os.Remove(e.Config.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				result = multierror.Append(result, fmt.Errorf("unable to remove the incomplete file '%s': %w", e.Config.OutputPath, err))
			}
		}
	}
	return result.ErrorOrNil()
}

func (e *Encoder) GetStats(context.Context) (*encoder.Stats, error) {
	return &encoder.Stats{
		BytesCountWrote:  e.fileCounter.Count(),
		VideoFramesWrote: e.stats.videoFrames.Load(),
		AudioFramesWrote: e.stats.audioFrames.Load(),
		TimelineTicks:    e.stats.timelineTicks.Load(),
		Discontinuities:  e.stats.discontinuities.Load(),
	}, nil
}
