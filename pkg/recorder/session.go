package recorder

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/screenrec/pkg/audio/resampler"
	"github.com/xaionaro-go/screenrec/pkg/audiosync"
	"github.com/xaionaro-go/screenrec/pkg/bufferpool"
	"github.com/xaionaro-go/screenrec/pkg/clock"
	"github.com/xaionaro-go/screenrec/pkg/encoder"
	"github.com/xaionaro-go/screenrec/pkg/pacer"
	"github.com/xaionaro-go/xsync"
)

// Session is a single recording: it paces video frames, places audio on
// the video timeline and feeds both into an asynchronous encoder through
// bounded buffer pools.
//
// Video never waits for the encoder: if there is no free video slot the
// frame is dropped and the gap is signalled to the container. Audio is
// never dropped: it waits for a free audio slot.
type Session struct {
	// audioLocker serializes the audio path (the reconciler, the resampler
	// and the audio slots usage). It may be held while waiting for a free
	// audio slot, so it is always taken before locker, never after.
	audioLocker xsync.Mutex
	locker      xsync.Mutex

	ID             uuid.UUID
	Config         Config
	EncoderFactory encoder.Factory

	state   State
	encoder encoder.Encoder

	videoPool     *bufferpool.Pool[*image.RGBA]
	pacer         *pacer.Pacer
	scratch       *image.RGBA
	startTime     clock.Ticks
	startSet      bool
	lastVideoTime clock.Ticks
	videoSeen     bool
	discontinuity bool

	audioPool  *bufferpool.Pool[[]byte]
	reconciler *audiosync.Reconciler
	resampler  *resampler.Resampler

	// stopping is cancelled when Stop begins; it interrupts waiting for
	// a free audio slot.
	stopping    context.Context
	cancelAudio context.CancelFunc

	stats Stats
}

func NewSession(
	cfg Config,
	encoderFactory encoder.Factory,
) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Session{
		ID:             uuid.New(),
		Config:         cfg,
		EncoderFactory: encoderFactory,
	}, nil
}

func (s *Session) ctx(ctx context.Context) context.Context {
	return logger.CtxWithLogger(ctx, logger.FromCtx(ctx).WithField("session_id", s.ID.String()))
}

func (s *Session) State(ctx context.Context) State {
	return xsync.DoR1(ctx, &s.locker, func() State {
		return s.state
	})
}

func (s *Session) Start(ctx context.Context) error {
	ctx = s.ctx(ctx)
	return xsync.DoR1(ctx, &s.audioLocker, func() error {
		return xsync.DoA1R1(ctx, &s.locker, s.startLocked, ctx)
	})
}

func (s *Session) startLocked(ctx context.Context) (_err error) {
	switch s.state {
	case StateUnstarted:
	case StateClosed:
		return ErrAlreadyStopped
	default:
		return ErrAlreadyStarted
	}
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()

	s.state = StateArmed
	defer func() {
		if _err != nil {
			s.releaseLocked(ctx)
			s.state = StateUnstarted
		}
	}()

	cfg := s.Config
	var err error
	s.pacer, err = pacer.New(cfg.FrameRate, cfg.Frequency)
	if err != nil {
		return fmt.Errorf("unable to initialize the frame pacer: %w", err)
	}

	videoRect := image.Rectangle{Max: cfg.VideoSize}
	s.videoPool, err = bufferpool.New(cfg.VideoPoolSize, func(int) *image.RGBA {
		return image.NewRGBA(videoRect)
	})
	if err != nil {
		return fmt.Errorf("unable to initialize the video buffer pool: %w", err)
	}

	encCfg := encoder.Config{
		OutputPath: cfg.OutputPath,
		Video: encoder.VideoConfig{
			Width:     cfg.VideoSize.X,
			Height:    cfg.VideoSize.Y,
			FrameRate: cfg.FrameRate,
			Quality:   cfg.VideoQuality,
		},
	}
	if cfg.Audio != nil {
		if err := s.initAudioLocked(cfg.Audio); err != nil {
			return err
		}
		encCfg.Audio = &encoder.AudioConfig{
			Format: cfg.Audio.Output,
		}
	}

	s.encoder, err = s.EncoderFactory.New(ctx, encCfg, s.encoderCallbacks(ctx))
	if err != nil {
		return fmt.Errorf("unable to initialize the encoder: %w", err)
	}

	s.startSet = false
	s.videoSeen = false
	s.discontinuity = false
	s.stopping, s.cancelAudio = context.WithCancel(context.Background())
	s.stats = Stats{}
	s.state = StateRecording
	logger.Infof(ctx, "started recording into '%s' (%dx%d@%d)", cfg.OutputPath, cfg.VideoSize.X, cfg.VideoSize.Y, cfg.FrameRate)
	return nil
}

func (s *Session) initAudioLocked(cfg *AudioConfig) error {
	var err error
	s.resampler, err = resampler.New(resampler.Config{
		Input:       cfg.Input,
		Output:      cfg.Output,
		Frequency:   s.Config.Frequency,
		ChunkFrames: uint32(clock.MulDivRoundUp(int64(cfg.ChunkDuration), int64(cfg.Output.SampleRate), int64(time.Second))),
	})
	if err != nil {
		return fmt.Errorf("unable to initialize the audio resampler: %w", err)
	}

	chunkSize := s.resampler.ChunkSize()
	s.audioPool, err = bufferpool.New(cfg.PoolSize, func(int) []byte {
		return make([]byte, chunkSize)
	})
	if err != nil {
		return fmt.Errorf("unable to initialize the audio buffer pool: %w", err)
	}

	s.reconciler = audiosync.NewReconciler(s.Config.Frequency, cfg.Input.SampleRate, cfg.StartCounter)
	s.reconciler.AnomalyThreshold = cfg.AnomalyThreshold
	return nil
}

// encoderCallbacks returns the callbacks the encoder uses to return the
// slots. They may be called from any goroutine, and thus must not touch
// anything but the pools.
func (s *Session) encoderCallbacks(ctx context.Context) encoder.Callbacks {
	videoPool, audioPool := s.videoPool, s.audioPool
	callbacks := encoder.Callbacks{
		OnVideoDone: func(slotIdx int) {
			if err := videoPool.OnReclaimed(videoPool.Slot(slotIdx)); err != nil {
				logger.Errorf(ctx, "unable to reclaim video slot #%d: %v", slotIdx, err)
			}
		},
	}
	if audioPool != nil {
		callbacks.OnAudioDone = func(slotIdx int) {
			if err := audioPool.OnReclaimed(audioPool.Slot(slotIdx)); err != nil {
				logger.Errorf(ctx, "unable to reclaim audio slot #%d: %v", slotIdx, err)
			}
		}
	}
	return callbacks
}

// elapsed converts a session counter reading to the output timeline.
func (s *Session) elapsed(t clock.Ticks) time.Duration {
	return s.elapsedSince(s.startTime, t)
}

func (s *Session) elapsedSince(start, t clock.Ticks) time.Duration {
	if t < start {
		return 0
	}
	return (t - start).Duration(s.Config.Frequency)
}

// Stop flushes the buffered audio, finalizes the container and releases
// the resources. The session cannot be restarted.
//
// A NewSamples call waiting for a free audio slot is interrupted and
// returns ErrNotRecording. Flushing the audio is limited by
// Config.DrainTimeout.
func (s *Session) Stop(ctx context.Context) (_err error) {
	ctx = s.ctx(ctx)
	if err := xsync.DoR1(ctx, &s.locker, s.beginStopLocked); err != nil {
		return err
	}
	logger.Debugf(ctx, "Stop")
	defer func() { logger.Debugf(ctx, "/Stop: %v", _err) }()
	return xsync.DoA1R1(ctx, &s.audioLocker, s.finishStopAudioLocked, ctx)
}

func (s *Session) beginStopLocked() error {
	switch s.state {
	case StateRecording:
	case StateStopping, StateClosed:
		return ErrAlreadyStopped
	default:
		return ErrNotRecording
	}
	s.state = StateStopping
	s.cancelAudio()
	return nil
}

func (s *Session) finishStopAudioLocked(ctx context.Context) error {
	var result *multierror.Error
	if s.resampler != nil {
		if err := s.flushAudio(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to drain the audio: %w", err))
		}
	}

	s.locker.Do(ctx, func() {
		defer func() { s.state = StateClosed }()
		if err := s.encoder.Drain(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to finalize the output: %w", err))
		}
		s.updateEncoderStatsLocked(ctx)
		s.releaseLocked(ctx)
		logger.Infof(ctx, "stopped recording: %s", s.stats)
	})
	return result.ErrorOrNil()
}

func (s *Session) releaseLocked(ctx context.Context) {
	if s.cancelAudio != nil {
		s.cancelAudio()
	}
	if s.videoPool != nil {
		s.videoPool.Close()
	}
	if s.audioPool != nil {
		s.audioPool.Close()
	}
	if s.encoder != nil {
		if err := s.encoder.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the encoder: %v", err)
		}
		s.encoder = nil
	}
}

func (s *Session) updateEncoderStatsLocked(ctx context.Context) {
	if s.encoder == nil {
		return
	}
	encStats, err := s.encoder.GetStats(ctx)
	if err != nil {
		logger.Debugf(ctx, "unable to get the encoder stats: %v", err)
		return
	}
	s.stats.Encoder = *encStats
}
