package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/screenrec/pkg/clock"
	"github.com/xaionaro-go/screenrec/pkg/encoder"
)

const (
	DefaultAudioPollInterval   = 100 * time.Millisecond
	DefaultVideoUpdateInterval = 100 * time.Millisecond
)

type RunnerConfig struct {
	Session             Config
	AudioPollInterval   time.Duration
	VideoUpdateInterval time.Duration
}

// Runner drives a Session: it connects the capture sources to it and
// runs the periodic audio polling and video timeline updates.
type Runner struct {
	Config         RunnerConfig
	EncoderFactory encoder.Factory
	VideoSource    VideoSource
	AudioSource    AudioSource
	Counter        *clock.Counter

	session atomic.Pointer[Session]
}

func NewRunner(
	cfg RunnerConfig,
	encoderFactory encoder.Factory,
	videoSource VideoSource,
	audioSource AudioSource,
	counter *clock.Counter,
) *Runner {
	if cfg.AudioPollInterval <= 0 {
		cfg.AudioPollInterval = DefaultAudioPollInterval
	}
	if cfg.VideoUpdateInterval <= 0 {
		cfg.VideoUpdateInterval = DefaultVideoUpdateInterval
	}
	if counter == nil {
		counter = clock.NewCounter(clock.Get(), cfg.Session.Frequency)
	}
	return &Runner{
		Config:         cfg,
		EncoderFactory: encoderFactory,
		VideoSource:    videoSource,
		AudioSource:    audioSource,
		Counter:        counter,
	}
}

// Session returns the current session or nil if Run was not called yet.
func (r *Runner) Session() *Session {
	return r.session.Load()
}

// Run records until the context is cancelled.
func (r *Runner) Run(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Run")
	defer func() { logger.Debugf(ctx, "/Run: %v", _err) }()

	sessionCfg := r.Config.Session
	sessionCfg.Frequency = r.Counter.Frequency
	sessionCfg.Audio = nil
	if r.AudioSource != nil {
		if err := r.AudioSource.Start(ctx); err != nil {
			return fmt.Errorf("unable to start the audio capture: %w", err)
		}
		audioCfg := AudioConfig{}
		if r.Config.Session.Audio != nil {
			audioCfg = *r.Config.Session.Audio
		}
		audioCfg.Input = r.AudioSource.Format()
		audioCfg.StartCounter = r.AudioSource.StartedAt()
		if audioCfg.Output.SampleRate == 0 {
			audioCfg.Output = audioCfg.Input
		}
		sessionCfg.Audio = &audioCfg
	}
	closeAudio := func() {
		if r.AudioSource == nil {
			return
		}
		if err := r.AudioSource.Close(); err != nil {
			logger.Errorf(ctx, "unable to close the audio source: %v", err)
		}
	}

	session, err := NewSession(sessionCfg, r.EncoderFactory)
	if err != nil {
		closeAudio()
		return fmt.Errorf("unable to initialize the session: %w", err)
	}
	if err := session.Start(ctx); err != nil {
		closeAudio()
		return fmt.Errorf("unable to start the session: %w", err)
	}
	r.session.Store(session)

	err = r.VideoSource.Start(ctx, func(ctx context.Context, frame VideoFrame) {
		if err := session.NewFrame(ctx, frame); err != nil && !errors.Is(err, ErrNotRecording) {
			logger.Errorf(ctx, "unable to process a video frame: %v", err)
		}
	})
	if err != nil {
		closeAudio()
		if stopErr := session.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			logger.Errorf(ctx, "unable to stop the session: %v", stopErr)
		}
		return fmt.Errorf("unable to start the video capture: %w", err)
	}

	audioTicker := r.Counter.Clock.Ticker(r.Config.AudioPollInterval)
	defer audioTicker.Stop()
	videoTicker := r.Counter.Clock.Ticker(r.Config.VideoUpdateInterval)
	defer videoTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return r.stop(context.WithoutCancel(ctx), session)
		case <-audioTicker.C:
			r.pollAudio(ctx, session)
		case <-videoTicker.C:
			if err := session.Tick(ctx, r.Counter.Now()); err != nil {
				logger.Errorf(ctx, "unable to update the video timeline: %v", err)
			}
		}
	}
}

func (r *Runner) pollAudio(ctx context.Context, session *Session) {
	if r.AudioSource == nil {
		return
	}
	for {
		block, ok := r.AudioSource.GetNextBlock(ctx)
		if !ok {
			return
		}
		err := session.NewSamples(ctx, block)
		r.AudioSource.ReleaseBlock(block)
		if err != nil {
			logger.Errorf(ctx, "unable to process an audio block: %v", err)
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrNotRecording) {
				return
			}
		}
	}
}

func (r *Runner) stop(ctx context.Context, session *Session) error {
	logger.Debugf(ctx, "stopping the recording")
	var result *multierror.Error

	if r.AudioSource != nil {
		if err := r.AudioSource.Flush(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to flush the audio capture: %w", err))
		}
		r.pollAudio(ctx, session)
		if err := r.AudioSource.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("unable to close the audio capture: %w", err))
		}
	}

	if err := r.VideoSource.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to stop the video capture: %w", err))
	}

	if err := session.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to stop the session: %w", err))
	}
	return result.ErrorOrNil()
}
