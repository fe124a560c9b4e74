package flv

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screenrec/pkg/encoder"
	goflv "github.com/yutopp/go-flv"
)

const (
	defaultJPEGQuality = 85
	queueSize          = 256
	writeBufferSize    = 1 << 20
)

type EncoderFactory struct{}

var _ encoder.Factory = EncoderFactory{}

func NewEncoderFactory() EncoderFactory {
	return EncoderFactory{}
}

func (EncoderFactory) New(
	ctx context.Context,
	cfg encoder.Config,
	callbacks encoder.Callbacks,
) (_ encoder.Encoder, _err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	var soundParams *soundParams
	if cfg.Audio != nil {
		p, err := soundParamsFor(cfg.Audio.Format)
		if err != nil {
			return nil, err
		}
		soundParams = &p
	}
	if cfg.Video.Quality <= 0 {
		cfg.Video.Quality = defaultJPEGQuality
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0755); err != nil {
		return nil, fmt.Errorf("unable to create the directory for '%s': %w", cfg.OutputPath, err)
	}
	f, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to create file '%s': %w", cfg.OutputPath, err)
	}
	defer func() {
		if _err != nil {
			f.Close()
			os.Remove(cfg.OutputPath)
		}
	}()

	e := &Encoder{
		Config:      cfg,
		Callbacks:   callbacks,
		file:        f,
		fileCounter: datacounter.NewWriterCounter(f),
		soundParams: soundParams,
		videoQueue:  make(chan videoItem, queueSize),
		audioQueue:  make(chan encoder.AudioSample, queueSize),
	}
	e.output = bufio.NewWriterSize(e.fileCounter, writeBufferSize)

	flags := goflv.FlagsVideo
	if cfg.Audio != nil {
		flags |= goflv.FlagsAudio
	}
	e.flvEncoder, err = goflv.NewEncoder(e.output, flags)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the FLV encoder: %w", err)
	}

	logger.Debugf(ctx, "started writing '%s' (video: %dx%d@%d, audio: %v)",
		cfg.OutputPath, cfg.Video.Width, cfg.Video.Height, cfg.Video.FrameRate, cfg.Audio)

	e.workersWG.Add(2)
	observability.Go(ctx, func(ctx context.Context) {
		defer e.workersWG.Done()
		e.videoLoop(ctx)
	})
	observability.Go(ctx, func(ctx context.Context) {
		defer e.workersWG.Done()
		e.audioLoop(ctx)
	})
	return e, nil
}
