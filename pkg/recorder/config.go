package recorder

import (
	"fmt"
	"image"
	"time"

	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/audiosync"
	"github.com/xaionaro-go/screenrec/pkg/clock"
)

const (
	DefaultFrameRate     = 60
	DefaultVideoPoolSize = 8
	DefaultAudioPoolSize = 16
	DefaultStallTimeout  = time.Second
	DefaultAudioChunk    = 20 * time.Millisecond
	DefaultDrainTimeout  = time.Second
)

type Config struct {
	OutputPath string
	Frequency  clock.Frequency

	FrameRate uint32

	// VideoSize is the output size; it is rounded up to even values.
	VideoSize     image.Point
	VideoPoolSize int
	VideoQuality  int

	// StallTimeout is how long the video stream may stay without paced
	// frames before a timeline tick is sent.
	StallTimeout time.Duration

	// DrainTimeout limits how long Stop waits for free audio slots to
	// flush the buffered audio.
	DrainTimeout time.Duration

	// Audio is nil if audio is not recorded.
	Audio *AudioConfig
}

type AudioConfig struct {
	Input            types.Format
	Output           types.Format
	PoolSize         int
	ChunkDuration    time.Duration
	// StartCounter is the session counter reading at which the frame at
	// position 0 was captured.
	StartCounter     clock.Ticks
	AnomalyThreshold time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.Frequency <= 0 {
		cfg.Frequency = clock.DefaultFrequency
	}
	if cfg.FrameRate == 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.VideoPoolSize == 0 {
		cfg.VideoPoolSize = DefaultVideoPoolSize
	}
	if cfg.StallTimeout == 0 {
		cfg.StallTimeout = DefaultStallTimeout
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	cfg.VideoSize = EvenSize(cfg.VideoSize)
	if cfg.Audio != nil {
		audio := *cfg.Audio
		if audio.PoolSize == 0 {
			audio.PoolSize = DefaultAudioPoolSize
		}
		if audio.ChunkDuration == 0 {
			audio.ChunkDuration = DefaultAudioChunk
		}
		if audio.AnomalyThreshold == 0 {
			audio.AnomalyThreshold = audiosync.DefaultAnomalyThreshold
		}
		cfg.Audio = &audio
	}
	return cfg
}

func (cfg Config) Validate() error {
	if cfg.OutputPath == "" {
		return fmt.Errorf("output path is not set")
	}
	if cfg.VideoSize.X <= 0 || cfg.VideoSize.Y <= 0 {
		return fmt.Errorf("invalid video size %v", cfg.VideoSize)
	}
	if cfg.VideoPoolSize < 0 {
		return fmt.Errorf("invalid video pool size %d", cfg.VideoPoolSize)
	}
	if cfg.Audio != nil {
		if err := cfg.Audio.Input.Validate(); err != nil {
			return fmt.Errorf("invalid audio input format: %w", err)
		}
		if err := cfg.Audio.Output.Validate(); err != nil {
			return fmt.Errorf("invalid audio output format: %w", err)
		}
		if cfg.Audio.PoolSize < 0 {
			return fmt.Errorf("invalid audio pool size %d", cfg.Audio.PoolSize)
		}
	}
	return nil
}

// EvenSize rounds the size up to even values.
func EvenSize(size image.Point) image.Point {
	return image.Point{
		X: (size.X + 1) &^ 1,
		Y: (size.Y + 1) &^ 1,
	}
}
