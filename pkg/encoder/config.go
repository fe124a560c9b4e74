package encoder

import (
	"fmt"

	"github.com/xaionaro-go/screenrec/pkg/audio/types"
)

type VideoConfig struct {
	Width     int
	Height    int
	FrameRate uint32
	Quality   int
}

type AudioConfig struct {
	Format types.Format
}

type Config struct {
	OutputPath string
	Video      VideoConfig
	Audio      *AudioConfig
}

func (cfg Config) Validate() error {
	if cfg.OutputPath == "" {
		return fmt.Errorf("output path is not set")
	}
	if cfg.Video.Width <= 0 || cfg.Video.Height <= 0 {
		return fmt.Errorf("invalid video size %dx%d", cfg.Video.Width, cfg.Video.Height)
	}
	if cfg.Video.Width%2 != 0 || cfg.Video.Height%2 != 0 {
		return fmt.Errorf("video size %dx%d is not even", cfg.Video.Width, cfg.Video.Height)
	}
	if cfg.Video.FrameRate == 0 {
		return fmt.Errorf("frame rate is not set")
	}
	if cfg.Audio != nil {
		if err := cfg.Audio.Format.Validate(); err != nil {
			return fmt.Errorf("invalid audio format: %w", err)
		}
	}
	return nil
}
