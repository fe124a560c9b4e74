package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/screenrec/pkg/audio/types"
	"github.com/xaionaro-go/screenrec/pkg/audiosync"
	"github.com/xaionaro-go/screenrec/pkg/recorder"
	"github.com/xaionaro-go/screenrec/pkg/screenshot"
	"github.com/xaionaro-go/screenrec/pkg/xpath"
)

const (
	DefaultOutputDir      = "~/Videos"
	DefaultFileNameFormat = "2006-01-02 15-04-05.flv"
	DefaultJPEGQuality    = 85
	DefaultSampleRate     = 48000
	DefaultChannels       = 2
	DefaultDeviceBuffer   = time.Second
)

type config struct {
	OutputDir      string `yaml:"output_dir"`
	FileNameFormat string `yaml:"file_name_format"`

	Video VideoConfig `yaml:"video"`
	Audio AudioConfig `yaml:"audio"`

	VideoUpdateInterval   time.Duration `yaml:"video_update_interval"`
	ClockAnomalyThreshold time.Duration `yaml:"clock_anomaly_threshold"`
	MetricsListenAddr     string        `yaml:"metrics_listen_addr,omitempty"`
}

type Config config

type VideoConfig struct {
	FrameRate uint32 `yaml:"fps"`
	PoolSize  int    `yaml:"pool_size"`

	Screen screenshot.Config `yaml:"screen"`

	// Width and Height define the output size; zeros mean the size of
	// the captured area.
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`

	JPEGQuality     int           `yaml:"jpeg_quality"`
	StallTimeout    time.Duration `yaml:"stall_timeout"`
	CaptureInterval time.Duration `yaml:"capture_interval"`
}

type AudioConfig struct {
	Enabled      bool             `yaml:"enabled"`
	PoolSize     int              `yaml:"pool_size"`
	SampleRate   types.SampleRate `yaml:"sample_rate"`
	Channels     types.Channel    `yaml:"channels"`
	PollInterval time.Duration    `yaml:"poll_interval"`
	DeviceBuffer time.Duration    `yaml:"device_buffer"`
}

func Default() Config {
	return Config{
		OutputDir:      DefaultOutputDir,
		FileNameFormat: DefaultFileNameFormat,
		Video: VideoConfig{
			FrameRate:       recorder.DefaultFrameRate,
			PoolSize:        recorder.DefaultVideoPoolSize,
			JPEGQuality:     DefaultJPEGQuality,
			StallTimeout:    recorder.DefaultStallTimeout,
			CaptureInterval: time.Second / 120,
		},
		Audio: AudioConfig{
			Enabled:      true,
			PoolSize:     recorder.DefaultAudioPoolSize,
			SampleRate:   DefaultSampleRate,
			Channels:     DefaultChannels,
			PollInterval: recorder.DefaultAudioPollInterval,
			DeviceBuffer: DefaultDeviceBuffer,
		},
		VideoUpdateInterval:   recorder.DefaultVideoUpdateInterval,
		ClockAnomalyThreshold: audiosync.DefaultAnomalyThreshold,
	}
}

func (cfg Config) Validate() error {
	if cfg.FileNameFormat == "" {
		return fmt.Errorf("file_name_format is empty")
	}
	if cfg.Video.FrameRate == 0 {
		return fmt.Errorf("video.fps must be positive")
	}
	if cfg.Video.Width < 0 || cfg.Video.Height < 0 {
		return fmt.Errorf("invalid video size %dx%d", cfg.Video.Width, cfg.Video.Height)
	}
	if cfg.Video.JPEGQuality < 0 || cfg.Video.JPEGQuality > 100 {
		return fmt.Errorf("video.jpeg_quality must be within [0, 100], but is %d", cfg.Video.JPEGQuality)
	}
	if cfg.Audio.Enabled {
		if cfg.Audio.SampleRate == 0 {
			return fmt.Errorf("audio.sample_rate must be positive")
		}
		if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
			return fmt.Errorf("audio.channels must be 1 or 2, but is %d", cfg.Audio.Channels)
		}
	}
	return nil
}

// OutputPath returns the path of a recording started at the given moment.
func (cfg Config) OutputPath(startedAt time.Time) (string, error) {
	dir, err := xpath.Expand(cfg.OutputDir)
	if err != nil {
		return "", fmt.Errorf("unable to expand path '%s': %w", cfg.OutputDir, err)
	}
	return filepath.Join(dir, startedAt.Format(cfg.FileNameFormat)), nil
}

// LoadFile reads the config from the path, starting from the defaults. A
// missing file yields the defaults.
func LoadFile(
	ctx context.Context,
	cfgPath string,
) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(cfgPath)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		logger.Debugf(ctx, "cannot find file '%s', using the default config", cfgPath)
		return cfg, nil
	default:
		return cfg, fmt.Errorf("unable to read file '%s': %w", cfgPath, err)
	}

	if _, err := cfg.Read(b); err != nil {
		return cfg, fmt.Errorf("unable to parse file '%s': %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config in '%s': %w", cfgPath, err)
	}
	return cfg, nil
}
