package commands

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/xaionaro-go/screenrec/pkg/audio/backends/pulseaudio"
	"github.com/xaionaro-go/screenrec/pkg/clock"
	"github.com/xaionaro-go/screenrec/pkg/config"
	"github.com/xaionaro-go/screenrec/pkg/encoder/flv"
	"github.com/xaionaro-go/screenrec/pkg/metrics"
	"github.com/xaionaro-go/screenrec/pkg/recorder"
	"github.com/xaionaro-go/screenrec/pkg/screenshoter"
)

func record(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	cfg := loadConfig(cmd)
	applyRecordFlags(ctx, cmd.Flags(), &cfg)
	assertNoError(ctx, cfg.Validate())

	ctx, cancelFn := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancelFn()

	duration, err := cmd.Flags().GetDuration("duration")
	assertNoError(ctx, err)
	if duration > 0 {
		var timeoutCancelFn context.CancelFunc
		ctx, timeoutCancelFn = context.WithTimeout(ctx, duration)
		defer timeoutCancelFn()
	}

	counter := clock.NewCounter(clock.Get(), clock.DefaultFrequency)
	videoSource := screenshoter.New(cfg.Video.Screen, cfg.Video.CaptureInterval, counter)
	videoSize, err := videoSource.Size()
	assertNoError(ctx, err)
	if cfg.Video.Width > 0 && cfg.Video.Height > 0 {
		videoSize = image.Point{X: cfg.Video.Width, Y: cfg.Video.Height}
	}

	outputPath, err := cfg.OutputPath(time.Now())
	assertNoError(ctx, err)
	sessionCfg := recorder.Config{
		OutputPath:    outputPath,
		Frequency:     counter.Frequency,
		FrameRate:     cfg.Video.FrameRate,
		VideoSize:     videoSize,
		VideoPoolSize: cfg.Video.PoolSize,
		VideoQuality:  cfg.Video.JPEGQuality,
		StallTimeout:  cfg.Video.StallTimeout,
	}

	var audioSource recorder.AudioSource
	if cfg.Audio.Enabled {
		audioSource = pulseaudio.New(pulseaudio.Config{
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
			Buffer:     cfg.Audio.DeviceBuffer,
		}, counter)
		sessionCfg.Audio = &recorder.AudioConfig{
			Output:           flv.AudioFormat(cfg.Audio.Channels),
			PoolSize:         cfg.Audio.PoolSize,
			AnomalyThreshold: cfg.ClockAnomalyThreshold,
		}
	}

	runner := recorder.NewRunner(recorder.RunnerConfig{
		Session:             sessionCfg,
		AudioPollInterval:   cfg.Audio.PollInterval,
		VideoUpdateInterval: cfg.VideoUpdateInterval,
	}, flv.NewEncoderFactory(), videoSource, audioSource, counter)

	if cfg.MetricsListenAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(metrics.NewCollector(func(ctx context.Context) (recorder.Stats, bool) {
			session := runner.Session()
			if session == nil {
				return recorder.Stats{}, false
			}
			return session.Stats(ctx), true
		}))
		_, err := metrics.Serve(ctx, cfg.MetricsListenAddr, registry)
		assertNoError(ctx, err)
	}

	logger.Infof(ctx, "recording %dx%d@%d into '%s', press Ctrl+C to stop", videoSize.X, videoSize.Y, cfg.Video.FrameRate, outputPath)
	err = runner.Run(ctx)
	assertNoError(ctx, err)

	var stats recorder.Stats
	if session := runner.Session(); session != nil {
		stats = session.Stats(ctx)
	}
	fmt.Printf("recorded '%s' (%s): %s\n", outputPath, fileSize(outputPath), stats)
}

func applyRecordFlags(
	ctx context.Context,
	flags *pflag.FlagSet,
	cfg *config.Config,
) {
	if flags.Changed("output-dir") {
		v, err := flags.GetString("output-dir")
		assertNoError(ctx, err)
		cfg.OutputDir = v
	}
	if flags.Changed("fps") {
		v, err := flags.GetUint32("fps")
		assertNoError(ctx, err)
		cfg.Video.FrameRate = v
	}
	if flags.Changed("display") {
		v, err := flags.GetUint("display")
		assertNoError(ctx, err)
		cfg.Video.Screen.DisplayID = v
	}
	if flags.Changed("no-audio") {
		v, err := flags.GetBool("no-audio")
		assertNoError(ctx, err)
		cfg.Audio.Enabled = !v
	}
	if flags.Changed("metrics-listen-addr") {
		v, err := flags.GetString("metrics-listen-addr")
		assertNoError(ctx, err)
		cfg.MetricsListenAddr = v
	}
}

func fileSize(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return humanize.Bytes(uint64(fi.Size()))
}
