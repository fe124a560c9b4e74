// Package screenshoter periodically captures the screen and delivers the
// frames to a recorder.
package screenshoter

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/screenrec/pkg/clock"
	"github.com/xaionaro-go/screenrec/pkg/recorder"
	"github.com/xaionaro-go/screenrec/pkg/screenshot"
	"github.com/xaionaro-go/xsync"
)

const (
	DefaultInterval = time.Second / 120
)

type ScreenshotEngine interface {
	Screenshot(cfg screenshot.Config) (*image.RGBA, error)
}

// ScreenshotEngineFunc adapts a function to ScreenshotEngine.
type ScreenshotEngineFunc func(cfg screenshot.Config) (*image.RGBA, error)

func (fn ScreenshotEngineFunc) Screenshot(cfg screenshot.Config) (*image.RGBA, error) {
	return fn(cfg)
}

// Screenshoter is a recorder.VideoSource: it takes screenshots every
// Interval and timestamps them with the Counter.
type Screenshoter struct {
	locker           xsync.Mutex
	ScreenshotEngine ScreenshotEngine
	Config           screenshot.Config
	Interval         time.Duration
	Counter          *clock.Counter

	cancelFn context.CancelFunc
	wg       sync.WaitGroup
}

var _ recorder.VideoSource = (*Screenshoter)(nil)

func New(
	cfg screenshot.Config,
	interval time.Duration,
	counter *clock.Counter,
) *Screenshoter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if counter == nil {
		counter = clock.NewCounter(nil, 0)
	}
	return &Screenshoter{
		ScreenshotEngine: ScreenshotEngineFunc(screenshot.Screenshot),
		Config:           cfg,
		Interval:         interval,
		Counter:          counter,
	}
}

// Size returns the size of the captured frames.
func (s *Screenshoter) Size() (image.Point, error) {
	bounds, err := s.Config.Bounds()
	if err != nil {
		return image.Point{}, err
	}
	return bounds.Size(), nil
}

func (s *Screenshoter) Start(
	ctx context.Context,
	callback func(context.Context, recorder.VideoFrame),
) error {
	return xsync.DoR1(ctx, &s.locker, func() error {
		if s.cancelFn != nil {
			return fmt.Errorf("already started")
		}
		ctx, cancelFn := context.WithCancel(ctx)
		s.cancelFn = cancelFn
		s.wg.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer s.wg.Done()
			s.loop(ctx, callback)
		})
		return nil
	})
}

func (s *Screenshoter) Stop(ctx context.Context) error {
	cancelFn := xsync.DoR1(ctx, &s.locker, func() context.CancelFunc {
		cancelFn := s.cancelFn
		s.cancelFn = nil
		return cancelFn
	})
	if cancelFn == nil {
		return fmt.Errorf("not started")
	}
	cancelFn()
	s.wg.Wait()
	return nil
}

func (s *Screenshoter) loop(
	ctx context.Context,
	callback func(context.Context, recorder.VideoFrame),
) {
	logger.Debugf(ctx, "loop")
	defer logger.Debugf(ctx, "/loop")

	t := s.Counter.Clock.Ticker(s.Interval)
	defer t.Stop()
	var failures uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		ts := s.Counter.Now()
		img, err := s.ScreenshotEngine.Screenshot(s.Config)
		if err != nil {
			failures++
			if failures == 1 || failures%100 == 0 {
				logger.Errorf(ctx, "unable to take a screenshot (failure #%d): %v", failures, err)
			}
			continue
		}
		callback(ctx, recorder.VideoFrame{
			Image: img,
			Time:  ts,
		})
	}
}
